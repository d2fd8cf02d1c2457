package postgres

import (
	"context"
	"testing"
	"time"

	"truek-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder() *domain.P2POrder {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.P2POrder{
		ID:             uuid.New(),
		Type:           domain.OrderTypeDeposit,
		CreatorID:      1,
		FiatAmount:     decimal.NewFromInt(700),
		CurrencyAmount: decimal.NewFromInt(100),
		Rate:           decimal.NewFromInt(7),
		PaymentMethod:  strPtr("bank transfer"),
		Status:         domain.OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func orderColumnsList() []string {
	return []string{"id", "type", "creator_id", "counterparty_id", "fiat_amount", "currency_amount",
		"rate", "payment_method", "status", "created_at", "updated_at"}
}

func orderRow(o *domain.P2POrder) *pgxmock.Rows {
	return pgxmock.NewRows(orderColumnsList()).AddRow(
		o.ID, o.Type, o.CreatorID, o.CounterpartyID, o.FiatAmount.String(), o.CurrencyAmount.String(),
		o.Rate.String(), o.PaymentMethod, o.Status, o.CreatedAt, o.UpdatedAt,
	)
}

func TestOrderRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()

	mock.ExpectExec("INSERT INTO p2p_orders").
		WithArgs(o.ID, "DEPOSIT", int64(1), o.CounterpartyID, "700", "100", "7",
			o.PaymentMethod, "PENDING", o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()
	o.Rate = decimal.RequireFromString("7.12345678")

	mock.ExpectQuery("SELECT .+ FROM p2p_orders WHERE id").
		WithArgs(o.ID).
		WillReturnRows(orderRow(o))

	result, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.OrderTypeDeposit, result.Type)
	assert.True(t, result.Rate.Equal(o.Rate))
	assert.True(t, result.CurrencyAmount.Equal(decimal.NewFromInt(100)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetForUpdate_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM p2p_orders WHERE id = .+ FOR UPDATE").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(orderColumnsList()))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetForUpdate(context.Background(), tx, id)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestOrderRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()
	taker := int64(2)
	o.CounterpartyID = &taker
	o.Status = domain.OrderStatusMatched

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE p2p_orders SET counterparty_id").
		WithArgs(&taker, "MATCHED", o.UpdatedAt, o.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Update(context.Background(), tx, o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_ListByStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()

	mock.ExpectQuery("SELECT .+ FROM p2p_orders WHERE status = .+ ORDER BY created_at DESC").
		WithArgs("PENDING").
		WillReturnRows(orderRow(o))

	orders, err := repo.ListByStatus(context.Background(), domain.OrderStatusPending)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_ListForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM p2p_orders").
		WithArgs(int64(5), []string{"MATCHED", "PAID", "RELEASED", "DISPUTED"}).
		WillReturnRows(pgxmock.NewRows(orderColumnsList()))

	orders, err := repo.ListForUser(context.Background(), 5, domain.UserOrderStatuses)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}
