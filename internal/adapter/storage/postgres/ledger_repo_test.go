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

func ledgerEntryColumns() []string {
	return []string{"id", "user_id", "amount", "kind", "ref_kind", "ref_id", "reference", "created_at"}
}

func strPtr(s string) *string {
	return &s
}

func TestLedgerRepo_Create_Pair(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	tradeID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	debit := &domain.LedgerEntry{
		ID: uuid.New(), UserID: 1, Amount: decimal.NewFromInt(-20),
		Kind: domain.EntryKindTradeSettlement, RefKind: domain.RefKindTrade, RefID: &tradeID, CreatedAt: now,
	}
	credit := &domain.LedgerEntry{
		ID: uuid.New(), UserID: 2, Amount: decimal.NewFromInt(20),
		Kind: domain.EntryKindTradeSettlement, RefKind: domain.RefKindTrade, RefID: &tradeID, CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallet_entries").
		WithArgs(debit.ID, int64(1), "-20", "TRADE_SETTLEMENT", "TRADE", &tradeID, nil, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO wallet_entries").
		WithArgs(credit.ID, int64(2), "20", "TRADE_SETTLEMENT", "TRADE", &tradeID, nil, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, debit, credit)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ListByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	entryID := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallet_entries\\s+WHERE user_id = .+ ORDER BY created_at DESC").
		WithArgs(int64(1), 20).
		WillReturnRows(pgxmock.NewRows(ledgerEntryColumns()).
			AddRow(entryID, int64(1), "-15.25", domain.EntryKindInternalTransferOut,
				strPtr("INTERNAL_TRANSFER"), (*uuid.UUID)(nil), strPtr("rent"), now))

	entries, err := repo.ListByUser(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entryID, entries[0].ID)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("-15.25")))
	assert.Equal(t, domain.RefKindInternalTransfer, entries[0].RefKind)
	assert.Equal(t, "rent", entries[0].Reference)
	assert.Nil(t, entries[0].RefID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_SumByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\)::text FROM wallet_entries").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow("70.00"))

	sum, err := repo.SumByUser(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(70)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNullableHelpers(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "x", nullableString("x"))

	assert.Nil(t, nullableDecimal(nil))
	d := decimal.RequireFromString("1.50")
	assert.Equal(t, "1.5", nullableDecimal(&d))

	parsed, err := parseNullableDecimal(strPtr("2.25"))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(decimal.RequireFromString("2.25")))

	parsed, err = parseNullableDecimal(nil)
	require.NoError(t, err)
	assert.Nil(t, parsed)

	_, err = parseNullableDecimal(strPtr("abc"))
	assert.Error(t, err)
}
