package postgres

import (
	"context"
	"errors"
	"fmt"

	"truek-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OrderRepo implements ports.OrderRepository over p2p_orders.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `id, type, creator_id, counterparty_id, fiat_amount::text, currency_amount::text, ` +
	`rate::text, payment_method, status, created_at, updated_at`

// Create inserts a new P2P order.
func (r *OrderRepo) Create(ctx context.Context, o *domain.P2POrder) error {
	query := `INSERT INTO p2p_orders (id, type, creator_id, counterparty_id, fiat_amount, currency_amount,
			rate, payment_method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, string(o.Type), o.CreatorID, o.CounterpartyID,
		o.FiatAmount.String(), o.CurrencyAmount.String(), o.Rate.String(),
		o.PaymentMethod, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert p2p order: %w", err)
	}
	return nil
}

// GetByID fetches an order by its UUID (without locking).
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.P2POrder, error) {
	query := `SELECT ` + orderColumns + ` FROM p2p_orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get p2p order by id: %w", err)
	}
	return o, nil
}

// GetForUpdate fetches an order with pessimistic locking.
// This MUST be called within a transaction.
func (r *OrderRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.P2POrder, error) {
	query := `SELECT ` + orderColumns + ` FROM p2p_orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get p2p order for update: %w", err)
	}
	return o, nil
}

// Update writes the status and counterparty of an order within a transaction.
func (r *OrderRepo) Update(ctx context.Context, tx pgx.Tx, o *domain.P2POrder) error {
	query := `UPDATE p2p_orders SET counterparty_id = $1, status = $2, updated_at = $3 WHERE id = $4`

	tag, err := tx.Exec(ctx, query, o.CounterpartyID, string(o.Status), o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update p2p order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("p2p order not found: %s", o.ID)
	}
	return nil
}

// ListByStatus returns orders in the given status, newest first.
func (r *OrderRepo) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.P2POrder, error) {
	query := `SELECT ` + orderColumns + ` FROM p2p_orders WHERE status = $1 ORDER BY created_at DESC`

	return r.list(ctx, query, string(status))
}

// ListForUser returns orders the user created or took whose status is in statuses, newest first.
func (r *OrderRepo) ListForUser(ctx context.Context, userID int64, statuses []domain.OrderStatus) ([]*domain.P2POrder, error) {
	query := `SELECT ` + orderColumns + ` FROM p2p_orders
		WHERE (creator_id = $1 OR counterparty_id = $1) AND status = ANY($2)
		ORDER BY created_at DESC`

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.list(ctx, query, userID, names)
}

func (r *OrderRepo) list(ctx context.Context, query string, args ...any) ([]*domain.P2POrder, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list p2p orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.P2POrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan p2p order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate p2p orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row rowScanner) (*domain.P2POrder, error) {
	var (
		o                    domain.P2POrder
		fiat, currency, rate string
	)
	err := row.Scan(
		&o.ID, &o.Type, &o.CreatorID, &o.CounterpartyID, &fiat, &currency,
		&rate, &o.PaymentMethod, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if o.FiatAmount, err = decimal.NewFromString(fiat); err != nil {
		return nil, fmt.Errorf("parse fiat amount: %w", err)
	}
	if o.CurrencyAmount, err = decimal.NewFromString(currency); err != nil {
		return nil, fmt.Errorf("parse currency amount: %w", err)
	}
	if o.Rate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse rate: %w", err)
	}
	return &o, nil
}
