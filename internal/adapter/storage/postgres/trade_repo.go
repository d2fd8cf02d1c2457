package postgres

import (
	"context"
	"errors"
	"fmt"

	"truek-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TradeRepo implements ports.TradeRepository.
type TradeRepo struct {
	pool Pool
}

// NewTradeRepo creates a new TradeRepo.
func NewTradeRepo(pool Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

const tradeColumns = `id, requester_id, owner_id, target_listing_id, offered_listing_id, ` +
	`offered_amount::text, requested_amount::text, status, message, last_offer_by, created_at, completed_at`

// Create inserts a trade. The partial unique index uq_trades_active rejects a
// second active trade for the same triple; created is false in that case.
func (r *TradeRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Trade) (bool, error) {
	query := `INSERT INTO trades (id, requester_id, owner_id, target_listing_id, offered_listing_id,
			offered_amount, requested_amount, status, message, last_offer_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (requester_id, owner_id, target_listing_id) WHERE status IN ('PENDING', 'ACCEPTED') DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		t.ID, t.RequesterID, t.OwnerID, t.TargetListingID, t.OfferedListingID,
		nullableDecimal(t.OfferedAmount), nullableDecimal(t.RequestedAmount),
		string(t.Status), t.Message, t.LastOfferBy, t.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert trade: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FindActive returns the pending or accepted trade for the triple, if any.
func (r *TradeRepo) FindActive(ctx context.Context, tx pgx.Tx, requesterID, ownerID, targetListingID int64) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE requester_id = $1 AND owner_id = $2 AND target_listing_id = $3
		AND status IN ('PENDING', 'ACCEPTED') LIMIT 1`

	t, err := scanTrade(tx.QueryRow(ctx, query, requesterID, ownerID, targetListingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active trade: %w", err)
	}
	return t, nil
}

// GetByID fetches a trade by its UUID (without locking).
func (r *TradeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`

	t, err := scanTrade(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetForUpdate fetches a trade with pessimistic locking.
// This MUST be called within a transaction.
func (r *TradeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1 FOR UPDATE`

	t, err := scanTrade(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get trade for update: %w", err)
	}
	return t, nil
}

// Update writes the mutable columns of a trade within a transaction.
func (r *TradeRepo) Update(ctx context.Context, tx pgx.Tx, t *domain.Trade) error {
	query := `UPDATE trades SET offered_listing_id = $1, offered_amount = $2, requested_amount = $3,
		message = $4, status = $5, last_offer_by = $6, completed_at = $7
		WHERE id = $8`

	tag, err := tx.Exec(ctx, query,
		t.OfferedListingID, nullableDecimal(t.OfferedAmount), nullableDecimal(t.RequestedAmount),
		t.Message, string(t.Status), t.LastOfferBy, t.CompletedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade not found: %s", t.ID)
	}
	return nil
}

// CancelSiblings cancels every other active trade that targets or offers one
// of the consumed listings.
func (r *TradeRepo) CancelSiblings(ctx context.Context, tx pgx.Tx, listingIDs []int64, exceptID uuid.UUID) (int64, error) {
	query := `UPDATE trades SET status = 'CANCELLED'
		WHERE id <> $2 AND status IN ('PENDING', 'ACCEPTED')
		  AND (target_listing_id = ANY($1) OR offered_listing_id = ANY($1))`

	tag, err := tx.Exec(ctx, query, listingIDs, exceptID)
	if err != nil {
		return 0, fmt.Errorf("cancel sibling trades: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListForUser returns trades where the user is requester or owner, newest first.
func (r *TradeRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE requester_id = $1 OR owner_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var (
		t                  domain.Trade
		offered, requested *string
	)
	err := row.Scan(
		&t.ID, &t.RequesterID, &t.OwnerID, &t.TargetListingID, &t.OfferedListingID,
		&offered, &requested, &t.Status, &t.Message, &t.LastOfferBy, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.OfferedAmount, err = parseNullableDecimal(offered); err != nil {
		return nil, fmt.Errorf("parse offered amount: %w", err)
	}
	if t.RequestedAmount, err = parseNullableDecimal(requested); err != nil {
		return nil, fmt.Errorf("parse requested amount: %w", err)
	}
	return &t, nil
}
