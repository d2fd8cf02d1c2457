package postgres

import (
	"context"
	"errors"
	"fmt"

	"truek-settlement/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ListingRepo implements ports.ListingRepository. Only the availability
// flags of the externally owned listings table are touched.
type ListingRepo struct {
	pool Pool
}

// NewListingRepo creates a new ListingRepo.
func NewListingRepo(pool Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

// GetByID fetches a listing (without locking).
func (r *ListingRepo) GetByID(ctx context.Context, id int64) (*domain.Listing, error) {
	query := `SELECT id, owner_id, published, available FROM listings WHERE id = $1`

	l, err := scanListing(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get listing by id: %w", err)
	}
	return l, nil
}

// GetForUpdate fetches a listing with pessimistic locking.
// This MUST be called within a transaction.
func (r *ListingRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Listing, error) {
	query := `SELECT id, owner_id, published, available FROM listings WHERE id = $1 FOR UPDATE`

	l, err := scanListing(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get listing for update: %w", err)
	}
	return l, nil
}

// MarkUnavailable unpublishes the listings consumed by a completed trade.
func (r *ListingRepo) MarkUnavailable(ctx context.Context, tx pgx.Tx, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE listings SET available = FALSE, published = FALSE, updated_at = NOW() WHERE id = ANY($1)`

	if _, err := tx.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("mark listings unavailable: %w", err)
	}
	return nil
}

func scanListing(row rowScanner) (*domain.Listing, error) {
	var l domain.Listing
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Published, &l.Available); err != nil {
		return nil, err
	}
	return &l, nil
}
