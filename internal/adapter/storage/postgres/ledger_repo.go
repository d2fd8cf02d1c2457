package postgres

import (
	"context"
	"fmt"

	"truek-settlement/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository over wallet_entries.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const ledgerColumns = `id, user_id, amount::text, kind, ref_kind, ref_id, reference, created_at`

// Create appends entries within a transaction.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, entries ...*domain.LedgerEntry) error {
	query := `INSERT INTO wallet_entries (id, user_id, amount, kind, ref_kind, ref_id, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, e := range entries {
		_, err := tx.Exec(ctx, query,
			e.ID, e.UserID, e.Amount.String(), string(e.Kind),
			nullableString(string(e.RefKind)), e.RefID, nullableString(e.Reference), e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert wallet entry: %w", err)
		}
	}
	return nil
}

// ListByUser returns the most recent entries for a user, newest first.
func (r *LedgerRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM wallet_entries
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list wallet entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet entries: %w", err)
	}
	return entries, nil
}

// SumByUser rebuilds a balance from the ledger.
func (r *LedgerRepo) SumByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM wallet_entries WHERE user_id = $1`

	var sum string
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum wallet entries: %w", err)
	}
	parsed, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ledger sum: %w", err)
	}
	return parsed, nil
}

func scanLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		e         domain.LedgerEntry
		amount    string
		refKind   *string
		reference *string
	)
	if err := row.Scan(&e.ID, &e.UserID, &amount, &e.Kind, &refKind, &e.RefID, &reference, &e.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	e.Amount = parsed
	if refKind != nil {
		e.RefKind = domain.RefKind(*refKind)
	}
	if reference != nil {
		e.Reference = *reference
	}
	return &e, nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableDecimal maps nil to SQL NULL and anything else to its text form.
func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// parseNullableDecimal is the scan-side counterpart of nullableDecimal.
func parseNullableDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
