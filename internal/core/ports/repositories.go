package ports

import (
	"context"

	"truek-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepository reads and writes the cached balance column.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	// LockForUpdate locks the given account rows in ascending id order and
	// returns the ones that exist, keyed by id.
	LockForUpdate(ctx context.Context, tx pgx.Tx, ids ...int64) (map[int64]*domain.Account, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, id int64, balance decimal.Decimal) error
}

// LedgerRepository appends and reads ledger entries. There is no update or delete.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entries ...*domain.LedgerEntry) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error)
	SumByUser(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// TradeRepository defines persistence operations for trades.
type TradeRepository interface {
	// Create inserts the trade unless an active trade for the same
	// (requester, owner, target listing) exists. created is false on conflict.
	Create(ctx context.Context, tx pgx.Tx, trade *domain.Trade) (created bool, err error)
	FindActive(ctx context.Context, tx pgx.Tx, requesterID, ownerID, targetListingID int64) (*domain.Trade, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Trade, error)
	Update(ctx context.Context, tx pgx.Tx, trade *domain.Trade) error
	// CancelSiblings cancels every other pending or accepted trade that
	// targets or offers one of listingIDs.
	CancelSiblings(ctx context.Context, tx pgx.Tx, listingIDs []int64, exceptID uuid.UUID) (int64, error)
	ListForUser(ctx context.Context, userID int64) ([]*domain.Trade, error)
}

// TradeMessageRepository stores trade chat lines.
type TradeMessageRepository interface {
	Create(ctx context.Context, tx pgx.Tx, msg *domain.TradeMessage) error
	ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]*domain.TradeMessage, error)
}

// OrderRepository defines persistence operations for P2P orders.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.P2POrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.P2POrder, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.P2POrder, error)
	Update(ctx context.Context, tx pgx.Tx, order *domain.P2POrder) error
	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.P2POrder, error)
	ListForUser(ctx context.Context, userID int64, statuses []domain.OrderStatus) ([]*domain.P2POrder, error)
}

// ListingRepository exposes the availability flags of externally owned listings.
type ListingRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Listing, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Listing, error)
	MarkUnavailable(ctx context.Context, tx pgx.Tx, ids ...int64) error
}

// AuditRepository persists audit log rows.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
