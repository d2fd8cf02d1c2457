package ports

import (
	"context"
	"time"

	"truek-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID int64, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID int64
	Role   string
}

// RoleAdmin is the role claim that unlocks admin wallet operations.
const RoleAdmin = "admin"

// IsAdmin reports whether the token carries the admin role.
func (c *TokenClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// IdempotencyCache stores replayable responses keyed by Idempotency-Key.
type IdempotencyCache interface {
	// Get returns nil, nil when nothing is stored under key.
	Get(ctx context.Context, key string) (*domain.IdempotentResponse, error)
	// Set stores resp and drops any reservation on key.
	Set(ctx context.Context, key string, resp *domain.IdempotentResponse, ttl time.Duration) error
	// Reserve marks key as in progress. It returns false if another request
	// already holds the reservation.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops the reservation without storing a response.
	Release(ctx context.Context, key string) error
}

// MessageCooldown enforces the per-participant pause between trade messages.
type MessageCooldown interface {
	// Acquire returns true if userID may post on tradeID now, and starts a
	// new window of the given length. Returns false while a window is open.
	Acquire(ctx context.Context, tradeID uuid.UUID, userID int64, window time.Duration) (bool, error)
}

// Notifier broadcasts trade chat events. Delivery is best-effort.
type Notifier interface {
	PublishTradeMessage(ctx context.Context, msg *domain.TradeMessage) error
}

// AuditService records audit entries without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// WalletService is the only component allowed to mutate balances. The Apply*
// operations join the caller's transaction so settlement commits or rolls
// back together with the state transition that triggered it.
type WalletService interface {
	Transfer(ctx context.Context, req TransferRequest) ([]*domain.LedgerEntry, error)
	ApplyTradeTransfer(ctx context.Context, tx pgx.Tx, fromID, toID int64, amount decimal.Decimal, tradeID uuid.UUID) error
	ApplyP2PDeposit(ctx context.Context, tx pgx.Tx, buyerID, sellerID int64, amount decimal.Decimal, orderID uuid.UUID) error
	ApplyP2PWithdraw(ctx context.Context, tx pgx.Tx, sellerID, buyerID int64, amount decimal.Decimal, orderID uuid.UUID) error
	AdjustBalance(ctx context.Context, req AdjustRequest) (*domain.LedgerEntry, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error)
	VerifyBalance(ctx context.Context, userID int64) (*domain.BalanceReport, error)
}

// TransferRequest holds validated input for an internal transfer.
type TransferRequest struct {
	FromID    int64
	ToID      int64
	Amount    decimal.Decimal
	Reference string // defaults to INTERNAL_TRANSFER
}

// AdjustRequest holds input for an admin balance adjustment.
type AdjustRequest struct {
	UserID int64
	Amount decimal.Decimal // signed, non-zero
	Kind   domain.EntryKind
	Reason string
}

// TradeService drives the barter negotiation state machine.
type TradeService interface {
	Create(ctx context.Context, req CreateTradeRequest) (*domain.Trade, error)
	CounterOffer(ctx context.Context, tradeID uuid.UUID, actorID int64, terms domain.TradeTerms) (*domain.Trade, error)
	Accept(ctx context.Context, tradeID uuid.UUID, actorID int64) (*domain.Trade, error)
	Complete(ctx context.Context, tradeID uuid.UUID, actorID int64) (*domain.Trade, error)
	Cancel(ctx context.Context, tradeID uuid.UUID, actorID int64) (*domain.Trade, error)
	Get(ctx context.Context, tradeID uuid.UUID, actorID int64) (*domain.Trade, error)
	ListForUser(ctx context.Context, userID int64) ([]*domain.Trade, error)
	SendMessage(ctx context.Context, tradeID uuid.UUID, senderID int64, body string) (*domain.TradeMessage, error)
	ListMessages(ctx context.Context, tradeID uuid.UUID, actorID int64) ([]*domain.TradeMessage, error)
}

// CreateTradeRequest holds input for opening a trade on a listing.
type CreateTradeRequest struct {
	RequesterID     int64
	TargetListingID int64
	Terms           domain.TradeTerms
}

// OrderService drives the P2P order state machine.
type OrderService interface {
	Create(ctx context.Context, req CreateOrderRequest) (*domain.P2POrder, error)
	Take(ctx context.Context, orderID uuid.UUID, takerID int64) (*domain.P2POrder, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, actorID int64) (*domain.P2POrder, error)
	Release(ctx context.Context, orderID uuid.UUID, actorID int64) (*domain.P2POrder, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actorID int64) (*domain.P2POrder, error)
	Get(ctx context.Context, orderID uuid.UUID) (*domain.P2POrder, error)
	ListOrderBook(ctx context.Context) ([]*domain.P2POrder, error)
	ListForUser(ctx context.Context, userID int64) ([]*domain.P2POrder, error)
}

// CreateOrderRequest holds input for posting a P2P order.
type CreateOrderRequest struct {
	CreatorID      int64
	Type           domain.OrderType
	FiatAmount     decimal.Decimal
	CurrencyAmount decimal.Decimal
	Rate           decimal.Decimal
	PaymentMethod  *string
}
