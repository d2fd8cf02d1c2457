package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderType is the creator's side of a P2P order.
type OrderType string

const (
	// OrderTypeDeposit: the creator buys currency with fiat.
	OrderTypeDeposit OrderType = "DEPOSIT"
	// OrderTypeWithdraw: the creator sells currency for fiat.
	OrderTypeWithdraw OrderType = "WITHDRAW"
)

// IsValid returns true for known order types.
func (t OrderType) IsValid() bool {
	return t == OrderTypeDeposit || t == OrderTypeWithdraw
}

// OrderStatus represents the lifecycle state of a P2P order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusMatched   OrderStatus = "MATCHED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusReleased  OrderStatus = "RELEASED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusDisputed is reserved; no transition enters or leaves it.
	OrderStatusDisputed OrderStatus = "DISPUTED"
)

// UserOrderStatuses are the statuses shown in a user's own order history.
var UserOrderStatuses = []OrderStatus{
	OrderStatusMatched,
	OrderStatusPaid,
	OrderStatusReleased,
	OrderStatusDisputed,
}

// P2POrder is an order-book entry exchanging currency for fiat.
type P2POrder struct {
	ID             uuid.UUID       `json:"id"`
	Type           OrderType       `json:"type"`
	CreatorID      int64           `json:"creator_id"`
	CounterpartyID *int64          `json:"counterparty_id,omitempty"`
	FiatAmount     decimal.Decimal `json:"fiat_amount"`
	CurrencyAmount decimal.Decimal `json:"currency_amount"`
	Rate           decimal.Decimal `json:"rate"`
	PaymentMethod  *string         `json:"payment_method,omitempty"`
	Status         OrderStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsParticipant returns true if userID is the creator or the matched counterparty.
func (o *P2POrder) IsParticipant(userID int64) bool {
	if userID == o.CreatorID {
		return true
	}
	return o.CounterpartyID != nil && *o.CounterpartyID == userID
}

// Seller returns the currency seller: the creator of a Withdraw order, the
// counterparty of a Deposit order. ok is false while unmatched.
func (o *P2POrder) Seller() (id int64, ok bool) {
	if o.Type == OrderTypeWithdraw {
		return o.CreatorID, true
	}
	if o.CounterpartyID == nil {
		return 0, false
	}
	return *o.CounterpartyID, true
}

// Buyer returns the currency buyer, the mirror of Seller.
func (o *P2POrder) Buyer() (id int64, ok bool) {
	if o.Type == OrderTypeDeposit {
		return o.CreatorID, true
	}
	if o.CounterpartyID == nil {
		return 0, false
	}
	return *o.CounterpartyID, true
}

// IsCancellable returns true while the order has not reached payment.
func (o *P2POrder) IsCancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusMatched
}
