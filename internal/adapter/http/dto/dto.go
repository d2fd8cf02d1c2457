package dto

import (
	"github.com/shopspring/decimal"
)

// Amounts arrive as JSON strings or numbers and are decoded straight into
// decimal.Decimal; no float64 sits between the wire and the core.

// TransferRequest is the request body for an internal wallet transfer.
type TransferRequest struct {
	ToUserID  int64           `json:"to_user_id" binding:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount" binding:"required,gt=0"`
	Reference string          `json:"reference,omitempty" binding:"omitempty,max=64,safe_id"`
}

// AdjustRequest is the request body for an admin balance adjustment.
type AdjustRequest struct {
	UserID int64           `json:"user_id" binding:"required,gt=0"`
	Amount decimal.Decimal `json:"amount" binding:"required"` // signed
	Kind   string          `json:"kind" binding:"required,oneof=ADMIN_ADJUSTMENT BONUS"`
	Reason string          `json:"reason,omitempty" binding:"omitempty,max=64"`
}

// TradeTermsRequest holds the negotiable fields shared by create and counter-offer.
type TradeTermsRequest struct {
	OfferedListingID *int64           `json:"offered_listing_id,omitempty" binding:"omitempty,gt=0"`
	OfferedAmount    *decimal.Decimal `json:"offered_amount,omitempty" binding:"omitempty,gte=0"`
	RequestedAmount  *decimal.Decimal `json:"requested_amount,omitempty" binding:"omitempty,gte=0"`
	Message          *string          `json:"message,omitempty" binding:"omitempty,max=2000"`
}

// CreateTradeRequest is the request body for opening a trade.
type CreateTradeRequest struct {
	TargetListingID int64 `json:"target_listing_id" binding:"required,gt=0"`
	TradeTermsRequest
}

// CounterOfferRequest is the request body for replacing a trade's terms.
type CounterOfferRequest struct {
	TradeTermsRequest
}

// SendMessageRequest is the request body for a trade chat message.
type SendMessageRequest struct {
	Body string `json:"body" binding:"required,max=2000"`
}

// CreateOrderRequest is the request body for posting a P2P order.
type CreateOrderRequest struct {
	Type           string          `json:"type" binding:"required,oneof=DEPOSIT WITHDRAW"`
	FiatAmount     decimal.Decimal `json:"fiat_amount" binding:"required,gt=0"`
	CurrencyAmount decimal.Decimal `json:"currency_amount" binding:"required,gt=0"`
	Rate           decimal.Decimal `json:"rate" binding:"required,gt=0"`
	PaymentMethod  *string         `json:"payment_method,omitempty" binding:"omitempty,max=100"`
}
