package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeStatus represents the lifecycle state of a barter negotiation.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusAccepted  TradeStatus = "ACCEPTED"
	TradeStatusCompleted TradeStatus = "COMPLETED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
)

// TradeTerms are the negotiable parts of a trade, replaced wholesale by a counter-offer.
type TradeTerms struct {
	OfferedListingID *int64           `json:"offered_listing_id,omitempty"`
	OfferedAmount    *decimal.Decimal `json:"offered_amount,omitempty"`
	RequestedAmount  *decimal.Decimal `json:"requested_amount,omitempty"`
	Message          *string          `json:"message,omitempty"`
}

// Trade is a bilateral negotiation between a requester (buyer) and the owner
// (seller) of the target listing.
type Trade struct {
	ID              uuid.UUID `json:"id"`
	RequesterID     int64     `json:"requester_id"`
	OwnerID         int64     `json:"owner_id"`
	TargetListingID int64     `json:"target_listing_id"`
	TradeTerms
	Status      TradeStatus `json:"status"`
	LastOfferBy *int64      `json:"last_offer_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// IsParticipant returns true if userID is the requester or the owner.
func (t *Trade) IsParticipant(userID int64) bool {
	return userID == t.RequesterID || userID == t.OwnerID
}

// IsTerminal returns true if the trade can no longer change.
func (t *Trade) IsTerminal() bool {
	return t.Status == TradeStatusCompleted || t.Status == TradeStatusCancelled
}

// IsActive returns true while the trade still blocks a duplicate for the same triple.
func (t *Trade) IsActive() bool {
	return t.Status == TradeStatusPending || t.Status == TradeStatusAccepted
}

// LastOfferer returns who made the outstanding offer. Trades written before
// the column existed count as the requester's offer.
func (t *Trade) LastOfferer() int64 {
	if t.LastOfferBy == nil {
		return t.RequesterID
	}
	return *t.LastOfferBy
}

// Counterpart returns the other participant.
func (t *Trade) Counterpart(userID int64) int64 {
	if userID == t.RequesterID {
		return t.OwnerID
	}
	return t.RequesterID
}

// NetAmount is offered minus requested currency. Positive flows requester to
// owner, negative owner to requester. Absent amounts count as zero.
func (t *Trade) NetAmount() decimal.Decimal {
	net := decimal.Zero
	if t.OfferedAmount != nil {
		net = net.Add(*t.OfferedAmount)
	}
	if t.RequestedAmount != nil {
		net = net.Sub(*t.RequestedAmount)
	}
	return net
}

// ApplyOffer overwrites the terms and records actorID as the latest offerer.
func (t *Trade) ApplyOffer(actorID int64, terms TradeTerms) {
	t.TradeTerms = terms
	t.Status = TradeStatusPending
	t.LastOfferBy = &actorID
}

// ListingIDs returns the listings consumed when the trade completes.
func (t *Trade) ListingIDs() []int64 {
	ids := []int64{t.TargetListingID}
	if t.OfferedListingID != nil {
		ids = append(ids, *t.OfferedListingID)
	}
	return ids
}

// TradeMessage is a chat line posted by a participant on a trade.
type TradeMessage struct {
	ID        uuid.UUID `json:"id"`
	TradeID   uuid.UUID `json:"trade_id"`
	SenderID  int64     `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxMessageLength bounds a single trade message.
const MaxMessageLength = 2000
