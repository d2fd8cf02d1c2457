package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionTransfer      AuditAction = "WALLET_TRANSFER"
	AuditActionAdjust        AuditAction = "WALLET_ADJUST"
	AuditActionTradeCreate   AuditAction = "TRADE_CREATE"
	AuditActionTradeOffer    AuditAction = "TRADE_COUNTER_OFFER"
	AuditActionTradeAccept   AuditAction = "TRADE_ACCEPT"
	AuditActionTradeCancel   AuditAction = "TRADE_CANCEL"
	AuditActionTradeComplete AuditAction = "TRADE_COMPLETE"
	AuditActionTradeMessage  AuditAction = "TRADE_MESSAGE"
	AuditActionOrderCreate   AuditAction = "ORDER_CREATE"
	AuditActionOrderTake     AuditAction = "ORDER_TAKE"
	AuditActionOrderPaid     AuditAction = "ORDER_MARK_PAID"
	AuditActionOrderRelease  AuditAction = "ORDER_RELEASE"
	AuditActionOrderCancel   AuditAction = "ORDER_CANCEL"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *int64      `json:"actor_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
