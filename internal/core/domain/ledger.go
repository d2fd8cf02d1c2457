package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind classifies a balance-affecting event.
type EntryKind string

const (
	EntryKindTradeSettlement     EntryKind = "TRADE_SETTLEMENT"
	EntryKindP2PDeposit          EntryKind = "P2P_DEPOSIT"
	EntryKindP2PWithdraw         EntryKind = "P2P_WITHDRAW"
	EntryKindInternalTransferIn  EntryKind = "INTERNAL_TRANSFER_IN"
	EntryKindInternalTransferOut EntryKind = "INTERNAL_TRANSFER_OUT"
	EntryKindAdminAdjustment     EntryKind = "ADMIN_ADJUSTMENT"
	EntryKindBonus               EntryKind = "BONUS"
)

// IsAdjustment returns true for the kinds written as a single, unpaired entry.
func (k EntryKind) IsAdjustment() bool {
	return k == EntryKindAdminAdjustment || k == EntryKindBonus
}

// RefKind names what a ledger entry points at.
type RefKind string

const (
	RefKindTrade            RefKind = "TRADE"
	RefKindP2PDeposit       RefKind = "P2P_DEPOSIT"
	RefKindP2PWithdraw      RefKind = "P2P_WITHDRAW"
	RefKindInternalTransfer RefKind = "INTERNAL_TRANSFER"
	RefKindAdminAdjustment  RefKind = "ADMIN_ADJUSTMENT"
)

// MaxReferenceLength bounds caller-supplied transfer references.
const MaxReferenceLength = 64

// LedgerEntry is an immutable signed balance change. Corrections are new
// offsetting entries; rows are never updated or deleted.
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"` // negative = debit
	Kind      EntryKind       `json:"kind"`
	RefKind   RefKind         `json:"ref_kind,omitempty"`
	RefID     *uuid.UUID      `json:"ref_id,omitempty"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// SumAmounts adds the signed amounts of entries.
func SumAmounts(entries []*LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}
