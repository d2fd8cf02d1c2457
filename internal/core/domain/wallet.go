package domain

import (
	"github.com/shopspring/decimal"
)

// CurrencyScale is the number of fractional digits a currency amount may carry.
const CurrencyScale = 2

// Account is the cached-balance side of a user's wallet. The ledger is the
// source of truth; Balance is maintained transactionally alongside it.
type Account struct {
	ID      int64           `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// CanCover reports whether the account can be debited by amount without going negative.
func (a *Account) CanCover(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// Wallet is the read model returned to the account holder.
type Wallet struct {
	UserID  int64           `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	Entries []*LedgerEntry  `json:"entries"`
}

// BalanceReport compares the cached balance with the ledger sum.
type BalanceReport struct {
	UserID     int64           `json:"user_id"`
	Cached     decimal.Decimal `json:"cached"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Consistent bool            `json:"consistent"`
}

// HasCurrencyScale reports whether d fits in CurrencyScale fractional digits.
func HasCurrencyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(CurrencyScale))
}

// IsValidCurrencyAmount reports whether d is a positive amount with at most CurrencyScale decimals.
func IsValidCurrencyAmount(d decimal.Decimal) bool {
	return d.IsPositive() && HasCurrencyScale(d)
}
