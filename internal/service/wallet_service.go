package service

import (
	"context"
	"fmt"
	"time"

	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports"
	"truek-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultTransferReference = "INTERNAL_TRANSFER"

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	accounts     ports.AccountRepository
	ledger       ports.LedgerRepository
	transactor   ports.DBTransactor
	historyLimit int
	metrics      *Metrics
	log          zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	accounts ports.AccountRepository,
	ledger ports.LedgerRepository,
	transactor ports.DBTransactor,
	historyLimit int,
	metrics *Metrics,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		accounts:     accounts,
		ledger:       ledger,
		transactor:   transactor,
		historyLimit: historyLimit,
		metrics:      metrics,
		log:          log,
	}
}

// settlementLeg describes one paired debit/credit.
type settlementLeg struct {
	fromID     int64
	toID       int64
	amount     decimal.Decimal
	debitKind  domain.EntryKind
	creditKind domain.EntryKind
	refKind    domain.RefKind
	refID      *uuid.UUID
	reference  string
}

// Transfer moves amount between two accounts in its own transaction.
func (s *WalletServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) ([]*domain.LedgerEntry, error) {
	reference := req.Reference
	if reference == "" {
		reference = defaultTransferReference
	}
	if len(reference) > domain.MaxReferenceLength {
		return nil, apperror.Validation(fmt.Sprintf("Reference must be at most %d characters", domain.MaxReferenceLength))
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entries, err := s.settle(ctx, dbTx, settlementLeg{
		fromID:     req.FromID,
		toID:       req.ToID,
		amount:     req.Amount,
		debitKind:  domain.EntryKindInternalTransferOut,
		creditKind: domain.EntryKindInternalTransferIn,
		refKind:    domain.RefKindInternalTransfer,
		reference:  reference,
	})
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	return entries, nil
}

// ApplyTradeTransfer settles a trade's net amount inside the caller's transaction.
func (s *WalletServiceImpl) ApplyTradeTransfer(ctx context.Context, tx pgx.Tx, fromID, toID int64, amount decimal.Decimal, tradeID uuid.UUID) error {
	_, err := s.settle(ctx, tx, settlementLeg{
		fromID:     fromID,
		toID:       toID,
		amount:     amount,
		debitKind:  domain.EntryKindTradeSettlement,
		creditKind: domain.EntryKindTradeSettlement,
		refKind:    domain.RefKindTrade,
		refID:      &tradeID,
		reference:  tradeID.String(),
	})
	return err
}

// ApplyP2PDeposit debits the seller and credits the buyer of a deposit order.
func (s *WalletServiceImpl) ApplyP2PDeposit(ctx context.Context, tx pgx.Tx, buyerID, sellerID int64, amount decimal.Decimal, orderID uuid.UUID) error {
	_, err := s.settle(ctx, tx, settlementLeg{
		fromID:     sellerID,
		toID:       buyerID,
		amount:     amount,
		debitKind:  domain.EntryKindInternalTransferOut,
		creditKind: domain.EntryKindP2PDeposit,
		refKind:    domain.RefKindP2PDeposit,
		refID:      &orderID,
		reference:  orderID.String(),
	})
	return err
}

// ApplyP2PWithdraw debits the seller and credits the cashier of a withdraw order.
func (s *WalletServiceImpl) ApplyP2PWithdraw(ctx context.Context, tx pgx.Tx, sellerID, buyerID int64, amount decimal.Decimal, orderID uuid.UUID) error {
	_, err := s.settle(ctx, tx, settlementLeg{
		fromID:     sellerID,
		toID:       buyerID,
		amount:     amount,
		debitKind:  domain.EntryKindP2PWithdraw,
		creditKind: domain.EntryKindInternalTransferIn,
		refKind:    domain.RefKindP2PWithdraw,
		refID:      &orderID,
		reference:  orderID.String(),
	})
	return err
}

// settle locks both accounts, checks funds, writes the new balances and
// appends exactly two entries summing to zero. The caller owns tx.
func (s *WalletServiceImpl) settle(ctx context.Context, tx pgx.Tx, leg settlementLeg) (entries []*domain.LedgerEntry, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSettlement(string(leg.refKind), start, err) }()

	if err := validateAmount(leg.amount); err != nil {
		return nil, err
	}
	if leg.fromID == leg.toID {
		return nil, apperror.ErrSelfAction("Cannot transfer to the same account")
	}

	locked, err := s.accounts.LockForUpdate(ctx, tx, leg.fromID, leg.toID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock accounts: %w", err))
	}
	src, dst := locked[leg.fromID], locked[leg.toID]
	if src == nil || dst == nil {
		return nil, apperror.ErrNotFound("Account")
	}

	if !src.CanCover(leg.amount) {
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := s.accounts.UpdateBalance(ctx, tx, src.ID, src.Balance.Sub(leg.amount)); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update source balance: %w", err))
	}
	if err := s.accounts.UpdateBalance(ctx, tx, dst.ID, dst.Balance.Add(leg.amount)); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update destination balance: %w", err))
	}

	now := time.Now().UTC()
	debit := &domain.LedgerEntry{
		ID:        uuid.New(),
		UserID:    src.ID,
		Amount:    leg.amount.Neg(),
		Kind:      leg.debitKind,
		RefKind:   leg.refKind,
		RefID:     leg.refID,
		Reference: leg.reference,
		CreatedAt: now,
	}
	credit := &domain.LedgerEntry{
		ID:        uuid.New(),
		UserID:    dst.ID,
		Amount:    leg.amount,
		Kind:      leg.creditKind,
		RefKind:   leg.refKind,
		RefID:     leg.refID,
		Reference: leg.reference,
		CreatedAt: now,
	}
	if err := s.ledger.Create(ctx, tx, debit, credit); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append ledger entries: %w", err))
	}

	s.log.Info().
		Int64("from_id", src.ID).
		Int64("to_id", dst.ID).
		Str("amount", leg.amount.String()).
		Str("ref_kind", string(leg.refKind)).
		Str("reference", leg.reference).
		Msg("settlement applied")

	return []*domain.LedgerEntry{debit, credit}, nil
}

// AdjustBalance writes a single admin or bonus entry against one account.
func (s *WalletServiceImpl) AdjustBalance(ctx context.Context, req ports.AdjustRequest) (*domain.LedgerEntry, error) {
	if !req.Kind.IsAdjustment() {
		return nil, apperror.Validation("Adjustment kind must be ADMIN_ADJUSTMENT or BONUS")
	}
	if req.Amount.IsZero() {
		return nil, apperror.Validation("Adjustment amount must be non-zero")
	}
	if !domain.HasCurrencyScale(req.Amount) {
		return nil, apperror.Validation(fmt.Sprintf("Amount must have at most %d decimal places", domain.CurrencyScale))
	}
	if len(req.Reason) > domain.MaxReferenceLength {
		return nil, apperror.Validation(fmt.Sprintf("Reason must be at most %d characters", domain.MaxReferenceLength))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked, err := s.accounts.LockForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	account := locked[req.UserID]
	if account == nil {
		return nil, apperror.ErrNotFound("Account")
	}

	newBalance := account.Balance.Add(req.Amount)
	if newBalance.IsNegative() {
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := s.accounts.UpdateBalance(ctx, dbTx, account.ID, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		UserID:    account.ID,
		Amount:    req.Amount,
		Kind:      req.Kind,
		RefKind:   domain.RefKindAdminAdjustment,
		Reference: req.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.Create(ctx, dbTx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Int64("user_id", account.ID).
		Str("amount", req.Amount.String()).
		Str("kind", string(req.Kind)).
		Msg("balance adjusted")

	return entry, nil
}

// GetBalance returns the cached balance.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	account, err := s.getAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// GetWallet returns the cached balance and the most recent entries.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	account, err := s.getAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries, err := s.ledger.ListByUser(ctx, userID, s.historyLimit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list ledger entries: %w", err))
	}
	if entries == nil {
		entries = []*domain.LedgerEntry{}
	}

	return &domain.Wallet{
		UserID:  account.ID,
		Balance: account.Balance,
		Entries: entries,
	}, nil
}

// VerifyBalance rebuilds the balance from the ledger and compares it to the cache.
func (s *WalletServiceImpl) VerifyBalance(ctx context.Context, userID int64) (*domain.BalanceReport, error) {
	account, err := s.getAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum, err := s.ledger.SumByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum ledger entries: %w", err))
	}

	report := &domain.BalanceReport{
		UserID:     account.ID,
		Cached:     account.Balance,
		LedgerSum:  sum,
		Consistent: account.Balance.Equal(sum),
	}
	if !report.Consistent {
		s.log.Error().
			Int64("user_id", userID).
			Str("cached", account.Balance.String()).
			Str("ledger_sum", sum.String()).
			Msg("balance drift detected")
	}

	return report, nil
}

func (s *WalletServiceImpl) getAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Account")
	}
	return account, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.ErrInvalidAmount()
	}
	if !domain.HasCurrencyScale(amount) {
		return apperror.Validation(fmt.Sprintf("Amount must have at most %d decimal places", domain.CurrencyScale))
	}
	return nil
}
