package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports"
	"truek-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// TradeServiceImpl implements ports.TradeService.
type TradeServiceImpl struct {
	trades     ports.TradeRepository
	messages   ports.TradeMessageRepository
	listings   ports.ListingRepository
	wallet     ports.WalletService
	transactor ports.DBTransactor
	cooldown   ports.MessageCooldown
	notifier   ports.Notifier
	window     time.Duration
	metrics    *Metrics
	log        zerolog.Logger
}

// NewTradeService creates a new TradeServiceImpl. window is the per-participant
// pause enforced between messages on the same trade.
func NewTradeService(
	trades ports.TradeRepository,
	messages ports.TradeMessageRepository,
	listings ports.ListingRepository,
	wallet ports.WalletService,
	transactor ports.DBTransactor,
	cooldown ports.MessageCooldown,
	notifier ports.Notifier,
	window time.Duration,
	metrics *Metrics,
	log zerolog.Logger,
) *TradeServiceImpl {
	return &TradeServiceImpl{
		trades:     trades,
		messages:   messages,
		listings:   listings,
		wallet:     wallet,
		transactor: transactor,
		cooldown:   cooldown,
		notifier:   notifier,
		window:     window,
		metrics:    metrics,
		log:        log,
	}
}

// Create opens a trade on a listing, or returns the active trade already
// open for the same requester, owner and listing.
func (s *TradeServiceImpl) Create(ctx context.Context, req ports.CreateTradeRequest) (*domain.Trade, error) {
	if err := validateTerms(req.Terms); err != nil {
		return nil, err
	}

	target, err := s.listings.GetByID(ctx, req.TargetListingID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get listing: %w", err))
	}
	if target == nil {
		return nil, apperror.ErrNotFound("Listing")
	}
	if target.OwnerID == req.RequesterID {
		return nil, apperror.ErrSelfAction("Cannot trade on your own listing")
	}
	if !target.IsTradable() {
		return nil, apperror.ErrInvalidState("Listing is not available")
	}
	if err := s.checkOfferedListing(ctx, req.Terms.OfferedListingID, req.RequesterID, target.ID); err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	existing, err := s.trades.FindActive(ctx, dbTx, req.RequesterID, target.OwnerID, target.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find active trade: %w", err))
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	requesterID := req.RequesterID
	trade := &domain.Trade{
		ID:              uuid.New(),
		RequesterID:     req.RequesterID,
		OwnerID:         target.OwnerID,
		TargetListingID: target.ID,
		TradeTerms:      req.Terms,
		Status:          domain.TradeStatusPending,
		LastOfferBy:     &requesterID,
		CreatedAt:       now,
	}

	created, err := s.trades.Create(ctx, dbTx, trade)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create trade: %w", err))
	}
	if !created {
		// lost the race against a concurrent create for the same triple
		winner, err := s.trades.FindActive(ctx, dbTx, req.RequesterID, target.OwnerID, target.ID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("find active trade: %w", err))
		}
		if winner == nil {
			return nil, apperror.InternalError(fmt.Errorf("trade insert conflicted but no active trade found"))
		}
		return winner, nil
	}

	var first *domain.TradeMessage
	if req.Terms.Message != nil && strings.TrimSpace(*req.Terms.Message) != "" {
		first = &domain.TradeMessage{
			ID:        uuid.New(),
			TradeID:   trade.ID,
			SenderID:  req.RequesterID,
			Body:      strings.TrimSpace(*req.Terms.Message),
			CreatedAt: now,
		}
		if err := s.messages.Create(ctx, dbTx, first); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create trade message: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if first != nil {
		s.notify(ctx, first)
	}
	s.metrics.TradeTransition(string(trade.Status))

	s.log.Info().
		Str("trade_id", trade.ID.String()).
		Int64("requester_id", trade.RequesterID).
		Int64("owner_id", trade.OwnerID).
		Int64("target_listing_id", trade.TargetListingID).
		Msg("trade created")

	return trade, nil
}

// CounterOffer replaces the terms of a pending trade.
func (s *TradeServiceImpl) CounterOffer(ctx context.Context, tradeID uuid.UUID, actorID int64, terms domain.TradeTerms) (*domain.Trade, error) {
	if err := validateTerms(terms); err != nil {
		return nil, err
	}

	return s.transition(ctx, tradeID, actorID, func(ctx context.Context, _ pgx.Tx, t *domain.Trade) error {
		if t.Status != domain.TradeStatusPending {
			return apperror.ErrInvalidState(fmt.Sprintf("Cannot counter-offer a %s trade", strings.ToLower(string(t.Status))))
		}
		if err := s.checkOfferedListing(ctx, terms.OfferedListingID, t.RequesterID, t.TargetListingID); err != nil {
			return err
		}
		t.ApplyOffer(actorID, terms)
		return nil
	})
}

// Accept moves a pending trade to accepted. The participant who made the
// outstanding offer cannot accept it.
func (s *TradeServiceImpl) Accept(ctx context.Context, tradeID uuid.UUID, actorID int64) (*domain.Trade, error) {
	return s.transition(ctx, tradeID, actorID, func(_ context.Context, _ pgx.Tx, t *domain.Trade) error {
		if t.Status != domain.TradeStatusPending {
			return apperror.ErrInvalidState(fmt.Sprintf("Cannot accept a %s trade", strings.ToLower(string(t.Status))))
		}
		if actorID == t.LastOfferer() {
			return apperror.ErrSelfAction("Cannot accept your own offer")
		}
		t.Status = domain.TradeStatusAccepted
		return nil
	})
}

// Cancel moves a pending trade to cancelled.
func (s *TradeServiceImpl) Cancel(ctx context.Context, tradeID uuid.UUID, actorID int64) (*domain.Trade, error) {
	return s.transition(ctx, tradeID, actorID, func(_ context.Context, _ pgx.Tx, t *domain.Trade) error {
		if t.Status != domain.TradeStatusPending {
			return apperror.ErrInvalidState(fmt.Sprintf("Cannot cancel a %s trade", strings.ToLower(string(t.Status))))
		}
		t.Status = domain.TradeStatusCancelled
		return nil
	})
}

// Complete settles an accepted trade. Only the owner may complete. The net
// currency settlement, listing consumption and sibling cancellation commit
// together with the status change or not at all.
//
// Every listing the trade consumes is locked in ascending id order before the
// trade row. A concurrent completion on a shared listing therefore queues on
// the listing and never holds a trade row this completion must cancel.
func (s *TradeServiceImpl) Complete(ctx context.Context, tradeID uuid.UUID, actorID int64) (*domain.Trade, error) {
	current, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get trade: %w", err))
	}
	if current == nil {
		return nil, apperror.ErrNotFound("Trade")
	}
	if err := checkCompletable(current, actorID); err != nil {
		return nil, err
	}
	listingIDs := consumedListings(current)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	for _, id := range listingIDs {
		listing, err := s.listings.GetForUpdate(ctx, dbTx, id)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock listing %d: %w", id, err))
		}
		if listing == nil {
			return nil, apperror.ErrNotFound("Listing")
		}
		if !listing.IsTradable() {
			return nil, apperror.ErrInvalidState(fmt.Sprintf("Listing %d has already been traded", id))
		}
	}

	trade, err := s.trades.GetForUpdate(ctx, dbTx, tradeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock trade: %w", err))
	}
	if trade == nil {
		return nil, apperror.ErrNotFound("Trade")
	}
	if err := checkCompletable(trade, actorID); err != nil {
		return nil, err
	}
	if !slices.Equal(consumedListings(trade), listingIDs) {
		return nil, apperror.ErrInvalidState("Trade terms changed, retry")
	}

	net := trade.NetAmount()
	switch {
	case net.IsPositive():
		err = s.wallet.ApplyTradeTransfer(ctx, dbTx, trade.RequesterID, trade.OwnerID, net, trade.ID)
	case net.IsNegative():
		err = s.wallet.ApplyTradeTransfer(ctx, dbTx, trade.OwnerID, trade.RequesterID, net.Abs(), trade.ID)
	}
	if err != nil {
		return nil, err
	}

	if err := s.listings.MarkUnavailable(ctx, dbTx, listingIDs...); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark listings unavailable: %w", err))
	}
	siblings, err := s.trades.CancelSiblings(ctx, dbTx, listingIDs, trade.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("cancel sibling trades: %w", err))
	}

	now := time.Now().UTC()
	trade.Status = domain.TradeStatusCompleted
	trade.CompletedAt = &now
	if err := s.trades.Update(ctx, dbTx, trade); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update trade: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.TradeTransition(string(trade.Status))
	s.log.Info().
		Str("trade_id", trade.ID.String()).
		Int64("actor_id", actorID).
		Ints64("listings", listingIDs).
		Str("net", net.String()).
		Msg("trade completed")

	if siblings > 0 {
		s.metrics.TradeTransition(string(domain.TradeStatusCancelled))
		s.log.Info().
			Str("trade_id", trade.ID.String()).
			Int64("cancelled", siblings).
			Msg("sibling trades cancelled")
	}

	return trade, nil
}

func checkCompletable(t *domain.Trade, actorID int64) error {
	if !t.IsParticipant(actorID) {
		return apperror.ErrForbidden("Not a participant of this trade")
	}
	if actorID != t.OwnerID {
		return apperror.ErrForbidden("Only the listing owner can complete a trade")
	}
	if t.Status != domain.TradeStatusAccepted {
		return apperror.ErrInvalidState(fmt.Sprintf("Cannot complete a %s trade", strings.ToLower(string(t.Status))))
	}
	return nil
}

// consumedListings returns the listing ids a completion consumes, sorted and
// without duplicates.
func consumedListings(t *domain.Trade) []int64 {
	ids := t.ListingIDs()
	slices.Sort(ids)
	return slices.Compact(ids)
}

// transition locks the trade, checks participation, applies fn and persists
// the result in one transaction.
func (s *TradeServiceImpl) transition(
	ctx context.Context,
	tradeID uuid.UUID,
	actorID int64,
	fn func(ctx context.Context, tx pgx.Tx, t *domain.Trade) error,
) (*domain.Trade, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	trade, err := s.trades.GetForUpdate(ctx, dbTx, tradeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock trade: %w", err))
	}
	if trade == nil {
		return nil, apperror.ErrNotFound("Trade")
	}
	if !trade.IsParticipant(actorID) {
		return nil, apperror.ErrForbidden("Not a participant of this trade")
	}

	from := trade.Status
	if err := fn(ctx, dbTx, trade); err != nil {
		return nil, err
	}

	if err := s.trades.Update(ctx, dbTx, trade); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update trade: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.TradeTransition(string(trade.Status))
	s.log.Info().
		Str("trade_id", trade.ID.String()).
		Int64("actor_id", actorID).
		Str("from", string(from)).
		Str("to", string(trade.Status)).
		Msg("trade updated")

	return trade, nil
}

// Get returns a trade visible to actorID.
func (s *TradeServiceImpl) Get(ctx context.Context, tradeID uuid.UUID, actorID int64) (*domain.Trade, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get trade: %w", err))
	}
	if trade == nil {
		return nil, apperror.ErrNotFound("Trade")
	}
	if !trade.IsParticipant(actorID) {
		return nil, apperror.ErrForbidden("Not a participant of this trade")
	}
	return trade, nil
}

// ListForUser returns the trades userID takes part in, newest first.
func (s *TradeServiceImpl) ListForUser(ctx context.Context, userID int64) ([]*domain.Trade, error) {
	trades, err := s.trades.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list trades: %w", err))
	}
	if trades == nil {
		trades = []*domain.Trade{}
	}
	return trades, nil
}

// SendMessage posts a chat message on a trade, subject to the cooldown.
func (s *TradeServiceImpl) SendMessage(ctx context.Context, tradeID uuid.UUID, senderID int64, body string) (*domain.TradeMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperror.Validation("Message must not be empty")
	}
	if utf8.RuneCountInString(body) > domain.MaxMessageLength {
		return nil, apperror.Validation(fmt.Sprintf("Message must be at most %d characters", domain.MaxMessageLength))
	}

	if _, err := s.Get(ctx, tradeID, senderID); err != nil {
		return nil, err
	}

	allowed, err := s.cooldown.Acquire(ctx, tradeID, senderID, s.window)
	if err != nil {
		s.log.Warn().Err(err).Str("trade_id", tradeID.String()).Msg("message cooldown unavailable, allowing")
		allowed = true
	}
	if !allowed {
		return nil, apperror.ErrRateLimited("Please wait before sending another message")
	}

	msg := &domain.TradeMessage{
		ID:        uuid.New(),
		TradeID:   tradeID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.messages.Create(ctx, dbTx, msg); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create trade message: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.notify(ctx, msg)
	return msg, nil
}

// ListMessages returns a trade's messages, oldest first.
func (s *TradeServiceImpl) ListMessages(ctx context.Context, tradeID uuid.UUID, actorID int64) ([]*domain.TradeMessage, error) {
	if _, err := s.Get(ctx, tradeID, actorID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListByTrade(ctx, tradeID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list trade messages: %w", err))
	}
	if msgs == nil {
		msgs = []*domain.TradeMessage{}
	}
	return msgs, nil
}

// notify publishes a persisted message. Failures are logged and dropped.
func (s *TradeServiceImpl) notify(ctx context.Context, msg *domain.TradeMessage) {
	if err := s.notifier.PublishTradeMessage(ctx, msg); err != nil {
		s.metrics.NotifierFailure()
		s.log.Warn().Err(err).
			Str("trade_id", msg.TradeID.String()).
			Str("message_id", msg.ID.String()).
			Msg("failed to publish trade message")
	}
}

// checkOfferedListing verifies an offered listing belongs to the requester
// and can still be traded.
func (s *TradeServiceImpl) checkOfferedListing(ctx context.Context, offeredID *int64, requesterID, targetID int64) error {
	if offeredID == nil {
		return nil
	}
	if *offeredID == targetID {
		return apperror.Validation("Offered listing must differ from the target listing")
	}

	offered, err := s.listings.GetByID(ctx, *offeredID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get offered listing: %w", err))
	}
	if offered == nil {
		return apperror.ErrNotFound("Offered listing")
	}
	if offered.OwnerID != requesterID {
		return apperror.ErrForbidden("Offered listing does not belong to the requester")
	}
	if !offered.IsTradable() {
		return apperror.ErrInvalidState("Offered listing is not available")
	}
	return nil
}

func validateTerms(terms domain.TradeTerms) error {
	if terms.OfferedAmount != nil {
		if terms.OfferedAmount.IsNegative() || !domain.HasCurrencyScale(*terms.OfferedAmount) {
			return apperror.Validation("Offered amount must be a non-negative amount with at most 2 decimal places")
		}
	}
	if terms.RequestedAmount != nil {
		if terms.RequestedAmount.IsNegative() || !domain.HasCurrencyScale(*terms.RequestedAmount) {
			return apperror.Validation("Requested amount must be a non-negative amount with at most 2 decimal places")
		}
	}
	if terms.Message != nil && utf8.RuneCountInString(*terms.Message) > domain.MaxMessageLength {
		return apperror.Validation(fmt.Sprintf("Message must be at most %d characters", domain.MaxMessageLength))
	}
	return nil
}
