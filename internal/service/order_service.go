package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports"
	"truek-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	rateScale              = 8
	maxPaymentMethodLength = 100
)

// OrderServiceImpl implements ports.OrderService.
type OrderServiceImpl struct {
	orders     ports.OrderRepository
	wallet     ports.WalletService
	transactor ports.DBTransactor
	metrics    *Metrics
	log        zerolog.Logger
}

// NewOrderService creates a new OrderServiceImpl.
func NewOrderService(
	orders ports.OrderRepository,
	wallet ports.WalletService,
	transactor ports.DBTransactor,
	metrics *Metrics,
	log zerolog.Logger,
) *OrderServiceImpl {
	return &OrderServiceImpl{
		orders:     orders,
		wallet:     wallet,
		transactor: transactor,
		metrics:    metrics,
		log:        log,
	}
}

// Create posts a new pending order to the book.
func (s *OrderServiceImpl) Create(ctx context.Context, req ports.CreateOrderRequest) (*domain.P2POrder, error) {
	if !req.Type.IsValid() {
		return nil, apperror.Validation("Order type must be DEPOSIT or WITHDRAW")
	}
	if !domain.IsValidCurrencyAmount(req.CurrencyAmount) {
		return nil, apperror.Validation("Currency amount must be positive with at most 2 decimal places")
	}
	if !domain.IsValidCurrencyAmount(req.FiatAmount) {
		return nil, apperror.Validation("Fiat amount must be positive with at most 2 decimal places")
	}
	if !req.Rate.IsPositive() || !req.Rate.Equal(req.Rate.Truncate(rateScale)) {
		return nil, apperror.Validation(fmt.Sprintf("Rate must be positive with at most %d decimal places", rateScale))
	}

	var method *string
	if req.PaymentMethod != nil {
		m := strings.TrimSpace(*req.PaymentMethod)
		if len(m) > maxPaymentMethodLength {
			return nil, apperror.Validation(fmt.Sprintf("Payment method must be at most %d characters", maxPaymentMethodLength))
		}
		if m != "" {
			method = &m
		}
	}

	now := time.Now().UTC()
	order := &domain.P2POrder{
		ID:             uuid.New(),
		Type:           req.Type,
		CreatorID:      req.CreatorID,
		FiatAmount:     req.FiatAmount,
		CurrencyAmount: req.CurrencyAmount,
		Rate:           req.Rate,
		PaymentMethod:  method,
		Status:         domain.OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create order: %w", err))
	}

	s.metrics.OrderTransition(string(order.Status))
	s.log.Info().
		Str("order_id", order.ID.String()).
		Int64("creator_id", order.CreatorID).
		Str("type", string(order.Type)).
		Str("currency_amount", order.CurrencyAmount.String()).
		Msg("p2p order created")

	return order, nil
}

// Take matches a pending order with takerID. For a deposit order the taker
// sells currency, so their balance must already cover the amount. No funds
// move until release.
func (s *OrderServiceImpl) Take(ctx context.Context, orderID uuid.UUID, takerID int64) (*domain.P2POrder, error) {
	return s.transition(ctx, orderID, takerID, func(ctx context.Context, _ pgx.Tx, o *domain.P2POrder) error {
		if o.Status != domain.OrderStatusPending {
			return apperror.ErrInvalidState(fmt.Sprintf("Cannot take a %s order", strings.ToLower(string(o.Status))))
		}
		if takerID == o.CreatorID {
			return apperror.ErrSelfAction("Cannot take your own order")
		}
		if o.Type == domain.OrderTypeDeposit {
			balance, err := s.wallet.GetBalance(ctx, takerID)
			if err != nil {
				return err
			}
			if balance.LessThan(o.CurrencyAmount) {
				return apperror.ErrInsufficientFunds()
			}
		}
		o.CounterpartyID = &takerID
		o.Status = domain.OrderStatusMatched
		return nil
	})
}

// MarkPaid records that fiat was sent.
func (s *OrderServiceImpl) MarkPaid(ctx context.Context, orderID uuid.UUID, actorID int64) (*domain.P2POrder, error) {
	return s.transition(ctx, orderID, actorID, func(_ context.Context, _ pgx.Tx, o *domain.P2POrder) error {
		if o.Status != domain.OrderStatusMatched {
			return apperror.ErrInvalidState(fmt.Sprintf("Cannot mark a %s order as paid", strings.ToLower(string(o.Status))))
		}
		if !o.IsParticipant(actorID) {
			return apperror.ErrForbidden("Not a participant of this order")
		}
		o.Status = domain.OrderStatusPaid
		return nil
	})
}

// Release moves the escrowed currency from seller to buyer. Only the
// currency seller may release, and the settlement commits with the status.
func (s *OrderServiceImpl) Release(ctx context.Context, orderID uuid.UUID, actorID int64) (*domain.P2POrder, error) {
	return s.transition(ctx, orderID, actorID, func(ctx context.Context, tx pgx.Tx, o *domain.P2POrder) error {
		if o.Status != domain.OrderStatusPaid {
			return apperror.ErrInvalidState(fmt.Sprintf("Cannot release a %s order", strings.ToLower(string(o.Status))))
		}
		if o.CounterpartyID == nil {
			return apperror.ErrInvalidState("Order has no counterparty")
		}
		seller, _ := o.Seller()
		buyer, _ := o.Buyer()
		if actorID != seller {
			return apperror.ErrForbidden("Only the currency seller can release")
		}

		var err error
		switch o.Type {
		case domain.OrderTypeDeposit:
			err = s.wallet.ApplyP2PDeposit(ctx, tx, buyer, seller, o.CurrencyAmount, o.ID)
		case domain.OrderTypeWithdraw:
			err = s.wallet.ApplyP2PWithdraw(ctx, tx, seller, buyer, o.CurrencyAmount, o.ID)
		}
		if err != nil {
			return err
		}
		o.Status = domain.OrderStatusReleased
		return nil
	})
}

// Cancel withdraws an order that has not been paid. Creator only.
func (s *OrderServiceImpl) Cancel(ctx context.Context, orderID uuid.UUID, actorID int64) (*domain.P2POrder, error) {
	return s.transition(ctx, orderID, actorID, func(_ context.Context, _ pgx.Tx, o *domain.P2POrder) error {
		if !o.IsCancellable() {
			return apperror.ErrInvalidState(fmt.Sprintf("Cannot cancel a %s order", strings.ToLower(string(o.Status))))
		}
		if actorID != o.CreatorID {
			return apperror.ErrForbidden("Only the creator can cancel an order")
		}
		o.Status = domain.OrderStatusCancelled
		return nil
	})
}

func (s *OrderServiceImpl) transition(
	ctx context.Context,
	orderID uuid.UUID,
	actorID int64,
	fn func(ctx context.Context, tx pgx.Tx, o *domain.P2POrder) error,
) (*domain.P2POrder, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.orders.GetForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("Order")
	}

	from := order.Status
	if err := fn(ctx, dbTx, order); err != nil {
		return nil, err
	}
	order.UpdatedAt = time.Now().UTC()

	if err := s.orders.Update(ctx, dbTx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update order: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.OrderTransition(string(order.Status))
	s.log.Info().
		Str("order_id", order.ID.String()).
		Int64("actor_id", actorID).
		Str("from", string(from)).
		Str("to", string(order.Status)).
		Msg("p2p order updated")

	return order, nil
}

// Get returns a single order.
func (s *OrderServiceImpl) Get(ctx context.Context, orderID uuid.UUID) (*domain.P2POrder, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("Order")
	}
	return order, nil
}

// ListOrderBook returns all pending orders, newest first.
func (s *OrderServiceImpl) ListOrderBook(ctx context.Context) ([]*domain.P2POrder, error) {
	orders, err := s.orders.ListByStatus(ctx, domain.OrderStatusPending)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list order book: %w", err))
	}
	if orders == nil {
		orders = []*domain.P2POrder{}
	}
	return orders, nil
}

// ListForUser returns the matched, paid, released and disputed orders
// userID takes part in, newest first.
func (s *OrderServiceImpl) ListForUser(ctx context.Context, userID int64) ([]*domain.P2POrder, error) {
	orders, err := s.orders.ListForUser(ctx, userID, domain.UserOrderStatuses)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list user orders: %w", err))
	}
	if orders == nil {
		orders = []*domain.P2POrder{}
	}
	return orders, nil
}
