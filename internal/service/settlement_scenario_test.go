package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"truek-settlement/internal/core/domain"
	"truek-settlement/internal/core/ports"
	"truek-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engine struct {
	store    *memStore
	wallet   *WalletServiceImpl
	trades   *TradeServiceImpl
	orders   *OrderServiceImpl
	notifier *recordingNotifier
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	s := newMemStore()
	log := newTestLogger()
	notifier := &recordingNotifier{}

	wallet := NewWalletService(memAccountRepo{s}, memLedgerRepo{s}, s, 20, nil, log)
	return &engine{
		store:  s,
		wallet: wallet,
		trades: NewTradeService(
			memTradeRepo{s}, memMessageRepo{s}, memListingRepo{s}, wallet, s,
			allowCooldown{}, notifier, testCooldown, nil, log,
		),
		orders:   NewOrderService(memOrderRepo{s}, wallet, s, nil, log),
		notifier: notifier,
	}
}

// assertLedgerConsistent checks cached balance == signed ledger sum.
func (e *engine) assertLedgerConsistent(t *testing.T, userIDs ...int64) {
	t.Helper()
	for _, id := range userIDs {
		report, err := e.wallet.VerifyBalance(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, report.Consistent, "user %d cached=%s ledger=%s", id, report.Cached, report.LedgerSum)
	}
}

func TestScenario_TradeNetSettlement(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const userA, userB, listing = 1, 2, 100
	e.store.seedAccount(userA, "100")
	e.store.seedAccount(userB, "50")
	e.store.seedListing(listing, userB)

	trade, err := e.trades.Create(ctx, ports.CreateTradeRequest{
		RequesterID:     userA,
		TargetListingID: listing,
		Terms: domain.TradeTerms{
			OfferedAmount:   decPtr("30"),
			RequestedAmount: decPtr("10"),
			Message:         strPtr("interested"),
		},
	})
	require.NoError(t, err)
	assert.Len(t, e.notifier.sent, 1)

	_, err = e.trades.Accept(ctx, trade.ID, userB)
	require.NoError(t, err)

	done, err := e.trades.Complete(ctx, trade.ID, userB)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusCompleted, done.Status)

	assert.True(t, e.store.balance(userA).Equal(dec("80")))
	assert.True(t, e.store.balance(userB).Equal(dec("70")))

	rows := e.store.entriesFor(trade.ID)
	require.Len(t, rows, 2)
	assert.True(t, domain.SumAmounts(rows).IsZero())
	e.assertLedgerConsistent(t, userA, userB)

	l, _ := memListingRepo{e.store}.GetByID(ctx, listing)
	assert.False(t, l.IsTradable())

	// second completion is rejected and writes nothing
	before := e.store.entryCount()
	_, err = e.trades.Complete(ctx, trade.ID, userB)
	assertAppError(t, err, apperror.CodeInvalidState)
	assert.Equal(t, before, e.store.entryCount())
}

func TestScenario_CompletionCancelsPendingSiblings(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const owner, buyer1, buyer2, listing = 1, 2, 3, 100
	e.store.seedAccount(owner, "0")
	e.store.seedAccount(buyer1, "0")
	e.store.seedAccount(buyer2, "0")
	e.store.seedListing(listing, owner)

	winner, err := e.trades.Create(ctx, ports.CreateTradeRequest{RequesterID: buyer1, TargetListingID: listing})
	require.NoError(t, err)
	loser, err := e.trades.Create(ctx, ports.CreateTradeRequest{RequesterID: buyer2, TargetListingID: listing})
	require.NoError(t, err)

	_, err = e.trades.Accept(ctx, winner.ID, owner)
	require.NoError(t, err)
	_, err = e.trades.Complete(ctx, winner.ID, owner)
	require.NoError(t, err)

	got, err := e.trades.Get(ctx, loser.ID, buyer2)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusCancelled, got.Status)

	// listing is gone, so a fresh trade cannot open on it
	_, err = e.trades.Create(ctx, ports.CreateTradeRequest{RequesterID: buyer2, TargetListingID: listing})
	assertAppError(t, err, apperror.CodeInvalidState)
}

func TestScenario_OfferedListingConsumedElsewhere(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const userA, userB, userC = 1, 2, 3
	const bikeOfB, guitarOfA = 100, 200
	e.store.seedAccount(userA, "0")
	e.store.seedAccount(userB, "0")
	e.store.seedAccount(userC, "0")
	e.store.seedListing(bikeOfB, userB)
	e.store.seedListing(guitarOfA, userA)

	// A offers the guitar for B's bike, and B accepts
	swap, err := e.trades.Create(ctx, ports.CreateTradeRequest{
		RequesterID:     userA,
		TargetListingID: bikeOfB,
		Terms:           domain.TradeTerms{OfferedListingID: int64Ptr(guitarOfA)},
	})
	require.NoError(t, err)
	_, err = e.trades.Accept(ctx, swap.ID, userB)
	require.NoError(t, err)

	// meanwhile A sells the guitar to C
	sale, err := e.trades.Create(ctx, ports.CreateTradeRequest{RequesterID: userC, TargetListingID: guitarOfA})
	require.NoError(t, err)
	_, err = e.trades.Accept(ctx, sale.ID, userA)
	require.NoError(t, err)
	_, err = e.trades.Complete(ctx, sale.ID, userA)
	require.NoError(t, err)

	got, err := e.trades.Get(ctx, swap.ID, userB)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusCancelled, got.Status, "trade offering a consumed listing is cancelled")

	_, err = e.trades.Complete(ctx, swap.ID, userB)
	assertAppError(t, err, apperror.CodeInvalidState)

	bike, _ := memListingRepo{e.store}.GetByID(ctx, bikeOfB)
	assert.True(t, bike.IsTradable(), "B keeps the bike")
}

func TestScenario_CompletionCancelsAcceptedSiblings(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const owner, buyer1, buyer2, listing = 1, 2, 3, 100
	e.store.seedAccount(owner, "0")
	e.store.seedAccount(buyer1, "50")
	e.store.seedAccount(buyer2, "50")
	e.store.seedListing(listing, owner)

	first, err := e.trades.Create(ctx, ports.CreateTradeRequest{
		RequesterID: buyer1, TargetListingID: listing,
		Terms: domain.TradeTerms{OfferedAmount: decPtr("20")},
	})
	require.NoError(t, err)
	second, err := e.trades.Create(ctx, ports.CreateTradeRequest{
		RequesterID: buyer2, TargetListingID: listing,
		Terms: domain.TradeTerms{OfferedAmount: decPtr("25")},
	})
	require.NoError(t, err)
	_, err = e.trades.Accept(ctx, first.ID, owner)
	require.NoError(t, err)
	_, err = e.trades.Accept(ctx, second.ID, owner)
	require.NoError(t, err)

	_, err = e.trades.Complete(ctx, second.ID, owner)
	require.NoError(t, err)

	got, err := e.trades.Get(ctx, first.ID, buyer1)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusCancelled, got.Status)

	_, err = e.trades.Complete(ctx, first.ID, owner)
	assertAppError(t, err, apperror.CodeInvalidState)

	assert.True(t, e.store.balance(owner).Equal(dec("25")))
	assert.True(t, e.store.balance(buyer1).Equal(dec("50")))
	e.assertLedgerConsistent(t, owner, buyer1, buyer2)
}

func TestScenario_ConcurrentCompletionsConsumeListingOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const owner, listing = 1, 100
	e.store.seedAccount(owner, "0")
	e.store.seedListing(listing, owner)

	var ids []uuid.UUID
	for buyer := int64(2); buyer <= 6; buyer++ {
		e.store.seedAccount(buyer, "10")
		tr, err := e.trades.Create(ctx, ports.CreateTradeRequest{
			RequesterID: buyer, TargetListingID: listing,
			Terms: domain.TradeTerms{OfferedAmount: decPtr("10")},
		})
		require.NoError(t, err)
		_, err = e.trades.Accept(ctx, tr.ID, owner)
		require.NoError(t, err)
		ids = append(ids, tr.ID)
	}

	var wg sync.WaitGroup
	var completed int32
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := e.trades.Complete(ctx, id, owner); err == nil {
				atomic.AddInt32(&completed, 1)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(1), completed)
	assert.True(t, e.store.balance(owner).Equal(dec("10")))
	e.assertLedgerConsistent(t, owner, 2, 3, 4, 5, 6)
}

func TestScenario_CompletionFailureRollsBack(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const requester, owner, listing = 1, 2, 100
	e.store.seedAccount(requester, "5")
	e.store.seedAccount(owner, "0")
	e.store.seedListing(listing, owner)

	trade, err := e.trades.Create(ctx, ports.CreateTradeRequest{
		RequesterID: requester, TargetListingID: listing,
		Terms: domain.TradeTerms{OfferedAmount: decPtr("20")},
	})
	require.NoError(t, err)
	_, err = e.trades.Accept(ctx, trade.ID, owner)
	require.NoError(t, err)

	before := e.store.entryCount()
	_, err = e.trades.Complete(ctx, trade.ID, owner)
	assertAppError(t, err, apperror.CodeInsufficientFunds)

	got, err := e.trades.Get(ctx, trade.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusAccepted, got.Status)
	assert.Equal(t, before, e.store.entryCount())
	assert.True(t, e.store.balance(requester).Equal(dec("5")))

	l, _ := memListingRepo{e.store}.GetByID(ctx, listing)
	assert.True(t, l.IsTradable())
}

func TestScenario_NegotiationSelfAcceptGuard(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.store.seedListing(100, 2)

	trade, err := e.trades.Create(ctx, ports.CreateTradeRequest{RequesterID: 1, TargetListingID: 100})
	require.NoError(t, err)

	_, err = e.trades.Accept(ctx, trade.ID, 1)
	assertAppError(t, err, apperror.CodeSelfAction)

	_, err = e.trades.CounterOffer(ctx, trade.ID, 2, domain.TradeTerms{RequestedAmount: decPtr("15")})
	require.NoError(t, err)

	_, err = e.trades.Accept(ctx, trade.ID, 2)
	assertAppError(t, err, apperror.CodeSelfAction)

	accepted, err := e.trades.Accept(ctx, trade.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusAccepted, accepted.Status)

	_, err = e.trades.CounterOffer(ctx, trade.ID, 2, domain.TradeTerms{})
	assertAppError(t, err, apperror.CodeInvalidState)
}

func TestScenario_DuplicateTradeReturnsExisting(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.store.seedListing(100, 2)

	first, err := e.trades.Create(ctx, ports.CreateTradeRequest{RequesterID: 1, TargetListingID: 100})
	require.NoError(t, err)
	second, err := e.trades.Create(ctx, ports.CreateTradeRequest{RequesterID: 1, TargetListingID: 100})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	mine, err := e.trades.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestScenario_P2PDeposit(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const buyer, seller = 1, 2
	e.store.seedAccount(buyer, "0")
	e.store.seedAccount(seller, "100")

	order, err := e.orders.Create(ctx, ports.CreateOrderRequest{
		CreatorID: buyer, Type: domain.OrderTypeDeposit,
		FiatAmount: dec("700"), CurrencyAmount: dec("100"), Rate: dec("7"),
	})
	require.NoError(t, err)

	book, err := e.orders.ListOrderBook(ctx)
	require.NoError(t, err)
	assert.Len(t, book, 1)

	_, err = e.orders.Take(ctx, order.ID, seller)
	require.NoError(t, err)
	_, err = e.orders.MarkPaid(ctx, order.ID, buyer)
	require.NoError(t, err)

	// buyer cannot release a deposit order
	_, err = e.orders.Release(ctx, order.ID, buyer)
	assertAppError(t, err, apperror.CodeForbidden)

	released, err := e.orders.Release(ctx, order.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReleased, released.Status)

	assert.True(t, e.store.balance(seller).IsZero())
	assert.True(t, e.store.balance(buyer).Equal(dec("100")))

	rows := e.store.entriesFor(order.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(seller), rows[0].UserID)
	assert.True(t, rows[0].Amount.Equal(dec("-100")))
	assert.Equal(t, int64(buyer), rows[1].UserID)
	assert.Equal(t, domain.EntryKindP2PDeposit, rows[1].Kind)
	e.assertLedgerConsistent(t, buyer, seller)

	history, err := e.orders.ListForUser(ctx, buyer)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestScenario_P2PWithdraw(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const seller, cashier = 1, 2
	e.store.seedAccount(seller, "60")
	e.store.seedAccount(cashier, "0")

	order, err := e.orders.Create(ctx, ports.CreateOrderRequest{
		CreatorID: seller, Type: domain.OrderTypeWithdraw,
		FiatAmount: dec("350"), CurrencyAmount: dec("50"), Rate: dec("7"),
	})
	require.NoError(t, err)
	_, err = e.orders.Take(ctx, order.ID, cashier)
	require.NoError(t, err)
	_, err = e.orders.MarkPaid(ctx, order.ID, cashier)
	require.NoError(t, err)
	_, err = e.orders.Release(ctx, order.ID, seller)
	require.NoError(t, err)

	assert.True(t, e.store.balance(seller).Equal(dec("10")))
	assert.True(t, e.store.balance(cashier).Equal(dec("50")))
	e.assertLedgerConsistent(t, seller, cashier)
}

func TestScenario_TakeMatchedOrderLeavesBalances(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.store.seedAccount(1, "0")
	e.store.seedAccount(2, "100")
	e.store.seedAccount(3, "100")

	order, err := e.orders.Create(ctx, ports.CreateOrderRequest{
		CreatorID: 1, Type: domain.OrderTypeDeposit,
		FiatAmount: dec("700"), CurrencyAmount: dec("100"), Rate: dec("7"),
	})
	require.NoError(t, err)
	_, err = e.orders.Take(ctx, order.ID, 2)
	require.NoError(t, err)

	before := e.store.entryCount()
	_, err = e.orders.Take(ctx, order.ID, 3)
	assertAppError(t, err, apperror.CodeInvalidState)
	assert.Equal(t, before, e.store.entryCount())
	assert.True(t, e.store.balance(2).Equal(dec("100")))
	assert.True(t, e.store.balance(3).Equal(dec("100")))
}

func TestScenario_NonPositiveTransferWritesNothing(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.store.seedAccount(1, "10")
	e.store.seedAccount(2, "10")
	before := e.store.entryCount()

	for _, amount := range []string{"0", "-1"} {
		_, err := e.wallet.Transfer(ctx, ports.TransferRequest{FromID: 1, ToID: 2, Amount: dec(amount)})
		assertAppError(t, err, apperror.CodeValidation)
	}
	assert.Equal(t, before, e.store.entryCount())
}

func TestScenario_ConcurrentTransfersNeverOverdraw(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const from, to = 1, 2
	e.store.seedAccount(from, "100")
	e.store.seedAccount(to, "0")

	var wg sync.WaitGroup
	var ok, insufficient atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.wallet.Transfer(ctx, ports.TransferRequest{FromID: from, ToID: to, Amount: dec("10")})
			switch {
			case err == nil:
				ok.Add(1)
			case apperror.Is(err, apperror.CodeInsufficientFunds):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, int32(40), insufficient.Load())
	assert.True(t, e.store.balance(from).IsZero())
	assert.True(t, e.store.balance(to).Equal(dec("100")))
	e.assertLedgerConsistent(t, from, to)
}

func TestScenario_ConcurrentReleaseSettlesOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.store.seedAccount(1, "0")
	e.store.seedAccount(2, "500")

	order, err := e.orders.Create(ctx, ports.CreateOrderRequest{
		CreatorID: 1, Type: domain.OrderTypeDeposit,
		FiatAmount: dec("70"), CurrencyAmount: dec("10"), Rate: dec("7"),
	})
	require.NoError(t, err)
	_, err = e.orders.Take(ctx, order.ID, 2)
	require.NoError(t, err)
	_, err = e.orders.MarkPaid(ctx, order.ID, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.orders.Release(ctx, order.ID, 2); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Len(t, e.store.entriesFor(order.ID), 2)
	assert.True(t, e.store.balance(1).Equal(dec("10")))
}
