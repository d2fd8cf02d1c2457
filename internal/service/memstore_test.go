package service

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"truek-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for the postgres schema. Transactions are
// serialized by txMu (the row locks collapse into one store-wide lock) and a
// transaction that ends without Commit restores the snapshot taken at Begin.
type memStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	balances map[int64]decimal.Decimal
	entries  []*domain.LedgerEntry
	listings map[int64]domain.Listing
	trades   map[uuid.UUID]domain.Trade
	messages []*domain.TradeMessage
	orders   map[uuid.UUID]domain.P2POrder
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[int64]decimal.Decimal),
		listings: make(map[int64]domain.Listing),
		trades:   make(map[uuid.UUID]domain.Trade),
		orders:   make(map[uuid.UUID]domain.P2POrder),
	}
}

// seedAccount creates an account whose balance is backed by a bonus entry,
// so the ledger invariant holds from the start.
func (s *memStore) seedAccount(id int64, balance string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount := decimal.RequireFromString(balance)
	s.balances[id] = amount
	if !amount.IsZero() {
		s.entries = append(s.entries, &domain.LedgerEntry{
			ID: uuid.New(), UserID: id, Amount: amount,
			Kind: domain.EntryKindBonus, RefKind: domain.RefKindAdminAdjustment, CreatedAt: time.Now().UTC(),
		})
	}
}

func (s *memStore) seedListing(id, owner int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[id] = domain.Listing{ID: id, OwnerID: owner, Published: true, Available: true}
}

func (s *memStore) balance(id int64) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[id]
}

func (s *memStore) entryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *memStore) entriesFor(refID uuid.UUID) []*domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.LedgerEntry
	for _, e := range s.entries {
		if e.RefID != nil && *e.RefID == refID {
			out = append(out, e)
		}
	}
	return out
}

type memSnapshot struct {
	balances map[int64]decimal.Decimal
	entries  int
	listings map[int64]domain.Listing
	trades   map[uuid.UUID]domain.Trade
	messages int
	orders   map[uuid.UUID]domain.P2POrder
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memSnapshot{
		balances: make(map[int64]decimal.Decimal, len(s.balances)),
		entries:  len(s.entries),
		listings: make(map[int64]domain.Listing, len(s.listings)),
		trades:   make(map[uuid.UUID]domain.Trade, len(s.trades)),
		messages: len(s.messages),
		orders:   make(map[uuid.UUID]domain.P2POrder, len(s.orders)),
	}
	for k, v := range s.balances {
		snap.balances[k] = v
	}
	for k, v := range s.listings {
		snap.listings[k] = v
	}
	for k, v := range s.trades {
		snap.trades[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = snap.balances
	s.entries = s.entries[:snap.entries]
	s.listings = snap.listings
	s.trades = snap.trades
	s.messages = s.messages[:snap.messages]
	s.orders = snap.orders
}

// --- Transactor ---

func (s *memStore) Begin(_ context.Context) (pgx.Tx, error) {
	s.txMu.Lock()
	return &memTx{store: s, snap: s.snapshot()}, nil
}

type memTx struct {
	pgx.Tx
	store *memStore
	snap  memSnapshot
	done  bool
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.restore(t.snap)
	t.store.txMu.Unlock()
	return nil
}

// --- Accounts ---

type memAccountRepo struct{ s *memStore }

func (r memAccountRepo) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	bal, ok := r.s.balances[id]
	if !ok {
		return nil, nil
	}
	return &domain.Account{ID: id, Balance: bal}, nil
}

func (r memAccountRepo) LockForUpdate(_ context.Context, _ pgx.Tx, ids ...int64) (map[int64]*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[int64]*domain.Account, len(ids))
	for _, id := range ids {
		if bal, ok := r.s.balances[id]; ok {
			out[id] = &domain.Account{ID: id, Balance: bal}
		}
	}
	return out, nil
}

func (r memAccountRepo) UpdateBalance(_ context.Context, _ pgx.Tx, id int64, balance decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.balances[id] = balance
	return nil
}

// --- Ledger ---

type memLedgerRepo struct{ s *memStore }

func (r memLedgerRepo) Create(_ context.Context, _ pgx.Tx, entries ...*domain.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.entries = append(r.s.entries, entries...)
	return nil
}

func (r memLedgerRepo) ListByUser(_ context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.LedgerEntry
	for i := len(r.s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.entries[i].UserID == userID {
			out = append(out, r.s.entries[i])
		}
	}
	return out, nil
}

func (r memLedgerRepo) SumByUser(_ context.Context, userID int64) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sum := decimal.Zero
	for _, e := range r.s.entries {
		if e.UserID == userID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

// --- Listings ---

type memListingRepo struct{ s *memStore }

func (r memListingRepo) GetByID(_ context.Context, id int64) (*domain.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.listings[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r memListingRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, id int64) (*domain.Listing, error) {
	return r.GetByID(ctx, id)
}

func (r memListingRepo) MarkUnavailable(_ context.Context, _ pgx.Tx, ids ...int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if l, ok := r.s.listings[id]; ok {
			l.Published, l.Available = false, false
			r.s.listings[id] = l
		}
	}
	return nil
}

// --- Trades ---

type memTradeRepo struct{ s *memStore }

func (r memTradeRepo) Create(_ context.Context, _ pgx.Tx, t *domain.Trade) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.trades {
		if existing.IsActive() && existing.RequesterID == t.RequesterID &&
			existing.OwnerID == t.OwnerID && existing.TargetListingID == t.TargetListingID {
			return false, nil
		}
	}
	r.s.trades[t.ID] = *t
	return true, nil
}

func (r memTradeRepo) FindActive(_ context.Context, _ pgx.Tx, requesterID, ownerID, targetListingID int64) (*domain.Trade, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.trades {
		if t.IsActive() && t.RequesterID == requesterID && t.OwnerID == ownerID && t.TargetListingID == targetListingID {
			return &t, nil
		}
	}
	return nil, nil
}

func (r memTradeRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Trade, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.trades[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r memTradeRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Trade, error) {
	return r.GetByID(ctx, id)
}

func (r memTradeRepo) Update(_ context.Context, _ pgx.Tx, t *domain.Trade) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.trades[t.ID] = *t
	return nil
}

func (r memTradeRepo) CancelSiblings(_ context.Context, _ pgx.Tx, listingIDs []int64, exceptID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.trades {
		if id == exceptID || !t.IsActive() {
			continue
		}
		if slices.ContainsFunc(t.ListingIDs(), func(l int64) bool { return slices.Contains(listingIDs, l) }) {
			t.Status = domain.TradeStatusCancelled
			r.s.trades[id] = t
			n++
		}
	}
	return n, nil
}

func (r memTradeRepo) ListForUser(_ context.Context, userID int64) ([]*domain.Trade, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Trade
	for _, t := range r.s.trades {
		if t.IsParticipant(userID) {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- Trade messages ---

type memMessageRepo struct{ s *memStore }

func (r memMessageRepo) Create(_ context.Context, _ pgx.Tx, m *domain.TradeMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.messages = append(r.s.messages, m)
	return nil
}

func (r memMessageRepo) ListByTrade(_ context.Context, tradeID uuid.UUID) ([]*domain.TradeMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.TradeMessage
	for _, m := range r.s.messages {
		if m.TradeID == tradeID {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- P2P orders ---

type memOrderRepo struct{ s *memStore }

func (r memOrderRepo) Create(_ context.Context, o *domain.P2POrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[o.ID] = *o
	return nil
}

func (r memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.P2POrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r memOrderRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.P2POrder, error) {
	return r.GetByID(ctx, id)
}

func (r memOrderRepo) Update(_ context.Context, _ pgx.Tx, o *domain.P2POrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[o.ID] = *o
	return nil
}

func (r memOrderRepo) ListByStatus(_ context.Context, status domain.OrderStatus) ([]*domain.P2POrder, error) {
	return r.list(func(o domain.P2POrder) bool { return o.Status == status })
}

func (r memOrderRepo) ListForUser(_ context.Context, userID int64, statuses []domain.OrderStatus) ([]*domain.P2POrder, error) {
	return r.list(func(o domain.P2POrder) bool {
		if !o.IsParticipant(userID) {
			return false
		}
		for _, s := range statuses {
			if o.Status == s {
				return true
			}
		}
		return false
	})
}

func (r memOrderRepo) list(keep func(domain.P2POrder) bool) ([]*domain.P2POrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.P2POrder
	for _, o := range r.s.orders {
		if keep(o) {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- Collaborators ---

type allowCooldown struct{}

func (allowCooldown) Acquire(context.Context, uuid.UUID, int64, time.Duration) (bool, error) {
	return true, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*domain.TradeMessage
}

func (n *recordingNotifier) PublishTradeMessage(_ context.Context, msg *domain.TradeMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}
