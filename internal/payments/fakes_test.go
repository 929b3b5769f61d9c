package payments

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Misgexx/mintguard/internal/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockKeyStore mocks the KeyStore for coordinator tests.
type MockKeyStore struct {
	mock.Mock
}

func (m *MockKeyStore) Lookup(ctx context.Context, key string) (*KeyRecord, error) {
	args := m.Called(ctx, key)
	rec, _ := args.Get(0).(*KeyRecord)
	return rec, args.Error(1)
}

func (m *MockKeyStore) CreateOrRefreshLock(ctx context.Context, key, fingerprint string, lockDuration time.Duration) (*KeyRecord, error) {
	args := m.Called(ctx, key, fingerprint, lockDuration)
	rec, _ := args.Get(0).(*KeyRecord)
	return rec, args.Error(1)
}

func (m *MockKeyStore) CommitResult(ctx context.Context, key string, response CachedResponse) error {
	args := m.Called(ctx, key, response)
	return args.Error(0)
}

func (m *MockKeyStore) BindFingerprintIfMissing(ctx context.Context, key, fingerprint string) error {
	args := m.Called(ctx, key, fingerprint)
	return args.Error(0)
}

func (m *MockKeyStore) ReleaseLock(ctx context.Context, key string, lockedUntil time.Time) error {
	args := m.Called(ctx, key, lockedUntil)
	return args.Error(0)
}

type MockMutator struct {
	mock.Mock
}

func (m *MockMutator) PayOrder(ctx context.Context, orderID uuid.UUID) (PayResult, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(PayResult), args.Error(1)
}

func (m *MockMutator) RefundOrder(ctx context.Context, orderID uuid.UUID) (RefundResult, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(RefundResult), args.Error(1)
}

// recordingMetrics counts sink events by name.
type recordingMetrics struct {
	mu     sync.Mutex
	events map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{events: map[string]int{}}
}

func (r *recordingMetrics) inc(name string) {
	r.mu.Lock()
	r.events[name]++
	r.mu.Unlock()
}

func (r *recordingMetrics) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[name]
}

func (r *recordingMetrics) IdempotencyHit(_ context.Context, op Operation) { r.inc("hit:" + string(op)) }
func (r *recordingMetrics) IdempotencyConflict(_ context.Context, op Operation) {
	r.inc("conflict:" + string(op))
}
func (r *recordingMetrics) IdempotencyInFlight(_ context.Context, op Operation) {
	r.inc("inflight:" + string(op))
}
func (r *recordingMetrics) Succeeded(_ context.Context, op Operation) { r.inc("success:" + string(op)) }
func (r *recordingMetrics) Failed(_ context.Context, op Operation, kind string) {
	r.inc("failed:" + string(op) + ":" + kind)
}
func (r *recordingMetrics) ObserveLatency(context.Context, Operation, time.Duration) {}

// memStore is an in-memory KeyStore, OrderLocker, LedgerWriter and Transactor.
// Writes made inside WithTx become visible together when the outermost call
// returns, and order locks are held until then.
type memStore struct {
	mu         sync.Mutex
	clock      clock.Clock
	keys       map[string]*KeyRecord
	orders     map[uuid.UUID]*Order
	orderLocks map[uuid.UUID]*sync.Mutex
	entries    []LedgerEntry
	events     []LedgerEvent
}

func newMemStore(clk clock.Clock) *memStore {
	return &memStore{
		clock:      clk,
		keys:       map[string]*KeyRecord{},
		orders:     map[uuid.UUID]*Order{},
		orderLocks: map[uuid.UUID]*sync.Mutex{},
	}
}

type memTxKey struct{}

type memTx struct {
	writes  []func()
	unlocks []func()
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}
	tx := &memTx{}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))
	if err == nil {
		s.mu.Lock()
		for _, w := range tx.writes {
			w()
		}
		s.mu.Unlock()
	}
	for _, unlock := range tx.unlocks {
		unlock()
	}
	return err
}

func (s *memStore) write(ctx context.Context, w func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.writes = append(tx.writes, w)
		return
	}
	s.mu.Lock()
	w()
	s.mu.Unlock()
}

func (s *memStore) addOrder(amount int64) *Order {
	order, err := NewOrder(uuid.New(), amount, "usd", s.clock.Now())
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()
	return order
}

func (s *memStore) order(id uuid.UUID) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func (s *memStore) entriesFor(id uuid.UUID) []LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LedgerEntry
	for _, e := range s.entries {
		if e.OrderID == id {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) summary(id uuid.UUID) LedgerSummary {
	sum := LedgerSummary{OrderID: id}
	for _, e := range s.entriesFor(id) {
		sum.TotalDebits += e.DebitCents
		sum.TotalCredits += e.CreditCents
	}
	return sum
}

func (s *memStore) key(key string) *KeyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.keys[key]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (s *memStore) Lookup(_ context.Context, key string) (*KeyRecord, error) {
	return s.key(key), nil
}

func (s *memStore) CreateOrRefreshLock(_ context.Context, key, fingerprint string, lockDuration time.Duration) (*KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	until := now.Add(lockDuration)
	rec, ok := s.keys[key]
	if !ok {
		rec = &KeyRecord{Key: key, Binding: BoundTo(fingerprint), LockedUntil: &until, CreatedAt: now}
		s.keys[key] = rec
		cp := *rec
		return &cp, nil
	}
	if rec.HasResponse() || rec.LockedAt(now) || rec.Binding.Conflicts(fingerprint) {
		return nil, ErrKeyContended
	}
	if !rec.Binding.IsBound() {
		rec.Binding = BoundTo(fingerprint)
	}
	rec.LockedUntil = &until
	cp := *rec
	return &cp, nil
}

func (s *memStore) CommitResult(ctx context.Context, key string, response CachedResponse) error {
	s.write(ctx, func() {
		rec, ok := s.keys[key]
		if !ok || rec.HasResponse() {
			return
		}
		resp := response
		rec.Response = &resp
		rec.LockedUntil = nil
	})
	return nil
}

func (s *memStore) BindFingerprintIfMissing(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.keys[key]; ok && !rec.Binding.IsBound() {
		rec.Binding = BoundTo(fingerprint)
	}
	return nil
}

func (s *memStore) ReleaseLock(_ context.Context, key string, lockedUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.keys[key]; ok && !rec.HasResponse() && rec.LockedUntil != nil && rec.LockedUntil.Equal(lockedUntil) {
		rec.LockedUntil = nil
	}
	return nil
}

func (s *memStore) WithExclusiveOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, order *Order) error) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		if _, ok := s.orders[orderID]; !ok {
			s.mu.Unlock()
			return ErrOrderNotFound
		}
		lk, ok := s.orderLocks[orderID]
		if !ok {
			lk = &sync.Mutex{}
			s.orderLocks[orderID] = lk
		}
		s.mu.Unlock()

		lk.Lock()
		tx := ctx.Value(memTxKey{}).(*memTx)
		tx.unlocks = append(tx.unlocks, lk.Unlock)

		order := s.order(orderID)
		return fn(ctx, &order)
	})
}

func (s *memStore) AppendEntries(ctx context.Context, entries ...LedgerEntry) error {
	s.write(ctx, func() {
		s.entries = append(s.entries, entries...)
	})
	return nil
}

func (s *memStore) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	s.write(ctx, func() {
		o := s.orders[orderID]
		o.Status = OrderStatusPaid
		o.UpdatedAt = at
	})
	return nil
}

func (s *memStore) RecordEvent(ctx context.Context, event LedgerEvent) error {
	s.write(ctx, func() {
		s.events = append(s.events, event)
	})
	return nil
}

// countingMutator counts guarded executions.
type countingMutator struct {
	inner Mutator
	calls atomic.Int32
	delay time.Duration
}

func (m *countingMutator) PayOrder(ctx context.Context, orderID uuid.UUID) (PayResult, error) {
	m.calls.Add(1)
	time.Sleep(m.delay)
	return m.inner.PayOrder(ctx, orderID)
}

func (m *countingMutator) RefundOrder(ctx context.Context, orderID uuid.UUID) (RefundResult, error) {
	m.calls.Add(1)
	time.Sleep(m.delay)
	return m.inner.RefundOrder(ctx, orderID)
}

// scriptedMutator runs before with the 1-based call number ahead of every
// execution; a non-nil error aborts that execution.
type scriptedMutator struct {
	inner  Mutator
	calls  atomic.Int32
	before func(call int32) error
}

func (m *scriptedMutator) PayOrder(ctx context.Context, orderID uuid.UUID) (PayResult, error) {
	if err := m.before(m.calls.Add(1)); err != nil {
		return PayResult{}, err
	}
	return m.inner.PayOrder(ctx, orderID)
}

func (m *scriptedMutator) RefundOrder(ctx context.Context, orderID uuid.UUID) (RefundResult, error) {
	if err := m.before(m.calls.Add(1)); err != nil {
		return RefundResult{}, err
	}
	return m.inner.RefundOrder(ctx, orderID)
}
