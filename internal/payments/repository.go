package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// KeyStore persists one record per idempotency key.
type KeyStore interface {
	// Lookup returns nil, nil when the key has never been seen.
	Lookup(ctx context.Context, key string) (*KeyRecord, error)
	// CreateOrRefreshLock creates the record or refreshes an expired lock, binding the
	// fingerprint when the record is unbound. It returns ErrKeyContended when another
	// caller holds or just created the record.
	CreateOrRefreshLock(ctx context.Context, key, fingerprint string, lockDuration time.Duration) (*KeyRecord, error)
	// CommitResult stores the terminal response and clears the lock.
	CommitResult(ctx context.Context, key string, response CachedResponse) error
	BindFingerprintIfMissing(ctx context.Context, key, fingerprint string) error
	// ReleaseLock clears the lock of a record that has no cached response, but only
	// while lockedUntil is still the value the caller acquired. A lock retaken by a
	// later attempt is left alone.
	ReleaseLock(ctx context.Context, key string, lockedUntil time.Time) error
}

// OrderLocker runs fn while holding an exclusive lock on the order row. Every
// write fn performs through the ctx it receives commits or rolls back together.
type OrderLocker interface {
	WithExclusiveOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, order *Order) error) error
}

// LedgerWriter appends the effects of a mutation. Callers invoke it inside
// OrderLocker.WithExclusiveOrderLock.
type LedgerWriter interface {
	AppendEntries(ctx context.Context, entries ...LedgerEntry) error
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID, at time.Time) error
	RecordEvent(ctx context.Context, event LedgerEvent) error
}

// Transactor groups the mutation and the cached-response commit into one unit.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository serves order creation and the read projections.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListLedgerEntries(ctx context.Context, orderID uuid.UUID) ([]LedgerEntry, error)
	SummarizeLedger(ctx context.Context, orderID uuid.UUID) (LedgerSummary, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}
