package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the idempotency and ledger layers.
type Clock interface {
	Now() time.Time
}

type system struct{}

// NewSystem returns a Clock backed by time.Now in UTC.
func NewSystem() Clock {
	return system{}
}

func (system) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a settable Clock for tests.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
