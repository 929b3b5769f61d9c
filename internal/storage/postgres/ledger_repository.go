package postgres

import (
	"context"
	"time"

	"github.com/Misgexx/mintguard/internal/payments"
	"github.com/google/uuid"
)

// LedgerRepository implements payments.LedgerWriter. It must be called with the
// transaction opened by OrderRepository.WithExclusiveOrderLock in ctx.
type LedgerRepository struct {
	db     *DB
	orders *OrderRepository
	outbox *OutboxRepository
}

func NewLedgerRepository(db *DB, orders *OrderRepository, outbox *OutboxRepository) *LedgerRepository {
	return &LedgerRepository{db: db, orders: orders, outbox: outbox}
}

func (r *LedgerRepository) AppendEntries(ctx context.Context, entries ...payments.LedgerEntry) error {
	for _, e := range entries {
		_, err := r.db.q(ctx).Exec(ctx, `
			INSERT INTO ledger_entries (id, order_id, account, debit_cents, credit_cents, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.OrderID, e.Account, e.DebitCents, e.CreditCents, e.CreatedAt)
		if err != nil {
			return storageErr("insert ledger entry", err)
		}
	}
	return nil
}

func (r *LedgerRepository) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.orders.MarkOrderPaid(ctx, orderID, at)
}

func (r *LedgerRepository) RecordEvent(ctx context.Context, event payments.LedgerEvent) error {
	return r.outbox.Insert(ctx, event)
}
