package postgres

import (
	"context"
	"time"

	"github.com/Misgexx/mintguard/internal/payments"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, user_id, amount_cents, currency, status, created_at, updated_at`

// OrderRepository implements payments.OrderRepository and payments.OrderLocker.
type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func scanOrder(row pgx.Row) (*payments.Order, error) {
	var o payments.Order
	err := row.Scan(&o.ID, &o.UserID, &o.AmountCents, &o.Currency, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order *payments.Order) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.UserID, order.AmountCents, order.Currency, order.Status, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return storageErr("insert order", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*payments.Order, error) {
	order, err := scanOrder(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, payments.ErrOrderNotFound
	}
	if err != nil {
		return nil, storageErr("get order", err)
	}
	return order, nil
}

// WithExclusiveOrderLock holds SELECT ... FOR UPDATE on the order row for the
// lifetime of the surrounding transaction.
func (r *OrderRepository) WithExclusiveOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, order *payments.Order) error) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		order, err := scanOrder(r.db.q(ctx).QueryRow(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
		if isNoRows(err) {
			return payments.ErrOrderNotFound
		}
		if err != nil {
			return storageErr("lock order", err)
		}
		return fn(ctx, order)
	})
}

func (r *OrderRepository) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		orderID, payments.OrderStatusPaid, at)
	if err != nil {
		return storageErr("mark order paid", err)
	}
	if tag.RowsAffected() == 0 {
		return payments.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) ListLedgerEntries(ctx context.Context, orderID uuid.UUID) ([]payments.LedgerEntry, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, order_id, account, debit_cents, credit_cents, created_at
		FROM ledger_entries
		WHERE order_id = $1
		ORDER BY position`, orderID)
	if err != nil {
		return nil, storageErr("list ledger entries", err)
	}
	defer rows.Close()

	entries := []payments.LedgerEntry{}
	for rows.Next() {
		var e payments.LedgerEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Account, &e.DebitCents, &e.CreditCents, &e.CreatedAt); err != nil {
			return nil, storageErr("scan ledger entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list ledger entries", err)
	}
	return entries, nil
}

func (r *OrderRepository) SummarizeLedger(ctx context.Context, orderID uuid.UUID) (payments.LedgerSummary, error) {
	summary := payments.LedgerSummary{OrderID: orderID}
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(debit_cents), 0)::BIGINT, COALESCE(SUM(credit_cents), 0)::BIGINT
		FROM ledger_entries
		WHERE order_id = $1`, orderID).Scan(&summary.TotalDebits, &summary.TotalCredits)
	if err != nil {
		return payments.LedgerSummary{}, storageErr("summarize ledger", err)
	}
	return summary, nil
}
