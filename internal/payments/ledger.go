package payments

import (
	"context"
	"fmt"

	"github.com/Misgexx/mintguard/internal/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Ledger applies the financial side effect of pay and refund under the order row lock.
type Ledger struct {
	locker OrderLocker
	writer LedgerWriter
	clock  clock.Clock
	log    logrus.FieldLogger
}

func NewLedger(locker OrderLocker, writer LedgerWriter, clk clock.Clock, log logrus.FieldLogger) *Ledger {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{
		locker: locker,
		writer: writer,
		clock:  clk,
		log:    log,
	}
}

// PayOrder writes DR CASH / CR REVENUE and flips the order to PAID. An order that
// is already PAID is returned unchanged with no new entries.
func (l *Ledger) PayOrder(ctx context.Context, orderID uuid.UUID) (PayResult, error) {
	var result PayResult
	err := l.locker.WithExclusiveOrderLock(ctx, orderID, func(ctx context.Context, order *Order) error {
		result = PayResult{OrderID: order.ID.String(), Status: OrderStatusPaid}
		if order.IsPaid() {
			l.log.WithField("order_id", order.ID).Info("ledger: order already paid, no entries written")
			return nil
		}

		now := l.clock.Now()
		entries := []LedgerEntry{
			NewDebit(order.ID, AccountCash, order.AmountCents, now),
			NewCredit(order.ID, AccountRevenue, order.AmountCents, now),
		}
		if err := l.append(ctx, entries); err != nil {
			return err
		}
		if err := l.writer.MarkOrderPaid(ctx, order.ID, now); err != nil {
			return err
		}
		return l.writer.RecordEvent(ctx, NewLedgerEvent(EventPaymentCaptured, order, now))
	})
	if err != nil {
		return PayResult{}, err
	}
	return result, nil
}

// RefundOrder writes the reversing pair DR REVENUE / CR CASH. The order must be PAID.
func (l *Ledger) RefundOrder(ctx context.Context, orderID uuid.UUID) (RefundResult, error) {
	var result RefundResult
	err := l.locker.WithExclusiveOrderLock(ctx, orderID, func(ctx context.Context, order *Order) error {
		if !order.IsPaid() {
			return ErrInvalidState
		}

		now := l.clock.Now()
		entries := []LedgerEntry{
			NewDebit(order.ID, AccountRevenue, order.AmountCents, now),
			NewCredit(order.ID, AccountCash, order.AmountCents, now),
		}
		if err := l.append(ctx, entries); err != nil {
			return err
		}
		if err := l.writer.RecordEvent(ctx, NewLedgerEvent(EventPaymentRefunded, order, now)); err != nil {
			return err
		}
		result = RefundResult{OrderID: order.ID.String(), Refunded: true}
		return nil
	})
	if err != nil {
		return RefundResult{}, err
	}
	return result, nil
}

func (l *Ledger) append(ctx context.Context, entries []LedgerEntry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %s on %s: %w", e.ID, e.Account, err)
		}
	}
	return l.writer.AppendEntries(ctx, entries...)
}
