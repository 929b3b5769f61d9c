package payments

import (
	"context"
	"errors"

	"github.com/Misgexx/mintguard/internal/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreateOrderInput carries the fields a client supplies for a new order.
type CreateOrderInput struct {
	UserID      uuid.UUID
	AmountCents int64
	Currency    string
}

// PaymentUseCase is the entry point transport and commands talk to.
type PaymentUseCase struct {
	orders      OrderRepository
	coordinator *Coordinator
	health      HealthChecker
	clock       clock.Clock
	log         logrus.FieldLogger
}

func NewPaymentUseCase(
	orders OrderRepository,
	coordinator *Coordinator,
	health HealthChecker,
	clk clock.Clock,
	log logrus.FieldLogger,
) *PaymentUseCase {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PaymentUseCase{
		orders:      orders,
		coordinator: coordinator,
		health:      health,
		clock:       clk,
		log:         log,
	}
}

func (uc *PaymentUseCase) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	order, err := NewOrder(in.UserID, in.AmountCents, in.Currency, uc.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := uc.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	uc.log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"amount_cents": order.AmountCents,
		"currency":     order.Currency,
	}).Info("orders: created")
	return order, nil
}

func (uc *PaymentUseCase) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return uc.orders.GetOrder(ctx, id)
}

func (uc *PaymentUseCase) Pay(ctx context.Context, orderID uuid.UUID, key string) (Response, error) {
	return uc.coordinator.Pay(ctx, orderID, key)
}

func (uc *PaymentUseCase) Refund(ctx context.Context, orderID uuid.UUID, key string) (Response, error) {
	return uc.coordinator.Refund(ctx, orderID, key)
}

// Ledger lists the entries of an existing order in insertion order.
func (uc *PaymentUseCase) Ledger(ctx context.Context, orderID uuid.UUID) ([]LedgerEntry, error) {
	if _, err := uc.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return uc.orders.ListLedgerEntries(ctx, orderID)
}

func (uc *PaymentUseCase) Summary(ctx context.Context, orderID uuid.UUID) (LedgerSummary, error) {
	if _, err := uc.orders.GetOrder(ctx, orderID); err != nil {
		return LedgerSummary{}, err
	}
	return uc.orders.SummarizeLedger(ctx, orderID)
}

func (uc *PaymentUseCase) Health(ctx context.Context) error {
	if uc.health == nil {
		return errors.New("no health checker configured")
	}
	return uc.health.Ping(ctx)
}
