package bootstrap

import (
	"context"
	"fmt"

	"github.com/Misgexx/mintguard/internal/config"
	"github.com/Misgexx/mintguard/internal/payments"
	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SeedOrders inserts count PENDING orders with generated amounts and currencies.
func SeedOrders(ctx context.Context, uc *payments.PaymentUseCase, count int) ([]*payments.Order, error) {
	if count <= 0 {
		count = 10
	}

	amounts, err := faker.RandomInt(100, 100000, count)
	if err != nil {
		return nil, fmt.Errorf("seed: generating amounts: %w", err)
	}

	orders := make([]*payments.Order, 0, count)
	for i := 0; i < count; i++ {
		userID, err := uuid.Parse(faker.UUIDHyphenated())
		if err != nil {
			return nil, err
		}
		order, err := uc.CreateOrder(ctx, payments.CreateOrderInput{
			UserID:      userID,
			AmountCents: int64(amounts[i]),
			Currency:    faker.Currency(),
		})
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func Seed(ctx context.Context, cfg config.Config, count int) error {
	log, err := BuildLogger(cfg)
	if err != nil {
		return err
	}

	pool, err := OpenPool(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := NewServices(pool, cfg, payments.NopMetrics{}, log.WithField("component", "seed"))
	orders, err := SeedOrders(ctx, svc.UseCase, count)
	if err != nil {
		return err
	}

	for _, o := range orders {
		log.WithFields(logrus.Fields{
			"order_id":     o.ID,
			"amount_cents": o.AmountCents,
			"currency":     o.Currency,
		}).Debug("seed: order")
	}
	log.Infof("bootstrap: seeded %d orders", len(orders))
	return nil
}
