package bootstrap

import (
	"context"
	"errors"

	"github.com/Misgexx/mintguard/internal/config"
	"github.com/Misgexx/mintguard/internal/messaging"
	"github.com/Misgexx/mintguard/internal/outbox"
	"github.com/Misgexx/mintguard/internal/storage/postgres"
)

func RelayConfig(cfg config.Config) outbox.Config {
	return outbox.Config{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		LockTimeout:   cfg.Outbox.LockTimeout,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
	}
}

// RunOutboxWorker relays committed ledger events to JetStream until ctx ends.
func RunOutboxWorker(ctx context.Context, cfg config.Config) error {
	log, err := BuildLogger(cfg)
	if err != nil {
		return err
	}

	natsClient, err := messaging.NewNATS(ctx, cfg.NATS)
	if err != nil {
		return err
	}
	if natsClient == nil {
		return errors.New("nats: nats url is required")
	}
	defer natsClient.Close()

	pool, err := OpenPool(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.NewOutboxRepository(postgres.New(pool))
	relay := outbox.NewRelay(store, natsClient, RelayConfig(cfg), log.WithField("component", "outbox"))

	log.Infof("outbox-worker: started (batch=%d, interval=%s)", cfg.Outbox.BatchSize, cfg.Outbox.PollInterval)
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
