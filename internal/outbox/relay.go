// Package outbox relays ledger events committed alongside ledger entries to the
// message broker.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event is a claimed outbox row.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	Attempts      int
	LastError     string
}

type Store interface {
	Claim(ctx context.Context, limit int, lockTimeout time.Duration, maxAttempts int) ([]Event, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, msgID string) error
}

type Config struct {
	BatchSize     int
	PollInterval  time.Duration
	LockTimeout   time.Duration
	MaxAttempts   int
	SubjectPrefix string
}

type Relay struct {
	store     Store
	publisher Publisher
	cfg       Config
	log       logrus.FieldLogger
}

func NewRelay(store Store, publisher Publisher, cfg Config, log logrus.FieldLogger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Relay{store: store, publisher: publisher, cfg: cfg, log: log}
}

// Subject is the broker subject an event type is published on.
func (r *Relay) Subject(eventType string) string {
	if r.cfg.SubjectPrefix == "" {
		return eventType
	}
	return r.cfg.SubjectPrefix + "." + eventType
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.WithError(err).Error("outbox: batch failed")
		}
		select {
		case <-ctx.Done():
			r.log.Info("outbox: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce publishes one claimed batch and returns how many events were published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.Claim(ctx, r.cfg.BatchSize, r.cfg.LockTimeout, r.cfg.MaxAttempts)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, ev := range events {
		log := r.log.WithFields(logrus.Fields{
			"event_id":   ev.ID,
			"event_type": ev.EventType,
			"order_id":   ev.AggregateID,
			"attempt":    ev.Attempts,
		})
		// the event id doubles as the broker dedupe id, so a republish after a
		// failed MarkProcessed is dropped by the stream
		if err := r.publisher.Publish(ctx, r.Subject(ev.EventType), ev.Payload, ev.ID.String()); err != nil {
			log.WithError(err).Warn("outbox: publish failed")
			if markErr := r.store.MarkFailed(ctx, ev.ID, err.Error()); markErr != nil {
				log.WithError(markErr).Error("outbox: recording failure")
			}
			continue
		}
		if err := r.store.MarkProcessed(ctx, ev.ID); err != nil {
			log.WithError(err).Error("outbox: marking processed")
			continue
		}
		published++
	}
	if len(events) > 0 {
		r.log.WithFields(logrus.Fields{"claimed": len(events), "published": published}).Info("outbox: batch relayed")
	}
	return published, nil
}
