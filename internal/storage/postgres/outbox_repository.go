package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Misgexx/mintguard/internal/outbox"
	"github.com/Misgexx/mintguard/internal/payments"
	"github.com/google/uuid"
)

const aggregateOrder = "order"

// OutboxRepository stores ledger events until the relay publishes them.
type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

type ledgerEventPayload struct {
	EventID     uuid.UUID `json:"event_id"`
	EventType   string    `json:"event_type"`
	OrderID     uuid.UUID `json:"order_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (r *OutboxRepository) Insert(ctx context.Context, event payments.LedgerEvent) error {
	payload, err := json.Marshal(ledgerEventPayload{
		EventID:     event.ID,
		EventType:   event.EventType,
		OrderID:     event.OrderID,
		AmountCents: event.AmountCents,
		Currency:    event.Currency,
		OccurredAt:  event.OccurredAt,
	})
	if err != nil {
		return err
	}
	_, err = r.db.q(ctx).Exec(ctx, `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, aggregateOrder, event.OrderID, event.EventType, payload, event.OccurredAt)
	if err != nil {
		return storageErr("insert outbox event", err)
	}
	return nil
}

// Claim locks up to limit unpublished events. Rows locked by a crashed worker are
// reclaimed after lockTimeout; rows that reached maxAttempts stay parked.
func (r *OutboxRepository) Claim(ctx context.Context, limit int, lockTimeout time.Duration, maxAttempts int) ([]outbox.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	if lockTimeout <= 0 {
		lockTimeout = time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	rows, err := r.db.q(ctx).Query(ctx, `
		WITH cte AS (
			SELECT id
			FROM outbox_events
			WHERE processed_at IS NULL
			  AND attempts < $1
			  AND (locked_at IS NULL OR locked_at < NOW() - ($2::int * INTERVAL '1 second'))
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events
		SET locked_at = NOW(), attempts = attempts + 1
		WHERE id IN (SELECT id FROM cte)
		RETURNING id, aggregate_type, aggregate_id, event_type, payload, created_at, attempts, COALESCE(last_error, '')`,
		maxAttempts, int(lockTimeout.Seconds()), limit)
	if err != nil {
		return nil, storageErr("claim outbox events", err)
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var e outbox.Event
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.Attempts, &e.LastError); err != nil {
			return nil, storageErr("scan outbox event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("claim outbox events", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.q(ctx).Exec(ctx,
		`UPDATE outbox_events SET processed_at = NOW(), locked_at = NULL WHERE id = $1`, id)
	if err != nil {
		return storageErr("mark outbox event processed", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.db.q(ctx).Exec(ctx,
		`UPDATE outbox_events SET last_error = $2, locked_at = NULL WHERE id = $1`, id, errMsg)
	if err != nil {
		return storageErr("mark outbox event failed", err)
	}
	return nil
}
