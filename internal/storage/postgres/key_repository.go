package postgres

import (
	"context"
	"time"

	"github.com/Misgexx/mintguard/internal/clock"
	"github.com/Misgexx/mintguard/internal/payments"
	"github.com/jackc/pgx/v5"
)

const keyColumns = `key, request_fingerprint, status_code, response_body, locked_until, created_at`

// KeyRepository implements payments.KeyStore over the idempotency_keys table.
type KeyRepository struct {
	db    *DB
	clock clock.Clock
}

func NewKeyRepository(db *DB, clk clock.Clock) *KeyRepository {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &KeyRepository{db: db, clock: clk}
}

func scanKey(row pgx.Row) (*payments.KeyRecord, error) {
	var (
		rec         payments.KeyRecord
		fingerprint *string
		statusCode  *int32
		body        []byte
	)
	if err := row.Scan(&rec.Key, &fingerprint, &statusCode, &body, &rec.LockedUntil, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if fingerprint != nil && *fingerprint != "" {
		rec.Binding = payments.BoundTo(*fingerprint)
	}
	if body != nil {
		rec.Response = &payments.CachedResponse{Body: body}
		if statusCode != nil {
			rec.Response.StatusCode = int(*statusCode)
		}
	}
	return &rec, nil
}

func (r *KeyRepository) Lookup(ctx context.Context, key string) (*payments.KeyRecord, error) {
	rec, err := scanKey(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+keyColumns+` FROM idempotency_keys WHERE key = $1`, key))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("lookup idempotency key", err)
	}
	return rec, nil
}

// CreateOrRefreshLock takes the lock only when no response is cached, no live lock
// exists and the record is unbound or bound to fingerprint. Anything else, including
// losing the insert race on the primary key, is reported as ErrKeyContended.
func (r *KeyRepository) CreateOrRefreshLock(ctx context.Context, key, fingerprint string, lockDuration time.Duration) (*payments.KeyRecord, error) {
	now := r.clock.Now()
	until := now.Add(lockDuration)

	rec, err := scanKey(r.db.q(ctx).QueryRow(ctx, `
		UPDATE idempotency_keys
		SET locked_until = $3,
		    request_fingerprint = COALESCE(NULLIF(request_fingerprint, ''), $2)
		WHERE key = $1
		  AND response_body IS NULL
		  AND (locked_until IS NULL OR locked_until <= $4)
		  AND (request_fingerprint IS NULL OR request_fingerprint = '' OR request_fingerprint = $2)
		RETURNING `+keyColumns,
		key, fingerprint, until, now))
	if err == nil {
		return rec, nil
	}
	if !isNoRows(err) {
		return nil, storageErr("refresh idempotency lock", err)
	}

	rec, err = scanKey(r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO idempotency_keys (key, request_fingerprint, locked_until, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+keyColumns,
		key, fingerprint, until, now))
	if isUniqueViolation(err) {
		return nil, payments.ErrKeyContended
	}
	if err != nil {
		return nil, storageErr("insert idempotency key", err)
	}
	return rec, nil
}

// CommitResult is a no-op once a response is stored.
func (r *KeyRepository) CommitResult(ctx context.Context, key string, response payments.CachedResponse) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		UPDATE idempotency_keys
		SET status_code = $2, response_body = $3, locked_until = NULL
		WHERE key = $1 AND response_body IS NULL`,
		key, response.StatusCode, response.Body)
	if err != nil {
		return storageErr("commit idempotent response", err)
	}
	return nil
}

func (r *KeyRepository) BindFingerprintIfMissing(ctx context.Context, key, fingerprint string) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		UPDATE idempotency_keys
		SET request_fingerprint = $2
		WHERE key = $1 AND (request_fingerprint IS NULL OR request_fingerprint = '')`,
		key, fingerprint)
	if err != nil {
		return storageErr("bind idempotency fingerprint", err)
	}
	return nil
}

// ReleaseLock is a no-op once another attempt has refreshed the lock, since
// locked_until then no longer equals the caller's token.
func (r *KeyRepository) ReleaseLock(ctx context.Context, key string, lockedUntil time.Time) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		UPDATE idempotency_keys
		SET locked_until = NULL
		WHERE key = $1 AND response_body IS NULL AND locked_until = $2`, key, lockedUntil)
	if err != nil {
		return storageErr("release idempotency lock", err)
	}
	return nil
}
