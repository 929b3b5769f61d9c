package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Misgexx/mintguard/internal/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	DefaultLockWindow   = 15 * time.Second
	DefaultMaxReentries = 3
)

// Mutator is the guarded side of the coordinator.
type Mutator interface {
	PayOrder(ctx context.Context, orderID uuid.UUID) (PayResult, error)
	RefundOrder(ctx context.Context, orderID uuid.UUID) (RefundResult, error)
}

// Request is one attempt of a logical request.
type Request struct {
	Operation Operation
	OrderID   uuid.UUID
	Key       string
}

func (r Request) Fingerprint() string {
	return Fingerprint(r.Operation, r.OrderID.String())
}

// Response is returned verbatim to the client. Replayed is true when it came from the key store.
type Response struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

// Coordinator binds an idempotency key to exactly one execution of a Mutator operation.
type Coordinator struct {
	keys         KeyStore
	mutator      Mutator
	tx           Transactor
	clock        clock.Clock
	metrics      Metrics
	tracer       trace.Tracer
	log          logrus.FieldLogger
	lockWindow   time.Duration
	maxReentries int
}

type CoordinatorOption func(*Coordinator)

func WithLockWindow(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.lockWindow = d
		}
	}
}

func WithMaxReentries(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxReentries = n
		}
	}
}

func WithMetrics(m Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithClock(clk clock.Clock) CoordinatorOption {
	return func(c *Coordinator) {
		if clk != nil {
			c.clock = clk
		}
	}
}

func WithTracer(tracer trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

func WithLogger(log logrus.FieldLogger) CoordinatorOption {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTransactor makes the mutation and the cached-response commit a single unit.
func WithTransactor(tx Transactor) CoordinatorOption {
	return func(c *Coordinator) {
		c.tx = tx
	}
}

func NewCoordinator(keys KeyStore, mutator Mutator, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		keys:         keys,
		mutator:      mutator,
		clock:        clock.NewSystem(),
		metrics:      NopMetrics{},
		tracer:       noop.NewTracerProvider().Tracer(""),
		log:          logrus.StandardLogger(),
		lockWindow:   DefaultLockWindow,
		maxReentries: DefaultMaxReentries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Pay(ctx context.Context, orderID uuid.UUID, key string) (Response, error) {
	return c.Execute(ctx, Request{Operation: OperationPay, OrderID: orderID, Key: key})
}

func (c *Coordinator) Refund(ctx context.Context, orderID uuid.UUID, key string) (Response, error) {
	return c.Execute(ctx, Request{Operation: OperationRefund, OrderID: orderID, Key: key})
}

// Execute runs the key state machine. Every failure is counted before it is returned.
func (c *Coordinator) Execute(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Key) == "" {
		return Response{}, ErrMissingKey
	}

	ctx, span := c.tracer.Start(ctx, "idempotency."+string(req.Operation))
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", string(req.Operation)),
		attribute.String("order_id", req.OrderID.String()),
		attribute.String("idempotency_key", req.Key),
	)

	start := c.clock.Now()
	defer func() {
		c.metrics.ObserveLatency(ctx, req.Operation, c.clock.Now().Sub(start))
	}()

	log := c.log.WithFields(logrus.Fields{
		"operation":       req.Operation,
		"order_id":        req.OrderID,
		"idempotency_key": req.Key,
	})

	resp, err := c.execute(ctx, req, log)
	if err != nil {
		span.SetAttributes(attribute.String("outcome", ErrorKind(err)))
		span.RecordError(err)
		if StatusCode(err) >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, err.Error())
		}
		c.metrics.Failed(ctx, req.Operation, ErrorKind(err))
		return Response{}, err
	}
	if resp.Replayed {
		span.SetAttributes(attribute.String("outcome", "replayed"))
	} else {
		span.SetAttributes(attribute.String("outcome", "committed"))
		c.metrics.Succeeded(ctx, req.Operation)
	}
	return resp, nil
}

func (c *Coordinator) execute(ctx context.Context, req Request, log logrus.FieldLogger) (Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, req, log)
		if !errors.Is(err, ErrKeyContended) {
			return resp, err
		}
		if attempt >= c.maxReentries {
			log.WithField("attempts", attempt+1).Warn("idempotency: key still contended, reporting in flight")
			c.metrics.IdempotencyInFlight(ctx, req.Operation)
			return Response{}, ErrRequestInFlight
		}
		log.WithField("attempt", attempt+1).Debug("idempotency: key contended, re-entering")
	}
}

func (c *Coordinator) attempt(ctx context.Context, req Request, log logrus.FieldLogger) (Response, error) {
	fingerprint := req.Fingerprint()

	// 1. lookup
	record, err := c.keys.Lookup(ctx, req.Key)
	if err != nil {
		return Response{}, err
	}

	if record != nil {
		// 2. key bound to another request
		if record.Binding.Conflicts(fingerprint) {
			return Response{}, c.conflict(ctx, req, log, record.Binding.Fingerprint())
		}

		// 3. cached terminal response
		if record.HasResponse() {
			if !record.Binding.IsBound() {
				if cached, ok := record.cachedOrderID(); ok && cached != req.OrderID.String() {
					return Response{}, c.conflict(ctx, req, log, "cached:"+cached)
				}
				if err := c.keys.BindFingerprintIfMissing(ctx, req.Key, fingerprint); err != nil {
					return Response{}, err
				}
				log.Info("idempotency: bound legacy key on replay")
			}
			c.metrics.IdempotencyHit(ctx, req.Operation)
			log.Info("idempotency: replaying cached response")
			return record.Replay(), nil
		}

		// 4. another attempt holds the lock
		if record.LockedAt(c.clock.Now()) {
			c.metrics.IdempotencyInFlight(ctx, req.Operation)
			log.WithField("locked_until", record.LockedUntil).Info("idempotency: request in flight")
			return Response{}, ErrRequestInFlight
		}
	}

	// 5. acquire or refresh the lock
	lock, err := c.keys.CreateOrRefreshLock(ctx, req.Key, fingerprint, c.lockWindow)
	if err != nil {
		return Response{}, err
	}

	// 6 and 7. mutate, then cache
	var resp Response
	err = c.inTx(ctx, func(ctx context.Context) error {
		result, err := c.mutate(ctx, req)
		if err != nil {
			return err
		}
		body, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encoding %s response: %w", req.Operation, err)
		}
		resp = Response{StatusCode: http.StatusOK, Body: body}
		return c.keys.CommitResult(ctx, req.Key, CachedResponse{StatusCode: resp.StatusCode, Body: body})
	})
	if err != nil {
		c.release(ctx, req, log, lock, err)
		return Response{}, err
	}

	log.WithField("outcome", "committed").Info("idempotency: request executed")
	return resp, nil
}

func (c *Coordinator) mutate(ctx context.Context, req Request) (any, error) {
	switch req.Operation {
	case OperationPay:
		return c.mutator.PayOrder(ctx, req.OrderID)
	case OperationRefund:
		return c.mutator.RefundOrder(ctx, req.OrderID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}
}

func (c *Coordinator) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.tx == nil {
		return fn(ctx)
	}
	return c.tx.WithTx(ctx, fn)
}

func (c *Coordinator) conflict(ctx context.Context, req Request, log logrus.FieldLogger, boundTo string) error {
	c.metrics.IdempotencyConflict(ctx, req.Operation)
	log.WithField("bound_to", boundTo).Warn("idempotency: key reused for a different request")
	return ErrKeyConflict
}

// release frees the lock after a failed mutation so a corrected retry with the
// same key can proceed. Failures are never cached.
func (c *Coordinator) release(ctx context.Context, req Request, log logrus.FieldLogger, lock *KeyRecord, cause error) {
	entry := log.WithField("outcome", ErrorKind(cause))
	if errors.Is(cause, ErrStorageFailure) {
		entry.WithError(cause).Error("idempotency: mutation failed")
	} else {
		entry.WithError(cause).Info("idempotency: mutation rejected")
	}
	if lock == nil || lock.LockedUntil == nil {
		entry.Warn("idempotency: no lock token, waiting for expiry")
		return
	}
	if err := c.keys.ReleaseLock(context.WithoutCancel(ctx), req.Key, *lock.LockedUntil); err != nil {
		entry.WithError(err).Error("idempotency: releasing lock failed, waiting for expiry")
	}
}
