package payments

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics receives coordinator events. It never influences control flow.
type Metrics interface {
	IdempotencyHit(ctx context.Context, op Operation)
	IdempotencyConflict(ctx context.Context, op Operation)
	IdempotencyInFlight(ctx context.Context, op Operation)
	Succeeded(ctx context.Context, op Operation)
	Failed(ctx context.Context, op Operation, kind string)
	ObserveLatency(ctx context.Context, op Operation, d time.Duration)
}

type NopMetrics struct{}

func (NopMetrics) IdempotencyHit(context.Context, Operation) {}
func (NopMetrics) IdempotencyConflict(context.Context, Operation) {}
func (NopMetrics) IdempotencyInFlight(context.Context, Operation) {}
func (NopMetrics) Succeeded(context.Context, Operation) {}
func (NopMetrics) Failed(context.Context, Operation, string) {}
func (NopMetrics) ObserveLatency(context.Context, Operation, time.Duration) {}

// OTelMetrics records coordinator events on OpenTelemetry instruments.
type OTelMetrics struct {
	paymentsTotal        metric.Int64Counter
	refundsTotal         metric.Int64Counter
	idempotencyHits      metric.Int64Counter
	idempotencyConflicts metric.Int64Counter
	idempotencyInFlight  metric.Int64Counter
	paymentErrors        metric.Int64Counter
	refundErrors         metric.Int64Counter
	paymentLatency       metric.Float64Histogram
	refundLatency        metric.Float64Histogram
}

func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.paymentsTotal, "payments_total", "Successful payments"},
		{&m.refundsTotal, "refunds_total", "Successful refunds"},
		{&m.idempotencyHits, "idempotency_hits_total", "Cached idempotent responses served"},
		{&m.idempotencyConflicts, "idempotency_conflicts_total", "Idempotency key reused with a different request"},
		{&m.idempotencyInFlight, "idempotency_inflight_total", "Requests rejected while the key was in flight"},
		{&m.paymentErrors, "payment_errors_total", "Payment errors by type"},
		{&m.refundErrors, "refund_errors_total", "Refund errors by type"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.paymentLatency, err = meter.Float64Histogram("payment_latency_seconds",
		metric.WithDescription("Payment latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating histogram payment_latency_seconds: %w", err)
	}
	m.refundLatency, err = meter.Float64Histogram("refund_latency_seconds",
		metric.WithDescription("Refund latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating histogram refund_latency_seconds: %w", err)
	}
	return m, nil
}

func endpoint(op Operation) metric.AddOption {
	return metric.WithAttributes(attribute.String("endpoint", string(op)))
}

func (m *OTelMetrics) IdempotencyHit(ctx context.Context, op Operation) {
	m.idempotencyHits.Add(ctx, 1, endpoint(op))
}

func (m *OTelMetrics) IdempotencyConflict(ctx context.Context, op Operation) {
	m.idempotencyConflicts.Add(ctx, 1, endpoint(op))
}

func (m *OTelMetrics) IdempotencyInFlight(ctx context.Context, op Operation) {
	m.idempotencyInFlight.Add(ctx, 1, endpoint(op))
}

func (m *OTelMetrics) Succeeded(ctx context.Context, op Operation) {
	if op == OperationRefund {
		m.refundsTotal.Add(ctx, 1)
		return
	}
	m.paymentsTotal.Add(ctx, 1)
}

func (m *OTelMetrics) Failed(ctx context.Context, op Operation, kind string) {
	attrs := metric.WithAttributes(attribute.String("type", kind))
	if op == OperationRefund {
		m.refundErrors.Add(ctx, 1, attrs)
		return
	}
	m.paymentErrors.Add(ctx, 1, attrs)
}

func (m *OTelMetrics) ObserveLatency(ctx context.Context, op Operation, d time.Duration) {
	if op == OperationRefund {
		m.refundLatency.Record(ctx, d.Seconds())
		return
	}
	m.paymentLatency.Record(ctx, d.Seconds())
}
