package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attr attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if attr.Key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attr.Key); ok && v.Emit() == attr.Value.Emit() {
			total += dp.Value
		}
	}
	return total
}

func TestOTelMetrics(t *testing.T) {
	// Arrange
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewOTelMetrics(provider.Meter("mintguard-test"))
	require.NoError(t, err)
	ctx := context.Background()

	// Act
	m.Succeeded(ctx, OperationPay)
	m.Succeeded(ctx, OperationRefund)
	m.IdempotencyHit(ctx, OperationPay)
	m.IdempotencyHit(ctx, OperationPay)
	m.IdempotencyConflict(ctx, OperationRefund)
	m.IdempotencyInFlight(ctx, OperationPay)
	m.Failed(ctx, OperationPay, "409_conflict")
	m.Failed(ctx, OperationRefund, "400")
	m.ObserveLatency(ctx, OperationPay, 120*time.Millisecond)

	// Assert
	got := collect(t, reader)
	none := attribute.KeyValue{}
	assert.Equal(t, int64(1), sumFor(t, got["payments_total"], none))
	assert.Equal(t, int64(1), sumFor(t, got["refunds_total"], none))
	assert.Equal(t, int64(2), sumFor(t, got["idempotency_hits_total"], attribute.String("endpoint", "pay")))
	assert.Equal(t, int64(1), sumFor(t, got["idempotency_conflicts_total"], attribute.String("endpoint", "refund")))
	assert.Equal(t, int64(1), sumFor(t, got["idempotency_inflight_total"], attribute.String("endpoint", "pay")))
	assert.Equal(t, int64(1), sumFor(t, got["payment_errors_total"], attribute.String("type", "409_conflict")))
	assert.Equal(t, int64(1), sumFor(t, got["refund_errors_total"], attribute.String("type", "400")))

	hist, ok := got["payment_latency_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestCoordinatorRecordsThroughOTel(t *testing.T) {
	// Arrange
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewOTelMetrics(provider.Meter("mintguard-test"))
	require.NoError(t, err)

	s := newScenario()
	c := NewCoordinator(s.store, s.mutator, WithTransactor(s.store), WithClock(s.clock), WithMetrics(m), WithLogger(quietLogger()))
	order := s.store.addOrder(1200)
	ctx := context.Background()

	// Act
	_, err = c.Pay(ctx, order.ID, "abc")
	require.NoError(t, err)
	_, err = c.Pay(ctx, order.ID, "abc")
	require.NoError(t, err)

	// Assert
	got := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, got["payments_total"], attribute.KeyValue{}))
	assert.Equal(t, int64(1), sumFor(t, got["idempotency_hits_total"], attribute.String("endpoint", "pay")))
}
