package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// DurationMetric is the auth latency histogram, in seconds.
const DurationMetric = "auth.duration"

// DurationBuckets are the auth.duration bucket bounds. Password logins are bcrypt-bound and land
// in the tens to hundreds of milliseconds.
var DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics holds the counters recorded by the authentication core. A nil *Metrics records nothing.
type Metrics struct {
	authAttempts   metric.Int64Counter
	authDuration   metric.Float64Histogram
	devicesCreated metric.Int64Counter
	keyRefreshes   metric.Int64Counter
}

// NewMetrics registers instruments on meter. A nil meter uses a no-op meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("authcore")
	}
	attempts, err1 := meter.Int64Counter("auth.attempts",
		metric.WithDescription("Authentication attempts by provider and outcome"))
	duration, err2 := meter.Float64Histogram(DurationMetric,
		metric.WithDescription("Authentication latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DurationBuckets...))
	devices, err3 := meter.Int64Counter("auth.devices.created",
		metric.WithDescription("Device records created on first login"))
	refreshes, err4 := meter.Int64Counter("auth.jwks.refreshes",
		metric.WithDescription("Trust-anchor refreshes by provider and result"))
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}
	return &Metrics{authAttempts: attempts, authDuration: duration, devicesCreated: devices, keyRefreshes: refreshes}, nil
}

// AuthAttempt records one finished attempt. reason is empty on success.
func (m *Metrics) AuthAttempt(ctx context.Context, provider, reason string, seconds float64) {
	if m == nil {
		return
	}
	outcome := "resolved"
	if reason != "" {
		outcome = "rejected"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	)
	m.authAttempts.Add(ctx, 1, attrs)
	m.authDuration.Record(ctx, seconds, attrs)
}

// DeviceCreated records a new device record.
func (m *Metrics) DeviceCreated(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.devicesCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// KeyRefresh records a trust-anchor fetch.
func (m *Metrics) KeyRefresh(ctx context.Context, provider string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.keyRefreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("result", result),
	))
}
