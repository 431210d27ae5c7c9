// Package otel wires the authentication server's traces, metrics and auth event log to an
// OTLP/gRPC collector.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/zap"

	"authcore/internal/logger"
	"authcore/internal/telemetry"
)

// ServiceVersion is reported as service.version on every signal. Overridden at link time.
var ServiceVersion = "dev"

const metricInterval = 10 * time.Second

// Providers holds the OpenTelemetry providers and a shutdown function.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Shutdown       func(context.Context) error
}

// NewProviders builds the three providers. With an empty endpoint nothing is exported, but the
// MeterProvider still applies the auth instrument views so in-process readers see the same shape.
// endpoint is host:port or a URL whose path is ignored; https dials with TLS unless
// insecureOverride is set.
func NewProviders(ctx context.Context, endpoint, serviceName string, insecureOverride bool, log *zap.Logger) (*Providers, error) {
	log = logger.OrNop(log)
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  metric.NewMeterProvider(metricViews()...),
			LoggerProvider: sdklog.NewLoggerProvider(),
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	target, plaintext, err := collectorTarget(endpoint)
	if err != nil {
		return nil, err
	}
	plaintext = plaintext || insecureOverride
	res, err := serviceResource(serviceName)
	if err != nil {
		return nil, err
	}

	var stack shutdownStack
	fail := func(err error) (*Providers, error) {
		_ = stack.run(ctx, log)
		return nil, err
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if plaintext {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fail(fmt.Errorf("trace exporter: %w", err))
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	stack = append(stack, tp.Shutdown)

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if plaintext {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return fail(fmt.Errorf("metric exporter: %w", err))
	}
	mp := metric.NewMeterProvider(append(metricViews(),
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExp, metric.WithInterval(metricInterval))),
	)...)
	stack = append(stack, mp.Shutdown)

	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target)}
	if plaintext {
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}
	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		return fail(fmt.Errorf("log exporter: %w", err))
	}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)), sdklog.WithResource(res))
	stack = append(stack, lp.Shutdown)

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		LoggerProvider: lp,
		Shutdown:       func(ctx context.Context) error { return stack.run(ctx, log) },
	}, nil
}

// collectorTarget returns the host:port to dial and whether the scheme asks for plaintext.
// Bare addresses are treated as http.
func collectorTarget(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}

func serviceResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(ServiceVersion),
	))
}

// metricViews gives auth.duration sub-second buckets whatever the instrument was created with.
func metricViews() []metric.Option {
	return []metric.Option{metric.WithView(metric.NewView(
		metric.Instrument{Name: telemetry.DurationMetric},
		metric.Stream{Aggregation: metric.AggregationExplicitBucketHistogram{Boundaries: telemetry.DurationBuckets}},
	))}
}

// shutdownStack stops providers in reverse construction order.
type shutdownStack []func(context.Context) error

func (s shutdownStack) run(ctx context.Context, log *zap.Logger) error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i](ctx); err != nil {
			log.Warn("telemetry: shutdown", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetGlobal installs the TracerProvider and MeterProvider for instrumentation such as otelgrpc.
// The LoggerProvider is not made global; NewEventEmitter takes it explicitly.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}
