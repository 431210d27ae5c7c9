package otel

import (
	"context"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"authcore/internal/telemetry"
	"authcore/internal/telemetry/domain"
)

const scopeName = "authcore.auth"

// recordEmitter is the subset of otellog.Logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.NopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(scopeName)}
}

// NewEventEmitterWithLogger returns an EventEmitter that writes to logger directly.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return telemetry.NopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record and emits it. Failures carry WARN severity.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetEventName(string(event.Type))
	rec.SetBody(otellog.StringValue(string(event.Type)))
	if event.Reason != "" {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	}

	add := func(k, v string) {
		if v != "" {
			rec.AddAttributes(otellog.String(k, v))
		}
	}
	add("event_type", string(event.Type))
	add("user_id", event.UserID)
	add("device_id", event.DeviceID)
	add("provider", event.Provider)
	add("reason", event.Reason)
	add("client_ip", event.IPAddress)
	add("user_agent", event.UserAgent)

	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add("meta."+k, event.Metadata[k])
	}

	e.logger.Emit(ctx, rec)
	return nil
}
