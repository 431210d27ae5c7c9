// Package telemetry carries authentication events and metrics to OpenTelemetry.
package telemetry

import (
	"context"
	"errors"

	"authcore/internal/telemetry/domain"
)

// EventEmitter emits authentication events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// NopEmitter discards events.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, *domain.Event) error { return nil }

// Multi returns an EventEmitter that sends every event to each non-nil emitter in order.
// All emitters run even if one fails; the errors are joined.
func Multi(emitters ...EventEmitter) EventEmitter {
	var out multiEmitter
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multiEmitter []EventEmitter

func (m multiEmitter) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
