package telemetry

import (
	"context"
	"errors"
	"testing"

	"authcore/internal/telemetry/domain"
)

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	a := &mockEventEmitter{emitErr: errA}
	b := &mockEventEmitter{}
	m := Multi(a, nil, b)

	ev := &domain.Event{Type: domain.EventLoginFailed}
	err := m.Emit(context.Background(), ev)
	if !errors.Is(err, errA) {
		t.Errorf("err = %v, want it to wrap %v", err, errA)
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Errorf("events: a=%d b=%d, want 1 each", len(a.getEvents()), len(b.getEvents()))
	}
	if b.getEvents()[0] != ev {
		t.Error("second emitter should receive the same event after the first failed")
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := Multi().Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("Emit = %v", err)
	}
}
