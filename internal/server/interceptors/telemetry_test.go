package interceptors

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"authcore/internal/logger"
)

func TestTelemetryUnary_LogsRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	interceptor := TelemetryUnary(zap.New(core), nil)

	_, err := interceptor(incoming("x-real-ip", "10.0.0.9"), "req", protected,
		func(ctx context.Context, req interface{}) (interface{}, error) {
			logger.From(ctx, nil).Info("inside handler")
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.ContextMap()["method"] != protected.FullMethod {
			t.Errorf("entry %q missing method field: %v", e.Message, e.ContextMap())
		}
	}
	last := entries[1].ContextMap()
	if last["code"] != codes.OK.String() || last["client_ip"] != "10.0.0.9" {
		t.Errorf("request log fields = %v", last)
	}
}

func TestTelemetryUnary_LogsFailureCode(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	interceptor := TelemetryUnary(zap.New(core), nil)

	_, err := interceptor(context.Background(), "req", protected,
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("error = %v, want passthrough", err)
	}
	entries := logs.FilterMessage("grpc request failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d failure entries, want 1", len(entries))
	}
	if entries[0].ContextMap()["code"] != codes.Unauthenticated.String() {
		t.Errorf("code = %v", entries[0].ContextMap()["code"])
	}
}

func TestTelemetryUnary_SkipMethods(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	method := "/grpc.health.v1.Health/Check"
	interceptor := TelemetryUnary(zap.New(core), map[string]bool{method: true})

	_, _ = interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: method},
		func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil })
	if logs.Len() != 0 {
		t.Errorf("skipped method logged %d entries", logs.Len())
	}
}
