package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"authcore/internal/logger"
	"authcore/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after gRPC GracefulStop before shutting down OTel providers,
// so in-flight async telemetry emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Errors are logged with the logger carried by ctx.
//
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine uses a fresh context so request cancellation does not abort an in-flight emit.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	log := logger.From(ctx, nil)
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Warn("telemetry: async emit failed", zap.String("event", string(event.Type)), zap.Error(err))
		}
	}()
}
