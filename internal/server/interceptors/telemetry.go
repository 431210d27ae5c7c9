package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"authcore/internal/logger"
)

// TelemetryUnary returns a unary server interceptor that puts a request-scoped logger in the
// context and logs one line per RPC. skipMethods is the set of full method names not to log
// (e.g. health checks); they still get the scoped logger.
func TelemetryUnary(log *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	log = logger.OrNop(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		reqLog := log.With(zap.String("method", info.FullMethod))
		ctx = logger.ToContext(ctx, reqLog)
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		fields := []zap.Field{
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", ClientIP(ctx)),
		}
		if err != nil {
			reqLog.Info("grpc request failed", append(fields, zap.Error(err))...)
		} else {
			reqLog.Info("grpc request", fields...)
		}
		return resp, err
	}
}
