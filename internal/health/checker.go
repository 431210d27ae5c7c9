// Package health reports readiness through the standard gRPC health service.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"authcore/internal/logger"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "authcore.v1.AuthService"

const checkTimeout = 3 * time.Second

// Pinger checks the database connection (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks the policy engine (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker probes dependencies and publishes the result on a grpc health server.
type Checker struct {
	srv      *grpchealth.Server
	pinger   Pinger
	policy   PolicyChecker
	interval time.Duration
	log      *zap.Logger
}

// NewChecker returns a Checker. pinger and policy may be nil to skip that probe.
func NewChecker(srv *grpchealth.Server, pinger Pinger, policy PolicyChecker, interval time.Duration, log *zap.Logger) *Checker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Checker{srv: srv, pinger: pinger, policy: policy, interval: interval, log: logger.OrNop(log)}
}

// Check runs every probe once and publishes the status. Probe failures never return an error; they
// turn the status to NOT_SERVING.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			c.log.Warn("health: database ping failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			c.log.Warn("health: policy engine check failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	c.srv.SetServingStatus("", status)
	c.srv.SetServingStatus(ServiceName, status)
	return status
}

// Run checks immediately and then every interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}
