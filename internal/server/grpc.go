package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"authcore/internal/server/interceptors"
)

// Options holds the dependencies for the gRPC server.
type Options struct {
	// Authenticator resolves credentials on every non-public call. Required.
	Authenticator interceptors.Authenticator
	// Accounts backs AuthService. If nil, account RPCs return Unimplemented.
	Accounts Accounts
	// Events backs ListEvents. If nil, ListEvents returns Unimplemented.
	Events EventLister
	// Devices backs ListDevices. If nil, ListDevices returns Unimplemented.
	Devices DeviceLister
	// Health is served as grpc.health.v1.Health. If nil, a server reporting SERVING is used.
	Health *grpchealth.Server
	// Reflection registers the reflection service. Keep off in production.
	Reflection bool
	Logger     *zap.Logger
	// ServerOptions are appended after the defaults.
	ServerOptions []grpc.ServerOption
}

// PublicMethods are served without credentials.
var PublicMethods = map[string]bool{
	MethodRegister:                       true,
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
	healthpb.Health_List_FullMethodName:  true,
}

// quietMethods are not request-logged.
var quietMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_List_FullMethodName:  true,
}

// New builds a gRPC server with tracing, request logging and authentication, and registers
// AuthService, health and (optionally) reflection.
func New(opts Options) *grpc.Server {
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.TelemetryUnary(opts.Logger, quietMethods),
			interceptors.AuthUnary(opts.Authenticator, PublicMethods, opts.Logger),
		),
	}
	s := grpc.NewServer(append(serverOpts, opts.ServerOptions...)...)
	RegisterServices(s, opts)
	if opts.Reflection {
		reflection.Register(s)
	}
	return s
}

// RegisterServices registers AuthService and the health service with s.
func RegisterServices(s grpc.ServiceRegistrar, opts Options) {
	s.RegisterService(&authServiceDesc, NewAuthServer(opts.Accounts, opts.Events, opts.Devices))
	health := opts.Health
	if health == nil {
		health = grpchealth.NewServer()
	}
	healthpb.RegisterHealthServer(s, health)
}
