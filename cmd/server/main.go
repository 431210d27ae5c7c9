package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"

	"authcore/internal/audit"
	"authcore/internal/config"
	devicesvc "authcore/internal/device/service"
	"authcore/internal/health"
	"authcore/internal/identity/domain"
	"authcore/internal/identity/provider"
	identitysvc "authcore/internal/identity/service"
	"authcore/internal/logger"
	"authcore/internal/policy/engine"
	"authcore/internal/security"
	"authcore/internal/server"
	"authcore/internal/store"
	"authcore/internal/telemetry"
	telemetryotel "authcore/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log := logger.New(logger.Config{Env: cfg.Env, Level: cfg.LogLevel, ServiceName: cfg.ServiceName})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure, log)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider.Meter("authcore"))
	if err != nil {
		return err
	}

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	emitter := telemetry.Multi(
		telemetryotel.NewEventEmitter(providers.LoggerProvider),
		audit.NewLogger(st.Audit),
	)

	hasher := security.NewHasher(cfg.BcryptCost, cfg.HashWorkers())
	var tokens *security.TokenProvider
	if cfg.JWTPrivateKey != "" {
		signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return err
		}
		tokens = security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL(), cfg.JWTLeeway())
	} else {
		log.Warn("JWT keys not configured; password logins will not receive session tokens")
	}
	local := provider.NewLocalProvider(st.Identities, hasher, tokens, cfg.RequireVerifiedEmail, log)

	var federated []provider.Provider
	if cfg.Auth0Enabled() {
		keys := provider.NewKeySet(cfg.Auth0KeysURL(),
			provider.WithRefreshInterval(cfg.JWKSRefreshInterval()),
			provider.WithMinRefreshInterval(cfg.JWKSMinRefreshInterval()),
			provider.WithKeySetMetrics(metrics, string(domain.ProviderAuth0)),
			provider.WithKeySetLogger(log),
		)
		federated = append(federated, provider.NewAuth0Provider(keys, provider.Auth0Config{
			Issuer:   cfg.Auth0IssuerURL(),
			Audience: cfg.Auth0Audience,
			Leeway:   cfg.JWTLeeway(),
		}, log))
		log.Info("AUTH0 provider enabled", zap.String("issuer", cfg.Auth0IssuerURL()))
	}

	policySrc := engine.DefaultLinkPolicy
	if cfg.LinkPolicyFile != "" {
		if policySrc, err = engine.LoadPolicyFile(cfg.LinkPolicyFile); err != nil {
			return err
		}
	}
	policy, err := engine.NewOPAEvaluator(ctx, policySrc, engine.LinkSettings{
		AutoProvision:        cfg.AutoProvision,
		RequireVerifiedEmail: cfg.RequireVerifiedEmail,
	}, log)
	if err != nil {
		return err
	}

	tracker := devicesvc.NewTracker(st.Devices, devicesvc.WithLogger(log))
	resolver, err := identitysvc.NewResolver(identitysvc.Deps{
		Local:      local,
		Federated:  federated,
		Users:      st.Users,
		Identities: st.Identities,
		Devices:    tracker,
		Hasher:     hasher,
		Policy:     policy,
	},
		identitysvc.WithLinkCacheTTL(cfg.LinkCacheTTL()),
		identitysvc.WithEmitter(emitter),
		identitysvc.WithMetrics(metrics),
		identitysvc.WithLogger(log),
	)
	if err != nil {
		return err
	}

	healthSrv := grpchealth.NewServer()
	checker := health.NewChecker(healthSrv, st.DB, policy, cfg.HealthCheckInterval(), log)
	go checker.Run(ctx)

	srv := server.New(server.Options{
		Authenticator: resolver,
		Accounts:      resolver,
		Events:        st.Audit,
		Devices:       tracker,
		Health:        healthSrv,
		Reflection:    !cfg.IsProduction(),
		Logger:        log,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("gRPC server listening",
			zap.String("addr", cfg.GRPCAddr),
			zap.Any("providers", resolver.Providers()),
			zap.String("store", cfg.StoreDriver),
		)
		serveErr <- srv.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down gRPC server")
	healthSrv.Shutdown()
	srv.GracefulStop()
	// Let in-flight async telemetry emits finish before the exporters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("telemetry shutdown", zap.Error(err))
	}
	log.Info("gRPC server stopped")
	return nil
}
