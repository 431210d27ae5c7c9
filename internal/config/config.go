// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production"). Selects the log encoder.
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the minimum log level: debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StoreDriver selects the persistence backend: "postgres" (default) or "sqlite".
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// DatabaseURL is the Postgres DSN; required when StoreDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SQLitePath is the SQLite database file; required when StoreDriver is sqlite.
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	// BcryptCost is the bcrypt work factor (4–31). Each +1 doubles verification time; the default 12
	// costs roughly 100–300ms per verify on commodity hardware.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// HashConcurrency bounds concurrent bcrypt operations. 0 means GOMAXPROCS.
	HashConcurrency int `mapstructure:"HASH_CONCURRENCY"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file used to sign local session tokens.
	// When empty, password logins succeed without a session token and LOCAL bearer tokens are rejected.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of local session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of local session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTLRaw is the local session token lifetime (e.g. "12h").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`

	// Auth0Domain enables the AUTH0 provider when set (e.g. "tenant.eu.auth0.com").
	Auth0Domain string `mapstructure:"AUTH0_DOMAIN"`
	// Auth0Issuer overrides the expected iss claim; defaults to https://<AUTH0_DOMAIN>/.
	Auth0Issuer string `mapstructure:"AUTH0_ISSUER"`
	// Auth0Audience is the expected aud claim (API identifier); required when AUTH0_DOMAIN is set.
	Auth0Audience string `mapstructure:"AUTH0_AUDIENCE"`
	// Auth0JWKSURL overrides the key endpoint; defaults to <issuer>.well-known/jwks.json.
	Auth0JWKSURL string `mapstructure:"AUTH0_JWKS_URL"`
	// JWKSRefreshRaw is how long fetched keys are considered fresh (e.g. "10m").
	JWKSRefreshRaw string `mapstructure:"JWKS_REFRESH_INTERVAL"`
	// JWKSMinRefreshRaw is the minimum gap between forced refreshes after a kid miss (e.g. "30s").
	JWKSMinRefreshRaw string `mapstructure:"JWKS_MIN_REFRESH_INTERVAL"`
	// JWTLeewayRaw is the clock skew tolerated on exp/nbf/iat of external tokens.
	JWTLeewayRaw string `mapstructure:"JWT_LEEWAY"`

	// AutoProvision creates an account for a verified external identity with no linked user.
	// Default false: such identities are rejected as unlinked.
	AutoProvision bool `mapstructure:"AUTO_PROVISION"`
	// RequireVerifiedEmail rejects local logins for unverified credentials and limits auto-provisioning
	// to identities whose email the provider marked verified.
	RequireVerifiedEmail bool `mapstructure:"REQUIRE_VERIFIED_EMAIL"`
	// LinkPolicyFile is an optional Rego file replacing the built-in linking policy.
	LinkPolicyFile string `mapstructure:"LINK_POLICY_FILE"`
	// LinkCacheTTLRaw is how long (provider, subject) → user id mappings are cached.
	LinkCacheTTLRaw string `mapstructure:"LINK_CACHE_TTL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	// HealthCheckRaw is the readiness probe interval.
	HealthCheckRaw string `mapstructure:"HEALTH_CHECK_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "data/authcore.db")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("HASH_CONCURRENCY", 0)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "authcore")
	v.SetDefault("JWT_AUDIENCE", "authcore-api")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("AUTH0_DOMAIN", "")
	v.SetDefault("AUTH0_ISSUER", "")
	v.SetDefault("AUTH0_AUDIENCE", "")
	v.SetDefault("AUTH0_JWKS_URL", "")
	v.SetDefault("JWKS_REFRESH_INTERVAL", "10m")
	v.SetDefault("JWKS_MIN_REFRESH_INTERVAL", "30s")
	v.SetDefault("JWT_LEEWAY", "30s")
	v.SetDefault("AUTO_PROVISION", false)
	v.SetDefault("REQUIRE_VERIFIED_EMAIL", false)
	v.SetDefault("LINK_POLICY_FILE", "")
	v.SetDefault("LINK_CACHE_TTL", "5m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "authcore")
	v.SetDefault("HEALTH_CHECK_INTERVAL", "15s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverSQLite:
	default:
		return nil, fmt.Errorf("config: STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverSQLite, cfg.StoreDriver)
	}
	if cfg.StoreDriver == StoreDriverSQLite && strings.TrimSpace(cfg.SQLitePath) == "" {
		return nil, errors.New("config: SQLITE_PATH must be set when STORE_DRIVER=sqlite")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.HashConcurrency < 0 {
		return nil, errors.New("config: HASH_CONCURRENCY must not be negative")
	}

	if (cfg.JWTPrivateKey == "") != (cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}

	cfg.Auth0Domain = strings.TrimSpace(cfg.Auth0Domain)
	if cfg.Auth0Enabled() && strings.TrimSpace(cfg.Auth0Audience) == "" {
		return nil, errors.New("config: AUTH0_AUDIENCE must be set when AUTH0_DOMAIN is set")
	}

	return &cfg, nil
}

// Auth0Enabled reports whether the AUTH0 provider should be registered.
func (c *Config) Auth0Enabled() bool {
	return c != nil && c.Auth0Domain != ""
}

// Auth0IssuerURL returns the expected iss claim for AUTH0 tokens. Auth0 issuers end with a slash.
func (c *Config) Auth0IssuerURL() string {
	if c.Auth0Issuer != "" {
		return c.Auth0Issuer
	}
	if c.Auth0Domain == "" {
		return ""
	}
	d := strings.TrimSuffix(c.Auth0Domain, "/")
	if !strings.Contains(d, "://") {
		d = "https://" + d
	}
	return d + "/"
}

// Auth0KeysURL returns the JWKS endpoint for AUTH0.
func (c *Config) Auth0KeysURL() string {
	if c.Auth0JWKSURL != "" {
		return c.Auth0JWKSURL
	}
	iss := c.Auth0IssuerURL()
	if iss == "" {
		return ""
	}
	return strings.TrimSuffix(iss, "/") + "/.well-known/jwks.json"
}

// HashWorkers returns the bcrypt offload bound, defaulting to GOMAXPROCS.
func (c *Config) HashWorkers() int {
	if c.HashConcurrency > 0 {
		return c.HashConcurrency
	}
	return runtime.GOMAXPROCS(0)
}

// SessionTTL parses SessionTTLRaw. Returns 12h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionTTLRaw, 12*time.Hour)
}

// JWKSRefreshInterval parses JWKSRefreshRaw. Returns 10m if unset or invalid.
func (c *Config) JWKSRefreshInterval() time.Duration {
	return parseDuration(c.JWKSRefreshRaw, 10*time.Minute)
}

// JWKSMinRefreshInterval parses JWKSMinRefreshRaw. Returns 30s if unset or invalid.
func (c *Config) JWKSMinRefreshInterval() time.Duration {
	return parseDuration(c.JWKSMinRefreshRaw, 30*time.Second)
}

// JWTLeeway parses JWTLeewayRaw. Returns 30s if unset or invalid; 0 is allowed.
func (c *Config) JWTLeeway() time.Duration {
	d, err := time.ParseDuration(c.JWTLeewayRaw)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

// LinkCacheTTL parses LinkCacheTTLRaw. Returns 5m if unset or invalid.
func (c *Config) LinkCacheTTL() time.Duration {
	return parseDuration(c.LinkCacheTTLRaw, 5*time.Minute)
}

// HealthCheckInterval parses HealthCheckRaw. Returns 15s if unset or invalid.
func (c *Config) HealthCheckInterval() time.Duration {
	return parseDuration(c.HealthCheckRaw, 15*time.Second)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
