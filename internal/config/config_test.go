package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreDriverPostgres)
	}
	if cfg.JWTIssuer != "authcore" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "authcore")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.AutoProvision {
		t.Error("AutoProvision should default to false")
	}
	if cfg.Auth0Enabled() {
		t.Error("Auth0 should be disabled without AUTH0_DOMAIN")
	}
	if cfg.SessionTTL() != 12*time.Hour {
		t.Errorf("SessionTTL = %v, want 12h", cfg.SessionTTL())
	}
	if cfg.JWKSRefreshInterval() != 10*time.Minute {
		t.Errorf("JWKSRefreshInterval = %v, want 10m", cfg.JWKSRefreshInterval())
	}
	if cfg.LinkCacheTTL() != 5*time.Minute {
		t.Errorf("LinkCacheTTL = %v, want 5m", cfg.LinkCacheTTL())
	}
	if cfg.HashWorkers() < 1 {
		t.Errorf("HashWorkers = %d, want >= 1", cfg.HashWorkers())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("HASH_CONCURRENCY", "3")
	os.Setenv("AUTO_PROVISION", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.HashWorkers() != 3 {
		t.Errorf("HashWorkers = %d, want 3", cfg.HashWorkers())
	}
	if !cfg.AutoProvision {
		t.Error("AutoProvision = false, want true")
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	for _, cost := range []string{"3", "32"} {
		os.Clearenv()
		os.Setenv("BCRYPT_COST", cost)
		if _, err := Load(); err == nil {
			t.Errorf("Load with BCRYPT_COST=%s: want error", cost)
		}
	}
}

func TestLoad_InvalidStoreDriver(t *testing.T) {
	os.Clearenv()
	os.Setenv("STORE_DRIVER", "mongo")
	if _, err := Load(); err == nil {
		t.Fatal("Load with unknown STORE_DRIVER: want error")
	}
}

func TestLoad_SQLiteDriver(t *testing.T) {
	os.Clearenv()
	os.Setenv("STORE_DRIVER", "SQLite")
	os.Setenv("SQLITE_PATH", "/tmp/authcore-test.db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDriver != StoreDriverSQLite {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreDriverSQLite)
	}
}

func TestLoad_JWTKeysMustBePaired(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_PRIVATE_KEY", "/keys/private.pem")
	if _, err := Load(); err == nil {
		t.Fatal("Load with only JWT_PRIVATE_KEY: want error")
	}
}

func TestLoad_Auth0RequiresAudience(t *testing.T) {
	os.Clearenv()
	os.Setenv("AUTH0_DOMAIN", "tenant.auth0.com")
	if _, err := Load(); err == nil {
		t.Fatal("Load with AUTH0_DOMAIN but no AUTH0_AUDIENCE: want error")
	}
}

func TestConfig_Auth0URLs(t *testing.T) {
	os.Clearenv()
	os.Setenv("AUTH0_DOMAIN", "tenant.auth0.com")
	os.Setenv("AUTH0_AUDIENCE", "https://api.example.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Auth0Enabled() {
		t.Fatal("Auth0Enabled = false, want true")
	}
	if got := cfg.Auth0IssuerURL(); got != "https://tenant.auth0.com/" {
		t.Errorf("Auth0IssuerURL = %q", got)
	}
	if got := cfg.Auth0KeysURL(); got != "https://tenant.auth0.com/.well-known/jwks.json" {
		t.Errorf("Auth0KeysURL = %q", got)
	}

	cfg.Auth0JWKSURL = "http://localhost:9999/keys"
	if got := cfg.Auth0KeysURL(); got != "http://localhost:9999/keys" {
		t.Errorf("Auth0KeysURL override = %q", got)
	}
}

func TestConfig_DurationFallbacks(t *testing.T) {
	cfg := &Config{
		SessionTTLRaw:     "not-a-duration",
		JWKSRefreshRaw:    "-5m",
		JWKSMinRefreshRaw: "",
		JWTLeewayRaw:      "0s",
		LinkCacheTTLRaw:   "1m",
	}
	if cfg.SessionTTL() != 12*time.Hour {
		t.Errorf("SessionTTL = %v, want 12h", cfg.SessionTTL())
	}
	if cfg.JWKSRefreshInterval() != 10*time.Minute {
		t.Errorf("JWKSRefreshInterval = %v, want 10m", cfg.JWKSRefreshInterval())
	}
	if cfg.JWKSMinRefreshInterval() != 30*time.Second {
		t.Errorf("JWKSMinRefreshInterval = %v, want 30s", cfg.JWKSMinRefreshInterval())
	}
	if cfg.JWTLeeway() != 0 {
		t.Errorf("JWTLeeway = %v, want 0", cfg.JWTLeeway())
	}
	if cfg.LinkCacheTTL() != time.Minute {
		t.Errorf("LinkCacheTTL = %v, want 1m", cfg.LinkCacheTTL())
	}
}

func TestConfig_IsProduction(t *testing.T) {
	if !(&Config{Env: "production"}).IsProduction() {
		t.Error("production should be production")
	}
	if (&Config{Env: "development"}).IsProduction() {
		t.Error("development should not be production")
	}
}
