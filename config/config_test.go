package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AndresRodriguez-98/BibliotecaApi/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090

database:
  driver: "postgres"
  dsn: "postgres://localhost/biblioteca?sslmode=disable"

admission:
  header: "X-Library-Key"
  free_daily_quota: 25
  serialize: "local"

billing:
  rate: "0.75"
  due_days: 30
  interval: 1h
  enabled: false

catalog:
  upstream_url: "http://catalog:9000"
  timeout: 5s

auth:
  jwt_secret: "test-secret"
  issuer: "library"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr = %s, want 127.0.0.1:9090", cfg.Server.Addr())
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %s, want postgres", cfg.Database.Driver)
	}
	if cfg.Admission.Header != "X-Library-Key" {
		t.Errorf("Admission.Header = %s", cfg.Admission.Header)
	}
	if cfg.Admission.FreeDailyQuota != 25 {
		t.Errorf("FreeDailyQuota = %d, want 25", cfg.Admission.FreeDailyQuota)
	}
	if cfg.Admission.Serialize != config.SerializeLocal {
		t.Errorf("Serialize = %s, want local", cfg.Admission.Serialize)
	}
	if !cfg.Billing.RateDecimal().Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("Billing.Rate = %s, want 0.75", cfg.Billing.RateDecimal())
	}
	if cfg.Billing.DueDays != 30 {
		t.Errorf("Billing.DueDays = %d, want 30", cfg.Billing.DueDays)
	}
	if cfg.Billing.Interval != time.Hour {
		t.Errorf("Billing.Interval = %v, want 1h", cfg.Billing.Interval)
	}
	if cfg.Billing.SchedulerEnabled() {
		t.Error("billing scheduler should be disabled")
	}
	if cfg.Catalog.UpstreamURL != "http://catalog:9000" || cfg.Catalog.Timeout != 5*time.Second {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.Auth.Issuer != "library" {
		t.Errorf("Auth.Issuer = %s, want library", cfg.Auth.Issuer)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, validConfig())

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "biblioteca.db" {
		t.Errorf("default Database = %+v", cfg.Database)
	}
	if cfg.Admission.Header != "X-Api-Key" {
		t.Errorf("default Admission.Header = %s, want X-Api-Key", cfg.Admission.Header)
	}
	if cfg.Admission.FreeDailyQuota != config.DefaultFreeDailyQuota {
		t.Errorf("default FreeDailyQuota = %d, want %d", cfg.Admission.FreeDailyQuota, config.DefaultFreeDailyQuota)
	}
	if cfg.Admission.Serialize != config.SerializeNone {
		t.Errorf("default Serialize = %s, want none", cfg.Admission.Serialize)
	}
	if !cfg.Billing.RateDecimal().Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("default Billing.Rate = %s, want 0.5", cfg.Billing.Rate)
	}
	if cfg.Billing.DueDays != 60 {
		t.Errorf("default Billing.DueDays = %d, want 60", cfg.Billing.DueDays)
	}
	if cfg.Billing.Interval != 24*time.Hour {
		t.Errorf("default Billing.Interval = %v, want 24h", cfg.Billing.Interval)
	}
	if !cfg.Billing.SchedulerEnabled() {
		t.Error("billing scheduler should default to enabled")
	}
	if !cfg.Metrics.IsEnabled() || cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics = %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_CATALOG_URL", "http://env-test:3000")

	content := validConfig() + `
catalog:
  upstream_url: "${TEST_CATALOG_URL}"
`

	cfg := writeAndLoad(t, content)

	if cfg.Catalog.UpstreamURL != "http://env-test:3000" {
		t.Errorf("Catalog.UpstreamURL = %s, want http://env-test:3000", cfg.Catalog.UpstreamURL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			content: "server:\n  port: 8080\n",
			wantErr: "auth.jwt_secret",
		},
		{
			name:    "unknown driver",
			content: validConfig() + "database:\n  driver: mysql\n",
			wantErr: "database.driver",
		},
		{
			name:    "postgres without dsn",
			content: validConfig() + "database:\n  driver: postgres\n",
			wantErr: "database.dsn",
		},
		{
			name:    "negative quota",
			content: validConfig() + "admission:\n  free_daily_quota: -1\n",
			wantErr: "free_daily_quota",
		},
		{
			name:    "unknown serialize mode",
			content: validConfig() + "admission:\n  serialize: etcd\n",
			wantErr: "admission.serialize",
		},
		{
			name:    "redis serialize without addr",
			content: validConfig() + "admission:\n  serialize: redis\n",
			wantErr: "redis.addr",
		},
		{
			name:    "rate not a number",
			content: validConfig() + "billing:\n  rate: cheap\n",
			wantErr: "billing.rate",
		},
		{
			name:    "zero rate",
			content: validConfig() + "billing:\n  rate: \"0\"\n",
			wantErr: "billing.rate",
		},
		{
			name:    "bad log format",
			content: validConfig() + "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := config.Load(writeConfig(t, "server: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("BIBLIOTECA_SERVER_PORT", "9999")
	t.Setenv("BIBLIOTECA_ADMISSION_FREE_QUOTA", "7")
	t.Setenv("BIBLIOTECA_BILLING_ENABLED", "no")
	t.Setenv("BIBLIOTECA_METRICS_ENABLED", "0")
	t.Setenv("BIBLIOTECA_LOG_LEVEL", "debug")

	content := validConfig() + `
server:
  port: 8081
admission:
  free_daily_quota: 50
`
	cfg := writeAndLoad(t, content)

	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999 (env override)", cfg.Server.Port)
	}
	if cfg.Admission.FreeDailyQuota != 7 {
		t.Errorf("FreeDailyQuota = %d, want 7 (env override)", cfg.Admission.FreeDailyQuota)
	}
	if cfg.Billing.SchedulerEnabled() {
		t.Error("BIBLIOTECA_BILLING_ENABLED=no should disable the scheduler")
	}
	if cfg.Metrics.IsEnabled() {
		t.Error("BIBLIOTECA_METRICS_ENABLED=0 should disable metrics")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("BIBLIOTECA_SERVER_PORT", "not-a-port")
	t.Setenv("BIBLIOTECA_BILLING_INTERVAL", "daily")

	cfg := writeAndLoad(t, validConfig())

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Billing.Interval != 24*time.Hour {
		t.Errorf("Interval = %v, want default 24h", cfg.Billing.Interval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BIBLIOTECA_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("BIBLIOTECA_DATABASE_DSN", ":memory:")
	t.Setenv("BIBLIOTECA_ADMISSION_SERIALIZE", "redis")
	t.Setenv("BIBLIOTECA_REDIS_ADDR", "localhost:6379")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %s", cfg.Auth.JWTSecret)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("DSN = %s", cfg.Database.DSN)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.LockTTL != 2*time.Second {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("file exists", func(t *testing.T) {
		cfg, err := config.LoadWithFallback(writeConfig(t, validConfig()))
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Auth.JWTSecret != "test-secret" {
			t.Errorf("JWTSecret = %s", cfg.Auth.JWTSecret)
		}
	})

	t.Run("env only", func(t *testing.T) {
		t.Setenv("BIBLIOTECA_AUTH_JWT_SECRET", "env-secret")
		if !config.HasEnvConfig() {
			t.Fatal("HasEnvConfig = false")
		}
		if _, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "none.yaml")); err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
	})

	t.Run("nothing", func(t *testing.T) {
		t.Setenv("BIBLIOTECA_AUTH_JWT_SECRET", "")
		if _, err := config.LoadWithFallback(""); err == nil {
			t.Error("expected error with no config")
		}
	})
}

// Helpers

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "biblioteca.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func validConfig() string {
	return `
auth:
  jwt_secret: "test-secret"
`
}
