// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "biblioteca.yaml"

// DefaultFreeDailyQuota is the free-tier daily request limit.
const DefaultFreeDailyQuota = 100

// Serialization modes for the free-tier quota check.
const (
	SerializeNone  = "none"
	SerializeLocal = "local"
	SerializeRedis = "redis"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Admission AdmissionConfig `yaml:"admission"`
	Redis     RedisConfig     `yaml:"redis"`
	Billing   BillingConfig   `yaml:"billing"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// AdmissionConfig configures API key admission.
type AdmissionConfig struct {
	Header         string `yaml:"header"`
	FreeDailyQuota int    `yaml:"free_daily_quota"`
	Serialize      string `yaml:"serialize"` // "none", "local" or "redis"
}

// RedisConfig configures the shared lock used by serialize: redis.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	LockWait time.Duration `yaml:"lock_wait"`
}

// BillingConfig configures invoicing and the billing scheduler.
type BillingConfig struct {
	Rate     string        `yaml:"rate"` // decimal amount per paid request
	DueDays  int           `yaml:"due_days"`
	Interval time.Duration `yaml:"interval"`
	Enabled  *bool         `yaml:"enabled,omitempty"`
}

// RateDecimal returns the configured rate. Load has already validated it.
func (b BillingConfig) RateDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(b.Rate)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SchedulerEnabled reports whether the billing scheduler runs in serve.
func (b BillingConfig) SchedulerEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// CatalogConfig configures the upstream catalog service.
type CatalogConfig struct {
	UpstreamURL string        `yaml:"upstream_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// AuthConfig configures bearer tokens for the management API.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path"`
}

// IsEnabled reports whether /metrics is served. It defaults to true.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	BIBLIOTECA_SERVER_HOST              - Server host (default: 0.0.0.0)
//	BIBLIOTECA_SERVER_PORT              - Server port (default: 8080)
//	BIBLIOTECA_DATABASE_DRIVER          - sqlite or postgres (default: sqlite)
//	BIBLIOTECA_DATABASE_DSN             - Database DSN (default: biblioteca.db)
//	BIBLIOTECA_ADMISSION_HEADER         - API key header (default: X-Api-Key)
//	BIBLIOTECA_ADMISSION_FREE_QUOTA     - Free daily quota (default: 100)
//	BIBLIOTECA_ADMISSION_SERIALIZE      - none, local or redis (default: none)
//	BIBLIOTECA_REDIS_ADDR               - Redis address for serialize: redis
//	BIBLIOTECA_BILLING_RATE             - Amount per paid request (default: 0.5)
//	BIBLIOTECA_BILLING_ENABLED          - Run the billing scheduler (default: true)
//	BIBLIOTECA_CATALOG_UPSTREAM_URL     - Catalog service URL
//	BIBLIOTECA_AUTH_JWT_SECRET          - Management API signing secret (required)
//	BIBLIOTECA_LOG_LEVEL                - debug, info, warn, error (default: info)
//	BIBLIOTECA_LOG_FORMAT               - json or console (default: json)
//	BIBLIOTECA_METRICS_ENABLED          - Serve /metrics (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads the file if it exists, otherwise the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide %s or set BIBLIOTECA_AUTH_JWT_SECRET", DefaultPath)
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("BIBLIOTECA_AUTH_JWT_SECRET") != ""
}

// applyEnvOverrides applies BIBLIOTECA_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	envString("BIBLIOTECA_SERVER_HOST", &cfg.Server.Host)
	envInt("BIBLIOTECA_SERVER_PORT", &cfg.Server.Port)
	envDuration("BIBLIOTECA_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("BIBLIOTECA_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)

	envString("BIBLIOTECA_DATABASE_DRIVER", &cfg.Database.Driver)
	envString("BIBLIOTECA_DATABASE_DSN", &cfg.Database.DSN)

	envString("BIBLIOTECA_ADMISSION_HEADER", &cfg.Admission.Header)
	envInt("BIBLIOTECA_ADMISSION_FREE_QUOTA", &cfg.Admission.FreeDailyQuota)
	envString("BIBLIOTECA_ADMISSION_SERIALIZE", &cfg.Admission.Serialize)

	envString("BIBLIOTECA_REDIS_ADDR", &cfg.Redis.Addr)
	envString("BIBLIOTECA_REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("BIBLIOTECA_REDIS_DB", &cfg.Redis.DB)

	envString("BIBLIOTECA_BILLING_RATE", &cfg.Billing.Rate)
	envInt("BIBLIOTECA_BILLING_DUE_DAYS", &cfg.Billing.DueDays)
	envDuration("BIBLIOTECA_BILLING_INTERVAL", &cfg.Billing.Interval)
	envBool("BIBLIOTECA_BILLING_ENABLED", &cfg.Billing.Enabled)

	envString("BIBLIOTECA_CATALOG_UPSTREAM_URL", &cfg.Catalog.UpstreamURL)
	envDuration("BIBLIOTECA_CATALOG_TIMEOUT", &cfg.Catalog.Timeout)

	envString("BIBLIOTECA_AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	envString("BIBLIOTECA_AUTH_ISSUER", &cfg.Auth.Issuer)

	envString("BIBLIOTECA_LOG_LEVEL", &cfg.Logging.Level)
	envString("BIBLIOTECA_LOG_FORMAT", &cfg.Logging.Format)

	envBool("BIBLIOTECA_METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString("BIBLIOTECA_METRICS_PATH", &cfg.Metrics.Path)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// envInt ignores values that do not parse.
func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(name string, dst **bool) {
	if v := os.Getenv(name); v != "" {
		b := parseBool(v)
		*dst = &b
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "biblioteca.db"
	}

	if cfg.Admission.Header == "" {
		cfg.Admission.Header = "X-Api-Key"
	}
	if cfg.Admission.FreeDailyQuota == 0 {
		cfg.Admission.FreeDailyQuota = DefaultFreeDailyQuota
	}
	if cfg.Admission.Serialize == "" {
		cfg.Admission.Serialize = SerializeNone
	}

	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 2 * time.Second
	}
	if cfg.Redis.LockWait == 0 {
		cfg.Redis.LockWait = time.Second
	}

	if cfg.Billing.Rate == "" {
		cfg.Billing.Rate = "0.5"
	}
	if cfg.Billing.DueDays == 0 {
		cfg.Billing.DueDays = 60
	}
	if cfg.Billing.Interval == 0 {
		cfg.Billing.Interval = 24 * time.Hour
	}

	if cfg.Catalog.Timeout == 0 {
		cfg.Catalog.Timeout = 30 * time.Second
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "biblioteca"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"sqlite": true, "postgres": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'postgres', got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", cfg.Database.Driver)
	}

	if cfg.Admission.FreeDailyQuota < 0 {
		return fmt.Errorf("admission.free_daily_quota must not be negative, got %d", cfg.Admission.FreeDailyQuota)
	}
	validSerialize := map[string]bool{SerializeNone: true, SerializeLocal: true, SerializeRedis: true}
	if !validSerialize[cfg.Admission.Serialize] {
		return fmt.Errorf("admission.serialize must be one of: none, local, redis, got %q", cfg.Admission.Serialize)
	}
	if cfg.Admission.Serialize == SerializeRedis && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when admission.serialize is 'redis'")
	}

	rate, err := decimal.NewFromString(cfg.Billing.Rate)
	if err != nil {
		return fmt.Errorf("billing.rate: %w", err)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("billing.rate must be positive, got %s", cfg.Billing.Rate)
	}
	if cfg.Billing.DueDays < 0 {
		return fmt.Errorf("billing.due_days must not be negative, got %d", cfg.Billing.DueDays)
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
