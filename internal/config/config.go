// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Directory drivers accepted by DIRECTORY_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// maxQRTTL bounds the rotating token lifetime; longer-lived QR codes defeat rotation.
const maxQRTTL = 5 * time.Minute

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// CORSAllowedOrigins is a comma-separated list of browser origins; "*" allows any, empty disables CORS.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// EventID is the event this deployment admits attendees to.
	EventID string `mapstructure:"EVENT_ID"`

	// QRTTL is the rotating token lifetime (e.g. "20s").
	QRTTL string `mapstructure:"QR_TTL"`
	// QRClockSkew is subtracted from issuedAt when signing (e.g. "2s").
	QRClockSkew string `mapstructure:"QR_CLOCK_SKEW"`
	// SyncInterval is how often a rotation controller refreshes its session context.
	SyncInterval string `mapstructure:"SYNC_INTERVAL"`
	// SessionTTL is the lifetime of an issued session context (e.g. "24h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// SessionRefreshWindow: the issuer mints a new session key once the newest one has less than this left.
	SessionRefreshWindow string `mapstructure:"SESSION_REFRESH_WINDOW"`
	// SessionKeyBytes is the HMAC key length in bytes for session keys.
	SessionKeyBytes int `mapstructure:"SESSION_KEY_BYTES"`

	// DirectoryTimeout bounds each ticket directory and key store call made by a scan.
	DirectoryTimeout string `mapstructure:"DIRECTORY_TIMEOUT"`
	// IssuerTimeout bounds each session issuer call made by a rotation controller.
	IssuerTimeout string `mapstructure:"ISSUER_TIMEOUT"`

	// DirectoryDriver selects the ticket directory backend: memory, postgres, or sqlite.
	DirectoryDriver string `mapstructure:"DIRECTORY_DRIVER"`
	// DatabaseURL is the Postgres DSN; required when DirectoryDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SQLitePath is the SQLite database file used when DirectoryDriver is sqlite.
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	// SeedFile is an optional YAML fixture loaded into the directory at startup.
	SeedFile string `mapstructure:"SEED_FILE"`
	// CheckpointPolicyFile is an optional Rego module evaluated before each commit.
	CheckpointPolicyFile string `mapstructure:"CHECKPOINT_POLICY_FILE"`

	// BcryptCost is the bcrypt cost factor (4–31) for staff PINs; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is json or console.
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for scan decision events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env. Any invalid value is returned as an error;
// callers treat it as fatal.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("EVENT_ID", "evt_1")
	v.SetDefault("QR_TTL", "20s")
	v.SetDefault("QR_CLOCK_SKEW", "0s")
	v.SetDefault("SYNC_INTERVAL", "60s")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_REFRESH_WINDOW", "1h")
	v.SetDefault("SESSION_KEY_BYTES", 32)
	v.SetDefault("DIRECTORY_TIMEOUT", "2s")
	v.SetDefault("ISSUER_TIMEOUT", "5s")
	v.SetDefault("DIRECTORY_DRIVER", DriverMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "access.db")
	v.SetDefault("SEED_FILE", "")
	v.SetDefault("CHECKPOINT_POLICY_FILE", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "checkpoint-decisions")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "checkpoint-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field that would otherwise fail per request.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if strings.TrimSpace(c.EventID) == "" {
		return errors.New("config: EVENT_ID must be set")
	}

	ttl, err := parsePositive("QR_TTL", c.QRTTL)
	if err != nil {
		return err
	}
	if ttl > maxQRTTL {
		return fmt.Errorf("config: QR_TTL must not exceed %s", maxQRTTL)
	}
	skew, err := time.ParseDuration(c.QRClockSkew)
	if err != nil {
		return fmt.Errorf("config: QR_CLOCK_SKEW: %w", err)
	}
	if skew < 0 || skew >= ttl {
		return errors.New("config: QR_CLOCK_SKEW must be >= 0 and shorter than QR_TTL")
	}
	for _, f := range []struct{ key, val string }{
		{"SYNC_INTERVAL", c.SyncInterval},
		{"SESSION_TTL", c.SessionTTL},
		{"SESSION_REFRESH_WINDOW", c.SessionRefreshWindow},
		{"DIRECTORY_TIMEOUT", c.DirectoryTimeout},
		{"ISSUER_TIMEOUT", c.IssuerTimeout},
	} {
		if _, err := parsePositive(f.key, f.val); err != nil {
			return err
		}
	}

	if c.SessionKeyBytes < 16 || c.SessionKeyBytes > 64 {
		return errors.New("config: SESSION_KEY_BYTES must be between 16 and 64")
	}

	switch c.DirectoryDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when DIRECTORY_DRIVER=postgres")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH must be set when DIRECTORY_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("config: unknown DIRECTORY_DRIVER %q", c.DirectoryDriver)
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

func parsePositive(key, val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// TokenTTL returns QRTTL as a duration. Returns 20s if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	if d := durationOr(c.QRTTL, 0); d > 0 {
		return d
	}
	return 20 * time.Second
}

// ClockSkew returns QRClockSkew as a duration; 0 if unset or invalid.
func (c *Config) ClockSkew() time.Duration { return durationOr(c.QRClockSkew, 0) }

// SyncEvery returns SyncInterval as a duration. Returns 60s if unset or invalid.
func (c *Config) SyncEvery() time.Duration {
	if d := durationOr(c.SyncInterval, 0); d > 0 {
		return d
	}
	return time.Minute
}

// SessionLifetime returns SessionTTL as a duration. Returns 24h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	if d := durationOr(c.SessionTTL, 0); d > 0 {
		return d
	}
	return 24 * time.Hour
}

// RefreshWindow returns SessionRefreshWindow as a duration. Returns 1h if unset or invalid.
func (c *Config) RefreshWindow() time.Duration {
	if d := durationOr(c.SessionRefreshWindow, 0); d > 0 {
		return d
	}
	return time.Hour
}

// DirectoryCallTimeout returns DirectoryTimeout as a duration. Returns 2s if unset or invalid.
func (c *Config) DirectoryCallTimeout() time.Duration {
	if d := durationOr(c.DirectoryTimeout, 0); d > 0 {
		return d
	}
	return 2 * time.Second
}

// IssuerCallTimeout returns IssuerTimeout as a duration. Returns 5s if unset or invalid.
func (c *Config) IssuerCallTimeout() time.Duration {
	if d := durationOr(c.IssuerTimeout, 0); d > 0 {
		return d
	}
	return 5 * time.Second
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka producer is enabled (non-empty list).
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

// AllowedOrigins returns the CORS origins from the comma-separated config.
func (c *Config) AllowedOrigins() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
