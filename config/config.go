// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/caarlos0/env/v11"
)

// Config is the worker process configuration
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CORSOrigins enables CORS on the ops API for the listed origins
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	// Job store
	StoreType           string        `env:"STORE_TYPE" envDefault:"redis"`
	RedisURL            string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/"`
	Namespace           string        `env:"REDIS_NAMESPACE" envDefault:"jobqueue:"`
	RedisMaxConnections int           `env:"REDIS_MAX_CONNECTIONS" envDefault:"10"`
	RedisConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
	RedisTLSSkipVerify  bool          `env:"REDIS_TLS_SKIP_VERIFY"`
	RedisTLSCertPath    string        `env:"REDIS_TLS_CERT_PATH"`

	// Scheduler
	WorkerID         string        `env:"WORKER_ID"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	LockTTL          time.Duration `env:"LOCK_TTL" envDefault:"5m"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	BackoffBase      time.Duration `env:"BACKOFF_BASE" envDefault:"1s"`
	BackoffMax       time.Duration `env:"BACKOFF_MAX" envDefault:"1h"`
	MaintenanceEvery int           `env:"MAINTENANCE_EVERY" envDefault:"60"`
	StalledAfter     time.Duration `env:"STALLED_AFTER" envDefault:"10m"`
	RetentionWindow  time.Duration `env:"RETENTION_WINDOW" envDefault:"168h"`

	// Fallback executor
	FallbackSize int           `env:"FALLBACK_SIZE" envDefault:"1000"`
	FallbackTTL  time.Duration `env:"FALLBACK_TTL" envDefault:"1h"`

	// Statistics
	StatsType      string `env:"STATS_TYPE" envDefault:"noop"`
	StatsURI       string `env:"STATS_URI"`
	StatsNamespace string `env:"STATS_NAMESPACE"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads the configuration from the process environment
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables only
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	c, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.StoreType {
	case "redis":
		if c.RedisURL == "" {
			return invalid("REDIS_URL is required for the redis store")
		}
	case "memory":
	default:
		return invalid("unknown store type %q", c.StoreType)
	}

	switch c.StatsType {
	case "noop", "redis", "rabbitmq":
	default:
		return invalid("unknown statistics type %q", c.StatsType)
	}

	if c.PollInterval <= 0 {
		return invalid("poll interval must be positive")
	}
	if c.LockTTL <= 0 {
		return invalid("lock TTL must be positive")
	}
	if c.BackoffBase <= 0 {
		return invalid("backoff base must be positive")
	}
	if c.BackoffMax > 0 && c.BackoffMax < c.BackoffBase {
		return invalid("backoff max must not be below backoff base")
	}
	if c.StalledAfter < c.LockTTL {
		return invalid("stalled-after must not be below lock TTL")
	}
	if c.MaintenanceEvery < 0 {
		return invalid("maintenance interval cannot be negative")
	}
	if c.FallbackSize < 1 {
		return invalid("fallback size must be at least 1")
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("unknown log format %q", c.LogFormat)
	}

	return nil
}

// IsProduction reports whether the process runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// SlogLevel returns the configured log level
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, invalid("unknown log level %q", s)
	}
	return level, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
