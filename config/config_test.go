package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	c, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "development", c.AppEnv)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "redis", c.StoreType)
	assert.Equal(t, "redis://localhost:6379/", c.RedisURL)
	assert.Equal(t, "jobqueue:", c.Namespace)
	assert.Equal(t, time.Second, c.PollInterval)
	assert.Equal(t, 5*time.Minute, c.LockTTL)
	assert.Equal(t, 30*time.Second, c.ShutdownTimeout)
	assert.Equal(t, time.Second, c.BackoffBase)
	assert.Equal(t, time.Hour, c.BackoffMax)
	assert.Equal(t, 60, c.MaintenanceEvery)
	assert.Equal(t, 10*time.Minute, c.StalledAfter)
	assert.Equal(t, 7*24*time.Hour, c.RetentionWindow)
	assert.Equal(t, 1000, c.FallbackSize)
	assert.Equal(t, time.Hour, c.FallbackTTL)
	assert.Equal(t, "noop", c.StatsType)
	assert.Empty(t, c.WorkerID)
	assert.Empty(t, c.CORSOrigins)
	assert.False(t, c.IsProduction())
	assert.Equal(t, slog.LevelInfo, c.SlogLevel())
}

func TestLoadFrom_Overrides(t *testing.T) {
	c, err := LoadFrom(map[string]string{
		"APP_ENV":       "Production",
		"STORE_TYPE":    "memory",
		"POLL_INTERVAL": "250ms",
		"LOCK_TTL":      "2m",
		"WORKER_ID":     "worker-7",
		"STATS_TYPE":    "rabbitmq",
		"STATS_URI":     "amqp://guest:guest@mq:5672/",
		"LOG_LEVEL":     "debug",
		"LOG_FORMAT":    "json",
		"CORS_ORIGINS":  "https://a.example.com,https://b.example.com",
	})
	require.NoError(t, err)

	assert.True(t, c.IsProduction())
	assert.Equal(t, "memory", c.StoreType)
	assert.Equal(t, 250*time.Millisecond, c.PollInterval)
	assert.Equal(t, 2*time.Minute, c.LockTTL)
	assert.Equal(t, "worker-7", c.WorkerID)
	assert.Equal(t, "rabbitmq", c.StatsType)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", c.StatsURI)
	assert.Equal(t, slog.LevelDebug, c.SlogLevel())
	assert.Equal(t, "json", c.LogFormat)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, c.CORSOrigins)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		errMsg  string
	}{
		{"unparsable duration", map[string]string{"POLL_INTERVAL": "soon"}, "invalid duration"},
		{"unknown store", map[string]string{"STORE_TYPE": "postgres"}, "unknown store type"},
		{"unknown stats", map[string]string{"STATS_TYPE": "statsd"}, "unknown statistics type"},
		{"zero poll interval", map[string]string{"POLL_INTERVAL": "0s"}, "poll interval"},
		{"zero lock ttl", map[string]string{"LOCK_TTL": "0s"}, "lock TTL"},
		{"backoff max below base", map[string]string{"BACKOFF_BASE": "10s", "BACKOFF_MAX": "1s"}, "backoff max"},
		{"stalled-after below lock ttl", map[string]string{"LOCK_TTL": "5m", "STALLED_AFTER": "1m"}, "stalled-after"},
		{"negative maintenance", map[string]string{"MAINTENANCE_EVERY": "-1"}, "maintenance"},
		{"empty fallback", map[string]string{"FALLBACK_SIZE": "0"}, "fallback size"},
		{"unknown log level", map[string]string{"LOG_LEVEL": "loud"}, "unknown log level"},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}, "unknown log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_RedisURLRequired(t *testing.T) {
	c, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	c.RedisURL = ""
	assert.ErrorIs(t, c.Validate(), errors.ErrInvalidConfig)

	c.StoreType = "memory"
	assert.NoError(t, c.Validate())
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("STORE_TYPE", "memory")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.HTTPAddr)
	assert.Equal(t, "memory", c.StoreType)
}
