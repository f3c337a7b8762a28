package redis

import (
	"time"

	redisUtils "github.com/BranchIntl/jobqueue/internal/redis"
)

// Options for the Redis job store
type Options struct {
	// URI is the Redis connection URI
	URI string

	// Namespace is the key prefix in Redis
	Namespace string

	// MaxConnections is the maximum number of connections in the pool
	MaxConnections int

	// MaxIdle is the maximum number of idle connections
	MaxIdle int

	// IdleTimeout is the timeout for idle connections
	IdleTimeout time.Duration

	// ConnectTimeout is the timeout for establishing connections
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for write operations
	WriteTimeout time.Duration

	// TLS options
	UseTLS        bool
	TLSSkipVerify bool
	TLSCertPath   string

	// ActiveTTL is the record lifetime while pending or processing
	ActiveTTL time.Duration

	// TerminalTTL is the record lifetime once completed or failed
	TerminalTTL time.Duration

	// ShortTTL replaces TerminalTTL when RemoveOnComplete or RemoveOnFail is set
	ShortTTL time.Duration
}

// DefaultOptions returns default Redis store options
func DefaultOptions() Options {
	return Options{
		Namespace: "jobqueue:",

		URI:            "redis://localhost:6379/",
		MaxConnections: 10,
		MaxIdle:        2,
		IdleTimeout:    240 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,

		ActiveTTL:   7 * 24 * time.Hour,
		TerminalTTL: 7 * 24 * time.Hour,
		ShortTTL:    24 * time.Hour,
	}
}

func (o Options) connection() redisUtils.Options {
	return redisUtils.Options{
		URI:            o.URI,
		MaxConnections: o.MaxConnections,
		MaxIdle:        o.MaxIdle,
		IdleTimeout:    o.IdleTimeout,
		ConnectTimeout: o.ConnectTimeout,
		ReadTimeout:    o.ReadTimeout,
		WriteTimeout:   o.WriteTimeout,
		UseTLS:         o.UseTLS,
		TLSSkipVerify:  o.TLSSkipVerify,
		TLSCertPath:    o.TLSCertPath,
	}
}
