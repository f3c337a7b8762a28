// Package statistics builds a statistics backend from configuration.
package statistics

import (
	"fmt"
	"time"

	"github.com/BranchIntl/jobqueue/core"
	"github.com/BranchIntl/jobqueue/statistics/noop"
	"github.com/BranchIntl/jobqueue/statistics/rabbitmq"
	"github.com/BranchIntl/jobqueue/statistics/redis"
)

// StatsType represents the type of statistics backend
type StatsType string

const (
	// Redis statistics type
	Redis StatsType = "redis"
	// RabbitMQ statistics type
	RabbitMQ StatsType = "rabbitmq"
	// NoOp statistics type
	NoOp StatsType = "noop"
)

// Config is a generic statistics configuration
type Config struct {
	Type      StatsType
	URI       string
	Namespace string
	Options   map[string]any
}

// NewStatistics creates a statistics backend based on the configuration
func NewStatistics(config Config) (core.Statistics, error) {
	switch config.Type {
	case Redis:
		opts := redis.DefaultOptions()
		if config.URI != "" {
			opts.URI = config.URI
		}
		if config.Namespace != "" {
			opts.Namespace = config.Namespace
		}
		if maxConn, ok := config.Options["maxConnections"].(int); ok {
			opts.MaxConnections = maxConn
		}
		if useTLS, ok := config.Options["useTLS"].(bool); ok {
			opts.UseTLS = useTLS
		}
		if timeout, ok := config.Options["connectTimeout"].(time.Duration); ok {
			opts.ConnectTimeout = timeout
		}
		if maxFailures, ok := config.Options["maxFailures"].(int); ok {
			opts.MaxFailures = maxFailures
		}
		return redis.NewStatistics(opts), nil

	case RabbitMQ:
		opts := rabbitmq.DefaultOptions()
		if config.URI != "" {
			opts.URI = config.URI
		}
		if config.Namespace != "" {
			opts.Exchange = config.Namespace
		}
		if queue, ok := config.Options["queue"].(string); ok {
			opts.Queue = queue
		}
		if timeout, ok := config.Options["connectTimeout"].(time.Duration); ok {
			opts.ConnectTimeout = timeout
		}
		if heartbeat, ok := config.Options["heartbeat"].(time.Duration); ok {
			opts.Heartbeat = heartbeat
		}
		if interval, ok := config.Options["snapshotInterval"].(time.Duration); ok {
			opts.SnapshotInterval = interval
		}
		if durable, ok := config.Options["exchangeDurable"].(bool); ok {
			opts.ExchangeDurable = durable
		}
		return rabbitmq.NewStatistics(opts), nil

	case NoOp, "":
		return noop.NewStatistics(), nil

	default:
		return nil, fmt.Errorf("unknown statistics type: %s", config.Type)
	}
}
