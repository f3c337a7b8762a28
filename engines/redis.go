package engines

import (
	"time"

	"github.com/BranchIntl/jobqueue/core"
	"github.com/BranchIntl/jobqueue/fallback"
	"github.com/BranchIntl/jobqueue/registry"
	"github.com/BranchIntl/jobqueue/statistics/noop"
	"github.com/BranchIntl/jobqueue/stores/redis"
)

// RedisOptions holds configuration for the Redis engine
type RedisOptions struct {
	RedisURI        string
	StoreOptions    redis.Options
	LockTTL         time.Duration
	WorkerID        string
	Services        registry.Services
	Production      bool
	Statistics      core.Statistics
	FallbackOptions fallback.Options
	QueueOptions    []core.Option
}

// DefaultRedisOptions returns default options for the Redis engine
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		RedisURI:        "redis://localhost:6379/",
		StoreOptions:    redis.DefaultOptions(),
		LockTTL:         redis.DefaultLockTTL,
		FallbackOptions: fallback.DefaultOptions(),
		QueueOptions:    []core.Option{},
	}
}

// RedisEngine provides a pre-configured queue on the Redis job store
type RedisEngine struct {
	engine
	store  *redis.Store
	locker *redis.Locker
}

// NewRedisEngine creates a new Redis-backed engine
func NewRedisEngine(options RedisOptions) *RedisEngine {
	// Override URI if provided
	if options.RedisURI != "" {
		options.StoreOptions.URI = options.RedisURI
	}
	if options.WorkerID == "" {
		options.WorkerID = DefaultWorkerID()
	}
	if options.Statistics == nil {
		options.Statistics = noop.NewStatistics()
	}

	store := redis.NewStore(options.StoreOptions)
	locker := redis.NewLocker(store, options.WorkerID, options.LockTTL)
	reg := registry.NewDefault(options.Services, registry.WithProduction(options.Production))
	fb := fallback.New(reg, options.FallbackOptions)

	queue := core.NewQueue(store, locker, reg, fb, options.Statistics, options.QueueOptions...)

	return &RedisEngine{
		engine: engine{
			name:     "RedisEngine",
			queue:    queue,
			registry: reg,
			stats:    options.Statistics,
		},
		store:  store,
		locker: locker,
	}
}

// GetStore returns the Redis job store
func (e *RedisEngine) GetStore() *redis.Store {
	return e.store
}

// GetLocker returns the Redis lock manager
func (e *RedisEngine) GetLocker() *redis.Locker {
	return e.locker
}
