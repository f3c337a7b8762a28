package engines

import (
	"time"

	"github.com/BranchIntl/jobqueue/core"
	"github.com/BranchIntl/jobqueue/fallback"
	"github.com/BranchIntl/jobqueue/registry"
	"github.com/BranchIntl/jobqueue/statistics/noop"
	"github.com/BranchIntl/jobqueue/stores/memory"
)

// MemoryOptions holds configuration for the in-memory engine
type MemoryOptions struct {
	StoreOptions    memory.Options
	LockTTL         time.Duration
	WorkerID        string
	Services        registry.Services
	Production      bool
	Statistics      core.Statistics
	FallbackOptions fallback.Options
	QueueOptions    []core.Option
}

// DefaultMemoryOptions returns default options for the in-memory engine
func DefaultMemoryOptions() MemoryOptions {
	return MemoryOptions{
		StoreOptions:    memory.DefaultOptions(),
		LockTTL:         memory.DefaultLockTTL,
		FallbackOptions: fallback.DefaultOptions(),
		QueueOptions:    []core.Option{},
	}
}

// MemoryEngine provides a pre-configured queue on the in-memory store
type MemoryEngine struct {
	engine
	store *memory.Store
}

// NewMemoryEngine creates a new in-memory engine
func NewMemoryEngine(options MemoryOptions) *MemoryEngine {
	if options.WorkerID == "" {
		options.WorkerID = DefaultWorkerID()
	}
	if options.Statistics == nil {
		options.Statistics = noop.NewStatistics()
	}

	store := memory.NewStore(options.StoreOptions)
	locker := memory.NewLocker(store, options.WorkerID, options.LockTTL)
	reg := registry.NewDefault(options.Services, registry.WithProduction(options.Production))
	fb := fallback.New(reg, options.FallbackOptions)

	queue := core.NewQueue(store, locker, reg, fb, options.Statistics, options.QueueOptions...)

	return &MemoryEngine{
		engine: engine{
			name:     "MemoryEngine",
			queue:    queue,
			registry: reg,
			stats:    options.Statistics,
		},
		store: store,
	}
}

// GetStore returns the in-memory job store
func (e *MemoryEngine) GetStore() *memory.Store {
	return e.store
}
