// Package engines provides pre-configured queue setups. Each engine wires a
// job store, its lock manager, the default processor registry, the fallback
// executor and a statistics backend into a core.Queue.
//
// The engines package offers two configurations:
//
//   - RedisEngine: durable store shared by any number of worker processes
//   - MemoryEngine: in-process store for single-process use and tests
//
// Example usage:
//
//	engine := engines.NewRedisEngine(engines.DefaultRedisOptions())
//	engine.Register(job.TypeEmailNotification, sendEmail)
//	engine.Run(ctx)
package engines

import (
	"context"
	"fmt"
	"os"

	"github.com/BranchIntl/jobqueue/core"
	"github.com/BranchIntl/jobqueue/job"
	"github.com/BranchIntl/jobqueue/registry"
	"github.com/google/uuid"
)

// DefaultWorkerID returns hostname:pid-<uuid>, unique per engine instance
func DefaultWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	return fmt.Sprintf("%s:%d-%s", hostname, os.Getpid(), uuid.NewString())
}

// engine holds the behaviour shared by every engine type
type engine struct {
	name     string
	queue    *core.Queue
	registry *registry.Registry
	stats    core.Statistics
}

// Register adds a handler that overrides the default one for a job type
func (e *engine) Register(t job.Type, handler job.Handler) error {
	return e.queue.RegisterExternalProcessor(t, handler)
}

// Enqueue submits a job
func (e *engine) Enqueue(ctx context.Context, t job.Type, payload any, opts job.Options) (string, error) {
	return e.queue.Enqueue(ctx, t, payload, opts)
}

// GetJob returns a job record, or nil when unknown
func (e *engine) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return e.queue.GetJob(ctx, id)
}

// GetQueueStats returns the size of each job set
func (e *engine) GetQueueStats(ctx context.Context) (job.Counts, error) {
	return e.queue.GetQueueStats(ctx)
}

// Run starts the engine and blocks until shutdown
func (e *engine) Run(ctx context.Context) error {
	return e.queue.Run(ctx)
}

// Start begins processing jobs
func (e *engine) Start(ctx context.Context) error {
	return e.queue.Start(ctx)
}

// Stop gracefully shuts down the engine
func (e *engine) Stop() error {
	return e.queue.Stop()
}

// MustRun starts the engine and panics on error
func (e *engine) MustRun(ctx context.Context) {
	if err := e.Run(ctx); err != nil {
		panic(fmt.Sprintf("%s.Run failed: %v", e.name, err))
	}
}

// MustStart begins processing and panics on error
func (e *engine) MustStart(ctx context.Context) {
	if err := e.Start(ctx); err != nil {
		panic(fmt.Sprintf("%s.Start failed: %v", e.name, err))
	}
}

// Health returns the engine health status
func (e *engine) Health(ctx context.Context) core.HealthStatus {
	return e.queue.Health(ctx)
}

// Component accessors

// GetQueue returns the underlying queue
func (e *engine) GetQueue() *core.Queue {
	return e.queue
}

// GetRegistry returns the processor registry
func (e *engine) GetRegistry() *registry.Registry {
	return e.registry
}

// GetStats returns the statistics backend
func (e *engine) GetStats() core.Statistics {
	return e.stats
}
