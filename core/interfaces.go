package core

import (
	"context"
	"time"

	"github.com/BranchIntl/jobqueue/job"
)

// Store defines what core needs from a job store
type Store interface {
	// Scheduling
	Add(ctx context.Context, j *job.Job, score float64) error
	Peek(ctx context.Context, maxScore float64) (string, error)

	// Job lifecycle
	Claim(ctx context.Context, id string, now time.Time) (*job.Job, error)
	Complete(ctx context.Context, j *job.Job) error
	Retry(ctx context.Context, j *job.Job, score float64) error
	Fail(ctx context.Context, j *job.Job) error

	// Introspection
	Get(ctx context.Context, id string) (*job.Job, error)
	Counts(ctx context.Context) (job.Counts, error)

	// Maintenance
	Stalled(ctx context.Context, olderThan time.Time) ([]string, error)
	Trim(ctx context.Context, before time.Time) (int, error)

	// Connection management
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
	Type() string
}

// Registry defines what core needs from a handler registry
type Registry interface {
	// Register adds a handler for a job type
	Register(t job.Type, handler job.Handler) error

	// RegisterExternal adds a handler that overrides Register
	RegisterExternal(t job.Type, handler job.Handler) error

	// Get retrieves the effective handler for a job type
	Get(t job.Type) (job.Handler, bool)
}

// Fallback defines what core needs from the in-process executor used while
// the store is unreachable
type Fallback interface {
	// Execute runs j to a terminal state and returns the final record
	Execute(ctx context.Context, j *job.Job) *job.Job

	// Get returns a record produced by Execute
	Get(id string) (*job.Job, bool)
}

// Statistics defines what core needs from a statistics backend
type Statistics interface {
	// Worker lifecycle
	RegisterWorker(ctx context.Context, worker WorkerInfo) error
	UnregisterWorker(ctx context.Context, workerID string) error

	// Job metrics
	RecordJobStarted(ctx context.Context, j *job.Job, worker WorkerInfo) error
	RecordJobCompleted(ctx context.Context, j *job.Job, worker WorkerInfo, duration time.Duration) error
	RecordJobFailed(ctx context.Context, j *job.Job, worker WorkerInfo, err error, duration time.Duration) error

	// Health and connection
	Connect(ctx context.Context) error
	Close() error
	Health() error
	Type() string
}

// StatsReader is implemented by statistics backends that can report
// aggregate counters
type StatsReader interface {
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}

// Supporting types used by the interfaces

// StatsSnapshot holds aggregate counters across all workers
type StatsSnapshot struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Workers   int64 `json:"workers"`
}

// WorkerInfo describes a worker
type WorkerInfo struct {
	ID       string    `json:"id"`
	Hostname string    `json:"hostname"`
	Pid      int       `json:"pid"`
	Started  time.Time `json:"started"`
}

// HealthStatus represents the health of a queue
type HealthStatus struct {
	Healthy     bool
	Running     bool
	StoreHealth error
	StatsHealth error
	Counts      job.Counts
	Processed   int64
	Failed      int64
	LastCheck   time.Time
}
