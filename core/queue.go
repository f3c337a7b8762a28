package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/fallback"
	"github.com/BranchIntl/jobqueue/job"
	"github.com/BranchIntl/jobqueue/lock"
)

// Queue accepts jobs and schedules them on one poll goroutine
type Queue struct {
	store    Store
	locker   lock.Locker
	registry Registry
	fallback Fallback
	stats    Statistics
	config   *Config
	scorer   *Scorer
	worker   WorkerInfo

	ticking   atomic.Bool
	ticks     atomic.Uint64
	processed atomic.Int64
	failed    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueue creates a queue with dependency injection. A nil fallback is
// replaced by an in-process executor over registry; nil stats record
// nothing.
func NewQueue(
	store Store,
	locker lock.Locker,
	registry Registry,
	fb Fallback,
	stats Statistics,
	options ...Option,
) *Queue {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.WorkerID == "" {
		config.WorkerID = locker.Owner()
	}
	if fb == nil {
		fbOptions := fallback.DefaultOptions()
		fbOptions.Clock = config.Clock
		fb = fallback.New(registry, fbOptions)
	}
	if stats == nil {
		stats = discardStatistics{}
	}

	hostname, _ := os.Hostname()
	return &Queue{
		store:    store,
		locker:   locker,
		registry: registry,
		fallback: fb,
		stats:    stats,
		config:   config,
		scorer:   NewScorer(config.Epoch, config.Sequence, config.BackoffBase, config.BackoffMax),
		worker: WorkerInfo{
			ID:       config.WorkerID,
			Hostname: hostname,
			Pid:      os.Getpid(),
			Started:  config.Clock(),
		},
	}
}

// Enqueue validates and persists a job, returning its id. Errors are only
// returned for invalid input: when the store cannot take the job it is run
// in-process by the fallback executor instead.
func (q *Queue) Enqueue(ctx context.Context, t job.Type, payload any, opts job.Options) (string, error) {
	if t == "" {
		return "", errors.ErrEmptyJobType
	}
	if !t.Valid() {
		return "", fmt.Errorf("%w: %s", errors.ErrUnknownJobType, t)
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	opts = opts.WithDefaults()
	now := q.now()
	j := job.New(t, raw, opts, now)
	score := q.scorer.Score(now.Add(opts.Delay), opts.Priority)

	if err := q.store.Add(ctx, j, score); err != nil {
		if errors.IsUnavailable(err) {
			slog.Warn("Job store unavailable, running job in-process", "id", j.ID, "type", t, "error", err)
		} else {
			slog.Error("Failed to store job, running job in-process", "id", j.ID, "type", t, "error", err)
		}
		final := q.fallback.Execute(ctx, j)
		slog.Info("Fallback job finished", "id", final.ID, "status", final.Status, "attempts", final.Attempts)
		return j.ID, nil
	}

	slog.Debug("Job enqueued", "id", j.ID, "type", t, "priority", opts.Priority, "delay", opts.Delay)
	return j.ID, nil
}

// GetJob returns a job record. Jobs run in-process are served from the
// fallback table first: a store write that failed part way may have left a
// pending record behind that no worker will finish. It returns nil, nil for
// unknown ids.
func (q *Queue) GetJob(ctx context.Context, id string) (*job.Job, error) {
	if fj, ok := q.fallback.Get(id); ok {
		return fj, nil
	}
	return q.store.Get(ctx, id)
}

// GetQueueStats returns the size of each membership set
func (q *Queue) GetQueueStats(ctx context.Context) (job.Counts, error) {
	return q.store.Counts(ctx)
}

// RegisterProcessor adds a handler for a job type
func (q *Queue) RegisterProcessor(t job.Type, handler job.Handler) error {
	return q.registry.Register(t, handler)
}

// RegisterExternalProcessor adds a handler that overrides the default one
func (q *Queue) RegisterExternalProcessor(t job.Type, handler job.Handler) error {
	return q.registry.RegisterExternal(t, handler)
}

// Health returns the current health status
func (q *Queue) Health(ctx context.Context) HealthStatus {
	storeHealth := q.store.Ping(ctx)
	statsHealth := q.stats.Health()

	var counts job.Counts
	if storeHealth == nil {
		c, err := q.store.Counts(ctx)
		if err != nil {
			storeHealth = err
		}
		counts = c
	}

	return HealthStatus{
		Healthy:     storeHealth == nil && statsHealth == nil,
		Running:     q.running(),
		StoreHealth: storeHealth,
		StatsHealth: statsHealth,
		Counts:      counts,
		Processed:   q.processed.Load(),
		Failed:      q.failed.Load(),
		LastCheck:   q.now(),
	}
}

// WorkerID returns the identity of this queue's worker
func (q *Queue) WorkerID() string {
	return q.worker.ID
}

func (q *Queue) now() time.Time {
	return q.config.Clock()
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, errors.NewSerializationError("json", errors.New("payload is not valid JSON"))
		}
		return p, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewSerializationError("json", err)
	}
	return data, nil
}

// discardStatistics records nothing
type discardStatistics struct{}

func (discardStatistics) RegisterWorker(context.Context, WorkerInfo) error { return nil }
func (discardStatistics) UnregisterWorker(context.Context, string) error  { return nil }
func (discardStatistics) RecordJobStarted(context.Context, *job.Job, WorkerInfo) error {
	return nil
}
func (discardStatistics) RecordJobCompleted(context.Context, *job.Job, WorkerInfo, time.Duration) error {
	return nil
}
func (discardStatistics) RecordJobFailed(context.Context, *job.Job, WorkerInfo, error, time.Duration) error {
	return nil
}
func (discardStatistics) Connect(context.Context) error { return nil }
func (discardStatistics) Close() error                  { return nil }
func (discardStatistics) Health() error                 { return nil }
func (discardStatistics) Type() string                  { return "discard" }
