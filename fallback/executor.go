// Package fallback runs jobs in-process when the job store cannot be
// reached. Jobs are executed synchronously by the caller and their records
// are kept in a bounded table whose entries expire after a fixed time.
package fallback

import (
	"context"
	"log/slog"
	"time"

	"github.com/BranchIntl/jobqueue/job"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Lookup resolves handlers by job type
type Lookup interface {
	Get(t job.Type) (job.Handler, bool)
}

// Options configures the fallback table
type Options struct {
	// Size is the maximum number of records kept
	Size int

	// TTL is how long a record stays readable
	TTL time.Duration

	// Clock returns the current time, time.Now when nil
	Clock func() time.Time
}

// DefaultOptions returns default fallback options
func DefaultOptions() Options {
	return Options{
		Size: 1000,
		TTL:  time.Hour,
	}
}

// Executor runs jobs without the job store
type Executor struct {
	lookup Lookup
	jobs   *expirable.LRU[string, *job.Job]
	now    func() time.Time
}

// New creates a fallback executor
func New(lookup Lookup, options Options) *Executor {
	defaults := DefaultOptions()
	if options.Size <= 0 {
		options.Size = defaults.Size
	}
	if options.TTL <= 0 {
		options.TTL = defaults.TTL
	}
	now := options.Clock
	if now == nil {
		now = time.Now
	}

	return &Executor{
		lookup: lookup,
		jobs:   expirable.NewLRU[string, *job.Job](options.Size, nil, options.TTL),
		now:    now,
	}
}

// Execute runs j to a terminal state and returns the final record. Failed
// attempts are retried immediately until MaxAttempts is reached.
func (e *Executor) Execute(ctx context.Context, j *job.Job) *job.Job {
	j = j.Clone()
	j.Status = job.StatusPending
	e.save(j)

	for {
		now := e.now()
		j.Status = job.StatusProcessing
		j.Attempts++
		j.ProcessedAt = &now
		e.save(j)

		handler, ok := e.lookup.Get(j.Type)
		if !ok {
			slog.Debug("No handler registered, completing job", "id", j.ID, "type", j.Type)
			e.finish(j, job.StatusCompleted)
			return j.Clone()
		}

		result, err := job.Invoke(ctx, handler, j)
		if err == nil {
			j.Result = result
			j.Error = ""
			e.finish(j, job.StatusCompleted)
			slog.Debug("Fallback job completed", "id", j.ID, "type", j.Type, "attempts", j.Attempts)
			return j.Clone()
		}

		j.Error = err.Error()
		if j.Exhausted() {
			e.finish(j, job.StatusFailed)
			slog.Error("Fallback job failed permanently",
				"id", j.ID, "type", j.Type, "attempts", j.Attempts, "error", err)
			return j.Clone()
		}

		slog.Warn("Fallback job attempt failed, retrying",
			"id", j.ID, "type", j.Type, "attempt", j.Attempts, "error", err)
		j.Status = job.StatusPending
		e.save(j)
	}
}

// Get returns the record of a job run by this executor
func (e *Executor) Get(id string) (*job.Job, bool) {
	j, ok := e.jobs.Get(id)
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// Len returns the number of records held
func (e *Executor) Len() int {
	return e.jobs.Len()
}

func (e *Executor) finish(j *job.Job, status job.Status) {
	completedAt := e.now()
	j.Status = status
	j.CompletedAt = &completedAt
	e.save(j)
}

func (e *Executor) save(j *job.Job) {
	e.jobs.Add(j.ID, j.Clone())
}
