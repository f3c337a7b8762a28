// Package noop is a statistics backend that records nothing.
package noop

import (
	"context"
	"time"

	"github.com/BranchIntl/jobqueue/core"
	"github.com/BranchIntl/jobqueue/job"
)

// Statistics implements core.Statistics with no-op operations
type Statistics struct{}

// NewStatistics creates a new no-op statistics backend
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Connect establishes connection (no-op)
func (n *Statistics) Connect(ctx context.Context) error {
	return nil
}

// Close closes the connection (no-op)
func (n *Statistics) Close() error {
	return nil
}

// Health checks connection health
func (n *Statistics) Health() error {
	return nil
}

// Type returns the statistics backend type
func (n *Statistics) Type() string {
	return "noop"
}

// RegisterWorker registers a worker (no-op)
func (n *Statistics) RegisterWorker(ctx context.Context, worker core.WorkerInfo) error {
	return nil
}

// UnregisterWorker removes a worker (no-op)
func (n *Statistics) UnregisterWorker(ctx context.Context, workerID string) error {
	return nil
}

// RecordJobStarted records that a job has started (no-op)
func (n *Statistics) RecordJobStarted(ctx context.Context, j *job.Job, worker core.WorkerInfo) error {
	return nil
}

// RecordJobCompleted records successful job completion (no-op)
func (n *Statistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker core.WorkerInfo, duration time.Duration) error {
	return nil
}

// RecordJobFailed records job failure (no-op)
func (n *Statistics) RecordJobFailed(ctx context.Context, j *job.Job, worker core.WorkerInfo, err error, duration time.Duration) error {
	return nil
}

// Snapshot returns empty counters
func (n *Statistics) Snapshot(ctx context.Context) (core.StatsSnapshot, error) {
	return core.StatsSnapshot{}, nil
}
