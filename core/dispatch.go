package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/job"
)

// dispatch runs the handler for a claimed job and records the outcome.
// Handler failures never escape: they drive the retry state machine.
func (q *Queue) dispatch(ctx context.Context, j *job.Job) {
	startTime := time.Now()

	if err := q.stats.RecordJobStarted(ctx, j, q.worker); err != nil {
		slog.Error("Failed to record job start", "error", err)
	}

	handler, ok := q.registry.Get(j.Type)
	if !ok {
		slog.Debug("No handler registered, completing job", "id", j.ID, "type", j.Type)
		q.handleJobSuccess(ctx, j, nil, startTime)
		return
	}

	result, err := job.Invoke(ctx, handler, j)
	if err != nil {
		q.handleJobError(ctx, j, err, startTime)
		return
	}
	q.handleJobSuccess(ctx, j, result, startTime)
}

// handleJobSuccess moves the job to completed
func (q *Queue) handleJobSuccess(ctx context.Context, j *job.Job, result []byte, startTime time.Time) {
	ctx = context.WithoutCancel(ctx)
	duration := time.Since(startTime)

	completedAt := q.now()
	j.Status = job.StatusCompleted
	j.CompletedAt = &completedAt
	j.Result = result
	j.Error = ""

	if err := q.store.Complete(ctx, j); err != nil {
		logTransitionError("Failed to record job completion", j, err)
	}

	q.processed.Add(1)

	if err := q.stats.RecordJobCompleted(ctx, j, q.worker, duration); err != nil {
		slog.Error("Failed to record job completion stats", "error", err)
	}

	slog.Debug("Job completed", "id", j.ID, "type", j.Type, "attempts", j.Attempts, "duration", duration)
}

// handleJobError schedules a retry or, once attempts are exhausted, moves
// the job to failed
func (q *Queue) handleJobError(ctx context.Context, j *job.Job, jobErr error, startTime time.Time) {
	ctx = context.WithoutCancel(ctx)
	duration := time.Since(startTime)
	j.Error = jobErr.Error()

	if j.Exhausted() {
		completedAt := q.now()
		j.Status = job.StatusFailed
		j.CompletedAt = &completedAt

		if err := q.store.Fail(ctx, j); err != nil {
			logTransitionError("Failed to record job failure", j, err)
		}
		q.failed.Add(1)

		slog.Error("Job failed permanently",
			"id", j.ID, "type", j.Type, "attempts", j.Attempts, "error", jobErr)
	} else {
		delay := q.scorer.Backoff(j.Attempts)
		j.Status = job.StatusPending
		score := q.scorer.RetryScore(q.now(), j.Priority, j.Attempts)

		if err := q.store.Retry(ctx, j, score); err != nil {
			logTransitionError("Failed to schedule job retry", j, err)
		}

		slog.Warn("Job attempt failed, retrying",
			"id", j.ID, "type", j.Type, "attempt", j.Attempts, "max_attempts", j.MaxAttempts,
			"retry_in", delay, "error", jobErr)
	}

	if err := q.stats.RecordJobFailed(ctx, j, q.worker, jobErr, duration); err != nil {
		slog.Error("Failed to record job failure stats", "error", err)
	}
}

// logTransitionError reports a store transition that did not apply. A job
// that left the processing set was taken over by the stalled-job sweep, so
// this worker's outcome is dropped.
func logTransitionError(msg string, j *job.Job, err error) {
	if errors.Is(err, errors.ErrAlreadyClaimed) {
		slog.Warn("Job was requeued while running, outcome discarded", "id", j.ID, "attempts", j.Attempts)
		return
	}
	slog.Error(msg, "id", j.ID, "error", err)
}
