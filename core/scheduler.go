package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/job"
	"github.com/BranchIntl/jobqueue/lock"
)

// stalledReason is recorded on jobs failed by the stalled-job sweep
const stalledReason = "worker stopped responding on final attempt"

// Start connects the store and statistics and begins polling. A store that
// cannot be reached is logged and retried by every tick. Statistics are
// best-effort: a backend that fails to connect is logged and jobs still run.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		return fmt.Errorf("queue already started")
	}

	if err := q.store.Connect(ctx); err != nil {
		slog.Error("Job store unavailable at start, will retry on each tick",
			"store", q.store.Type(), "error", err)
	}

	if err := q.stats.Connect(ctx); err != nil {
		slog.Error("Statistics unavailable at start, continuing without them",
			"stats", q.stats.Type(), "error", err)
	} else if err := q.stats.RegisterWorker(ctx, q.worker); err != nil {
		slog.Error("Failed to register worker", "error", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})

	go q.loop(loopCtx, q.done)

	slog.Info("Queue started", "worker", q.worker.ID, "poll_interval", q.config.PollInterval)
	return nil
}

// Stop halts polling, waits for the in-flight tick up to the shutdown
// timeout and closes connections
func (q *Queue) Stop() error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		slog.Info("Queue stopped gracefully")
	case <-time.After(q.config.ShutdownTimeout):
		slog.Warn("Queue shutdown timeout exceeded")
	}

	ctx := context.Background()
	if err := q.stats.UnregisterWorker(ctx, q.worker.ID); err != nil {
		slog.Error("Failed to unregister worker", "error", err)
	}

	if err := q.store.Close(); err != nil {
		slog.Error("Error closing job store", "error", err)
	}

	if err := q.stats.Close(); err != nil {
		slog.Error("Error closing statistics", "error", err)
	}

	return nil
}

// Run starts the queue and blocks until ctx is cancelled or a shutdown
// signal is received
func (q *Queue) Run(ctx context.Context) error {
	if err := q.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	}

	return q.Stop()
}

func (q *Queue) running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancel != nil
}

func (q *Queue) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped", "worker", q.worker.ID)
			return
		case <-ticker.C:
			if err := q.Tick(ctx); err != nil {
				slog.Error("Scheduler tick aborted", "error", err)
			}
		}
	}
}

// Tick claims and processes at most one ready job. A tick that starts while
// another is still running returns immediately. Errors mean the tick was
// aborted because the store could not be used; the next tick starts over.
func (q *Queue) Tick(ctx context.Context) error {
	if !q.ticking.CompareAndSwap(false, true) {
		slog.Debug("Previous tick still running, skipping")
		return nil
	}
	defer q.ticking.Store(false)

	if n := q.ticks.Add(1); q.config.MaintenanceEvery > 0 && n%uint64(q.config.MaintenanceEvery) == 0 {
		q.maintain(ctx)
	}

	now := q.now()
	id, err := q.store.Peek(ctx, q.scorer.ReadyBound(now))
	if err != nil {
		return fmt.Errorf("peek: %w", err)
	}
	if id == "" {
		return nil
	}

	outcome, err := q.locker.Acquire(ctx, id)
	switch outcome {
	case lock.Contended:
		slog.Debug("Job locked by another worker", "id", id)
		return nil
	case lock.Unavailable:
		return fmt.Errorf("lock %s: %w", id, err)
	}
	defer q.release(ctx, id)

	j, err := q.store.Claim(ctx, id, now)
	switch {
	case errors.Is(err, errors.ErrAlreadyClaimed):
		slog.Debug("Job already claimed", "id", id)
		return nil
	case errors.IsOrphan(err):
		slog.Warn("Pending job has no record, marked failed", "id", id)
		return nil
	case err != nil:
		return fmt.Errorf("claim %s: %w", id, err)
	}

	q.dispatch(ctx, j)
	return nil
}

func (q *Queue) release(ctx context.Context, id string) {
	if _, err := q.locker.Release(context.WithoutCancel(ctx), id); err != nil {
		slog.Error("Failed to release job lock", "id", id, "error", err)
	}
}

// maintain requeues stalled jobs and trims terminal sets. Failures are
// logged; the regular tick still runs.
func (q *Queue) maintain(ctx context.Context) {
	now := q.now()

	ids, err := q.store.Stalled(ctx, now.Add(-q.config.StalledAfter))
	if err != nil {
		slog.Error("Failed to list stalled jobs", "error", err)
	} else {
		for _, id := range ids {
			q.recoverStalled(ctx, id, now)
		}
	}

	n, err := q.store.Trim(ctx, now.Add(-q.config.RetentionWindow))
	if err != nil {
		slog.Error("Failed to trim finished jobs", "error", err)
	} else if n > 0 {
		slog.Debug("Trimmed finished jobs", "count", n)
	}
}

func (q *Queue) recoverStalled(ctx context.Context, id string, now time.Time) {
	j, err := q.store.Get(ctx, id)
	if err != nil {
		slog.Error("Failed to load stalled job", "id", id, "error", err)
		return
	}
	if j == nil {
		slog.Warn("Stalled job has no record", "id", id)
		return
	}

	if j.Exhausted() {
		completedAt := now
		j.Status = job.StatusFailed
		j.CompletedAt = &completedAt
		j.Error = stalledReason
		if err := q.store.Fail(ctx, j); err != nil {
			slog.Error("Failed to fail stalled job", "id", id, "error", err)
			return
		}
		slog.Error("Stalled job failed permanently", "id", id, "attempts", j.Attempts)
		return
	}

	j.Status = job.StatusPending
	score := q.scorer.RetryScore(now, j.Priority, j.Attempts)
	if err := q.store.Retry(ctx, j, score); err != nil {
		if !errors.Is(err, errors.ErrAlreadyClaimed) {
			slog.Error("Failed to requeue stalled job", "id", id, "error", err)
		}
		return
	}
	slog.Warn("Requeued stalled job", "id", id, "attempts", j.Attempts)
}
