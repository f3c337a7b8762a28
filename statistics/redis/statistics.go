// Package redis keeps worker and job counters in Redis, next to the job
// store. Keys live under <namespace>stat: and <namespace>worker: so they
// never collide with job records.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BranchIntl/jobqueue/core"
	"github.com/BranchIntl/jobqueue/errors"
	redisUtils "github.com/BranchIntl/jobqueue/internal/redis"
	"github.com/BranchIntl/jobqueue/job"
	"github.com/gomodule/redigo/redis"
)

// Statistics implements core.Statistics on Redis
type Statistics struct {
	pool      *redis.Pool
	namespace string
	options   Options
}

// Failure is an entry in the failure log
type Failure struct {
	JobID    string          `json:"job_id"`
	Type     job.Type        `json:"type"`
	Attempt  int             `json:"attempt"`
	Final    bool            `json:"final"`
	Error    string          `json:"error"`
	Worker   core.WorkerInfo `json:"worker"`
	FailedAt time.Time       `json:"failed_at"`
}

// NewStatistics creates a new Redis statistics backend
func NewStatistics(options Options) *Statistics {
	return &Statistics{
		namespace: options.Namespace,
		options:   options,
	}
}

// Connect creates the pool and checks that Redis answers
func (r *Statistics) Connect(ctx context.Context) error {
	if r.pool == nil {
		r.pool = redisUtils.NewPool(r.options.connection())
	}

	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return redisUtils.Classify(r.options.URI, fmt.Errorf("ping failed: %w", err))
	}
	return nil
}

// Close closes the Redis connection pool
func (r *Statistics) Close() error {
	if r.pool != nil {
		return r.pool.Close()
	}
	return nil
}

// Health checks the Redis connection health
func (r *Statistics) Health() error {
	if r.pool == nil {
		return errors.ErrNotConnected
	}

	conn := r.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(redisUtils.Redact(r.options.URI),
			fmt.Errorf("health check failed: %w", err))
	}
	return nil
}

// Type returns the statistics backend type
func (r *Statistics) Type() string {
	return "redis"
}

// RegisterWorker adds the worker to the workers set and resets its counters
func (r *Statistics) RegisterWorker(ctx context.Context, worker core.WorkerInfo) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	workerData, err := json.Marshal(worker)
	if err != nil {
		return errors.NewSerializationError("json", fmt.Errorf("failed to marshal worker info: %w", err))
	}

	if _, err := conn.Do("SADD", r.workersKey(), worker.ID); err != nil {
		return fmt.Errorf("failed to add worker to set: %w", err)
	}
	if _, err := conn.Do("SET", r.workerKey(worker.ID), workerData); err != nil {
		return fmt.Errorf("failed to set worker info: %w", err)
	}
	if _, err := conn.Do("SET", r.statProcessedKey(worker.ID), "0"); err != nil {
		return fmt.Errorf("failed to initialize processed stat: %w", err)
	}
	if _, err := conn.Do("SET", r.statFailedKey(worker.ID), "0"); err != nil {
		return fmt.Errorf("failed to initialize failed stat: %w", err)
	}
	return nil
}

// UnregisterWorker removes the worker and its keys
func (r *Statistics) UnregisterWorker(ctx context.Context, workerID string) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Do("SREM", r.workersKey(), workerID); err != nil {
		return fmt.Errorf("failed to remove worker from set: %w", err)
	}

	keys := []string{
		r.workerKey(workerID),
		r.workerJobKey(workerID),
		r.statProcessedKey(workerID),
		r.statFailedKey(workerID),
	}
	for _, key := range keys {
		if _, err := conn.Do("DEL", key); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}
	return nil
}

// RecordJobStarted stores the job the worker is running
func (r *Statistics) RecordJobStarted(ctx context.Context, j *job.Job, worker core.WorkerInfo) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	workData, err := json.Marshal(map[string]any{
		"job_id":  j.ID,
		"type":    j.Type,
		"attempt": j.Attempts,
		"run_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.NewSerializationError("json", err)
	}

	if _, err := conn.Do("SET", r.workerJobKey(worker.ID), workData); err != nil {
		return fmt.Errorf("failed to set worker job: %w", err)
	}
	return nil
}

// RecordJobCompleted increments the processed counters
func (r *Statistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker core.WorkerInfo, duration time.Duration) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Do("INCR", r.statProcessedKey("")); err != nil {
		return fmt.Errorf("failed to increment global processed: %w", err)
	}
	if _, err := conn.Do("INCR", r.statProcessedKey(worker.ID)); err != nil {
		return fmt.Errorf("failed to increment worker processed: %w", err)
	}
	if _, err := conn.Do("DEL", r.workerJobKey(worker.ID)); err != nil {
		return fmt.Errorf("failed to clear worker job: %w", err)
	}
	return nil
}

// RecordJobFailed appends to the failure log and increments the failed
// counters. Counters only move on the final attempt; retried attempts are
// logged but not counted.
func (r *Statistics) RecordJobFailed(ctx context.Context, j *job.Job, worker core.WorkerInfo, err error, duration time.Duration) error {
	conn, connErr := r.conn(ctx)
	if connErr != nil {
		return connErr
	}
	defer conn.Close()

	final := j.Status == job.StatusFailed
	failure, jsonErr := json.Marshal(Failure{
		JobID:    j.ID,
		Type:     j.Type,
		Attempt:  j.Attempts,
		Final:    final,
		Error:    err.Error(),
		Worker:   worker,
		FailedAt: time.Now().UTC(),
	})
	if jsonErr != nil {
		return errors.NewSerializationError("json", jsonErr)
	}

	if _, err := conn.Do("LPUSH", r.failuresKey(), failure); err != nil {
		return fmt.Errorf("failed to store failure: %w", err)
	}
	if r.options.MaxFailures > 0 {
		if _, err := conn.Do("LTRIM", r.failuresKey(), 0, r.options.MaxFailures-1); err != nil {
			return fmt.Errorf("failed to trim failures: %w", err)
		}
	}

	if final {
		if _, err := conn.Do("INCR", r.statFailedKey("")); err != nil {
			return fmt.Errorf("failed to increment global failed: %w", err)
		}
		if _, err := conn.Do("INCR", r.statFailedKey(worker.ID)); err != nil {
			return fmt.Errorf("failed to increment worker failed: %w", err)
		}
	}

	if _, err := conn.Do("DEL", r.workerJobKey(worker.ID)); err != nil {
		return fmt.Errorf("failed to clear worker job: %w", err)
	}
	return nil
}

// Snapshot returns the global counters and the number of registered workers
func (r *Statistics) Snapshot(ctx context.Context) (core.StatsSnapshot, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return core.StatsSnapshot{}, err
	}
	defer conn.Close()

	processed, err := redis.Int64(conn.Do("GET", r.statProcessedKey("")))
	if err != nil && err != redis.ErrNil {
		return core.StatsSnapshot{}, fmt.Errorf("failed to get global processed: %w", err)
	}

	failed, err := redis.Int64(conn.Do("GET", r.statFailedKey("")))
	if err != nil && err != redis.ErrNil {
		return core.StatsSnapshot{}, fmt.Errorf("failed to get global failed: %w", err)
	}

	workers, err := redis.Int64(conn.Do("SCARD", r.workersKey()))
	if err != nil {
		return core.StatsSnapshot{}, fmt.Errorf("failed to get active workers: %w", err)
	}

	return core.StatsSnapshot{Processed: processed, Failed: failed, Workers: workers}, nil
}

// Failures returns up to n of the most recent failure log entries
func (r *Statistics) Failures(ctx context.Context, n int) ([]Failure, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	entries, err := redis.ByteSlices(conn.Do("LRANGE", r.failuresKey(), 0, n-1))
	if err != nil {
		return nil, fmt.Errorf("failed to read failures: %w", err)
	}

	failures := make([]Failure, 0, len(entries))
	for _, entry := range entries {
		var f Failure
		if err := json.Unmarshal(entry, &f); err != nil {
			return nil, errors.NewSerializationError("json", err)
		}
		failures = append(failures, f)
	}
	return failures, nil
}

// Helper methods

func (r *Statistics) conn(ctx context.Context) (redis.Conn, error) {
	return redisUtils.Get(ctx, r.pool, r.options.URI)
}

func (r *Statistics) workerKey(workerID string) string {
	return fmt.Sprintf("%sworker:%s", r.namespace, workerID)
}

func (r *Statistics) workersKey() string {
	return fmt.Sprintf("%sworkers", r.namespace)
}

func (r *Statistics) workerJobKey(workerID string) string {
	return fmt.Sprintf("%sworker:%s:job", r.namespace, workerID)
}

func (r *Statistics) statProcessedKey(workerID string) string {
	if workerID == "" {
		return fmt.Sprintf("%sstat:processed", r.namespace)
	}
	return fmt.Sprintf("%sstat:processed:%s", r.namespace, workerID)
}

func (r *Statistics) statFailedKey(workerID string) string {
	if workerID == "" {
		return fmt.Sprintf("%sstat:failed", r.namespace)
	}
	return fmt.Sprintf("%sstat:failed:%s", r.namespace, workerID)
}

func (r *Statistics) failuresKey() string {
	return fmt.Sprintf("%sstat:failures", r.namespace)
}
