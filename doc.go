// Package jobqueue is a distributed job queue and priority scheduler backed
// by Redis sorted sets.
//
// Jobs carry a type, a JSON payload, a priority between 0 and 999 and an
// attempt ceiling. Each worker process polls the pending set once per tick,
// claims the best ready job under a per-job lock and runs the handler
// registered for its type. Failed attempts are rescheduled with exponential
// backoff until the ceiling is reached. When Redis cannot take a job at
// submission time it is run in-process instead, so callers never lose work.
//
// The module is organised as:
//   - job: the job record, job types, statuses and submission options
//   - core: the queue, its scheduler loop and the score encoding
//   - stores/redis, stores/memory: job stores and their lock managers
//   - registry: job type to handler mapping with default handlers
//   - fallback: in-process executor used when the store is unavailable
//   - statistics: worker and job counters (Redis, RabbitMQ or none)
//   - engines: pre-wired queue setups
//   - cmd/jobqueue: worker binary with an HTTP ops API
//
// # Example
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/BranchIntl/jobqueue/engines"
//		"github.com/BranchIntl/jobqueue/job"
//	)
//
//	func main() {
//		engine := engines.NewRedisEngine(engines.DefaultRedisOptions())
//
//		engine.Register(job.TypeWebhookDelivery, deliver)
//
//		ctx := context.Background()
//		engine.Enqueue(ctx, job.TypeWebhookDelivery,
//			map[string]string{"url": "https://example.com/hook"},
//			job.Options{Priority: 500, Attempts: 5})
//
//		// Process jobs and wait for shutdown signals
//		if err := engine.Run(ctx); err != nil {
//			panic(err)
//		}
//	}
//
// # Ordering
//
// A job's score in the pending set combines its ready time in milliseconds
// with its priority and a submission sequence in the fractional part:
//
//	score = readyMs + (999-priority)/1000 + (seq%8)/8192
//
// Lower scores run first, so among jobs ready in the same millisecond the
// higher priority wins, and equal priorities keep submission order. A job
// delayed or backed off into the future is not considered until its ready
// time has passed, whatever its priority.
//
// # Sharing Resources
//
// Handlers are plain functions, so shared resources such as a database
// pool are captured with a closure:
//
//	func newIndexer(db *sql.DB) job.Handler {
//		return func(ctx context.Context, j *job.Job) (any, error) {
//			return index(ctx, db, j.Payload)
//		}
//	}
//
// # Testing
//
// The memory engine runs the same scheduler over an in-process store and
// needs no external services:
//
//	engine := engines.NewMemoryEngine(engines.DefaultMemoryOptions())
//
// The Redis store is tested against miniredis.
//
// # Configuration
//
//	queue := core.NewQueue(
//		store,
//		locker,
//		registry,
//		fallback,
//		stats,
//		core.WithPollInterval(time.Second),
//		core.WithBackoff(time.Second, time.Hour),
//		core.WithMaintenance(60, 5*time.Minute, 7*24*time.Hour),
//	)
package jobqueue
