// Package redis is the durable job store. Each job is a record under
// job:<id> and its id is a member of exactly one of the pending,
// processing, completed and failed sorted sets. Moves between sets run as
// Lua scripts, so on clustered Redis the namespace needs a hash tag such
// as "{jobqueue}:" to keep every key in one slot.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	redisUtils "github.com/BranchIntl/jobqueue/internal/redis"
	"github.com/BranchIntl/jobqueue/job"
	"github.com/BranchIntl/jobqueue/serializers/json"
	"github.com/gomodule/redigo/redis"
)

// orphanReason is stored on the synthetic record written for an orphaned id
const orphanReason = "job record missing"

// addScript writes a record and schedules its id
var addScript = redis.NewScript(2, `
redis.call("SET", KEYS[2], ARGV[3], "EX", ARGV[4])
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// moveScript rewrites a record and moves its id from KEYS[1] to KEYS[2],
// only while the id is still a member of KEYS[1]. The id is added to the
// target before it leaves the source, so a failing command never drops it
// from both sets.
var moveScript = redis.NewScript(3, `
if not redis.call("ZSCORE", KEYS[1], ARGV[1]) then
	return 0
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[3], "EX", ARGV[4])
redis.call("ZREM", KEYS[1], ARGV[1])
return 1
`)

// Store implements the job store on Redis
type Store struct {
	pool       *redis.Pool
	namespace  string
	options    Options
	serializer *json.Serializer
}

// NewStore creates a new Redis store. The pool dials lazily, so the store
// is usable as soon as Redis answers.
func NewStore(options Options) *Store {
	return &Store{
		pool:       redisUtils.NewPool(options.connection()),
		namespace:  options.Namespace,
		options:    options,
		serializer: json.NewSerializer(),
	}
}

// Connect checks that Redis answers, recreating the pool after Close. The
// pool is kept even when the check fails so that later calls can recover
// once the server is back.
func (s *Store) Connect(ctx context.Context) error {
	if s.pool == nil {
		s.pool = redisUtils.NewPool(s.options.connection())
	}

	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection pool. Calls fail with ErrNotConnected
// until the next Connect.
func (s *Store) Close() error {
	if s.pool == nil {
		return nil
	}
	err := s.pool.Close()
	s.pool = nil
	return err
}

// Ping checks the Redis connection health
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return s.classify(err)
	}
	return nil
}

// Type returns the store type
func (s *Store) Type() string {
	return "redis"
}

// Add writes the record and schedules the id at score
func (s *Store) Add(ctx context.Context, j *job.Job, score float64) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := s.serializer.Serialize(j)
	if err != nil {
		return errors.NewStoreError("add", j.ID, err)
	}
	if _, err := addScript.Do(conn, s.setKey(setPending), s.recordKey(j.ID),
		j.ID, formatScore(score), data, ttlSeconds(s.options.ActiveTTL)); err != nil {
		return errors.NewStoreError("add", j.ID, s.classify(err))
	}
	return nil
}

// Peek returns the lowest-scored pending id below maxScore, or "" when
// nothing is ready
func (s *Store) Peek(ctx context.Context, maxScore float64) (string, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	ids, err := redis.Strings(conn.Do("ZRANGEBYSCORE", s.setKey(setPending),
		"-inf", exclusive(maxScore), "LIMIT", 0, 1))
	if err != nil {
		return "", errors.NewStoreError("peek", "", s.classify(err))
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// Claim moves id from pending to processing and returns the updated record.
// It returns ErrAlreadyClaimed when the id is no longer pending and an
// OrphanError when the record has expired; in that case the id has been
// moved to the failed set with a synthetic record.
func (s *Store) Claim(ctx context.Context, id string, now time.Time) (*job.Job, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	j, err := s.readRecord(conn, id)
	if err != nil {
		return nil, errors.NewStoreError("claim", id, err)
	}
	if j == nil {
		moved, err := s.move(conn, setPending, setFailed, orphanRecord(id, now),
			float64(millis(now)), s.options.TerminalTTL)
		if err != nil {
			return nil, errors.NewStoreError("claim", id, err)
		}
		if !moved {
			return nil, errors.ErrAlreadyClaimed
		}
		return nil, &errors.OrphanError{JobID: id}
	}

	processedAt := now
	j.Status = job.StatusProcessing
	j.Attempts++
	j.ProcessedAt = &processedAt

	moved, err := s.move(conn, setPending, setProcessing, j, float64(millis(now)), s.options.ActiveTTL)
	if err != nil {
		return nil, errors.NewStoreError("claim", id, err)
	}
	if !moved {
		return nil, errors.ErrAlreadyClaimed
	}
	return j, nil
}

// Complete records a successful outcome. It returns ErrAlreadyClaimed
// when the job has left the processing set, for example after the
// stalled-job sweep requeued it.
func (s *Store) Complete(ctx context.Context, j *job.Job) error {
	ttl := s.options.TerminalTTL
	if j.RemoveOnComplete {
		ttl = s.options.ShortTTL
	}
	return s.finish(ctx, "complete", j, setCompleted, ttl)
}

// Fail records a terminal failure. Like Complete it only applies to jobs
// still in the processing set.
func (s *Store) Fail(ctx context.Context, j *job.Job) error {
	ttl := s.options.TerminalTTL
	if j.RemoveOnFail {
		ttl = s.options.ShortTTL
	}
	return s.finish(ctx, "fail", j, setFailed, ttl)
}

// Retry moves a processing job back to pending at score. It returns
// ErrAlreadyClaimed when the id is no longer in the processing set.
func (s *Store) Retry(ctx context.Context, j *job.Job, score float64) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	moved, err := s.move(conn, setProcessing, setPending, j, score, s.options.ActiveTTL)
	if err != nil {
		return errors.NewStoreError("retry", j.ID, err)
	}
	if !moved {
		return errors.ErrAlreadyClaimed
	}
	return nil
}

// Get loads a record. It returns nil, nil when the record does not exist.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	j, err := s.readRecord(conn, id)
	if err != nil {
		return nil, errors.NewStoreError("get", id, err)
	}
	return j, nil
}

// Counts returns the cardinality of each membership set
func (s *Store) Counts(ctx context.Context) (job.Counts, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return job.Counts{}, err
	}
	defer conn.Close()

	var counts job.Counts
	targets := []struct {
		name string
		dst  *int64
	}{
		{setPending, &counts.Pending},
		{setProcessing, &counts.Processing},
		{setCompleted, &counts.Completed},
		{setFailed, &counts.Failed},
	}
	for _, t := range targets {
		n, err := redis.Int64(conn.Do("ZCARD", s.setKey(t.name)))
		if err != nil {
			return job.Counts{}, errors.NewStoreError("counts", "", s.classify(err))
		}
		*t.dst = n
	}
	return counts, nil
}

// Stalled returns processing ids claimed before olderThan whose lock is gone
func (s *Store) Stalled(ctx context.Context, olderThan time.Time) ([]string, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ids, err := redis.Strings(conn.Do("ZRANGEBYSCORE", s.setKey(setProcessing),
		"-inf", fmt.Sprintf("(%d", millis(olderThan))))
	if err != nil {
		return nil, errors.NewStoreError("stalled", "", s.classify(err))
	}

	stalled := make([]string, 0, len(ids))
	for _, id := range ids {
		held, err := redis.Bool(conn.Do("EXISTS", s.lockKey(id)))
		if err != nil {
			return nil, errors.NewStoreError("stalled", id, s.classify(err))
		}
		if !held {
			stalled = append(stalled, id)
		}
	}
	return stalled, nil
}

// Trim drops completed and failed members that finished before the cutoff.
// Their records expire on their own.
func (s *Store) Trim(ctx context.Context, before time.Time) (int, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	total := 0
	for _, name := range []string{setCompleted, setFailed} {
		n, err := redis.Int(conn.Do("ZREMRANGEBYSCORE", s.setKey(name),
			"-inf", fmt.Sprintf("(%d", millis(before))))
		if err != nil {
			return total, errors.NewStoreError("trim", "", s.classify(err))
		}
		total += n
	}
	return total, nil
}

// Helper methods

func (s *Store) finish(ctx context.Context, op string, j *job.Job, set string, ttl time.Duration) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	finishedAt := time.Now()
	if j.CompletedAt != nil {
		finishedAt = *j.CompletedAt
	}

	moved, err := s.move(conn, setProcessing, set, j, float64(millis(finishedAt)), ttl)
	if err != nil {
		return errors.NewStoreError(op, j.ID, err)
	}
	if !moved {
		return errors.ErrAlreadyClaimed
	}
	return nil
}

// move runs moveScript for j. It reports false when j is not in from.
func (s *Store) move(conn redis.Conn, from, to string, j *job.Job, score float64, ttl time.Duration) (bool, error) {
	data, err := s.serializer.Serialize(j)
	if err != nil {
		return false, err
	}
	moved, err := redis.Int(moveScript.Do(conn, s.setKey(from), s.setKey(to), s.recordKey(j.ID),
		j.ID, formatScore(score), data, ttlSeconds(ttl)))
	if err != nil {
		return false, s.classify(err)
	}
	return moved == 1, nil
}

func orphanRecord(id string, now time.Time) *job.Job {
	failedAt := now
	return &job.Job{
		ID:          id,
		Status:      job.StatusFailed,
		CreatedAt:   now,
		CompletedAt: &failedAt,
		Error:       orphanReason,
	}
}

func (s *Store) readRecord(conn redis.Conn, id string) (*job.Job, error) {
	data, err := redis.Bytes(conn.Do("GET", s.recordKey(id)))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify(err)
	}
	return s.serializer.Deserialize(data)
}

func (s *Store) conn(ctx context.Context) (redis.Conn, error) {
	return redisUtils.Get(ctx, s.pool, s.options.URI)
}

func (s *Store) classify(err error) error {
	return redisUtils.Classify(s.options.URI, err)
}
