// Package memory is an in-process job store with the same semantics as the
// Redis store. It backs single-process deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/job"
)

const orphanReason = "job record missing"

type record struct {
	job       *job.Job
	expiresAt time.Time
}

type heldLock struct {
	value     string
	expiresAt time.Time
}

// Store implements the job store in memory. Records and locks expire
// lazily on access.
type Store struct {
	mu         sync.Mutex
	records    map[string]record
	pending    map[string]float64
	processing map[string]float64
	completed  map[string]float64
	failed     map[string]float64
	locks      map[string]heldLock
	connected  bool
	options    Options
	now        func() time.Time
}

// NewStore creates a new in-memory store, ready for use
func NewStore(options Options) *Store {
	now := options.Clock
	if now == nil {
		now = time.Now
	}
	return &Store{
		records:    make(map[string]record),
		pending:    make(map[string]float64),
		processing: make(map[string]float64),
		completed:  make(map[string]float64),
		failed:     make(map[string]float64),
		locks:      make(map[string]heldLock),
		connected:  true,
		options:    options,
		now:        now,
	}
}

// Connect marks the store reachable
func (m *Store) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = true
	return nil
}

// Close marks the store unreachable. Data is kept, so a later Connect
// resumes where it left off.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	return nil
}

// Ping reports whether the store is connected
func (m *Store) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.check()
}

// Type returns the store type
func (m *Store) Type() string {
	return "memory"
}

// Add writes the record and schedules the id at score
func (m *Store) Add(ctx context.Context, j *job.Job, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	m.put(j, m.options.ActiveTTL)
	m.pending[j.ID] = score
	return nil
}

// Peek returns the lowest-scored pending id below maxScore, ties broken
// by id
func (m *Store) Peek(ctx context.Context, maxScore float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return "", err
	}

	best, bestScore := "", 0.0
	for id, score := range m.pending {
		if score >= maxScore {
			continue
		}
		if best == "" || score < bestScore || (score == bestScore && id < best) {
			best, bestScore = id, score
		}
	}
	return best, nil
}

// Claim moves id from pending to processing
func (m *Store) Claim(ctx context.Context, id string, now time.Time) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	if _, ok := m.pending[id]; !ok {
		return nil, errors.ErrAlreadyClaimed
	}
	delete(m.pending, id)

	j := m.get(id)
	if j == nil {
		failedAt := now
		m.put(&job.Job{
			ID:          id,
			Status:      job.StatusFailed,
			CreatedAt:   now,
			CompletedAt: &failedAt,
			Error:       orphanReason,
		}, m.options.TerminalTTL)
		m.failed[id] = float64(now.UnixMilli())
		return nil, &errors.OrphanError{JobID: id}
	}

	processedAt := now
	j.Status = job.StatusProcessing
	j.Attempts++
	j.ProcessedAt = &processedAt

	m.put(j, m.options.ActiveTTL)
	m.processing[id] = float64(now.UnixMilli())
	return j.Clone(), nil
}

// Complete records a successful outcome. It returns ErrAlreadyClaimed when
// the job is no longer processing.
func (m *Store) Complete(ctx context.Context, j *job.Job) error {
	ttl := m.options.TerminalTTL
	if j.RemoveOnComplete {
		ttl = m.options.ShortTTL
	}
	return m.finish(j, m.completed, ttl)
}

// Fail records a terminal failure
func (m *Store) Fail(ctx context.Context, j *job.Job) error {
	ttl := m.options.TerminalTTL
	if j.RemoveOnFail {
		ttl = m.options.ShortTTL
	}
	return m.finish(j, m.failed, ttl)
}

// Retry moves a processing job back to pending at score
func (m *Store) Retry(ctx context.Context, j *job.Job, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	if _, ok := m.processing[j.ID]; !ok {
		return errors.ErrAlreadyClaimed
	}
	delete(m.processing, j.ID)

	m.put(j, m.options.ActiveTTL)
	m.pending[j.ID] = score
	return nil
}

// Get loads a record. It returns nil, nil when the record does not exist.
func (m *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	return m.get(id), nil
}

// Counts returns the size of each membership set
func (m *Store) Counts(ctx context.Context) (job.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return job.Counts{}, err
	}
	return job.Counts{
		Pending:    int64(len(m.pending)),
		Processing: int64(len(m.processing)),
		Completed:  int64(len(m.completed)),
		Failed:     int64(len(m.failed)),
	}, nil
}

// Stalled returns processing ids claimed before olderThan whose lock is gone
func (m *Store) Stalled(ctx context.Context, olderThan time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}

	cutoff := float64(olderThan.UnixMilli())
	var stalled []string
	for id, claimedAt := range m.processing {
		if claimedAt >= cutoff {
			continue
		}
		if _, held := m.lock(id); held {
			continue
		}
		stalled = append(stalled, id)
	}
	return stalled, nil
}

// Trim drops completed and failed members that finished before the cutoff
func (m *Store) Trim(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return 0, err
	}

	cutoff := float64(before.UnixMilli())
	n := 0
	for _, set := range []map[string]float64{m.completed, m.failed} {
		for id, at := range set {
			if at < cutoff {
				delete(set, id)
				n++
			}
		}
	}
	return n, nil
}

// Helper methods

func (m *Store) finish(j *job.Job, set map[string]float64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}

	if _, ok := m.processing[j.ID]; !ok {
		return errors.ErrAlreadyClaimed
	}

	finishedAt := m.now()
	if j.CompletedAt != nil {
		finishedAt = *j.CompletedAt
	}
	m.put(j, ttl)
	delete(m.processing, j.ID)
	set[j.ID] = float64(finishedAt.UnixMilli())
	return nil
}

func (m *Store) check() error {
	if !m.connected {
		return errors.ErrNotConnected
	}
	return nil
}

func (m *Store) put(j *job.Job, ttl time.Duration) {
	m.records[j.ID] = record{job: j.Clone(), expiresAt: m.now().Add(ttl)}
}

func (m *Store) get(id string) *job.Job {
	r, ok := m.records[id]
	if !ok {
		return nil
	}
	if !m.now().Before(r.expiresAt) {
		delete(m.records, id)
		return nil
	}
	return r.job.Clone()
}

func (m *Store) lock(id string) (heldLock, bool) {
	l, ok := m.locks[id]
	if !ok {
		return heldLock{}, false
	}
	if !m.now().Before(l.expiresAt) {
		delete(m.locks, id)
		return heldLock{}, false
	}
	return l, true
}
