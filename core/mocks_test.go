package core

import (
	"context"
	"sync"
	"time"

	"github.com/BranchIntl/jobqueue/job"
	"github.com/BranchIntl/jobqueue/lock"
	"github.com/BranchIntl/jobqueue/stores/memory"
)

// Mock implementations for testing

// MockStatistics implements the Statistics interface for testing
type MockStatistics struct {
	mu            sync.RWMutex
	connected     bool
	connectError  error
	healthError   error
	workers       map[string]WorkerInfo
	started       []string
	completed     []string
	failed        []string
	failureErrors []error
}

func NewMockStatistics() *MockStatistics {
	return &MockStatistics{
		workers: make(map[string]WorkerInfo),
	}
}

func (m *MockStatistics) RegisterWorker(ctx context.Context, worker WorkerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[worker.ID] = worker
	return nil
}

func (m *MockStatistics) UnregisterWorker(ctx context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, workerID)
	return nil
}

func (m *MockStatistics) RecordJobStarted(ctx context.Context, j *job.Job, worker WorkerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, j.ID)
	return nil
}

func (m *MockStatistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker WorkerInfo, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, j.ID)
	return nil
}

func (m *MockStatistics) RecordJobFailed(ctx context.Context, j *job.Job, worker WorkerInfo, err error, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, j.ID)
	m.failureErrors = append(m.failureErrors, err)
	return nil
}

func (m *MockStatistics) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	return nil
}

func (m *MockStatistics) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockStatistics) Health() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthError
}

func (m *MockStatistics) Type() string { return "mock" }

// Test helper methods
func (m *MockStatistics) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

func (m *MockStatistics) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthError = err
}

func (m *MockStatistics) Started() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.started...)
}

func (m *MockStatistics) Completed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.completed...)
}

func (m *MockStatistics) Failed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.failed...)
}

func (m *MockStatistics) IsRegistered(workerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.workers[workerID]
	return ok
}

// FixedSequence returns the same number forever and counts calls
type FixedSequence struct {
	mu    sync.Mutex
	value uint64
	calls int
}

func (s *FixedSequence) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.value
}

func (s *FixedSequence) Set(value uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
}

func (s *FixedSequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FakeClock is a settable clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockLocker returns a fixed acquire outcome and records calls
type MockLocker struct {
	mu       sync.Mutex
	outcome  lock.Outcome
	err      error
	acquired []string
	released []string
}

func NewMockLocker(outcome lock.Outcome, err error) *MockLocker {
	return &MockLocker{outcome: outcome, err: err}
}

func (m *MockLocker) Acquire(ctx context.Context, jobID string) (lock.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquired = append(m.acquired, jobID)
	return m.outcome, m.err
}

func (m *MockLocker) Release(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, jobID)
	return m.outcome == lock.Acquired, nil
}

func (m *MockLocker) Owner() string { return "mock-worker" }

func (m *MockLocker) Acquired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acquired...)
}

func (m *MockLocker) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// MockStore wraps the memory store and can fail Claim, or report a failed
// Add after the write went through
type MockStore struct {
	*memory.Store

	mu       sync.Mutex
	addErr   error
	claimErr error
	claims   []string
}

func (s *MockStore) Add(ctx context.Context, j *job.Job, score float64) error {
	if err := s.Store.Add(ctx, j, score); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addErr
}

func (s *MockStore) SetAddError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addErr = err
}

func (s *MockStore) Claim(ctx context.Context, id string, now time.Time) (*job.Job, error) {
	s.mu.Lock()
	s.claims = append(s.claims, id)
	err := s.claimErr
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return s.Store.Claim(ctx, id, now)
}

func (s *MockStore) SetClaimError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimErr = err
}

func (s *MockStore) Claims() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.claims...)
}
