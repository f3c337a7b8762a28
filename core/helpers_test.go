package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/BranchIntl/jobqueue/job"
	"github.com/BranchIntl/jobqueue/lock"
	"github.com/BranchIntl/jobqueue/registry"
	"github.com/BranchIntl/jobqueue/stores/memory"
	"github.com/stretchr/testify/require"
)

// testNow is a present-day instant, so scores carry real-sized ready times
var testNow = time.Date(2026, 10, 16, 14, 3, 27, 512e6, time.UTC)

// TestSetup provides common test dependencies
type TestSetup struct {
	Clock    *FakeClock
	Store    *memory.Store
	Locker   *memory.Locker
	Registry *registry.Registry
	Stats    *MockStatistics
}

// NewTestSetup creates a standard test setup backed by the memory store
func NewTestSetup(t *testing.T) *TestSetup {
	t.Helper()

	// Set up a quiet logger for tests to avoid noise
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError + 4,
	}))
	slog.SetDefault(logger)

	clock := NewFakeClock(testNow)
	options := memory.DefaultOptions()
	options.Clock = clock.Now

	store := memory.NewStore(options)
	require.NoError(t, store.Connect(context.Background()))

	return &TestSetup{
		Clock:    clock,
		Store:    store,
		Locker:   memory.NewLocker(store, "test-worker", time.Minute),
		Registry: registry.NewRegistry(),
		Stats:    NewMockStatistics(),
	}
}

// QueueBuilder helps create queues for testing
type QueueBuilder struct {
	setup   *TestSetup
	store   Store
	locker  lock.Locker
	options []Option
}

// NewQueue starts building a test queue
func (s *TestSetup) NewQueue() *QueueBuilder {
	return &QueueBuilder{
		setup:  s,
		store:  s.Store,
		locker: s.Locker,
		options: []Option{
			WithClock(s.Clock.Now),
			WithPollInterval(10 * time.Millisecond),
			WithShutdownTimeout(time.Second),
			WithMaintenance(0, 5*time.Minute, 7*24*time.Hour),
		},
	}
}

// WithOptions adds queue options
func (b *QueueBuilder) WithOptions(options ...Option) *QueueBuilder {
	b.options = append(b.options, options...)
	return b
}

// WithLocker uses a different lock owner on the same store
func (b *QueueBuilder) WithLocker(owner string) *QueueBuilder {
	b.locker = memory.NewLocker(b.setup.Store, owner, time.Minute)
	return b
}

// WithLockManager replaces the lock manager
func (b *QueueBuilder) WithLockManager(l lock.Locker) *QueueBuilder {
	b.locker = l
	return b
}

// WithStore replaces the store, typically with a wrapper around the
// shared memory store
func (b *QueueBuilder) WithStore(s Store) *QueueBuilder {
	b.store = s
	return b
}

// Build creates the queue
func (b *QueueBuilder) Build() *Queue {
	return NewQueue(b.store, b.locker, b.setup.Registry, nil, b.setup.Stats, b.options...)
}

// HandlerRecorder records the jobs a handler saw, in order
type HandlerRecorder struct {
	mu   sync.Mutex
	seen []*job.Job
	fail int // number of leading calls that fail
}

func (r *HandlerRecorder) Handle(ctx context.Context, j *job.Job) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, j.Clone())
	if len(r.seen) <= r.fail {
		return nil, assertError("handler failure")
	}
	return map[string]string{"handled": j.ID}, nil
}

func (r *HandlerRecorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.seen))
	for i, j := range r.seen {
		ids[i] = j.ID
	}
	return ids
}

func (r *HandlerRecorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

type assertError string

func (e assertError) Error() string { return string(e) }

// payload builds a JSON payload
func payload(to string) json.RawMessage {
	return json.RawMessage(`{"to":"` + to + `"}`)
}

// mustGet loads a job and fails the test when it is missing
func mustGet(t *testing.T, q *Queue, id string) *job.Job {
	t.Helper()
	j, err := q.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, j, "job %s not found", id)
	return j
}

// tickN runs n ticks, failing the test on errors
func tickN(t *testing.T, q *Queue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, q.Tick(context.Background()))
	}
}
