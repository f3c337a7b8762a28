package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/BranchIntl/jobqueue/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapLookup is a fixed handler table
type mapLookup map[job.Type]job.Handler

func (m mapLookup) Get(t job.Type) (job.Handler, bool) {
	h, ok := m[t]
	return h, ok
}

func newJob(attempts int) *job.Job {
	return job.New(job.TypeAnalyticsAggregation, json.RawMessage(`{"day":"2025-01-01"}`),
		job.Options{Attempts: attempts, Priority: 42}, time.Now())
}

func TestNew_Defaults(t *testing.T) {
	e := New(mapLookup{}, Options{})
	require.NotNil(t, e)
	assert.Equal(t, 0, e.Len())
}

func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		name           string
		attempts       int
		failures       int
		expectStatus   job.Status
		expectAttempts int
		expectCalls    int
	}{
		{"first attempt succeeds", 3, 0, job.StatusCompleted, 1, 1},
		{"succeeds after retries", 3, 2, job.StatusCompleted, 3, 3},
		{"exhausts attempts", 3, 5, job.StatusFailed, 3, 3},
		{"single attempt", 1, 1, job.StatusFailed, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			lookup := mapLookup{
				job.TypeAnalyticsAggregation: func(ctx context.Context, j *job.Job) (any, error) {
					calls++
					assert.Equal(t, job.StatusProcessing, j.Status)
					assert.Equal(t, calls, j.Attempts)
					if calls <= tt.failures {
						return nil, fmt.Errorf("attempt %d failed", calls)
					}
					return map[string]int{"rows": 10}, nil
				},
			}
			e := New(lookup, DefaultOptions())

			j := newJob(tt.attempts)
			final := e.Execute(context.Background(), j)

			assert.Equal(t, tt.expectStatus, final.Status)
			assert.Equal(t, tt.expectAttempts, final.Attempts)
			assert.Equal(t, tt.expectCalls, calls)
			assert.Equal(t, 42, final.Priority)
			assert.NotNil(t, final.ProcessedAt)
			assert.NotNil(t, final.CompletedAt)

			if tt.expectStatus == job.StatusCompleted {
				assert.Empty(t, final.Error)
				assert.JSONEq(t, `{"rows":10}`, string(final.Result))
			} else {
				assert.Contains(t, final.Error, "failed")
			}

			stored, ok := e.Get(j.ID)
			require.True(t, ok)
			assert.Equal(t, final, stored)

			// The caller's job is not mutated
			assert.Equal(t, job.StatusPending, j.Status)
			assert.Equal(t, 0, j.Attempts)
		})
	}
}

func TestExecutor_MissingHandlerCompletes(t *testing.T) {
	e := New(mapLookup{}, DefaultOptions())

	final := e.Execute(context.Background(), newJob(3))
	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, 1, final.Attempts)
	assert.Nil(t, final.Result)
}

func TestExecutor_PanicCountsAsFailure(t *testing.T) {
	lookup := mapLookup{
		job.TypeAnalyticsAggregation: func(ctx context.Context, j *job.Job) (any, error) {
			panic("kaboom")
		},
	}
	e := New(lookup, DefaultOptions())

	final := e.Execute(context.Background(), newJob(2))
	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Equal(t, 2, final.Attempts)
	assert.Contains(t, final.Error, "kaboom")
}

func TestExecutor_Bounded(t *testing.T) {
	e := New(mapLookup{}, Options{Size: 2, TTL: time.Hour})
	ctx := context.Background()

	first := e.Execute(ctx, newJob(1))
	e.Execute(ctx, newJob(1))
	e.Execute(ctx, newJob(1))

	assert.Equal(t, 2, e.Len())
	_, ok := e.Get(first.ID)
	assert.False(t, ok, "oldest record is evicted")
}

func TestExecutor_Expiry(t *testing.T) {
	e := New(mapLookup{}, Options{Size: 10, TTL: 50 * time.Millisecond})

	final := e.Execute(context.Background(), newJob(1))
	_, ok := e.Get(final.ID)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := e.Get(final.ID)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestExecutor_Get_Unknown(t *testing.T) {
	e := New(mapLookup{}, DefaultOptions())
	j, ok := e.Get("nope")
	assert.False(t, ok)
	assert.Nil(t, j)
}
