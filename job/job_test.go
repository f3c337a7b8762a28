package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	j := New(TypeEmailNotification, json.RawMessage(`{"to":"a@x.com"}`), Options{Priority: 10}, now)

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, TypeEmailNotification, j.Type)
	assert.Equal(t, StatusPending, j.Status)
	assert.Equal(t, 10, j.Priority)
	assert.Equal(t, 0, j.Attempts)
	assert.Equal(t, DefaultAttempts, j.MaxAttempts)
	assert.Equal(t, now, j.CreatedAt)
	assert.Nil(t, j.ProcessedAt)
	assert.Nil(t, j.CompletedAt)
}

func TestNew_IDsFollowCreationOrder(t *testing.T) {
	now := time.Now()
	prev := New(TypeProductIndexing, nil, Options{}, now).ID
	for i := 0; i < 100; i++ {
		next := New(TypeProductIndexing, nil, Options{}, now).ID
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestType_Valid(t *testing.T) {
	for _, typ := range Types() {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, Type("").Valid())
	assert.False(t, Type("pdf-render").Valid())
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		expectErr error
	}{
		{"defaults", Options{}, nil},
		{"max priority", Options{Priority: MaxPriority}, nil},
		{"negative priority", Options{Priority: -1}, errors.ErrInvalidPriority},
		{"priority too large", Options{Priority: 1000}, errors.ErrInvalidPriority},
		{"negative attempts", Options{Attempts: -2}, errors.ErrInvalidAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{Delay: -time.Second}.WithDefaults()
	assert.Equal(t, DefaultAttempts, o.Attempts)
	assert.Equal(t, time.Duration(0), o.Delay)

	o = Options{Attempts: 7}.WithDefaults()
	assert.Equal(t, 7, o.Attempts)
}

func TestJob_Clone(t *testing.T) {
	now := time.Now()
	j := New(TypeReportGeneration, json.RawMessage(`{"a":1}`), Options{}, now)
	j.ProcessedAt = &now

	c := j.Clone()
	c.Payload[2] = 'b'
	later := now.Add(time.Hour)
	*c.ProcessedAt = later

	assert.Equal(t, `{"a":1}`, string(j.Payload))
	assert.Equal(t, now, *j.ProcessedAt)
}

func TestJob_Exhausted(t *testing.T) {
	j := &Job{Attempts: 2, MaxAttempts: 3}
	assert.False(t, j.Exhausted())
	j.Attempts = 3
	assert.True(t, j.Exhausted())
}
