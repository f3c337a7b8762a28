package json

import (
	stdjson "encoding/json"
	"testing"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializer_PreservesRecord(t *testing.T) {
	s := NewSerializer()
	created := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	processed := created.Add(2 * time.Second)
	completed := processed.Add(1500 * time.Millisecond)

	j := &job.Job{
		ID:               "0190c1a8-0000-7000-8000-000000000001",
		Type:             job.TypeEmailNotification,
		Payload:          stdjson.RawMessage(`{"to":"a@x.com"}`),
		Status:           job.StatusCompleted,
		Priority:         750,
		Attempts:         2,
		MaxAttempts:      3,
		CreatedAt:        created,
		ProcessedAt:      &processed,
		CompletedAt:      &completed,
		Result:           stdjson.RawMessage(`{"sent":true}`),
		RemoveOnComplete: true,
	}

	data, err := s.Serialize(j)
	require.NoError(t, err)

	got, err := s.Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, j.Type, got.Type)
	assert.JSONEq(t, string(j.Payload), string(got.Payload))
	assert.Equal(t, j.Status, got.Status)
	assert.Equal(t, 750, got.Priority)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, 3, got.MaxAttempts)
	assert.True(t, got.RemoveOnComplete)
	assert.False(t, got.RemoveOnFail)

	// Millisecond precision on the wire
	assert.Equal(t, created.Truncate(time.Millisecond), got.CreatedAt)
	require.NotNil(t, got.ProcessedAt)
	assert.Equal(t, processed.Truncate(time.Millisecond), *got.ProcessedAt)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, completed.Truncate(time.Millisecond), *got.CompletedAt)
}

func TestSerializer_TimestampsAreMillis(t *testing.T) {
	s := NewSerializer()
	created := time.UnixMilli(1735689600000).UTC()

	data, err := s.Serialize(&job.Job{ID: "x", Type: job.TypeProductIndexing, CreatedAt: created})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, stdjson.Unmarshal(data, &raw))
	assert.Equal(t, float64(1735689600000), raw["created_at"])
	assert.NotContains(t, raw, "processed_at")
	assert.NotContains(t, raw, "completed_at")
}

func TestSerializer_Errors(t *testing.T) {
	s := NewSerializer()

	tests := []struct {
		name string
		run  func() error
	}{
		{"nil job", func() error { _, err := s.Serialize(nil); return err }},
		{"invalid json", func() error { _, err := s.Deserialize([]byte("{not json")); return err }},
		{"missing id", func() error { _, err := s.Deserialize([]byte(`{"type":"x"}`)); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			var serErr *errors.SerializationError
			assert.ErrorAs(t, err, &serErr)
			assert.Equal(t, "json", serErr.Format)
		})
	}
}

func TestSerializer_GetFormat(t *testing.T) {
	assert.Equal(t, "json", NewSerializer().GetFormat())
}
