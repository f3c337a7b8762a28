// Package json is the wire codec for persisted job records. Timestamps are
// written as Unix milliseconds and the same representation is read back, so
// a record survives any number of store round trips unchanged.
package json

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/job"
)

const format = "json"

// record is the stored representation of a job
type record struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      string          `json:"status"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   int64           `json:"created_at"`
	ProcessedAt *int64          `json:"processed_at,omitempty"`
	CompletedAt *int64          `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`

	RemoveOnComplete bool `json:"remove_on_complete,omitempty"`
	RemoveOnFail     bool `json:"remove_on_fail,omitempty"`
}

// Serializer encodes and decodes job records
type Serializer struct{}

// NewSerializer creates a new JSON serializer
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize converts a job to JSON bytes
func (s *Serializer) Serialize(j *job.Job) ([]byte, error) {
	if j == nil {
		return nil, errors.NewSerializationError(format, errors.New("nil job"))
	}

	r := record{
		ID:               j.ID,
		Type:             string(j.Type),
		Payload:          j.Payload,
		Status:           string(j.Status),
		Priority:         j.Priority,
		Attempts:         j.Attempts,
		MaxAttempts:      j.MaxAttempts,
		CreatedAt:        toMillis(j.CreatedAt),
		ProcessedAt:      toMillisPtr(j.ProcessedAt),
		CompletedAt:      toMillisPtr(j.CompletedAt),
		Error:            j.Error,
		Result:           j.Result,
		RemoveOnComplete: j.RemoveOnComplete,
		RemoveOnFail:     j.RemoveOnFail,
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.NewSerializationError(format, err)
	}
	return data, nil
}

// Deserialize converts JSON bytes to a job
func (s *Serializer) Deserialize(data []byte) (*job.Job, error) {
	var r record

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&r); err != nil {
		return nil, errors.NewSerializationError(format, err)
	}
	if r.ID == "" {
		return nil, errors.NewSerializationError(format, errors.New("record without id"))
	}

	return &job.Job{
		ID:               r.ID,
		Type:             job.Type(r.Type),
		Payload:          r.Payload,
		Status:           job.Status(r.Status),
		Priority:         r.Priority,
		Attempts:         r.Attempts,
		MaxAttempts:      r.MaxAttempts,
		CreatedAt:        fromMillis(r.CreatedAt),
		ProcessedAt:      fromMillisPtr(r.ProcessedAt),
		CompletedAt:      fromMillisPtr(r.CompletedAt),
		Error:            r.Error,
		Result:           r.Result,
		RemoveOnComplete: r.RemoveOnComplete,
		RemoveOnFail:     r.RemoveOnFail,
	}, nil
}

// GetFormat returns the serialization format name
func (s *Serializer) GetFormat() string {
	return format
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func toMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := toMillis(*t)
	return &ms
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}
