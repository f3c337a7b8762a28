// Package job defines the unit of work handled by the queue: the job record,
// the closed set of job types, lifecycle statuses and submission options.
package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority bounds. Larger values are processed first.
const (
	MinPriority = 0
	MaxPriority = 999
)

// DefaultAttempts is the attempt ceiling used when Options.Attempts is zero.
const DefaultAttempts = 3

// Type identifies which handler applies to a job
type Type string

const (
	TypeEmailNotification     Type = "email-notification"
	TypeProductIndexing       Type = "product-indexing"
	TypeSettlementCalculation Type = "settlement-calculation"
	TypeInventorySync         Type = "inventory-sync"
	TypeAnalyticsAggregation  Type = "analytics-aggregation"
	TypeWebhookDelivery       Type = "webhook-delivery"
	TypeReportGeneration      Type = "report-generation"
)

var knownTypes = []Type{
	TypeEmailNotification,
	TypeProductIndexing,
	TypeSettlementCalculation,
	TypeInventorySync,
	TypeAnalyticsAggregation,
	TypeWebhookDelivery,
	TypeReportGeneration,
}

// Types returns every known job type
func Types() []Type {
	out := make([]Type, len(knownTypes))
	copy(out, knownTypes)
	return out
}

// Valid reports whether t is a member of the job type enumeration
func (t Type) Valid() bool {
	for _, k := range knownTypes {
		if k == t {
			return true
		}
	}
	return false
}

func (t Type) String() string { return string(t) }

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the persisted job record
type Job struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      Status          `json:"status"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	CreatedAt   time.Time       `json:"createdAt"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`

	RemoveOnComplete bool `json:"removeOnComplete,omitempty"`
	RemoveOnFail     bool `json:"removeOnFail,omitempty"`
}

// New creates a pending job. IDs are UUIDv7 so that their lexicographic
// order follows creation order.
func New(t Type, payload json.RawMessage, opts Options, now time.Time) *Job {
	opts = opts.WithDefaults()
	return &Job{
		ID:               uuid.Must(uuid.NewV7()).String(),
		Type:             t,
		Payload:          payload,
		Status:           StatusPending,
		Priority:         opts.Priority,
		MaxAttempts:      opts.Attempts,
		CreatedAt:        now,
		RemoveOnComplete: opts.RemoveOnComplete,
		RemoveOnFail:     opts.RemoveOnFail,
	}
}

// Exhausted reports whether the attempt budget is spent
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.ProcessedAt != nil {
		t := *j.ProcessedAt
		c.ProcessedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Handler processes a job and returns a result that is stored on the record.
// A returned error counts as a failed attempt.
type Handler func(ctx context.Context, j *Job) (any, error)

// Counts holds the size of each membership set
type Counts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}
