package registry

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BranchIntl/jobqueue/job"
)

// Capabilities the default handlers delegate to. Each receives the raw job
// payload and returns the result stored on the job record.

type Mailer interface {
	SendEmail(ctx context.Context, payload json.RawMessage) (any, error)
}

type SearchIndexer interface {
	IndexProduct(ctx context.Context, payload json.RawMessage) (any, error)
}

type SettlementCalculator interface {
	CalculateSettlement(ctx context.Context, payload json.RawMessage) (any, error)
}

type InventorySyncer interface {
	SyncInventory(ctx context.Context, payload json.RawMessage) (any, error)
}

type AnalyticsAggregator interface {
	AggregateAnalytics(ctx context.Context, payload json.RawMessage) (any, error)
}

type WebhookDeliverer interface {
	DeliverWebhook(ctx context.Context, payload json.RawMessage) (any, error)
}

type ReportGenerator interface {
	GenerateReport(ctx context.Context, payload json.RawMessage) (any, error)
}

// Services holds the optional collaborators of the default handlers. A nil
// field means the capability is not wired and the handler returns a stub.
type Services struct {
	Mailer               Mailer
	SearchIndexer        SearchIndexer
	SettlementCalculator SettlementCalculator
	InventorySyncer      InventorySyncer
	AnalyticsAggregator  AnalyticsAggregator
	WebhookDeliverer     WebhookDeliverer
	ReportGenerator      ReportGenerator
}

// StubResult is returned by a default handler whose capability is missing
type StubResult struct {
	Stub bool     `json:"stub"`
	Type job.Type `json:"type"`
}

// call invokes a capability method with the job payload
type call func(ctx context.Context, payload json.RawMessage) (any, error)

// resolver picks the capability for one job type out of Services
type resolver func(*Services) (call, bool)

// Option configures a default registry
type Option func(*Registry)

// WithProduction raises stub usage logs from DEBUG to WARN
func WithProduction(production bool) Option {
	return func(r *Registry) {
		r.production = production
	}
}

// NewDefault creates a registry with a default handler for every job type
func NewDefault(services Services, opts ...Option) *Registry {
	r := NewRegistry()
	for _, opt := range opts {
		opt(r)
	}
	r.SetServices(services)

	defaults := map[job.Type]resolver{
		job.TypeEmailNotification: func(s *Services) (call, bool) {
			if s.Mailer == nil {
				return nil, false
			}
			return s.Mailer.SendEmail, true
		},
		job.TypeProductIndexing: func(s *Services) (call, bool) {
			if s.SearchIndexer == nil {
				return nil, false
			}
			return s.SearchIndexer.IndexProduct, true
		},
		job.TypeSettlementCalculation: func(s *Services) (call, bool) {
			if s.SettlementCalculator == nil {
				return nil, false
			}
			return s.SettlementCalculator.CalculateSettlement, true
		},
		job.TypeInventorySync: func(s *Services) (call, bool) {
			if s.InventorySyncer == nil {
				return nil, false
			}
			return s.InventorySyncer.SyncInventory, true
		},
		job.TypeAnalyticsAggregation: func(s *Services) (call, bool) {
			if s.AnalyticsAggregator == nil {
				return nil, false
			}
			return s.AnalyticsAggregator.AggregateAnalytics, true
		},
		job.TypeWebhookDelivery: func(s *Services) (call, bool) {
			if s.WebhookDeliverer == nil {
				return nil, false
			}
			return s.WebhookDeliverer.DeliverWebhook, true
		},
		job.TypeReportGeneration: func(s *Services) (call, bool) {
			if s.ReportGenerator == nil {
				return nil, false
			}
			return s.ReportGenerator.GenerateReport, true
		},
	}

	for t, resolve := range defaults {
		r.handlers[t] = r.defaultHandler(t, resolve)
	}
	return r
}

// SetServices replaces the collaborators used by the default handlers.
// Handlers resolve them on every call, so services may be wired after the
// registry is built.
func (r *Registry) SetServices(services Services) {
	r.services.Store(&services)
}

func (r *Registry) defaultHandler(t job.Type, resolve resolver) job.Handler {
	return func(ctx context.Context, j *job.Job) (any, error) {
		services := r.services.Load()
		if services != nil {
			if fn, ok := resolve(services); ok {
				return fn(ctx, j.Payload)
			}
		}

		level := slog.LevelDebug
		if r.production {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "No service wired for job type, returning stub result",
			"type", t, "job_id", j.ID)
		return StubResult{Stub: true, Type: t}, nil
	}
}
