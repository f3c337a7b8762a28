package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BranchIntl/jobqueue/core"
	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/job"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

// queueAPI is the part of core.Queue served over HTTP
type queueAPI interface {
	Enqueue(ctx context.Context, t job.Type, payload any, opts job.Options) (string, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	GetQueueStats(ctx context.Context) (job.Counts, error)
	Health(ctx context.Context) core.HealthStatus
}

type enqueueRequest struct {
	Type             job.Type        `json:"type"`
	Payload          json.RawMessage `json:"payload"`
	DelayMs          int64           `json:"delay_ms"`
	Attempts         int             `json:"attempts"`
	Priority         int             `json:"priority"`
	RemoveOnComplete bool            `json:"remove_on_complete"`
	RemoveOnFail     bool            `json:"remove_on_fail"`
}

type statsResponse struct {
	Counts job.Counts          `json:"counts"`
	Totals *core.StatsSnapshot `json:"totals,omitempty"`
}

type healthResponse struct {
	Healthy    bool       `json:"healthy"`
	Running    bool       `json:"running"`
	Store      string     `json:"store"`
	Statistics string     `json:"statistics"`
	Counts     job.Counts `json:"counts"`
	Processed  int64      `json:"processed"`
	Failed     int64      `json:"failed"`
	LastCheck  time.Time  `json:"last_check"`
}

type server struct {
	queue queueAPI
	stats core.Statistics
}

// newServer builds the ops HTTP API
func newServer(queue queueAPI, stats core.Statistics) http.Handler {
	s := &server{queue: queue, stats: stats}

	r := chi.NewRouter()
	r.Post("/jobs", s.enqueue)
	r.Get("/jobs/{id}", s.getJob)
	r.Get("/stats", s.getStats)
	r.Get("/healthz", s.health)
	return r
}

// withCORS allows browser dashboards on the given origins to call the API
func withCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(h)
}

func (s *server) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	id, err := s.queue.Enqueue(r.Context(), req.Type, payload, job.Options{
		Delay:            time.Duration(req.DelayMs) * time.Millisecond,
		Attempts:         req.Attempts,
		Priority:         req.Priority,
		RemoveOnComplete: req.RemoveOnComplete,
		RemoveOnFail:     req.RemoveOnFail,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.queue.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *server) getStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.GetQueueStats(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := statsResponse{Counts: counts}
	if reader, ok := s.stats.(core.StatsReader); ok {
		snapshot, err := reader.Snapshot(r.Context())
		if err != nil {
			slog.Warn("Failed to read statistics snapshot", "error", err)
		} else {
			resp.Totals = &snapshot
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	h := s.queue.Health(r.Context())

	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Healthy:    h.Healthy,
		Running:    h.Running,
		Store:      errorText(h.StoreHealth),
		Statistics: errorText(h.StatsHealth),
		Counts:     h.Counts,
		Processed:  h.Processed,
		Failed:     h.Failed,
		LastCheck:  h.LastCheck,
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.IsUnavailable(err) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	slog.Error("Request failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func errorText(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
