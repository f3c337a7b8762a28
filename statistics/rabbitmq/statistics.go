// Package rabbitmq publishes job lifecycle events to a RabbitMQ exchange.
// Counters are kept in process and published as periodic snapshots, since
// RabbitMQ has nowhere to keep arbitrary state.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BranchIntl/jobqueue/core"
	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/job"
	amqp "github.com/rabbitmq/amqp091-go"
)

// channel is the subset of *amqp.Channel used here
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Event is the message body published for every lifecycle event
type Event struct {
	Event      string              `json:"event"`
	WorkerID   string              `json:"worker_id"`
	Worker     *core.WorkerInfo    `json:"worker,omitempty"`
	JobID      string              `json:"job_id,omitempty"`
	Type       job.Type            `json:"type,omitempty"`
	Attempt    int                 `json:"attempt,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMs int64               `json:"duration_ms,omitempty"`
	Snapshot   *core.StatsSnapshot `json:"snapshot,omitempty"`
	At         time.Time           `json:"at"`
}

// Statistics implements core.Statistics by publishing to RabbitMQ
type Statistics struct {
	options Options

	mu          sync.RWMutex
	conn        *amqp.Connection
	channel     channel
	notifyClose chan *amqp.Error
	closing     bool

	workers   map[string]core.WorkerInfo
	processed int64
	failed    int64

	cancel context.CancelFunc
	now    func() time.Time
}

// NewStatistics creates a new RabbitMQ statistics backend
func NewStatistics(options Options) *Statistics {
	return &Statistics{
		options: options,
		workers: make(map[string]core.WorkerInfo),
		now:     time.Now,
	}
}

// Connect dials RabbitMQ, declares the exchange and starts the snapshot and
// reconnection routines
func (r *Statistics) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.connect(); err != nil {
		return err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.closing = false

	if r.options.SnapshotInterval > 0 {
		go r.publishSnapshots(bgCtx)
	}
	if r.options.ReconnectEnabled {
		go r.handleReconnection(bgCtx, r.notifyClose)
	}
	return nil
}

// connect expects the caller to hold the lock
func (r *Statistics) connect() error {
	conn, err := amqp.DialConfig(r.options.URI, amqp.Config{
		Heartbeat: r.options.Heartbeat,
		Dial:      amqp.DefaultDial(r.options.ConnectTimeout),
	})
	if err != nil {
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("failed to connect to RabbitMQ: %w", err))
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("failed to open channel: %w", err))
	}

	if err := r.declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	r.conn = conn
	r.channel = ch
	r.notifyClose = conn.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

// declare sets up the exchange and the optional retention queue
func (r *Statistics) declare(ch channel) error {
	if err := ch.ExchangeDeclare(
		r.options.Exchange,
		r.options.ExchangeType,
		r.options.ExchangeDurable,
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", r.options.Exchange, err)
	}

	if r.options.Queue == "" {
		return nil
	}

	if _, err := ch.QueueDeclare(
		r.options.Queue,
		r.options.QueueDurable,
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", r.options.Queue, err)
	}

	if err := ch.QueueBind(r.options.Queue, "#", r.options.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", r.options.Queue, err)
	}
	return nil
}

func (r *Statistics) handleReconnection(ctx context.Context, notifyClose <-chan *amqp.Error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-notifyClose:
			if !ok || err == nil {
				return
			}
			slog.Warn("Statistics connection closed, reconnecting...", "error", err)

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(r.options.ReconnectDelay):
				}

				r.mu.Lock()
				if r.closing {
					r.mu.Unlock()
					return
				}
				r.channel = nil
				err := r.connect()
				notifyClose = r.notifyClose
				r.mu.Unlock()

				if err == nil {
					slog.Info("Reconnected statistics to RabbitMQ")
					break
				}
				slog.Warn("Statistics reconnect failed", "error", err)
			}
		}
	}
}

// Close stops background routines and closes the connection
func (r *Statistics) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closing = true
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}

	var errs []error
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
		r.channel = nil
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		r.conn = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// Health reports whether events can be published
func (r *Statistics) Health() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.channel == nil {
		return errors.ErrNotConnected
	}
	if r.conn != nil && r.conn.IsClosed() {
		return errors.NewConnectionError(r.options.URI, fmt.Errorf("connection is closed"))
	}
	return nil
}

// Type returns the statistics backend type
func (r *Statistics) Type() string {
	return "rabbitmq"
}

// RegisterWorker records and announces a worker
func (r *Statistics) RegisterWorker(ctx context.Context, worker core.WorkerInfo) error {
	r.mu.Lock()
	r.workers[worker.ID] = worker
	r.mu.Unlock()

	return r.publish(ctx, "worker.registered", Event{WorkerID: worker.ID, Worker: &worker})
}

// UnregisterWorker forgets and announces a worker
func (r *Statistics) UnregisterWorker(ctx context.Context, workerID string) error {
	r.mu.Lock()
	_, exists := r.workers[workerID]
	delete(r.workers, workerID)
	r.mu.Unlock()

	if !exists {
		return nil
	}
	return r.publish(ctx, "worker.unregistered", Event{WorkerID: workerID})
}

// RecordJobStarted announces a claimed job
func (r *Statistics) RecordJobStarted(ctx context.Context, j *job.Job, worker core.WorkerInfo) error {
	return r.publish(ctx, "job.started", jobEvent(j, worker))
}

// RecordJobCompleted counts and announces a completed job
func (r *Statistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker core.WorkerInfo, duration time.Duration) error {
	r.mu.Lock()
	r.processed++
	r.mu.Unlock()

	event := jobEvent(j, worker)
	event.DurationMs = duration.Milliseconds()
	return r.publish(ctx, "job.completed", event)
}

// RecordJobFailed announces a failed attempt. Only final failures are
// counted; earlier ones are published as job.retrying.
func (r *Statistics) RecordJobFailed(ctx context.Context, j *job.Job, worker core.WorkerInfo, err error, duration time.Duration) error {
	key := "job.retrying"
	if j.Status == job.StatusFailed {
		key = "job.failed"
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
	}

	event := jobEvent(j, worker)
	event.Error = err.Error()
	event.DurationMs = duration.Milliseconds()
	return r.publish(ctx, key, event)
}

// Snapshot returns the counters seen by this process
func (r *Statistics) Snapshot(ctx context.Context) (core.StatsSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return core.StatsSnapshot{
		Processed: r.processed,
		Failed:    r.failed,
		Workers:   int64(len(r.workers)),
	}, nil
}

// Helper methods

func jobEvent(j *job.Job, worker core.WorkerInfo) Event {
	return Event{
		WorkerID: worker.ID,
		JobID:    j.ID,
		Type:     j.Type,
		Attempt:  j.Attempts,
	}
}

// publish sends one event. Failures are returned to the caller, which
// logs them; a statistics outage never affects job processing.
func (r *Statistics) publish(ctx context.Context, key string, event Event) error {
	r.mu.RLock()
	ch := r.channel
	r.mu.RUnlock()

	if ch == nil {
		return errors.ErrNotConnected
	}

	event.Event = key
	event.At = r.now().UTC()
	body, err := json.Marshal(event)
	if err != nil {
		return errors.NewSerializationError("json", err)
	}

	if err := ch.PublishWithContext(ctx, r.options.Exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.At,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}

func (r *Statistics) publishSnapshots(ctx context.Context) {
	ticker := time.NewTicker(r.options.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publishSnapshot(ctx)
		}
	}
}

func (r *Statistics) publishSnapshot(ctx context.Context) {
	snapshot, _ := r.Snapshot(ctx)
	if err := r.publish(ctx, "stats.snapshot", Event{Snapshot: &snapshot}); err != nil {
		slog.Warn("Failed to publish statistics snapshot", "error", err)
	}
}
