package core

import (
	"time"
)

// DefaultEpoch is the origin of score ready-times
var DefaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Config holds queue configuration
type Config struct {
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	WorkerID        string

	// Score construction
	Epoch       time.Time
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Sequence    Sequence

	// Maintenance runs every MaintenanceEvery ticks; zero disables it
	MaintenanceEvery int
	StalledAfter     time.Duration
	RetentionWindow  time.Duration

	Clock func() time.Time
}

// Option is a function that modifies queue configuration
type Option func(*Config)

// defaultConfig returns default configuration
func defaultConfig() *Config {
	return &Config{
		PollInterval:     time.Second,
		ShutdownTimeout:  30 * time.Second,
		Epoch:            DefaultEpoch,
		BackoffBase:      time.Second,
		BackoffMax:       time.Hour,
		MaintenanceEvery: 60,
		StalledAfter:     10 * time.Minute,
		RetentionWindow:  7 * 24 * time.Hour,
		Clock:            time.Now,
	}
}

// WithPollInterval sets the interval between scheduler ticks
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = d
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}

// WithWorkerID sets the identity reported to statistics. Defaults to the
// lock owner.
func WithWorkerID(id string) Option {
	return func(c *Config) {
		c.WorkerID = id
	}
}

// WithEpoch sets the origin of score ready-times
func WithEpoch(epoch time.Time) Option {
	return func(c *Config) {
		c.Epoch = epoch
	}
}

// WithBackoff sets the retry delay base and ceiling
func WithBackoff(base, max time.Duration) Option {
	return func(c *Config) {
		c.BackoffBase = base
		c.BackoffMax = max
	}
}

// WithSequence sets the submission counter used for FIFO tie-breaks
func WithSequence(seq Sequence) Option {
	return func(c *Config) {
		c.Sequence = seq
	}
}

// WithMaintenance sets how often stalled jobs are requeued and terminal
// sets trimmed, counted in ticks
func WithMaintenance(everyTicks int, stalledAfter, retention time.Duration) Option {
	return func(c *Config) {
		c.MaintenanceEvery = everyTicks
		c.StalledAfter = stalledAfter
		c.RetentionWindow = retention
	}
}

// WithClock replaces time.Now
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}
