package memory

import "time"

// Options for the in-memory store
type Options struct {
	// ActiveTTL is the record lifetime while pending or processing
	ActiveTTL time.Duration

	// TerminalTTL is the record lifetime once completed or failed
	TerminalTTL time.Duration

	// ShortTTL replaces TerminalTTL when RemoveOnComplete or RemoveOnFail is set
	ShortTTL time.Duration

	// Clock returns the current time, time.Now when nil
	Clock func() time.Time
}

// DefaultOptions returns default memory store options
func DefaultOptions() Options {
	return Options{
		ActiveTTL:   7 * 24 * time.Hour,
		TerminalTTL: 7 * 24 * time.Hour,
		ShortTTL:    24 * time.Hour,
	}
}
