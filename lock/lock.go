// Package lock defines the outcome of a per-job advisory lock attempt.
package lock

import "context"

// Outcome is the result of an acquire attempt
type Outcome int

const (
	// Acquired means the caller now owns the lock
	Acquired Outcome = iota
	// Contended means another worker holds the lock. Not an error.
	Contended
	// Unavailable means the coordination store could not be reached
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Acquired:
		return "acquired"
	case Contended:
		return "contended"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Locker grants per-job ownership markers. Release only removes a lock that
// still belongs to the caller.
type Locker interface {
	Acquire(ctx context.Context, jobID string) (Outcome, error)
	Release(ctx context.Context, jobID string) (bool, error)
	Owner() string
}
