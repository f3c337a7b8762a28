package job

import (
	"fmt"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
)

// Options are the submission options accepted by Enqueue
type Options struct {
	// Delay postpones the first attempt
	Delay time.Duration

	// Attempts is the attempt ceiling, DefaultAttempts when zero
	Attempts int

	// Priority in [MinPriority, MaxPriority]
	Priority int

	// RemoveOnComplete shortens retention of the completed record
	RemoveOnComplete bool

	// RemoveOnFail shortens retention of the failed record
	RemoveOnFail bool
}

// WithDefaults fills zero values
func (o Options) WithDefaults() Options {
	if o.Attempts == 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	return o
}

// Validate checks option bounds
func (o Options) Validate() error {
	if o.Priority < MinPriority || o.Priority > MaxPriority {
		return fmt.Errorf("%w: %d outside [%d, %d]", errors.ErrInvalidPriority, o.Priority, MinPriority, MaxPriority)
	}
	if o.Attempts < 0 {
		return fmt.Errorf("%w: must not be negative, got %d", errors.ErrInvalidAttempts, o.Attempts)
	}
	return nil
}
