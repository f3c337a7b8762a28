package core

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/BranchIntl/jobqueue/job"
)

const (
	// counterBand is the number of distinct counter fractions
	counterBand = 8

	// counterUnit is a power of two so counter fractions add exactly while
	// readyAt stays below 2^39 ms (mid 2041 from DefaultEpoch). The largest
	// counter fraction, 7/8192, leaves more than one float64 ulp of that
	// range below the next priority unit (1/1000).
	counterUnit = 1.0 / (1 << 13)

	// retryOffset replaces the counter fraction on retry
	retryOffset = counterUnit
)

// Sequence hands out submission numbers
type Sequence interface {
	Next() uint64
}

// AtomicSequence is a process-local Sequence starting at zero
type AtomicSequence struct {
	n atomic.Uint64
}

// Next returns the next number
func (s *AtomicSequence) Next() uint64 {
	return s.n.Add(1) - 1
}

// Scorer computes pending-set scores. A lower score runs first:
//
//	score = readyAt + (999 - priority)/1000 + (seq mod 8)/8192
//
// readyAt is in milliseconds since the epoch, so the priority and counter
// fractions only order jobs that become ready in the same millisecond.
// Equal scores are ordered by member, and UUIDv7 ids keep that in
// submission order.
type Scorer struct {
	epoch time.Time
	seq   Sequence
	base  time.Duration
	max   time.Duration
}

// NewScorer creates a scorer
func NewScorer(epoch time.Time, seq Sequence, base, max time.Duration) *Scorer {
	if seq == nil {
		seq = &AtomicSequence{}
	}
	return &Scorer{epoch: epoch, seq: seq, base: base, max: max}
}

// Score returns the score of a new submission becoming ready at readyAt
func (s *Scorer) Score(readyAt time.Time, priority int) float64 {
	counter := float64(s.seq.Next()%counterBand) * counterUnit
	return s.millis(readyAt) + priorityFraction(priority) + counter
}

// RetryScore returns the score of a retry after a failed attempt. The
// counter is not advanced.
func (s *Scorer) RetryScore(now time.Time, priority, attempts int) float64 {
	return s.millis(now.Add(s.Backoff(attempts))) + priorityFraction(priority) + retryOffset
}

// Backoff returns base * 2^(attempts-1), capped at the configured maximum
func (s *Scorer) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := s.base
	for i := 1; i < attempts; i++ {
		if (s.max > 0 && delay >= s.max) || delay > math.MaxInt64/2 {
			break
		}
		delay *= 2
	}
	if s.max > 0 && delay > s.max {
		delay = s.max
	}
	return delay
}

// ReadyBound returns the exclusive upper score of jobs ready at now
func (s *Scorer) ReadyBound(now time.Time) float64 {
	return s.millis(now) + 1
}

func (s *Scorer) millis(t time.Time) float64 {
	return float64(t.Sub(s.epoch).Milliseconds())
}

func priorityFraction(priority int) float64 {
	return float64(job.MaxPriority-priority) / 1000
}
