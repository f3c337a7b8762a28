package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/BranchIntl/jobqueue/lock"
)

// DefaultLockTTL bounds how long a crashed worker can hold a job
const DefaultLockTTL = 5 * time.Minute

// Locker implements lock.Locker over the store's lock table. Lockers
// created on the same Store contend with each other.
type Locker struct {
	store *Store
	owner string
	ttl   time.Duration
}

// NewLocker creates a lock manager for the worker identified by owner
func NewLocker(store *Store, owner string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Locker{store: store, owner: owner, ttl: ttl}
}

// Owner returns the worker identity written into lock values
func (l *Locker) Owner() string {
	return l.owner
}

// Acquire tries to take the lock for jobID
func (l *Locker) Acquire(ctx context.Context, jobID string) (lock.Outcome, error) {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return lock.Unavailable, err
	}
	if _, held := s.lock(jobID); held {
		return lock.Contended, nil
	}

	now := s.now()
	s.locks[jobID] = heldLock{
		value:     fmt.Sprintf("%s:%d", l.owner, now.UnixMilli()),
		expiresAt: now.Add(l.ttl),
	}
	return lock.Acquired, nil
}

// Release removes the lock if this worker still owns it
func (l *Locker) Release(ctx context.Context, jobID string) (bool, error) {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return false, err
	}
	held, ok := s.lock(jobID)
	if !ok || !ownedBy(held.value, l.owner) {
		return false, nil
	}
	delete(s.locks, jobID)
	return true, nil
}

func ownedBy(value, owner string) bool {
	prefix := owner + ":"
	if len(value) <= len(prefix) || value[:len(prefix)] != prefix {
		return false
	}
	for _, c := range value[len(prefix):] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
