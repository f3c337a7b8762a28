package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BranchIntl/jobqueue/errors"
	"github.com/BranchIntl/jobqueue/lock"
	"github.com/gomodule/redigo/redis"
)

// DefaultLockTTL bounds how long a crashed worker can hold a job
const DefaultLockTTL = 5 * time.Minute

// releaseScript deletes the lock only while it still carries our value
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements lock.Locker with SET NX PX on the store's pool
type Locker struct {
	store *Store
	owner string
	ttl   time.Duration
	now   func() time.Time

	mu   sync.Mutex
	held map[string]string // job id -> lock value
}

// NewLocker creates a lock manager for the worker identified by owner
func NewLocker(store *Store, owner string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Locker{
		store: store,
		owner: owner,
		ttl:   ttl,
		now:   time.Now,
		held:  make(map[string]string),
	}
}

// Owner returns the worker identity written into lock values
func (l *Locker) Owner() string {
	return l.owner
}

// Acquire tries to take the lock for jobID
func (l *Locker) Acquire(ctx context.Context, jobID string) (lock.Outcome, error) {
	conn, err := l.store.conn(ctx)
	if err != nil {
		return lock.Unavailable, err
	}
	defer conn.Close()

	value := fmt.Sprintf("%s:%d", l.owner, l.now().UnixMilli())
	reply, err := redis.String(conn.Do("SET", l.store.lockKey(jobID), value,
		"NX", "PX", l.ttl.Milliseconds()))
	if err == redis.ErrNil {
		return lock.Contended, nil
	}
	if err != nil {
		err = l.store.classify(err)
		if errors.IsUnavailable(err) {
			return lock.Unavailable, err
		}
		return lock.Unavailable, errors.NewStoreError("lock", jobID, err)
	}
	if reply != "OK" {
		return lock.Contended, nil
	}

	l.mu.Lock()
	l.held[jobID] = value
	l.mu.Unlock()
	return lock.Acquired, nil
}

// Release removes the lock if this worker still owns it. It reports
// whether a lock was deleted.
func (l *Locker) Release(ctx context.Context, jobID string) (bool, error) {
	l.mu.Lock()
	value, ok := l.held[jobID]
	delete(l.held, jobID)
	l.mu.Unlock()
	if !ok {
		return false, nil
	}

	conn, err := l.store.conn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	deleted, err := redis.Int(releaseScript.Do(conn, l.store.lockKey(jobID), value))
	if err != nil {
		return false, errors.NewStoreError("unlock", jobID, l.store.classify(err))
	}
	return deleted == 1, nil
}
