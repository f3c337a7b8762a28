package redis

import (
	"strconv"
	"time"
)

const (
	setPending    = "pending"
	setProcessing = "processing"
	setCompleted  = "completed"
	setFailed     = "failed"
)

func (s *Store) recordKey(id string) string {
	return s.namespace + "job:" + id
}

func (s *Store) setKey(name string) string {
	return s.namespace + name
}

func (s *Store) lockKey(id string) string {
	return s.namespace + "lock:" + id
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// exclusive formats an open upper bound for ZRANGEBYSCORE
func exclusive(score float64) string {
	return "(" + formatScore(score)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func ttlSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
