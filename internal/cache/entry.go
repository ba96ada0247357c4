package cache

import "time"

// entry is one cached value plus the bookkeeping the eviction policy and
// metrics need. value is always a caller-marshaled byte slice: the cache
// itself never interprets cached content, which keeps it usable for
// documents, lock data and query results alike.
type entry struct {
	value       []byte
	expiresAt   time.Time
	size        int
	accessCount int64
	lastAccess  time.Time
}

func newEntry(value []byte, ttl time.Duration, now time.Time) *entry {
	e := &entry{
		value:      value,
		size:       len(value),
		lastAccess: now,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	return e
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (e *entry) touch(now time.Time) {
	e.accessCount++
	e.lastAccess = now
}
