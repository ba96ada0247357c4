package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemTier is the L1 in-memory cache tier: a bounded map guarded by an
// RWMutex, evicted under the weighted LRU/LFU policy in eviction.go.
type MemTier struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	maxBytes int64
	used     int64
	policy   *evictionPolicy

	hits, misses     int64
	totalLatencyNs   int64
	totalRequests    int64
}

// NewMemTier creates an L1 tier with the given byte budget. maxBytes <= 0
// means unbounded (eviction never triggers on size, only on TTL).
func NewMemTier(maxBytes int64) *MemTier {
	return &MemTier{
		entries:  make(map[string]*entry),
		maxBytes: maxBytes,
		policy:   newEvictionPolicy(),
	}
}

func (t *MemTier) Get(_ context.Context, key string) ([]byte, bool) {
	start := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		t.missLocked(start)
		return nil, false
	}
	now := time.Now()
	if e.expired(now) {
		t.evictLocked(key, e)
		t.missLocked(start)
		return nil, false
	}
	e.touch(now)
	t.hitLocked(start)
	return e.value, true
}

func (t *MemTier) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	e := newEntry(value, ttl, now)

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[key]; ok {
		t.used -= int64(old.size)
	}
	t.entries[key] = e
	t.used += int64(e.size)

	t.evictToFitLocked(now)
	return nil
}

func (t *MemTier) evictToFitLocked(now time.Time) {
	if t.maxBytes <= 0 {
		return
	}
	for t.used > t.maxBytes && len(t.entries) > 0 {
		var worstKey string
		var worstEntry *entry
		worstPriority := 0.0
		first := true
		for k, e := range t.entries {
			p := t.policy.priority(e, now)
			if first || p < worstPriority {
				worstPriority = p
				worstKey = k
				worstEntry = e
				first = false
			}
		}
		if worstEntry == nil {
			return
		}
		t.evictLocked(worstKey, worstEntry)
	}
}

func (t *MemTier) evictLocked(key string, e *entry) {
	delete(t.entries, key)
	t.used -= int64(e.size)
}

func (t *MemTier) Invalidate(_ context.Context, pattern string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, e := range t.entries {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return err
		}
		if matched {
			t.evictLocked(key, e)
		}
	}
	return nil
}

// Sweep removes expired entries and re-tunes the eviction policy toward the
// hit rate observed since the tier was created. Called on a fixed cadence
// by the package's cron-driven sweeper.
func (t *MemTier) Sweep(now time.Time) {
	t.mu.Lock()
	for key, e := range t.entries {
		if e.expired(now) {
			t.evictLocked(key, e)
		}
	}
	hits, misses := t.hits, t.misses
	t.mu.Unlock()

	total := hits + misses
	if total > 0 {
		t.policy.adapt(float64(hits) / float64(total))
	}
}

func (t *MemTier) Metrics() TierMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TierMetrics{
		Hits:       t.hits,
		Misses:     t.misses,
		Bytes:      t.used,
		EntryCount: len(t.entries),
	}
}

func (t *MemTier) Close() error { return nil }

func (t *MemTier) hitLocked(start time.Time) {
	t.hits++
	t.totalRequests++
	t.totalLatencyNs += time.Since(start).Nanoseconds()
}

func (t *MemTier) missLocked(start time.Time) {
	t.misses++
	t.totalRequests++
	t.totalLatencyNs += time.Since(start).Nanoseconds()
}
