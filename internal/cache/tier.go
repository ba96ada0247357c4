// Package cache implements the multi-tier (L1 memory + L2 disk/redis)
// cache in front of loaded context documents, resolved lock data and query
// results (§4.F). Every write path that touches the context store or
// switches the current Git branch must call Invalidate before returning
// success — this package only enforces atomicity within itself, callers
// own correctness of what they invalidate.
package cache

import (
	"context"
	"time"
)

// Tier is one layer of the cache (L1 memory, L2 disk, L2 redis). All
// methods must be safe for concurrent use.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
	Sweep(now time.Time)
	Metrics() TierMetrics
	Close() error
}

// TierMetrics is one tier's contribution to Metrics.
type TierMetrics struct {
	Hits       int64
	Misses     int64
	Bytes      int64
	EntryCount int
}

// Metrics is the cache-wide view returned by (*MultiTier).Metrics, per the
// §4.F contract: hit_rate, miss_rate, total_requests, avg_response_ms,
// memory_bytes, disk_bytes.
type Metrics struct {
	HitRate       float64
	MissRate      float64
	TotalRequests int64
	AvgResponseMs float64
	MemoryBytes   int64
	DiskBytes     int64
}
