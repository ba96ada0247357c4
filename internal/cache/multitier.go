package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fugue-ai/rhema/internal/config"
	"github.com/fugue-ai/rhema/internal/logging"
	"github.com/fugue-ai/rhema/internal/metrics"
)

// MultiTier is the cache.type-selected combination of an L1 memory tier
// and, for "disk"/"hybrid", an L2 tier. Get checks L1 first, then L2 on
// miss; an L2 hit is promoted back into L1 before returning.
type MultiTier struct {
	l1 *MemTier
	l2 Tier // nil for cache.type=memory

	defaultTTL time.Duration
	log        *logging.Logger
	metrics    *metrics.Metrics

	totalRequests int64
	totalLatency  int64
}

// New builds a MultiTier from daemon configuration. redisClient is only
// used when cfg.Type == "hybrid"; pass nil otherwise.
func New(cfg config.CacheConfig, baseDir string, redisClient *redis.Client, log *logging.Logger, m *metrics.Metrics) (*MultiTier, error) {
	mt := &MultiTier{
		l1:         NewMemTier(cfg.MaxSizeBytes),
		defaultTTL: time.Duration(cfg.TTLS) * time.Second,
		log:        log,
		metrics:    m,
	}

	switch cfg.Type {
	case "memory":
		// L1 only.
	case "disk":
		ft, err := NewFileTier(baseDir)
		if err != nil {
			return nil, fmt.Errorf("creating disk cache tier: %w", err)
		}
		mt.l2 = ft
	case "hybrid":
		if redisClient == nil {
			return nil, fmt.Errorf("cache.type=hybrid requires a redis client")
		}
		mt.l2 = NewRedisTier(redisClient, "rhema:cache:")
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}

	return mt, nil
}

// Get checks L1, then L2 on miss, promoting an L2 hit back into L1.
func (mt *MultiTier) Get(ctx context.Context, key string) ([]byte, bool) {
	start := time.Now()
	defer mt.recordLatency(start)

	if v, ok := mt.l1.Get(ctx, key); ok {
		mt.record("memory", true)
		return v, true
	}
	mt.record("memory", false)

	if mt.l2 == nil {
		return nil, false
	}

	v, ok := mt.l2.Get(ctx, key)
	if !ok {
		mt.record("disk", false)
		return nil, false
	}
	mt.record("disk", true)
	_ = mt.l1.Put(ctx, key, v, mt.defaultTTL)
	return v, true
}

// Put writes through to every configured tier.
func (mt *MultiTier) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = mt.defaultTTL
	}
	if err := mt.l1.Put(ctx, key, value, ttl); err != nil {
		return err
	}
	if mt.l2 != nil {
		if err := mt.l2.Put(ctx, key, value, ttl); err != nil {
			if mt.log != nil {
				mt.log.WithError(err).Warn("L2 cache put failed; continuing with L1 only")
			}
		}
	}
	return nil
}

// Invalidate purges pattern from every tier atomically with respect to
// callers of Get/Put: both tiers are invalidated before this returns.
func (mt *MultiTier) Invalidate(ctx context.Context, pattern string) error {
	if err := mt.l1.Invalidate(ctx, pattern); err != nil {
		return err
	}
	if mt.l2 != nil {
		return mt.l2.Invalidate(ctx, pattern)
	}
	return nil
}

// Metrics reports the §4.F metrics() contract across all configured tiers.
func (mt *MultiTier) Metrics() Metrics {
	l1 := mt.l1.Metrics()
	var l2 TierMetrics
	if mt.l2 != nil {
		l2 = mt.l2.Metrics()
	}

	hits := l1.Hits + l2.Hits
	misses := l1.Misses + l2.Misses
	total := hits + misses

	out := Metrics{
		TotalRequests: total,
		MemoryBytes:   l1.Bytes,
		DiskBytes:     l2.Bytes,
	}
	if total > 0 {
		out.HitRate = float64(hits) / float64(total)
		out.MissRate = float64(misses) / float64(total)
	}

	reqs := atomic.LoadInt64(&mt.totalRequests)
	if reqs > 0 {
		out.AvgResponseMs = float64(atomic.LoadInt64(&mt.totalLatency)) / float64(reqs) / 1e6
	}
	return out
}

// Sweep drives the background expired-entry sweep and eviction-policy
// adaptation for every tier; called on a fixed cadence (see sweeper.go).
func (mt *MultiTier) Sweep(now time.Time) {
	mt.l1.Sweep(now)
	if mt.l2 != nil {
		mt.l2.Sweep(now)
	}
}

func (mt *MultiTier) Close() error {
	if mt.l2 != nil {
		return mt.l2.Close()
	}
	return nil
}

func (mt *MultiTier) record(tier string, hit bool) {
	if mt.metrics == nil {
		return
	}
	if hit {
		mt.metrics.RecordCacheHit(tier)
	} else {
		mt.metrics.RecordCacheMiss(tier)
	}
}

func (mt *MultiTier) recordLatency(start time.Time) {
	atomic.AddInt64(&mt.totalRequests, 1)
	atomic.AddInt64(&mt.totalLatency, time.Since(start).Nanoseconds())
}
