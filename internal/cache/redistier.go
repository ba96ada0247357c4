package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisTier is the shared L2 backend selected by cache.type=hybrid, for
// daemon deployments that want one L2 across multiple worktree checkouts
// of the same repository rather than each process keeping its own disk
// cache.
type RedisTier struct {
	client *redis.Client
	prefix string
	hits   int64
	misses int64
}

// NewRedisTier wraps an existing client. keyPrefix namespaces every key so
// one Redis instance can back several daemons.
func NewRedisTier(client *redis.Client, keyPrefix string) *RedisTier {
	return &RedisTier{client: client, prefix: keyPrefix}
}

func (t *RedisTier) namespaced(key string) string { return t.prefix + key }

func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := t.client.Get(ctx, t.namespaced(key)).Bytes()
	if err != nil {
		atomic.AddInt64(&t.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&t.hits, 1)
	return val, true
}

func (t *RedisTier) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.client.Set(ctx, t.namespaced(key), value, ttl).Err()
}

// Invalidate deletes every key matching pattern via SCAN, never KEYS, so a
// large keyspace never blocks the Redis event loop.
func (t *RedisTier) Invalidate(ctx context.Context, pattern string) error {
	iter := t.client.Scan(ctx, 0, t.namespaced(pattern), 0).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 256 {
			if err := t.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return t.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Sweep is a no-op: Redis expires keys itself via their TTL.
func (t *RedisTier) Sweep(time.Time) {}

func (t *RedisTier) Metrics() TierMetrics {
	ctx := context.Background()
	var count int
	iter := t.client.Scan(ctx, 0, t.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	var bytes int64
	if info, err := t.client.Info(ctx, "memory").Result(); err == nil {
		bytes = parseRedisUsedMemory(info)
	}
	return TierMetrics{
		Hits:       atomic.LoadInt64(&t.hits),
		Misses:     atomic.LoadInt64(&t.misses),
		Bytes:      bytes,
		EntryCount: count,
	}
}

func (t *RedisTier) Close() error { return t.client.Close() }

// parseRedisUsedMemory extracts used_memory from an INFO memory section
// reply without pulling in a full INFO parser.
func parseRedisUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, "used_memory:") {
			var n int64
			for _, c := range strings.TrimPrefix(line, "used_memory:") {
				if c < '0' || c > '9' {
					break
				}
				n = n*10 + int64(c-'0')
			}
			return n
		}
	}
	return 0
}
