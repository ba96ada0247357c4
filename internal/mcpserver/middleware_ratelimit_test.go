package mcpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsBurstThenBlocks(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)

	assert.True(t, rl.Allow("client-1"))
	assert.True(t, rl.Allow("client-1"))
	assert.False(t, rl.Allow("client-1"), "third request within the same instant should exceed burst=2")
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)

	assert.True(t, rl.Allow("client-1"))
	assert.True(t, rl.Allow("client-2"), "a distinct key must have its own bucket")
}

func TestRateLimiter_CleanupEvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(10, 10, nil)
	rl.SetLimiterTTL(time.Millisecond)

	rl.Allow("client-1")
	assert.Equal(t, 1, rl.LimiterCount())

	time.Sleep(5 * time.Millisecond)
	rl.Cleanup()
	assert.Equal(t, 0, rl.LimiterCount())
}

func TestRateLimiter_CleanupResetsOnMaxSizeWithoutTTL(t *testing.T) {
	rl := NewRateLimiter(10, 10, nil)
	rl.SetMaxSize(2)

	rl.Allow("client-1")
	rl.Allow("client-2")
	rl.Allow("client-3")
	assert.Equal(t, 3, rl.LimiterCount())

	rl.Cleanup()
	assert.Equal(t, 0, rl.LimiterCount(), "exceeding maxSize with no TTL configured resets the whole map")
}

func TestNewRateLimiterWithWindow_DerivesSustainedRate(t *testing.T) {
	rl := NewRateLimiterWithWindow(60, time.Minute, 60, nil)
	assert.Equal(t, time.Minute, rl.window)
	assert.Equal(t, 60, rl.limit)
}
