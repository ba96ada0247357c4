package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema/internal/config"
)

func TestMultiTier_MemoryOnly(t *testing.T) {
	mt, err := New(config.CacheConfig{Type: "memory", TTLS: 60}, t.TempDir(), nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, mt.Put(ctx, "k", []byte("v"), 0))
	v, ok := mt.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestMultiTier_DiskPromotesToL1(t *testing.T) {
	mt, err := New(config.CacheConfig{Type: "disk", TTLS: 60}, t.TempDir(), nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, mt.l2.Put(ctx, "k", []byte("from-l2"), time.Minute))

	v, ok := mt.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("from-l2"), v)

	v2, ok := mt.l1.Get(ctx, "k")
	require.True(t, ok, "L2 hit should promote into L1")
	assert.Equal(t, []byte("from-l2"), v2)
}

func TestMultiTier_InvalidateAcrossTiers(t *testing.T) {
	mt, err := New(config.CacheConfig{Type: "disk", TTLS: 60}, t.TempDir(), nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, mt.Put(ctx, "scope/a/doc", []byte("1"), 0))
	require.NoError(t, mt.Invalidate(ctx, "scope/*/doc"))

	_, ok := mt.Get(ctx, "scope/a/doc")
	assert.False(t, ok)
}

func TestMultiTier_Metrics(t *testing.T) {
	mt, err := New(config.CacheConfig{Type: "memory", TTLS: 60}, t.TempDir(), nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, mt.Put(ctx, "k", []byte("v"), 0))
	mt.Get(ctx, "k")
	mt.Get(ctx, "missing")

	m := mt.Metrics()
	assert.Equal(t, int64(2), m.TotalRequests)
	assert.InDelta(t, 0.5, m.HitRate, 0.01)
}

func TestMultiTier_UnknownType(t *testing.T) {
	_, err := New(config.CacheConfig{Type: "nvme"}, t.TempDir(), nil, nil, nil)
	assert.Error(t, err)
}
