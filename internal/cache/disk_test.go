package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTier_PutGet(t *testing.T) {
	tier, err := NewFileTier(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, tier.Put(ctx, "k", []byte("v"), time.Minute))
	v, ok := tier.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestFileTier_CorruptedEntryIsSilentMiss(t *testing.T) {
	dir := t.TempDir()
	tier, err := NewFileTier(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, tier.Put(ctx, "k", []byte("v"), time.Minute))

	// Corrupt the backing file directly.
	require.NoError(t, os.WriteFile(tier.pathFor("k"), []byte("{not json"), 0o644))

	_, ok := tier.Get(ctx, "k")
	assert.False(t, ok, "corrupted disk entries must read back as a miss, not an error")
}

func TestFileTier_ExpiredEntryIsMiss(t *testing.T) {
	tier, err := NewFileTier(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, tier.Put(ctx, "k", []byte("v"), time.Nanosecond))
	time.Sleep(time.Millisecond)

	_, ok := tier.Get(ctx, "k")
	assert.False(t, ok)
}

func TestFileTier_InvalidatePattern(t *testing.T) {
	tier, err := NewFileTier(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, tier.Put(ctx, "scope/a/doc", []byte("1"), time.Minute))
	require.NoError(t, tier.Put(ctx, "other/doc", []byte("2"), time.Minute))

	require.NoError(t, tier.Invalidate(ctx, "scope/*/doc"))

	_, aOK := tier.Get(ctx, "scope/a/doc")
	_, oOK := tier.Get(ctx, "other/doc")
	assert.False(t, aOK)
	assert.True(t, oOK)
}
