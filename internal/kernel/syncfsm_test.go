package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncManager_S4_DependencyPrecondition(t *testing.T) {
	sm := NewSyncManager(3)
	sm.RegisterScope("A", nil)
	sm.RegisterScope("B", []string{"A"})

	_, err := sm.BeginSync("B", "agent-1")
	require.Error(t, err, "B should not sync while A is idle")

	tokenA, err := sm.BeginSync("A", "agent-1")
	require.NoError(t, err)
	_, _, err = sm.CompleteSync(tokenA, true)
	require.NoError(t, err)

	tokenB, err := sm.BeginSync("B", "agent-1")
	require.NoError(t, err, "B should sync once A is completed")
	assert.NotEmpty(t, tokenB)
}

func TestSyncManager_SingleScopeNoDeps(t *testing.T) {
	sm := NewSyncManager(3)
	sm.RegisterScope("solo", nil)

	_, err := sm.BeginSync("solo", "agent-1")
	assert.NoError(t, err)
}

func TestSyncManager_RetryBoundedAfterFailures(t *testing.T) {
	sm := NewSyncManager(2)
	sm.RegisterScope("S", nil)

	for i := 0; i < 2; i++ {
		token, err := sm.BeginSync("S", "agent-1")
		require.NoError(t, err)
		_, _, err = sm.CompleteSync(token, false)
		require.NoError(t, err)
		require.NoError(t, sm.ScheduleRetry("S"))
	}

	token, err := sm.BeginSync("S", "agent-1")
	require.NoError(t, err)
	_, retryCount, err := sm.CompleteSync(token, false)
	require.NoError(t, err)
	assert.Equal(t, 3, retryCount)

	err = sm.ScheduleRetry("S")
	assert.Error(t, err, "retry budget should be exhausted")
}

func TestSyncManager_CompleteSyncUnknownToken(t *testing.T) {
	sm := NewSyncManager(3)
	_, _, err := sm.CompleteSync("bogus", true)
	assert.Error(t, err)
}
