package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentRegistry_RegisterIdempotent(t *testing.T) {
	r := NewAgentRegistry(time.Second)
	r.Register("agent-1", []string{"code"})
	r.Register("agent-1", []string{"code", "review"})

	a, ok := r.Get("agent-1")
	require.True(t, ok)
	assert.Equal(t, []string{"code", "review"}, a.Capabilities)
	assert.Len(t, r.List(), 1)
}

func TestAgentRegistry_ReRegisterClearsCrashed(t *testing.T) {
	r := NewAgentRegistry(time.Second)
	r.Register("agent-1", nil)
	r.SetState("agent-1", AgentCrashed, "")

	r.Register("agent-1", nil)

	a, ok := r.Get("agent-1")
	require.True(t, ok)
	assert.Equal(t, AgentIdle, a.State)
}

func TestAgentRegistry_HeartbeatUnknownAgent(t *testing.T) {
	r := NewAgentRegistry(time.Second)
	err := r.Heartbeat("ghost")
	assert.Error(t, err)
}

func TestAgentRegistry_ScanForCrashed(t *testing.T) {
	r := NewAgentRegistry(50 * time.Millisecond)
	r.Register("agent-1", nil)
	r.Register("agent-2", nil)
	require.NoError(t, r.Heartbeat("agent-2"))

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, r.Heartbeat("agent-2"))

	crashed := r.ScanForCrashed(time.Now())
	assert.Contains(t, crashed, "agent-1")
	assert.NotContains(t, crashed, "agent-2")

	a1, _ := r.Get("agent-1")
	assert.Equal(t, AgentCrashed, a1.State)

	// A second scan should not re-report the same agent.
	crashed = r.ScanForCrashed(time.Now())
	assert.NotContains(t, crashed, "agent-1")
}
