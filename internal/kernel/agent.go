package kernel

import (
	"sync"
	"time"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// AgentRegistry tracks every registered agent's lifecycle state and last
// heartbeat, and detects crashes by heartbeat absence.
type AgentRegistry struct {
	mu               sync.Mutex
	agents           map[string]*Agent
	heartbeatTimeout time.Duration
}

// NewAgentRegistry creates a registry with the given HeartbeatTimeout
// (config.KernelConfig.HeartbeatTimeoutS).
func NewAgentRegistry(heartbeatTimeout time.Duration) *AgentRegistry {
	return &AgentRegistry{
		agents:           make(map[string]*Agent),
		heartbeatTimeout: heartbeatTimeout,
	}
}

// Register is idempotent: re-registering a known agent refreshes its
// heartbeat and capabilities rather than erroring, and clears a prior
// `crashed` state back to idle (§4.B: "mark its state idle on
// re-registration").
func (r *AgentRegistry) Register(id string, capabilities []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if a, ok := r.agents[id]; ok {
		a.Capabilities = capabilities
		a.LastSeen = now
		if a.State == AgentCrashed {
			a.State = AgentIdle
		}
		return
	}
	r.agents[id] = &Agent{
		ID:           id,
		Capabilities: capabilities,
		State:        AgentIdle,
		LastSeen:     now,
		RegisteredAt: now,
	}
}

// Heartbeat refreshes an agent's last-seen time.
func (r *AgentRegistry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return rerrors.New(rerrors.CodeUnknownEntity, "unknown agent").WithDetails("agent", id)
	}
	a.LastSeen = time.Now()
	return nil
}

// SetState transitions an agent's lifecycle state directly. Used by the
// lock manager integration in kernel.go (idle/working/completed) and by
// crash recovery.
func (r *AgentRegistry) SetState(id string, state AgentState, heldScope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	a.State = state
	a.HeldScope = heldScope
}

// Get returns a snapshot of one agent.
func (r *AgentRegistry) Get(id string) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// List returns a snapshot of every registered agent.
func (r *AgentRegistry) List() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	return out
}

// ScanForCrashed marks every agent whose last heartbeat is older than
// heartbeatTimeout as crashed, returning the newly-crashed agent IDs so the
// caller can release their locks and fail their in-flight syncs.
func (r *AgentRegistry) ScanForCrashed(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var crashed []string
	for id, a := range r.agents {
		if a.State == AgentCrashed {
			continue
		}
		if now.Sub(a.LastSeen) >= r.heartbeatTimeout {
			a.State = AgentCrashed
			crashed = append(crashed, id)
		}
	}
	return crashed
}
