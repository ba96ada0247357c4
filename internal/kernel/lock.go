package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// waiter is one blocked acquirer in a scope's fair FIFO queue.
type waiter struct {
	agentID string
	grant   chan struct{} // closed when this waiter becomes the owner
}

// scopeLock is the exclusive-ownership record for one scope.
type scopeLock struct {
	mu    sync.Mutex
	owner string // agent ID, empty when unlocked
	queue []*waiter
}

// capWaiter is one agent blocked purely on the global MaxConcurrentAgents
// cap, queued independently of any particular scope's own waiter list.
type capWaiter struct {
	agentID string
	grant   chan struct{}
}

// LockManager enforces the kernel's core safety invariants: lock
// exclusivity (at most one owner per scope), at-most-one-lock-per-agent,
// the MaxBlockTime liveness bound on any blocked acquirer, and bounded
// concurrency (§4.B: at most MaxConcurrentAgents agents in `working`
// simultaneously, across every scope, with the oldest capacity-blocked
// agent granted first when a slot frees).
type LockManager struct {
	mu            sync.Mutex
	scopes        map[string]*scopeLock
	agentScope    map[string]string // agent ID -> scope currently held
	maxBlockTime  time.Duration
	maxConcurrent int // 0 means unbounded
	capInUse      int
	capQueue      []*capWaiter
}

// NewLockManager creates a lock manager with the given MaxBlockTime bound
// and MaxConcurrentAgents cap (0 or negative means unbounded, matching the
// pre-§4.B-fix behavior for callers that don't care about the global cap).
func NewLockManager(maxBlockTime time.Duration, maxConcurrentAgents int) *LockManager {
	return &LockManager{
		scopes:        make(map[string]*scopeLock),
		agentScope:    make(map[string]string),
		maxBlockTime:  maxBlockTime,
		maxConcurrent: maxConcurrentAgents,
	}
}

func (m *LockManager) scopeFor(scope string) *scopeLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[scope]
	if !ok {
		s = &scopeLock{}
		m.scopes[scope] = s
	}
	return s
}

// LockGrant is the token returned by a successful AcquireScopeLock.
type LockGrant struct {
	AgentID   string
	Scope     string
	Token     string
	GrantedAt time.Time
}

// AcquireScopeLock blocks until the scope is granted to agentID or
// deadline/ctx/MaxBlockTime expires, whichever is soonest. Returns
// rerrors.CodeAgentAlreadyHolds if the agent already owns any scope lock,
// this scope included (at-most-one-lock-per-agent is enforced here, not just observed),
// and rerrors.CodeTimeout on expiry, unblocking the agent.
func (m *LockManager) AcquireScopeLock(ctx context.Context, agentID, scope string, deadline time.Time) (*LockGrant, error) {
	m.mu.Lock()
	if held, ok := m.agentScope[agentID]; ok {
		m.mu.Unlock()
		return nil, rerrors.New(rerrors.CodeAgentAlreadyHolds, "agent already holds a scope lock").
			WithDetails("agent", agentID).WithDetails("held_scope", held)
	}
	m.mu.Unlock()

	if err := m.acquireCapacity(ctx, agentID, deadline); err != nil {
		return nil, err
	}

	sl := m.scopeFor(scope)

	sl.mu.Lock()
	if sl.owner == "" {
		sl.owner = agentID
		sl.mu.Unlock()
		m.recordHeld(agentID, scope)
		return &LockGrant{AgentID: agentID, Scope: scope, Token: uuid.New().String(), GrantedAt: time.Now()}, nil
	}
	w := &waiter{agentID: agentID, grant: make(chan struct{})}
	sl.queue = append(sl.queue, w)
	sl.mu.Unlock()

	timeout := m.maxBlockTime
	if !deadline.IsZero() {
		if d := time.Until(deadline); d < timeout || timeout <= 0 {
			timeout = d
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.grant:
		m.recordHeld(agentID, scope)
		return &LockGrant{AgentID: agentID, Scope: scope, Token: uuid.New().String(), GrantedAt: time.Now()}, nil
	case <-timer.C:
		m.removeWaiter(sl, w)
		m.releaseCapacity()
		return nil, rerrors.New(rerrors.CodeTimeout, "timed out waiting for scope lock").
			WithDetails("agent", agentID).WithDetails("scope", scope)
	case <-ctx.Done():
		m.removeWaiter(sl, w)
		m.releaseCapacity()
		return nil, rerrors.Wrap(rerrors.CodeCancelled, "acquire cancelled", ctx.Err()).
			WithDetails("agent", agentID).WithDetails("scope", scope)
	}
}

// acquireCapacity blocks until a global MaxConcurrentAgents slot is free,
// the deadline/MaxBlockTime/ctx expires, whichever is soonest, or returns
// immediately when the cap is unbounded (maxConcurrent <= 0). Blocked
// acquirers queue in a single cross-scope FIFO, independent of which
// scope they're ultimately headed for, so the oldest blocked agent is
// granted a slot first regardless of scope (§4.B).
func (m *LockManager) acquireCapacity(ctx context.Context, agentID string, deadline time.Time) error {
	if m.maxConcurrent <= 0 {
		return nil
	}

	m.mu.Lock()
	if m.capInUse < m.maxConcurrent {
		m.capInUse++
		m.mu.Unlock()
		return nil
	}
	w := &capWaiter{agentID: agentID, grant: make(chan struct{})}
	m.capQueue = append(m.capQueue, w)
	m.mu.Unlock()

	timeout := m.maxBlockTime
	if !deadline.IsZero() {
		if d := time.Until(deadline); d < timeout || timeout <= 0 {
			timeout = d
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.grant:
		return nil
	case <-timer.C:
		m.removeCapWaiter(w)
		return rerrors.New(rerrors.CodeTimeout, "timed out waiting for agent capacity").
			WithDetails("agent", agentID)
	case <-ctx.Done():
		m.removeCapWaiter(w)
		return rerrors.Wrap(rerrors.CodeCancelled, "acquire cancelled", ctx.Err()).
			WithDetails("agent", agentID)
	}
}

func (m *LockManager) removeCapWaiter(target *capWaiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.capQueue {
		if w == target {
			m.capQueue = append(m.capQueue[:i], m.capQueue[i+1:]...)
			return
		}
	}
}

// releaseCapacity frees one global concurrency slot, handing it directly
// to the oldest queued capacity waiter if any (the slot count itself is
// unchanged in that case: capInUse only ever drops when the queue is
// empty).
func (m *LockManager) releaseCapacity() {
	if m.maxConcurrent <= 0 {
		return
	}
	m.mu.Lock()
	if len(m.capQueue) > 0 {
		next := m.capQueue[0]
		m.capQueue = m.capQueue[1:]
		m.mu.Unlock()
		close(next.grant)
		return
	}
	if m.capInUse > 0 {
		m.capInUse--
	}
	m.mu.Unlock()
}

func (m *LockManager) removeWaiter(sl *scopeLock, target *waiter) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	for i, w := range sl.queue {
		if w == target {
			sl.queue = append(sl.queue[:i], sl.queue[i+1:]...)
			return
		}
	}
}

func (m *LockManager) recordHeld(agentID, scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentScope[agentID] = scope
}

// ReleaseScopeLock releases agentID's ownership of scope and grants it to
// the next fair-queued waiter, if any.
func (m *LockManager) ReleaseScopeLock(agentID, scope string) error {
	sl := m.scopeFor(scope)

	sl.mu.Lock()
	if sl.owner != agentID {
		sl.mu.Unlock()
		return rerrors.New(rerrors.CodeLockHeldByOther, "release called by non-owner").
			WithDetails("agent", agentID).WithDetails("scope", scope).WithDetails("owner", sl.owner)
	}

	var next *waiter
	if len(sl.queue) > 0 {
		next, sl.queue = sl.queue[0], sl.queue[1:]
		sl.owner = next.agentID
	} else {
		sl.owner = ""
	}
	sl.mu.Unlock()

	m.mu.Lock()
	delete(m.agentScope, agentID)
	m.mu.Unlock()

	if next != nil {
		close(next.grant)
	}
	m.releaseCapacity()
	return nil
}

// ReleaseAll releases every lock held by agentID, used during crash
// recovery (§4.B: "release all locks owned by the agent").
func (m *LockManager) ReleaseAll(agentID string) {
	m.mu.Lock()
	scope, ok := m.agentScope[agentID]
	m.mu.Unlock()
	if !ok {
		return
	}
	_ = m.ReleaseScopeLock(agentID, scope)
}

// HeldScope returns the scope agentID currently owns, if any.
func (m *LockManager) HeldScope(agentID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scope, ok := m.agentScope[agentID]
	return scope, ok
}

// Owner returns the current owner of scope, if locked.
func (m *LockManager) Owner(scope string) (string, bool) {
	sl := m.scopeFor(scope)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.owner == "" {
		return "", false
	}
	return sl.owner, true
}
