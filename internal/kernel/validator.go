package kernel

import (
	"fmt"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// SafetyValidator rechecks the kernel's core invariants after every
// state-changing operation, per §4.B: a violation must abort the
// transition and never be observable as partial state. It reads through
// the kernel's existing manager locks rather than holding its own state,
// so it always observes a consistent post-mutation snapshot.
type SafetyValidator struct {
	kernel *Kernel
}

func newSafetyValidator(k *Kernel) *SafetyValidator {
	return &SafetyValidator{kernel: k}
}

// Validate runs LockConsistency, AgentStateConsistency, SyncStatusConsistency
// and DependencyIntegrity, returning the first violation found.
func (v *SafetyValidator) Validate() error {
	if err := v.lockConsistency(); err != nil {
		return err
	}
	if err := v.agentStateConsistency(); err != nil {
		return err
	}
	if err := v.syncStatusConsistency(); err != nil {
		return err
	}
	if err := v.dependencyIntegrity(); err != nil {
		return err
	}
	return nil
}

// lockConsistency checks property 1 (exclusivity) and property 2
// (at-most-one-lock-per-agent): every scope with a recorded owner in the
// lock manager's reverse index (agentScope) must agree with the scope's
// own owner field, and no agent may appear twice.
func (v *SafetyValidator) lockConsistency() error {
	lm := v.kernel.locks
	lm.mu.Lock()
	defer lm.mu.Unlock()

	seen := make(map[string]string) // scope -> agent, to catch a scope claimed by two agents
	for agent, scope := range lm.agentScope {
		if existing, ok := seen[scope]; ok && existing != agent {
			return violation("LockConsistency", fmt.Sprintf("scope %q claimed by both %q and %q", scope, existing, agent))
		}
		seen[scope] = agent

		sl, ok := lm.scopes[scope]
		if !ok {
			return violation("LockConsistency", fmt.Sprintf("agent %q references unknown scope %q", agent, scope))
		}
		sl.mu.Lock()
		owner := sl.owner
		sl.mu.Unlock()
		if owner != agent {
			return violation("LockConsistency", fmt.Sprintf("scope %q owner mismatch: index says %q, lock says %q", scope, agent, owner))
		}
	}
	return nil
}

// agentStateConsistency checks that an agent in `working` holds exactly
// the scope recorded on its Agent record, and an agent holding no lock is
// never `working`.
func (v *SafetyValidator) agentStateConsistency() error {
	for _, a := range v.kernel.agents.List() {
		held, hasLock := v.kernel.locks.HeldScope(a.ID)
		if a.State == AgentWorking && !hasLock {
			return violation("AgentStateConsistency", fmt.Sprintf("agent %q is working but holds no lock", a.ID))
		}
		if hasLock && a.HeldScope != held {
			return violation("AgentStateConsistency", fmt.Sprintf("agent %q HeldScope %q does not match lock manager %q", a.ID, a.HeldScope, held))
		}
	}
	return nil
}

// syncStatusConsistency re-checks property 3: every scope in `syncing`
// must have every dependency `completed`.
func (v *SafetyValidator) syncStatusConsistency() error {
	sm := v.kernel.sync
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for scope, s := range sm.scopes {
		if s.Status != SyncSyncing {
			continue
		}
		for _, dep := range s.Deps {
			depSync, ok := sm.scopes[dep]
			if !ok || depSync.Status != SyncCompleted {
				return violation("SyncStatusConsistency", fmt.Sprintf("scope %q is syncing with incomplete dependency %q", scope, dep))
			}
		}
	}
	return nil
}

// dependencyIntegrity checks that every declared dependency refers to a
// registered scope (no dangling edges) — a prerequisite for the scope
// graph's no-circular-dependency guarantee to even be checkable.
func (v *SafetyValidator) dependencyIntegrity() error {
	sm := v.kernel.sync
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for scope, s := range sm.scopes {
		for _, dep := range s.Deps {
			if _, ok := sm.scopes[dep]; !ok {
				return violation("DependencyIntegrity", fmt.Sprintf("scope %q depends on unregistered scope %q", scope, dep))
			}
		}
	}
	return nil
}

func violation(name, detail string) error {
	return rerrors.New(rerrors.CodeInternal, "safety invariant violated").
		WithDetails("invariant", name).WithDetails("detail", detail)
}
