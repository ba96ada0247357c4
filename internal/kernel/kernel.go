package kernel

import (
	"context"
	"time"

	"github.com/fugue-ai/rhema/internal/config"
	"github.com/fugue-ai/rhema/internal/logging"
	"github.com/fugue-ai/rhema/internal/metrics"
)

// Kernel is the Agent Coordination Kernel (§4.B): the only path by which
// agents observe and mutate repository context. It composes an
// AgentRegistry, a LockManager and a SyncManager, and runs a
// SafetyValidator after every mutating operation.
type Kernel struct {
	agents *AgentRegistry
	locks  *LockManager
	sync   *SyncManager
	valid  *SafetyValidator

	retryPolicy RetryPolicy
	cfg         config.KernelConfig
	log         *logging.Logger
	metrics     *metrics.Metrics
}

// New builds a Kernel from daemon configuration.
func New(cfg config.KernelConfig, log *logging.Logger, m *metrics.Metrics) *Kernel {
	k := &Kernel{
		agents:      NewAgentRegistry(time.Duration(cfg.HeartbeatTimeoutS) * time.Second),
		locks:       NewLockManager(time.Duration(cfg.MaxBlockTimeS)*time.Second, cfg.MaxConcurrentAgents),
		sync:        NewSyncManager(cfg.MaxRetryAttempts),
		retryPolicy: DefaultRetryPolicy(cfg.MaxRetryAttempts),
		cfg:         cfg,
		log:         log,
		metrics:     m,
	}
	k.valid = newSafetyValidator(k)
	return k
}

func (k *Kernel) validate() error {
	if err := k.valid.Validate(); err != nil {
		if k.log != nil {
			k.log.WithError(err).Error("safety validator rejected a transition")
		}
		return err
	}
	return nil
}

// RegisterAgent registers or refreshes an agent. Idempotent.
func (k *Kernel) RegisterAgent(id string, capabilities []string) error {
	k.agents.Register(id, capabilities)
	return k.validate()
}

// AcquireScopeLock blocks until the scope is granted, the deadline or
// MaxBlockTime expires, or ctx is cancelled. On success the agent moves to
// `working`; on any failure it stays/returns to `idle`.
func (k *Kernel) AcquireScopeLock(ctx context.Context, agentID, scope string, deadline time.Time) (*LockGrant, error) {
	start := time.Now()
	grant, err := k.locks.AcquireScopeLock(ctx, agentID, scope, deadline)
	if k.metrics != nil {
		k.metrics.LockWaitSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		k.agents.SetState(agentID, AgentIdle, "")
		return nil, err
	}

	k.agents.SetState(agentID, AgentWorking, scope)
	if err := k.validate(); err != nil {
		// Roll back: release what we just granted and restore idle state.
		_ = k.locks.ReleaseScopeLock(agentID, scope)
		k.agents.SetState(agentID, AgentIdle, "")
		return nil, err
	}
	if k.metrics != nil {
		k.metrics.LocksHeld.Inc()
	}
	return grant, nil
}

// ReleaseScopeLock releases agentID's lock on scope and returns the agent
// to `completed`.
func (k *Kernel) ReleaseScopeLock(agentID, scope string) error {
	if err := k.locks.ReleaseScopeLock(agentID, scope); err != nil {
		return err
	}
	k.agents.SetState(agentID, AgentCompleted, "")
	if k.metrics != nil {
		k.metrics.LocksHeld.Dec()
	}
	return k.validate()
}

// RegisterScope declares a scope and its dependencies to the sync FSM.
// Idempotent.
func (k *Kernel) RegisterScope(scope string, deps []string) {
	k.sync.RegisterScope(scope, deps)
}

// BeginSync enters `syncing` for scope iff its dependency precondition
// holds; see SyncManager.BeginSync.
func (k *Kernel) BeginSync(scope, owner string) (string, error) {
	token, err := k.sync.BeginSync(scope, owner)
	if err != nil {
		return "", err
	}
	if err := k.validate(); err != nil {
		return "", err
	}
	return token, nil
}

// CompleteSync transitions the sync to completed or failed, and on
// failure asynchronously schedules a bounded retry.
func (k *Kernel) CompleteSync(token string, success bool) error {
	scope, retryCount, err := k.sync.CompleteSync(token, success)
	if err != nil {
		return err
	}
	if k.metrics != nil {
		to := "completed"
		if !success {
			to = "failed"
			k.metrics.RetryAttemptsTotal.WithLabelValues("failed").Inc()
		}
		k.metrics.RecordSyncTransition("syncing", to)
	}
	if err := k.validate(); err != nil {
		return err
	}
	if !success {
		k.scheduleRetry(scope, retryCount)
	}
	return nil
}

// scheduleRetry moves a failed scope back to idle after exponential
// backoff, bounded by MaxRetryAttempts (property 5). It runs
// asynchronously so CompleteSync never blocks its caller.
func (k *Kernel) scheduleRetry(scope string, retryCount int) {
	if retryCount > k.cfg.MaxRetryAttempts {
		if k.log != nil {
			k.log.WithScope(scope).Warn("retry budget exhausted; scope remains failed")
		}
		return
	}
	delay := k.retryPolicy.InitialDelay
	for i := 1; i < retryCount; i++ {
		delay = nextDelay(delay, k.retryPolicy)
	}
	go func() {
		time.Sleep(addJitter(delay, k.retryPolicy.Jitter))
		if err := k.sync.ScheduleRetry(scope); err != nil && k.log != nil {
			k.log.WithScope(scope).WithError(err).Debug("retry scheduling skipped")
		}
	}()
}

// Heartbeat refreshes an agent's liveness timestamp.
func (k *Kernel) Heartbeat(agentID string) error {
	return k.agents.Heartbeat(agentID)
}

// ListAgents is a read-only observer.
func (k *Kernel) ListAgents() []Agent { return k.agents.List() }

// Locks exposes the kernel's LockManager as a store.LockChecker, the one
// dependency the Context Store needs to enforce store()'s "requires
// holding the scope lock" precondition without reaching into kernel
// internals.
func (k *Kernel) Locks() *LockManager { return k.locks }

// GetSyncStatus is a read-only observer.
func (k *Kernel) GetSyncStatus(scope string) (ScopeSync, bool) { return k.sync.GetSyncStatus(scope) }

// RecoverCrashedAgents scans for missed heartbeats, releases their locks,
// fails their in-flight syncs, and runs the safety validator once at the
// end (§4.B crash recovery semantics). Returns the IDs of newly-crashed
// agents.
func (k *Kernel) RecoverCrashedAgents(now time.Time) ([]string, error) {
	crashed := k.agents.ScanForCrashed(now)
	for _, id := range crashed {
		if scope, ok := k.locks.HeldScope(id); ok {
			k.locks.ReleaseAll(id)
			k.sync.FailScope(scope)
			if k.metrics != nil {
				k.metrics.LocksHeld.Dec()
				k.metrics.RecordSyncTransition("syncing", "failed")
			}
		}
		if k.metrics != nil {
			k.metrics.AgentsByState.WithLabelValues(string(AgentCrashed)).Inc()
		}
		if k.log != nil {
			k.log.WithAgent(id).Warn("agent crashed: heartbeat timeout exceeded")
		}
	}
	if len(crashed) == 0 {
		return nil, nil
	}
	return crashed, k.validate()
}
