package kernel

import (
	"sync"

	"github.com/google/uuid"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// SyncManager owns the per-scope sync-status FSM:
//
//	idle -> syncing   (iff every dependency is completed)
//	syncing -> completed | failed
//	failed -> idle    (on retry scheduling)
//
// It is the sole place the dependency precondition (property 3 in §8) is
// enforced: begin_sync must reject a scope whose dependencies are not all
// completed.
type SyncManager struct {
	mu          sync.Mutex
	scopes      map[string]*ScopeSync
	tokenScope  map[string]string // sync token -> scope
	maxRetries  int
}

// NewSyncManager creates a sync manager bounding retries at maxRetries
// (config.KernelConfig.MaxRetryAttempts).
func NewSyncManager(maxRetries int) *SyncManager {
	return &SyncManager{
		scopes:     make(map[string]*ScopeSync),
		tokenScope: make(map[string]string),
		maxRetries: maxRetries,
	}
}

// RegisterScope registers scope with its dependency list, idempotently
// (a second registration is a no-op and keeps the first deps list).
func (m *SyncManager) RegisterScope(scope string, deps []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scopes[scope]; ok {
		return
	}
	m.scopes[scope] = &ScopeSync{Scope: scope, Status: SyncIdle, Deps: deps}
}

// BeginSync enters `syncing` for scope iff every dependency is `completed`.
// Returns rerrors.CodePreconditionNotMet otherwise, naming the first
// unmet dependency.
func (m *SyncManager) BeginSync(scope, owner string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scopes[scope]
	if !ok {
		return "", rerrors.New(rerrors.CodeUnknownEntity, "unknown scope").WithDetails("scope", scope)
	}
	if s.Status != SyncIdle {
		return "", rerrors.New(rerrors.CodePreconditionNotMet, "scope is not idle").
			WithDetails("scope", scope).WithDetails("status", string(s.Status))
	}

	for _, dep := range s.Deps {
		depSync, ok := m.scopes[dep]
		if !ok || depSync.Status != SyncCompleted {
			return "", rerrors.New(rerrors.CodePreconditionNotMet, "dependency not completed").
				WithDetails("scope", scope).WithDetails("dependency", dep)
		}
	}

	token := uuid.New().String()
	s.Status = SyncSyncing
	s.Token = token
	s.Owner = owner
	m.tokenScope[token] = scope
	return token, nil
}

// CompleteSync transitions the scope owning token to completed or failed.
func (m *SyncManager) CompleteSync(token string, success bool) (scope string, retryCount int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope, ok := m.tokenScope[token]
	if !ok {
		return "", 0, rerrors.New(rerrors.CodeUnknownEntity, "unknown sync token").WithDetails("token", token)
	}
	s := m.scopes[scope]
	if s.Status != SyncSyncing || s.Token != token {
		return "", 0, rerrors.New(rerrors.CodePreconditionNotMet, "token does not match an in-flight sync").
			WithDetails("scope", scope)
	}

	delete(m.tokenScope, token)
	s.Token = ""

	if success {
		s.Status = SyncCompleted
		s.RetryCount = 0
	} else {
		s.Status = SyncFailed
		s.RetryCount++
	}
	return scope, s.RetryCount, nil
}

// FailScope force-transitions scope to failed (used by crash recovery when
// an agent holding a syncing scope disappears).
func (m *SyncManager) FailScope(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[scope]
	if !ok || s.Status != SyncSyncing {
		return
	}
	if s.Token != "" {
		delete(m.tokenScope, s.Token)
	}
	s.Status = SyncFailed
	s.Token = ""
	s.RetryCount++
}

// ScheduleRetry transitions a failed scope back to idle, bounded by
// MaxRetryAttempts (property 5). Once the cap is hit the scope stays
// failed and the caller must intervene — no silent infinite retries.
func (m *SyncManager) ScheduleRetry(scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scopes[scope]
	if !ok {
		return rerrors.New(rerrors.CodeUnknownEntity, "unknown scope").WithDetails("scope", scope)
	}
	if s.Status != SyncFailed {
		return rerrors.New(rerrors.CodePreconditionNotMet, "scope is not failed").WithDetails("scope", scope)
	}
	if s.RetryCount > m.maxRetries {
		return rerrors.New(rerrors.CodeTimeout, "retry budget exhausted").
			WithDetails("scope", scope).WithDetails("retry_count", s.RetryCount).WithDetails("max_retries", m.maxRetries)
	}
	s.Status = SyncIdle
	return nil
}

// GetSyncStatus is a read-only observer.
func (m *SyncManager) GetSyncStatus(scope string) (ScopeSync, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[scope]
	if !ok {
		return ScopeSync{}, false
	}
	return *s, true
}
