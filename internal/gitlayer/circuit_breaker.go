// Package gitlayer is the Git Operation Layer (§4.C): every file read and
// write in the daemon goes through here, which presents atomic,
// branch-aware, integrity-checked operations backed by the `git` binary.
package gitlayer

import (
	"context"
	"errors"
	"sync"
	"time"
)

// breakerState is a position in the circuit breaker state machine.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Common errors
var (
	errCircuitOpen     = errors.New("circuit breaker is open")
	errTooManyRequests = errors.New("too many requests in half-open state")
)

// breakerConfig configures a circuit breaker over git subprocess calls.
type breakerConfig struct {
	MaxFailures   int           // failures before opening
	Timeout       time.Duration // time in open state
	HalfOpenMax   int           // max requests in half-open
	OnStateChange func(from, to breakerState)
}

func defaultBreakerConfig() breakerConfig {
	return breakerConfig{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	}
}

// circuitBreaker protects the daemon from hammering a repository whose git
// binary or filesystem is failing — repeated IOError/Corrupted results trip
// it open so callers fail fast instead of piling up subprocess calls against
// a repo that's already in trouble.
type circuitBreaker struct {
	mu           sync.RWMutex
	config       breakerConfig
	state        breakerState
	failures     int
	successes    int
	halfOpenReqs int
	lastFailure  time.Time
}

func newCircuitBreaker(cfg breakerConfig) *circuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &circuitBreaker{config: cfg, state: breakerClosed}
}

func (cb *circuitBreaker) State() breakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Execute runs fn with circuit breaker protection. ctx is accepted for
// future cancellation plumbing but fn itself owns its own context today.
func (cb *circuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err == nil)
	return err
}

func (cb *circuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerOpen:
		if time.Since(cb.lastFailure) > cb.config.Timeout {
			cb.setState(breakerHalfOpen)
			cb.halfOpenReqs = 1
			return nil
		}
		return errCircuitOpen
	case breakerHalfOpen:
		if cb.halfOpenReqs >= cb.config.HalfOpenMax {
			return errTooManyRequests
		}
		cb.halfOpenReqs++
	}
	return nil
}

func (cb *circuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *circuitBreaker) onSuccess() {
	switch cb.state {
	case breakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMax {
			cb.setState(breakerClosed)
		}
	case breakerClosed:
		cb.failures = 0
	}
}

func (cb *circuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case breakerHalfOpen:
		cb.setState(breakerOpen)
	case breakerClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(breakerOpen)
		}
	}
}

func (cb *circuitBreaker) setState(newState breakerState) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenReqs = 0

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(old, newState)
	}
}
