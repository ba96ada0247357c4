// Package metrics exposes Prometheus collectors for the MCP transports, the
// coordination kernel and the multi-tier cache. All counters/gauges live on
// one injectable registry (never prometheus.DefaultRegisterer directly) so
// tests can spin up an isolated Metrics instance.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the daemon registers.
type Metrics struct {
	// MCP transport
	MCPRequestsTotal    *prometheus.CounterVec
	MCPRequestDuration  *prometheus.HistogramVec
	MCPConnectionsOpen  *prometheus.GaugeVec
	MCPQueueDrops       *prometheus.CounterVec

	// Coordination kernel
	AgentsByState      *prometheus.GaugeVec
	LocksHeld          prometheus.Gauge
	LockWaitSeconds     prometheus.Histogram
	SyncTransitions    *prometheus.CounterVec
	RetryAttemptsTotal *prometheus.CounterVec

	// Cache
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec
	CacheBytes          *prometheus.GaugeVec

	// Scope graph
	ResolutionsTotal  *prometheus.CounterVec
	ResolutionSeconds prometheus.Histogram

	// Git operation layer
	GitOperationsTotal   *prometheus.CounterVec
	GitOperationDuration *prometheus.HistogramVec
}

// New creates a Metrics instance and registers every collector on reg.
// A nil reg skips registration; callers that don't want global
// registration pass prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MCPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "mcp", Name: "requests_total",
			Help: "Total JSON-RPC requests handled, by transport and method.",
		}, []string{"transport", "method", "status"}),
		MCPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rhema", Subsystem: "mcp", Name: "request_duration_seconds",
			Help:    "JSON-RPC request handling duration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"transport", "method"}),
		MCPConnectionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rhema", Subsystem: "mcp", Name: "connections_open",
			Help: "Current open MCP sessions, by transport.",
		}, []string{"transport"}),
		MCPQueueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "mcp", Name: "queue_drops_total",
			Help: "Messages dropped from a per-connection bounded queue (drop-oldest-on-overflow).",
		}, []string{"transport"}),

		AgentsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rhema", Subsystem: "kernel", Name: "agents",
			Help: "Current agents by lifecycle state.",
		}, []string{"state"}),
		LocksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rhema", Subsystem: "kernel", Name: "locks_held",
			Help: "Current number of held scope locks.",
		}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rhema", Subsystem: "kernel", Name: "lock_wait_seconds",
			Help:    "Time spent blocked waiting for a scope lock.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		SyncTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "kernel", Name: "sync_transitions_total",
			Help: "Sync-status FSM transitions, by from/to state.",
		}, []string{"from", "to"}),
		RetryAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "kernel", Name: "retry_attempts_total",
			Help: "Sync retry attempts, by outcome.",
		}, []string{"outcome"}),

		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "cache", Name: "hits_total",
			Help: "Cache hits, by tier.",
		}, []string{"tier"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "cache", Name: "misses_total",
			Help: "Cache misses, by tier.",
		}, []string{"tier"}),
		CacheEvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "cache", Name: "evictions_total",
			Help: "Evicted entries, by tier and reason (ttl, size, invalidate).",
		}, []string{"tier", "reason"}),
		CacheBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rhema", Subsystem: "cache", Name: "bytes",
			Help: "Estimated bytes held, by tier.",
		}, []string{"tier"}),

		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "scopegraph", Name: "resolutions_total",
			Help: "Lock resolutions, by outcome.",
		}, []string{"outcome"}),
		ResolutionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rhema", Subsystem: "scopegraph", Name: "resolution_seconds",
			Help:    "Time spent generating a lock file.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),

		GitOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "gitlayer", Name: "operations_total",
			Help: "Git operation layer calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		GitOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rhema", Subsystem: "gitlayer", Name: "operation_duration_seconds",
			Help:    "Git operation layer call duration, by operation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"operation"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MCPRequestsTotal, m.MCPRequestDuration, m.MCPConnectionsOpen, m.MCPQueueDrops,
			m.AgentsByState, m.LocksHeld, m.LockWaitSeconds, m.SyncTransitions, m.RetryAttemptsTotal,
			m.CacheHitsTotal, m.CacheMissesTotal, m.CacheEvictionsTotal, m.CacheBytes,
			m.ResolutionsTotal, m.ResolutionSeconds,
			m.GitOperationsTotal, m.GitOperationDuration,
		)
	}

	return m
}

// RecordMCPRequest records one JSON-RPC request/response round trip.
func (m *Metrics) RecordMCPRequest(transport, method, status string, d time.Duration) {
	m.MCPRequestsTotal.WithLabelValues(transport, method, status).Inc()
	m.MCPRequestDuration.WithLabelValues(transport, method).Observe(d.Seconds())
}

// RecordSyncTransition records a sync-status FSM edge.
func (m *Metrics) RecordSyncTransition(from, to string) {
	m.SyncTransitions.WithLabelValues(from, to).Inc()
}

// RecordCacheHit records a cache hit on the given tier ("memory", "disk").
func (m *Metrics) RecordCacheHit(tier string) { m.CacheHitsTotal.WithLabelValues(tier).Inc() }

// RecordCacheMiss records a cache miss on the given tier.
func (m *Metrics) RecordCacheMiss(tier string) { m.CacheMissesTotal.WithLabelValues(tier).Inc() }

// RecordGitOperation records one git operation layer call.
func (m *Metrics) RecordGitOperation(operation, outcome string, d time.Duration) {
	m.GitOperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.GitOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}
