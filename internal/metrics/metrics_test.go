package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return 0
}

func TestRecordMCPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordMCPRequest("websocket", "tools/call", "ok", 5*time.Millisecond)

	v := counterValue(t, m.MCPRequestsTotal.WithLabelValues("websocket", "tools/call", "ok"))
	require.Equal(t, float64(1), v)
}

func TestRecordCacheHitMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCacheHit("memory")
	m.RecordCacheMiss("disk")

	require.Equal(t, float64(1), counterValue(t, m.CacheHitsTotal.WithLabelValues("memory")))
	require.Equal(t, float64(1), counterValue(t, m.CacheMissesTotal.WithLabelValues("disk")))
}

func TestRecordSyncTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordSyncTransition("idle", "syncing")

	require.Equal(t, float64(1), counterValue(t, m.SyncTransitions.WithLabelValues("idle", "syncing")))
}
