package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()

	m.ObserveHTTPRequest("GET", "/api/v1/approvals/pending", 200, 40*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveDBQuery("pending_approvals_select", 10*time.Millisecond)
	m.ObserveDBQuery("activities_select", 30*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 40, snap.AverageRequestDurationMs, 0.1)
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(2), snap.DBQueryCount)
	assert.InDelta(t, 20, snap.AverageDBQueryDurationMs, 0.1)
	require.False(t, snap.GeneratedAt.IsZero())
}

func TestMetricsServiceNilReceiver(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.ObserveDBQuery("noop", time.Millisecond)
	assert.Equal(t, uint64(0), m.Snapshot().DBQueryCount)
	require.NotNil(t, m.Handler())
}
