package metrics_test

import (
	"testing"

	"github.com/always-cache/cachejar/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	m.Lookup(metrics.ResultHit)
	m.Lookup(metrics.ResultHit)
	m.Stored()
	m.Extracted(3)
	m.Extracted(0)
	m.Revalidated("not_modified", 0.1)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Lookups.WithLabelValues(metrics.ResultHit)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Lookups.WithLabelValues(metrics.ResultMiss)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Stores), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.CookiesExtracted), 0)

	count, err := testutil.GatherAndCount(reg, "cachejar_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 6, count, "all results are initialized")
}

func TestNilMetrics(_ *testing.T) {
	var m *metrics.Metrics
	m.Lookup(metrics.ResultMiss)
	m.Stored()
	m.Extracted(1)
	m.Revalidated("failed", 1)
}
