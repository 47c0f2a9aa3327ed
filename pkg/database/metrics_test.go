package database

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStatsCollector_Describe(t *testing.T) {
	var _ prometheus.Collector = (*PoolStatsCollector)(nil)

	c := NewPoolStatsCollector(nil, "shopindex")

	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	var names []string
	for d := range ch {
		names = append(names, d.String())
	}
	assert.Len(t, names, 8)
	for _, want := range []string{
		"db_pool_acquired_connections",
		"db_pool_idle_connections",
		"db_pool_total_connections",
		"db_pool_max_connections",
		"db_pool_acquire_count_total",
		"db_pool_acquire_duration_seconds_total",
		"db_pool_empty_acquire_count_total",
		"db_pool_canceled_acquire_count_total",
	} {
		found := false
		for _, n := range names {
			if strings.Contains(n, `"`+want+`"`) {
				found = true
				break
			}
		}
		assert.True(t, found, "missing descriptor %s", want)
	}
}

func gauge(families []*dto.MetricFamily, name string) (float64, string, bool) {
	for _, mf := range families {
		if mf.GetName() != name || len(mf.GetMetric()) == 0 {
			continue
		}
		m := mf.GetMetric()[0]
		var service string
		for _, l := range m.GetLabel() {
			if l.GetName() == "service" {
				service = l.GetValue()
			}
		}
		return m.GetGauge().GetValue(), service, true
	}
	return 0, "", false
}

func TestRegisterPoolMetrics_ReportsPoolStats(t *testing.T) {
	// The pool connects lazily, so no server is needed to read its stats.
	pool, err := pgxpool.New(context.Background(), "postgres://shopindex@127.0.0.1:1/shopindex?pool_max_conns=7")
	require.NoError(t, err)
	defer pool.Close()

	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPoolMetrics(reg, pool, "shopindex"))
	require.NoError(t, RegisterPoolMetrics(reg, pool, "shopindex"))

	families, err := reg.Gather()
	require.NoError(t, err)

	maxConns, service, ok := gauge(families, "db_pool_max_connections")
	require.True(t, ok)
	assert.Equal(t, float64(7), maxConns)
	assert.Equal(t, "shopindex", service)

	acquired, _, ok := gauge(families, "db_pool_acquired_connections")
	require.True(t, ok)
	assert.Zero(t, acquired)
}
