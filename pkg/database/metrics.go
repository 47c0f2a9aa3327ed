package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolStat is one exported pgxpool statistic.
type poolStat struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*pgxpool.Stat) float64
}

// PoolStatsCollector exports pgxpool statistics as Prometheus metrics.
type PoolStatsCollector struct {
	stat    func() *pgxpool.Stat
	service string
	stats   []poolStat
}

// NewPoolStatsCollector creates a collector for pool, labelled with service.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	return newPoolStatsCollector(pool.Stat, service)
}

func newPoolStatsCollector(stat func() *pgxpool.Stat, service string) *PoolStatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("db_pool_"+name, help, []string{"service"}, nil)
	}
	gauge, counter := prometheus.GaugeValue, prometheus.CounterValue

	return &PoolStatsCollector{
		stat:    stat,
		service: service,
		stats: []poolStat{
			{desc("acquired_connections", "Number of currently acquired connections"), gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
			{desc("idle_connections", "Number of currently idle connections"), gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
			{desc("total_connections", "Total number of connections in the pool"), gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
			{desc("max_connections", "Maximum number of connections allowed"), gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
			{desc("acquire_count_total", "Total number of connection acquires"), counter,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
			{desc("acquire_duration_seconds_total", "Total time spent acquiring connections"), counter,
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
			{desc("empty_acquire_count_total", "Acquires that had to wait for a connection"), counter,
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
			{desc("canceled_acquire_count_total", "Acquires canceled by their context"), counter,
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, s := range c.stats {
		ch <- s.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.stat()
	for _, s := range c.stats {
		ch <- prometheus.MustNewConstMetric(s.desc, s.kind, s.value(stat), c.service)
	}
}

// RegisterPoolMetrics registers a collector for pool with reg. An already
// registered collector for the same service is not an error.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool, service string) error {
	err := reg.Register(NewPoolStatsCollector(pool, service))
	if _, dup := err.(prometheus.AlreadyRegisteredError); dup {
		return nil
	}
	return err
}
