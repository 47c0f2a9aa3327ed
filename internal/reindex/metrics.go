package reindex

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reindex_jobs_total",
			Help: "Total number of reindex jobs by final status",
		},
		[]string{"status"},
	)

	jobRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reindex_job_running",
			Help: "1 while a reindex job is running in this process",
		},
	)

	lockLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reindex_lock_lost_total",
			Help: "Total number of reindex locks that expired or were taken while a job held them",
		},
	)

	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reindex_documents_total",
			Help: "Total number of records handled by mass reindexing, by entity type and result",
		},
		[]string{"type", "result"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reindex_batch_duration_seconds",
			Help:    "Time spent building and writing one reindex batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)
