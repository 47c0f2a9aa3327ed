package synchronizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_sync_events_total",
			Help: "Total number of change events processed, by entity type, operation and result",
		},
		[]string{"type", "op", "result"},
	)

	retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_sync_retries_total",
			Help: "Total number of retried index writes, by entity type",
		},
		[]string{"type"},
	)

	applyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "index_sync_apply_duration_seconds",
			Help:    "Time spent applying one change event, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	eventLag = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "index_sync_event_lag_seconds",
			Help:    "Time from change event emission to the start of its apply",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120, 600},
		},
		[]string{"type"},
	)

	queueFull = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_sync_queue_full_total",
			Help: "Total number of change events dropped because their queue stayed full",
		},
		[]string{"type"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "index_sync_queue_depth",
			Help: "Number of change events waiting for a worker",
		},
	)
)
