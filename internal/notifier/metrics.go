package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_notifier_events_total",
			Help: "Total number of change events emitted, by entity type, operation and kind",
		},
		[]string{"type", "op", "kind"},
	)

	emitErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "index_notifier_emit_errors_total",
			Help: "Total number of change event batches the sink refused",
		},
	)

	cascadeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_notifier_cascade_errors_total",
			Help: "Total number of cascade resolutions that failed",
		},
		[]string{"child", "parent"},
	)
)
