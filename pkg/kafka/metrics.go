package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	outcomeReceived  = "received"
	outcomeProcessed = "processed"
	outcomeFailed    = "failed"
	outcomeOK        = "ok"
	outcomeError     = "error"
)

var (
	consumedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_messages_total",
			Help: "Kafka messages seen by consumers, by outcome (received, processed, failed)",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	consumeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_consumer_processing_duration_seconds",
			Help:    "Time spent handling one Kafka message, retries included",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"topic", "consumer_group"},
	)

	publishCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_publish_total",
			Help: "Kafka publish calls by outcome",
		},
		[]string{"topic", "outcome"},
	)

	publishedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_messages_published_total",
			Help: "Kafka messages written by producers",
		},
		[]string{"topic"},
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_producer_publish_duration_seconds",
			Help:    "Duration of Kafka publish calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	deadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_dlq_published_total",
			Help: "Messages written to a dead-letter topic",
		},
		[]string{"topic", "origin"},
	)
)
