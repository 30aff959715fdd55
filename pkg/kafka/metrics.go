package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes.
const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
)

var (
	producerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_messages_total",
			Help: "Kafka messages by topic and delivery outcome.",
		},
		[]string{"topic", "outcome"},
	)

	// Async writers return as soon as the message is queued, so this mostly
	// measures enqueue latency.
	producerWriteSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_producer_write_seconds",
			Help:    "Time Publish spent handing a message to the writer.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"topic"},
	)
)
