package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "reconciler",
			Name:      "events_handled_total",
			Help:      "Total number of lifecycle events handled",
		},
		[]string{"op", "result"},
	)

	handleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nfvacct",
			Subsystem: "reconciler",
			Name:      "handle_duration_seconds",
			Help:      "Lifecycle event handling duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"op"},
	)

	sessionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "reconciler",
			Name:      "session_calls_total",
			Help:      "Total number of billing session open/close attempts",
		},
		[]string{"kind", "op", "result"},
	)
)
