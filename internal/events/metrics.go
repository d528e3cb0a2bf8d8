package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Total number of bus messages consumed",
		},
		[]string{"topic", "outcome"},
	)

	handlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nfvacct",
			Subsystem: "events",
			Name:      "handler_duration_seconds",
			Help:      "Message handler duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"topic"},
	)

	deadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "events",
			Name:      "dead_lettered_total",
			Help:      "Total number of messages written to the dead letter sink",
		},
		[]string{"topic", "reason"},
	)

	fetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "events",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed fetches from the bus",
		},
		[]string{"topic"},
	)

	commitErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "events",
			Name:      "commit_errors_total",
			Help:      "Total number of failed offset commits",
		},
		[]string{"topic"},
	)
)
