package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "billing",
			Name:      "calls_total",
			Help:      "Total number of billing backend calls",
		},
		[]string{"kind", "op", "status"},
	)

	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nfvacct",
			Subsystem: "billing",
			Name:      "call_duration_seconds",
			Help:      "Billing backend call duration in seconds, re-authentication included",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"kind", "op"},
	)

	reauthTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "billing",
			Name:      "reauthentications_total",
			Help:      "Total number of re-authentications after 401/403",
		},
		[]string{"status"},
	)

	breakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nfvacct",
			Subsystem: "billing",
			Name:      "circuit_breaker_state",
			Help:      "Billing circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
