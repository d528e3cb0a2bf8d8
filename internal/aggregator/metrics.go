package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "aggregator",
			Name:      "runs_total",
			Help:      "Total number of aggregation sweeps by result",
		},
		[]string{"result"},
	)

	reportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "aggregator",
			Name:      "reports_total",
			Help:      "Total number of consumption reports by kind and result",
		},
		[]string{"kind", "result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nfvacct",
			Subsystem: "aggregator",
			Name:      "sweep_duration_seconds",
			Help:      "Aggregation sweep duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
