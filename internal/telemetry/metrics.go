package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var samplesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "nfvacct",
		Subsystem: "telemetry",
		Name:      "samples_total",
		Help:      "Total number of telemetry samples by consumption kind and outcome",
	},
	[]string{"kind", "result"},
)
