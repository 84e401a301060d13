package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "banditlab",
		Subsystem: "experiment",
		Name:      "runs_total",
		Help:      "Completed experiment runs by final status.",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "banditlab",
		Subsystem: "experiment",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full experiment run (data generation, training, evaluation).",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
