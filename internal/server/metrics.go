package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hypercube",
		Name:      "runs_started_total",
		Help:      "Optimization runs started by the service.",
	})

	metricRunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hypercube",
		Name:      "runs_finished_total",
		Help:      "Optimization runs finished, labeled by termination reason or terminal state.",
	}, []string{"outcome"})

	metricEvaluations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hypercube",
		Name:      "objective_evaluations_total",
		Help:      "Objective function evaluations performed across all runs.",
	})

	metricRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hypercube",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of finished optimization runs.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)
