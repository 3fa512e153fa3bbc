package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Attempts counts model calls by result (ok, placeholder, error).
	Attempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generator_attempts_total",
			Help: "Total number of generation attempts by result",
		},
		[]string{"result"},
	)

	// Items counts generated items by kind (photo, degraded, synthetic).
	Items = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generator_items_total",
			Help: "Total number of generated items by kind",
		},
		[]string{"kind"},
	)

	// AttemptDuration observes the latency of model calls.
	AttemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generator_attempt_duration_seconds",
			Help:    "Duration of generation calls in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
	)
)
