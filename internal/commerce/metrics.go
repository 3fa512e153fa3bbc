package commerce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests counts admin API calls by operation (create, attach) and
	// result (ok, authentication, validation, missing_id, error).
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commerce_requests_total",
			Help: "Total number of commerce admin API calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	// RequestDuration observes admin API call latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commerce_request_duration_seconds",
			Help:    "Duration of commerce admin API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
