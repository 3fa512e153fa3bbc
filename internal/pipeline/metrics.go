package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs by outcome (success, partial, failed).
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of finished pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// StageDuration observes how long each stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{.01, .1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	// CheckpointErrors counts checkpoints that could not be persisted.
	CheckpointErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_checkpoint_errors_total",
			Help: "Total number of run checkpoints that failed to persist",
		},
	)

	// ArchivedImages counts images of failed publishes copied to the archive.
	ArchivedImages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_archived_images_total",
			Help: "Total number of unpublished images archived for reconciliation",
		},
		[]string{"result"},
	)
)
