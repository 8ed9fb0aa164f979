// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framebeat_jobs_total",
		Help: "Pipeline jobs by terminal outcome.",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framebeat_stage_duration_seconds",
		Help:    "Time spent reaching each pipeline state.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	RecognitionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framebeat_recognition_fallbacks_total",
		Help: "Recognitions that fell back to the unknown identity.",
	})

	SweptFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framebeat_swept_files_total",
		Help: "Working files deleted by the retention sweep.",
	})

	RatingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framebeat_ratings_total",
		Help: "Accepted quality ratings by value.",
	}, []string{"rating"})
)
