package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roadsign_inference_duration_seconds",
			Help:    "Duration of a single forward pass",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"model", "backend"},
	)

	inferenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadsign_inference_errors_total",
			Help: "Total number of failed forward passes",
		},
		[]string{"model", "backend"},
	)

	modelLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadsign_model_loads_total",
			Help: "Total number of model load attempts",
		},
		[]string{"model", "backend", "status"}, // status: ok, error
	)
)
