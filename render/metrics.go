package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabloide_render_jobs_total",
			Help: "Render jobs finished, by final status",
		},
		[]string{"status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabloide_render_duration_seconds",
			Help:    "Time spent rendering a job",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"format"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tabloide_render_queue_depth",
			Help: "Jobs waiting in a render pipeline",
		},
		[]string{"pipeline"},
	)
)
