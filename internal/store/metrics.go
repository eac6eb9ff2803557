package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics.
var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_mutations_total",
			Help: "Committed mutations per collection and kind",
		},
		[]string{"collection", "kind"},
	)

	persistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_store_persist_duration_seconds",
			Help:    "Time spent rewriting a collection file",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	persistErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_persist_errors_total",
			Help: "Failed collection file rewrites",
		},
		[]string{"collection"},
	)

	loadFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_load_failures_total",
			Help: "Collection loads that fell back to an empty collection",
		},
		[]string{"collection", "reason"},
	)

	collectionSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_store_entries",
			Help: "Number of entries in each collection",
		},
		[]string{"collection"},
	)
)
