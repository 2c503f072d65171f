package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pagination coordinators.
var (
	paginationTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_pagination_transitions_total",
		Help: "Total state transitions applied by pagination coordinators by message",
	}, []string{"message"})

	paginationPagesLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_pagination_pages_loaded_total",
		Help: "Total pages merged into coordinator state by load kind",
	}, []string{"kind"})

	paginationFetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_pagination_fetch_failures_total",
		Help: "Total failed page fetches by load kind",
	}, []string{"kind"})

	paginationStaleResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posts_pagination_stale_results_total",
		Help: "Total fetch results discarded because a newer generation started",
	})

	batchPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posts_batch_pages_fetched_total",
		Help: "Total pages fetched by batch fetchers",
	})

	batchFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "posts_batch_fetch_duration_seconds",
		Help:    "Duration of complete batch fetches in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)
