package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval and routing Prometheus metrics.
var (
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tmrouter",
			Name:      "memory_search_duration_seconds",
			Help:      "Memory search duration in seconds, embedding included",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	SearchMatches = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tmrouter",
			Name:      "memory_search_matches",
			Help:      "Matches returned per memory search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
		[]string{"kind"}, // "exact" / "semantic"
	)

	SearchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmrouter",
			Name:      "memory_search_errors_total",
			Help:      "Memory search failures",
		},
		[]string{"error_type"},
	)

	IndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tmrouter",
			Name:      "vector_index_size",
			Help:      "Records held by the vector index",
		},
	)

	IndexPersistErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tmrouter",
			Name:      "vector_index_persist_errors_total",
			Help:      "Failed vector index snapshot writes",
		},
	)

	RoutingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmrouter",
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by action",
		},
		[]string{"action"},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmrouter",
			Name:      "generation_requests_total",
			Help:      "Generative translation calls by provider and status",
		},
		[]string{"provider", "status"},
	)

	GenerationFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmrouter",
			Name:      "generation_fallbacks_total",
			Help:      "Generative failures served by glossary substitution instead",
		},
		[]string{"provider"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tmrouter",
			Name:      "generation_duration_seconds",
			Help:      "Generative translation call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)
)

var retrievalOnce sync.Once

// RegisterRetrievalMetrics registers retrieval, routing and generation metrics. Safe to
// call more than once.
func RegisterRetrievalMetrics() {
	mustRegisterOnce(&retrievalOnce,
		SearchDuration,
		SearchMatches,
		SearchErrorsTotal,
		IndexSize,
		IndexPersistErrorsTotal,
		RoutingDecisionsTotal,
		GenerationRequestsTotal,
		GenerationFallbacksTotal,
		GenerationDuration,
	)
}
