package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Embedding metrics, labelled by provider and model where it applies.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmrouter",
			Name:      "embedding_requests_total",
			Help:      "Embedding provider calls by outcome",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tmrouter",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmrouter",
			Name:      "embedding_tokens_total",
			Help:      "Embedding tokens consumed, by token type",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmrouter",
			Name:      "embedding_errors_total",
			Help:      "Embedding failures by error class",
		},
		[]string{"provider", "model", "error_type"},
	)

	EmbeddingBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tmrouter",
			Name:      "embedding_budget_tokens_remaining",
			Help:      "Embedding tokens left in the daily or monthly budget",
		},
		[]string{"provider", "period"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmrouter",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses per cache layer",
		},
		[]string{"layer", "result"}, // layer: "local" / "redis"; result: "hit" / "miss"
	)
)

var embeddingOnce sync.Once

// RegisterEmbeddingMetrics registers embedding provider and cache metrics. Safe to call
// more than once.
func RegisterEmbeddingMetrics() {
	mustRegisterOnce(&embeddingOnce,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingBudgetTokensRemaining,
		EmbeddingCacheTotal,
	)
}
