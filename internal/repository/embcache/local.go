package embcache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// LocalEmbedder keeps recently used embeddings in process memory.
type LocalEmbedder struct {
	inner      domain.Embedder
	cache      *ristretto.Cache
	model      string
	cacheTotal *prometheus.CounterVec
}

// NewLocal creates an in-process caching decorator holding up to maxEntries vectors.
func NewLocal(
	inner domain.Embedder,
	model string,
	maxEntries int64,
	cacheTotal *prometheus.CounterVec,
) (*LocalEmbedder, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("local embedding cache size must be positive, got %d", maxEntries)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create local embedding cache: %w", err)
	}
	return &LocalEmbedder{inner: inner, cache: cache, model: model, cacheTotal: cacheTotal}, nil
}

// Embed returns a copy of a cached vector or calls the inner embedder.
func (l *LocalEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := cacheKey(l.model, text)
	if vec, ok := l.get(key); ok {
		incCache(l.cacheTotal, "local", "hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	incCache(l.cacheTotal, "local", "miss")

	res, err := l.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	l.put(key, res.Embedding)
	return res, nil
}

// BatchEmbed serves hits locally and forwards the misses in one batch.
func (l *LocalEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := l.get(cacheKey(l.model, text)); ok {
			incCache(l.cacheTotal, "local", "hit")
			out[i] = vec
			continue
		}
		incCache(l.cacheTotal, "local", "miss")
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	res, err := domain.EmbedAll(ctx, l.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	for j, i := range missIdx {
		out[i] = res.Embeddings[j]
		l.put(cacheKey(l.model, texts[i]), res.Embeddings[j])
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (l *LocalEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := l.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Close releases the cache goroutines.
func (l *LocalEmbedder) Close() {
	l.cache.Close()
}

func (l *LocalEmbedder) get(key string) ([]float32, bool) {
	v, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), vec...), true
}

func (l *LocalEmbedder) put(key string, vec []float32) {
	l.cache.Set(key, append([]float32(nil), vec...), 1)
}
