// Package retrieval fuses exact memory lookups with semantic neighbors from the vector
// index, and owns the write path that keeps both in step.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/index"
	"github.com/kailas-cloud/tmrouter/internal/metrics"
)

// Query is one memory search.
type Query struct {
	Text           string
	TargetLanguage string
	SourceLanguage string
	// TopK falls back to the configured default when zero.
	TopK int
	// SimilarityThreshold falls back to the configured default when nil. An explicit
	// zero is honored.
	SimilarityThreshold *float64
}

// Config holds search defaults.
type Config struct {
	DefaultTopK      int
	DefaultThreshold float64
}

// Service is the retrieval fuser.
type Service struct {
	mem    MemoryStore
	idx    VectorIndex
	embed  domain.Embedder
	cfg    Config
	logger *zap.Logger

	writeMu sync.Mutex
}

// New creates a retrieval service.
func New(mem MemoryStore, idx VectorIndex, embed domain.Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.DefaultThreshold == 0 {
		cfg.DefaultThreshold = 0.7
	}
	return &Service{mem: mem, idx: idx, embed: embed, cfg: cfg, logger: logger}
}

// Search embeds the query, takes the nearest indexed source texts at or above the
// threshold and resolves each one to its stored pairs in the requested language pair.
// Neighbors with no such pair are dropped.
func (s *Service) Search(ctx context.Context, q Query) (domain.SearchResult, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	if s.idx.Len() == 0 {
		return domain.NewSearchResult(nil), nil
	}

	topK := q.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	threshold := s.cfg.DefaultThreshold
	if q.SimilarityThreshold != nil {
		threshold = *q.SimilarityThreshold
	}
	sourceLang := q.SourceLanguage
	if sourceLang == "" {
		sourceLang = domain.DefaultSourceLanguage
	}

	emb, err := s.embed.Embed(ctx, q.Text)
	if err != nil {
		metrics.SearchErrorsTotal.WithLabelValues("embedding").Inc()
		return domain.SearchResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	neighbors, err := s.idx.Query(emb.Embedding, topK)
	if err != nil {
		metrics.SearchErrorsTotal.WithLabelValues("index").Inc()
		return domain.SearchResult{}, fmt.Errorf("query index: %w", err)
	}

	seen := make(map[int64]struct{})
	var matches []domain.TranslationMatch
	for _, n := range neighbors {
		score := n.Score
		if n.Text == q.Text {
			// Rounding keeps an identical text just under 1.
			score = 1
		}
		if score < threshold {
			continue
		}
		pairs, err := s.mem.FindExact(ctx, n.Text, q.TargetLanguage, sourceLang)
		if err != nil {
			metrics.SearchErrorsTotal.WithLabelValues("storage").Inc()
			return domain.SearchResult{}, fmt.Errorf("resolve neighbor %d: %w", n.Position, err)
		}
		for _, p := range pairs {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			matches = append(matches, domain.TranslationMatch{
				PairID:          p.ID,
				SourceText:      p.SourceText,
				TargetText:      p.TargetText,
				SimilarityScore: score,
				Confidence:      p.Confidence,
				Metadata:        p.Metadata,
			})
		}
	}

	res := domain.NewSearchResult(matches)
	metrics.SearchMatches.WithLabelValues("exact").Observe(float64(res.ExactMatches))
	metrics.SearchMatches.WithLabelValues("semantic").Observe(float64(res.SemanticMatches))

	s.logger.Debug("Memory search completed",
		zap.Int("neighbors", len(neighbors)),
		zap.Int("matches", res.TotalMatches),
		zap.Int("exact", res.ExactMatches),
		zap.Float64("threshold", threshold),
	)
	return res, nil
}

// Append stores a pair and indexes its source text if the text is new. Once the pair
// is durable its id is returned even when indexing fails; a rebuild recovers the index.
func (s *Service) Append(ctx context.Context, p domain.TranslationPair) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.mem.Add(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("add pair: %w", err)
	}

	if s.idx.Contains(p.SourceText) {
		return id, nil
	}

	emb, err := s.embed.Embed(ctx, p.SourceText)
	if err != nil {
		s.logger.Warn("Pair stored but not indexed", zap.Int64("pair_id", id), zap.Error(err))
		return id, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	if err := s.idx.Insert(p.SourceText, emb.Embedding); err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			metrics.IndexPersistErrorsTotal.Inc()
		}
		metrics.IndexSize.Set(float64(s.idx.Len()))
		return id, fmt.Errorf("index pair %d: %w", id, err)
	}

	metrics.IndexSize.Set(float64(s.idx.Len()))
	return id, nil
}

// Rebuild re-embeds every distinct source text in the memory store and replaces the index.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	texts, err := s.mem.SourceTexts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list source texts: %w", err)
	}

	records := make([]index.Record, len(texts))
	if len(texts) > 0 {
		res, err := domain.EmbedAll(ctx, s.embed, texts)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		if len(res.Embeddings) != len(texts) {
			return 0, fmt.Errorf("rebuild: got %d vectors for %d texts", len(res.Embeddings), len(texts))
		}
		for i, t := range texts {
			records[i] = index.Record{Text: t, Vector: res.Embeddings[i]}
		}
	}

	if err := s.idx.Build(records); err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			metrics.IndexPersistErrorsTotal.Inc()
		}
		return 0, fmt.Errorf("build index: %w", err)
	}

	metrics.IndexSize.Set(float64(len(records)))
	s.logger.Info("Vector index rebuilt from memory store", zap.Int("records", len(records)))
	return len(records), nil
}

// Init restores the index from its snapshot, rebuilding when the snapshot is missing,
// written for another model or dimensionality, or behind the memory store.
func (s *Service) Init(ctx context.Context) error {
	loaded, err := s.idx.Load()
	switch {
	case errors.Is(err, domain.ErrSnapshotIncompatible), errors.Is(err, domain.ErrDimensionMismatch):
		s.logger.Warn("Index snapshot incompatible, rebuilding", zap.Error(err))
	case err != nil:
		return fmt.Errorf("load index: %w", err)
	}

	if loaded {
		texts, err := s.mem.SourceTexts(ctx)
		if err != nil {
			return fmt.Errorf("list source texts: %w", err)
		}
		if s.idx.Len() >= len(texts) {
			metrics.IndexSize.Set(float64(s.idx.Len()))
			return nil
		}
		s.logger.Warn("Index snapshot behind memory store, rebuilding",
			zap.Int("indexed", s.idx.Len()),
			zap.Int("distinct_texts", len(texts)),
		)
	}

	if _, err := s.Rebuild(ctx); err != nil {
		return err
	}
	return nil
}

// Stats reports the memory entry count and index size.
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	n, err := s.mem.Count(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count pairs: %w", err)
	}
	return domain.Stats{EntryCount: n, IndexSize: s.idx.Len()}, nil
}

// IndexLoaded reports whether the index holds any records.
func (s *Service) IndexLoaded() bool {
	return s.idx.Len() > 0
}
