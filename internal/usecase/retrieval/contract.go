package retrieval

import (
	"context"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/index"
)

// MemoryStore is the durable translation-pair store.
type MemoryStore interface {
	Add(ctx context.Context, p domain.TranslationPair) (int64, error)
	FindExact(ctx context.Context, sourceText, targetLanguage, sourceLanguage string) ([]domain.TranslationPair, error)
	SourceTexts(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// VectorIndex is the semantic index over source texts.
type VectorIndex interface {
	Len() int
	Build(records []index.Record) error
	Insert(text string, vector []float32) error
	Query(vector []float32, k int) ([]domain.SimilarityMatch, error)
	Contains(text string) bool
	Load() (bool, error)
}
