package translate

import (
	"context"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/usecase/embedding"
	"github.com/kailas-cloud/tmrouter/internal/usecase/retrieval"
)

// Memory is the retrieval fuser and its write path.
type Memory interface {
	Search(ctx context.Context, q retrieval.Query) (domain.SearchResult, error)
	Append(ctx context.Context, p domain.TranslationPair) (int64, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// Glossary is the terminology lookup plus its size for stats.
type Glossary interface {
	domain.TermExtractor
	Count() int
}

// BudgetReporter exposes embedding budget consumption.
type BudgetReporter interface {
	Status() embedding.BudgetStatus
}
