package glossary

import (
	"context"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// Repository is the durable glossary store.
type Repository interface {
	Add(ctx context.Context, g domain.GlossaryTerm) (int64, error)
	List(ctx context.Context, targetLanguage string) ([]domain.GlossaryTerm, error)
}
