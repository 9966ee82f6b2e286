package chi

import (
	"context"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	healthuc "github.com/kailas-cloud/tmrouter/internal/usecase/health"
	"github.com/kailas-cloud/tmrouter/internal/usecase/retrieval"
	"github.com/kailas-cloud/tmrouter/internal/usecase/translate"
)

// Translator serves translation, feedback, stats and diagnostics.
type Translator interface {
	Translate(ctx context.Context, req translate.Request) (translate.Response, error)
	Feedback(ctx context.Context, fb translate.Feedback) (translate.FeedbackResult, error)
	Stats(ctx context.Context) (translate.Stats, error)
	PreviewPrompt(ctx context.Context, req translate.Request) (translate.PromptPreview, error)
	SelfTest(ctx context.Context) translate.SelfTestReport
}

// Memory is direct access to the translation memory.
type Memory interface {
	Search(ctx context.Context, q retrieval.Query) (domain.SearchResult, error)
	Append(ctx context.Context, p domain.TranslationPair) (int64, error)
}

// Glossary manages glossary terms.
type Glossary interface {
	domain.TermExtractor
	List(targetLanguage string) []domain.GlossaryTerm
	Add(ctx context.Context, g domain.GlossaryTerm) (domain.GlossaryTerm, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
