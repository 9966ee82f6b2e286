// Package translate orchestrates a translation request: glossary lookup, memory search,
// routing and, when routed there, the generative backend.
package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/logger"
	"github.com/kailas-cloud/tmrouter/internal/metrics"
	"github.com/kailas-cloud/tmrouter/internal/prompt"
	"github.com/kailas-cloud/tmrouter/internal/usecase/embedding"
	"github.com/kailas-cloud/tmrouter/internal/usecase/retrieval"
	"github.com/kailas-cloud/tmrouter/internal/usecase/routing"
)

// DefaultFeedbackConfidence is stored for accepted feedback without an explicit confidence.
const DefaultFeedbackConfidence = 0.9

// Model names reported when no generator produced the translation.
const (
	ModelMemory   = "memory"
	ModelFallback = "fallback"
)

// Request is one translation request.
type Request struct {
	Text           string
	TargetLanguage string
	SourceLanguage string
	Domain         string
	UseGlossary    bool
	UseMemory      bool
}

// Response is the outcome of Translate.
type Response struct {
	RequestID       string
	Translation     string
	SourceText      string
	TargetLanguage  string
	Action          routing.Action
	Confidence      float64
	GlossaryMatches []domain.TermMatch
	MemoryMatches   []domain.TranslationMatch
	ModelUsed       string
	ProcessingTime  time.Duration
}

// Feedback is a reviewer's verdict on a translation.
type Feedback struct {
	RequestID      string
	SourceText     string
	TargetText     string
	SourceLanguage string
	TargetLanguage string
	Domain         string
	Accepted       bool
	// Confidence nil means DefaultFeedbackConfidence.
	Confidence *float64
}

// FeedbackResult reports what happened to a feedback entry. Indexed is false when the
// pair is stored but its embedding could not be added to the index yet.
type FeedbackResult struct {
	PairID  int64
	Stored  bool
	Indexed bool
}

// Stats is a snapshot of the engine state.
type Stats struct {
	EntryCount          int
	IndexSize           int
	GlossaryTerms       int
	EmbeddingModel      string
	SimilarityThreshold float64
	TopK                int
	DirectUseThreshold  float64
	Generator           string
	Budget              *embedding.BudgetStatus
}

// Config holds the static settings reported by Stats and used for searches.
type Config struct {
	EmbeddingModel      string
	SimilarityThreshold float64
	TopK                int
	// Prompt renders prompt previews; nil uses the built-in template.
	Prompt *prompt.Builder
}

// Service is the translation orchestrator.
type Service struct {
	memory    Memory
	glossary  Glossary
	policy    routing.Policy
	generator domain.Generator // nil when no provider is configured
	budget    BudgetReporter   // nil when budgets are disabled
	cfg       Config
	logger    *zap.Logger
}

// New creates an orchestrator. generator and budget may be nil.
func New(
	memory Memory, glossary Glossary, policy routing.Policy,
	generator domain.Generator, budget BudgetReporter, cfg Config, logger *zap.Logger,
) *Service {
	return &Service{
		memory:    memory,
		glossary:  glossary,
		policy:    policy,
		generator: generator,
		budget:    budget,
		cfg:       cfg,
		logger:    logger,
	}
}

// Translate serves a request from memory, the generator or glossary substitution.
// A generator failure falls back to substitution rather than failing the request.
func (s *Service) Translate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	log := logger.FromContextOr(ctx, s.logger)
	if req.SourceLanguage == "" {
		req.SourceLanguage = domain.DefaultSourceLanguage
	}

	resp := Response{
		RequestID:      uuid.NewString(),
		SourceText:     req.Text,
		TargetLanguage: req.TargetLanguage,
	}

	var terms []domain.TermMatch
	if req.UseGlossary {
		terms = s.glossary.ExtractTerms(req.Text, req.TargetLanguage)
	}

	var result domain.SearchResult
	if req.UseMemory {
		var err error
		if result, err = s.searchMemory(ctx, req, log); err != nil {
			return Response{}, err
		}
	}

	decision := s.policy.Decide(routing.Input{
		Result:        result,
		Terms:         terms,
		HasGenerative: s.generator != nil,
	})
	metrics.RoutingDecisionsTotal.WithLabelValues(string(decision.Action)).Inc()

	resp.Action = decision.Action
	resp.Confidence = decision.Confidence
	resp.GlossaryMatches = terms
	resp.MemoryMatches = result.Matches

	switch decision.Action {
	case routing.UseMemory:
		resp.Translation = decision.Match.TargetText
		resp.ModelUsed = ModelMemory
	case routing.InvokeGenerative:
		out, err := s.generator.Translate(ctx, domain.GenerationRequest{
			Text:           req.Text,
			TargetLanguage: req.TargetLanguage,
			SourceLanguage: req.SourceLanguage,
			Domain:         req.Domain,
			Hints:          *decision.Hints,
		})
		if err != nil {
			log.Error("Generative translation failed, using glossary substitution",
				zap.String("provider", s.generator.Name()),
				zap.Error(err),
			)
			metrics.GenerationFallbacksTotal.WithLabelValues(s.generator.Name()).Inc()
			resp.Action = routing.FallbackSubstitute
			resp.Translation = s.glossary.Substitute(req.Text, req.TargetLanguage)
			resp.ModelUsed = ModelFallback
			break
		}
		resp.Translation = out
		resp.ModelUsed = s.generator.Name()
	default:
		resp.Translation = s.glossary.Substitute(req.Text, req.TargetLanguage)
		resp.ModelUsed = ModelFallback
	}

	resp.ProcessingTime = time.Since(start)
	log.Info("Translation served",
		zap.String("request_id", resp.RequestID),
		zap.String("action", string(resp.Action)),
		zap.String("model", resp.ModelUsed),
		zap.Int("glossary_matches", len(terms)),
		zap.Int("memory_matches", len(result.Matches)),
		zap.Float64("confidence", resp.Confidence),
		zap.Duration("duration", resp.ProcessingTime),
	)
	return resp, nil
}

// searchMemory runs the configured memory search. An unavailable embedder yields an
// empty result.
func (s *Service) searchMemory(ctx context.Context, req Request, log *zap.Logger) (domain.SearchResult, error) {
	threshold := s.cfg.SimilarityThreshold
	result, err := s.memory.Search(ctx, retrieval.Query{
		Text:                req.Text,
		TargetLanguage:      req.TargetLanguage,
		SourceLanguage:      req.SourceLanguage,
		TopK:                s.cfg.TopK,
		SimilarityThreshold: &threshold,
	})
	switch {
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		log.Warn("Memory search unavailable, continuing without matches", zap.Error(err))
		return domain.NewSearchResult(nil), nil
	case err != nil:
		return domain.SearchResult{}, fmt.Errorf("search memory: %w", err)
	}
	return result, nil
}

// Feedback stores accepted translations in memory. Rejections are only logged.
func (s *Service) Feedback(ctx context.Context, fb Feedback) (FeedbackResult, error) {
	log := logger.FromContextOr(ctx, s.logger).With(zap.String("feedback_request_id", fb.RequestID))

	if !fb.Accepted {
		log.Info("Translation rejected by reviewer",
			zap.String("source_text", fb.SourceText),
			zap.String("target_language", fb.TargetLanguage),
		)
		return FeedbackResult{}, nil
	}

	confidence := DefaultFeedbackConfidence
	if fb.Confidence != nil {
		confidence = *fb.Confidence
	}

	pair := domain.TranslationPair{
		SourceText:     fb.SourceText,
		TargetText:     fb.TargetText,
		SourceLanguage: fb.SourceLanguage,
		TargetLanguage: fb.TargetLanguage,
		Domain:         fb.Domain,
		Confidence:     confidence,
		Metadata:       map[string]any{"origin": "feedback"},
	}
	if fb.RequestID != "" {
		pair.Metadata["request_id"] = fb.RequestID
	}

	id, err := s.memory.Append(ctx, pair)
	switch {
	case err == nil:
		return FeedbackResult{PairID: id, Stored: true, Indexed: true}, nil
	case id != 0 && (errors.Is(err, domain.ErrEmbeddingUnavailable) || errors.Is(err, domain.ErrPersistence)):
		log.Warn("Feedback stored, index update deferred", zap.Int64("pair_id", id), zap.Error(err))
		return FeedbackResult{PairID: id, Stored: true}, nil
	default:
		return FeedbackResult{}, fmt.Errorf("store feedback: %w", err)
	}
}

// Stats reports memory, index, glossary and provider state.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	ms, err := s.memory.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("memory stats: %w", err)
	}

	st := Stats{
		EntryCount:          ms.EntryCount,
		IndexSize:           ms.IndexSize,
		GlossaryTerms:       s.glossary.Count(),
		EmbeddingModel:      s.cfg.EmbeddingModel,
		SimilarityThreshold: s.cfg.SimilarityThreshold,
		TopK:                s.cfg.TopK,
		DirectUseThreshold:  s.policy.DirectUseThreshold,
		Generator:           ModelFallback,
	}
	if s.generator != nil {
		st.Generator = s.generator.Name()
	}
	if s.budget != nil {
		b := s.budget.Status()
		st.Budget = &b
	}
	return st, nil
}
