package translate

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/logger"
	"github.com/kailas-cloud/tmrouter/internal/prompt"
	"github.com/kailas-cloud/tmrouter/internal/usecase/retrieval"
)

// Self-test component names and statuses.
const (
	ComponentGlossary  = "glossary"
	ComponentMemory    = "memory"
	ComponentGenerator = "generator"

	StatusWorking  = "working"
	StatusFailed   = "failed"
	StatusFallback = "fallback"
)

// Fixed inputs for the self-test.
const (
	selfTestGlossaryText = "The cloud server and database connection failed"
	selfTestMemoryText   = "The server is down"
	selfTestGenerateText = "Hello world"
	selfTestLanguage     = "fr"
)

// PromptPreview is the prompt a generative provider would receive for a request.
type PromptPreview struct {
	System          string
	Prompt          string
	Length          int
	GlossaryMatches int
	MemoryMatches   int
}

// ComponentResult is the outcome of exercising one component.
type ComponentResult struct {
	Status   string
	Detail   map[string]any
	Error    string
	Duration time.Duration
}

// SelfTestReport is the outcome of SelfTest.
type SelfTestReport struct {
	Components map[string]ComponentResult
	Working    int
	Total      int
	CheckedAt  time.Time
}

// PreviewPrompt renders the generative prompt for req with the glossary terms and
// memory matches the orchestrator would pass as hints. No provider is called.
func (s *Service) PreviewPrompt(ctx context.Context, req Request) (PromptPreview, error) {
	log := logger.FromContextOr(ctx, s.logger)
	if req.SourceLanguage == "" {
		req.SourceLanguage = domain.DefaultSourceLanguage
	}

	terms := s.glossary.ExtractTerms(req.Text, req.TargetLanguage)
	result, err := s.searchMemory(ctx, req, log)
	if err != nil {
		return PromptPreview{}, err
	}

	builder, err := s.promptBuilder()
	if err != nil {
		return PromptPreview{}, err
	}
	text, err := builder.Render(domain.GenerationRequest{
		Text:           req.Text,
		TargetLanguage: req.TargetLanguage,
		SourceLanguage: req.SourceLanguage,
		Domain:         req.Domain,
		Hints:          domain.ContextHints{Matches: result.Matches, Terms: terms},
	})
	if err != nil {
		return PromptPreview{}, err
	}

	return PromptPreview{
		System:          prompt.System,
		Prompt:          text,
		Length:          utf8.RuneCountInString(text),
		GlossaryMatches: len(terms),
		MemoryMatches:   len(result.Matches),
	}, nil
}

func (s *Service) promptBuilder() (*prompt.Builder, error) {
	if s.cfg.Prompt != nil {
		return s.cfg.Prompt, nil
	}
	return prompt.New("")
}

// SelfTest exercises the glossary, the memory search and the generator with fixed
// inputs. A missing generator reports StatusFallback and does not count as working.
func (s *Service) SelfTest(ctx context.Context) SelfTestReport {
	log := logger.FromContextOr(ctx, s.logger)

	rep := SelfTestReport{
		Components: map[string]ComponentResult{
			ComponentGlossary:  s.testGlossary(),
			ComponentMemory:    s.testMemory(ctx),
			ComponentGenerator: s.testGenerator(ctx),
		},
		CheckedAt: time.Now().UTC(),
	}
	rep.Total = len(rep.Components)
	for name, c := range rep.Components {
		if c.Status == StatusWorking {
			rep.Working++
			continue
		}
		log.Warn("Self-test component not working",
			zap.String("component", name),
			zap.String("status", c.Status),
			zap.String("error", c.Error),
		)
	}
	log.Info("Self-test finished", zap.Int("working", rep.Working), zap.Int("total", rep.Total))
	return rep
}

func (s *Service) testGlossary() ComponentResult {
	start := time.Now()
	terms := s.glossary.ExtractTerms(selfTestGlossaryText, selfTestLanguage)

	samples := make([]string, 0, 3)
	for i, t := range terms {
		if i == 3 {
			break
		}
		samples = append(samples, fmt.Sprintf("%s=%s", t.Term, t.Translation))
	}
	return ComponentResult{
		Status:   StatusWorking,
		Detail:   map[string]any{"terms_found": len(terms), "samples": samples},
		Duration: time.Since(start),
	}
}

func (s *Service) testMemory(ctx context.Context) ComponentResult {
	start := time.Now()
	threshold := s.cfg.SimilarityThreshold
	res, err := s.memory.Search(ctx, retrieval.Query{
		Text:                selfTestMemoryText,
		TargetLanguage:      selfTestLanguage,
		SourceLanguage:      domain.DefaultSourceLanguage,
		TopK:                s.cfg.TopK,
		SimilarityThreshold: &threshold,
	})
	if err != nil {
		return ComponentResult{Status: StatusFailed, Error: err.Error(), Duration: time.Since(start)}
	}

	detail := map[string]any{"matches_found": res.TotalMatches}
	if st, err := s.memory.Stats(ctx); err == nil {
		detail["index_size"] = st.IndexSize
	}
	return ComponentResult{Status: StatusWorking, Detail: detail, Duration: time.Since(start)}
}

func (s *Service) testGenerator(ctx context.Context) ComponentResult {
	if s.generator == nil {
		return ComponentResult{
			Status: StatusFallback,
			Detail: map[string]any{"note": "no generative provider configured, using glossary substitution"},
		}
	}

	start := time.Now()
	out, err := s.generator.Translate(ctx, domain.GenerationRequest{
		Text:           selfTestGenerateText,
		TargetLanguage: selfTestLanguage,
		SourceLanguage: domain.DefaultSourceLanguage,
	})
	if err != nil {
		return ComponentResult{Status: StatusFailed, Error: err.Error(), Duration: time.Since(start)}
	}
	return ComponentResult{
		Status:   StatusWorking,
		Detail:   map[string]any{"provider": s.generator.Name(), "translation": out},
		Duration: time.Since(start),
	}
}
