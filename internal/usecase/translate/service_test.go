package translate

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/usecase/embedding"
	"github.com/kailas-cloud/tmrouter/internal/usecase/retrieval"
	"github.com/kailas-cloud/tmrouter/internal/usecase/routing"
)

// --- Fakes ---

type fakeMemory struct {
	result    domain.SearchResult
	searchErr error
	lastQuery retrieval.Query
	searches  int

	appended  []domain.TranslationPair
	appendID  int64
	appendErr error
}

func (f *fakeMemory) Search(_ context.Context, q retrieval.Query) (domain.SearchResult, error) {
	f.searches++
	f.lastQuery = q
	return f.result, f.searchErr
}

func (f *fakeMemory) Append(_ context.Context, p domain.TranslationPair) (int64, error) {
	f.appended = append(f.appended, p)
	return f.appendID, f.appendErr
}

func (f *fakeMemory) Stats(_ context.Context) (domain.Stats, error) {
	return domain.Stats{EntryCount: 5, IndexSize: 5}, nil
}

type fakeGlossary struct {
	terms []domain.TermMatch
}

func (f *fakeGlossary) ExtractTerms(_, _ string) []domain.TermMatch { return f.terms }
func (f *fakeGlossary) Substitute(text, _ string) string            { return "[subst] " + text }
func (f *fakeGlossary) Count() int                                  { return 15 }

type fakeGenerator struct {
	out   string
	err   error
	calls int
	req   domain.GenerationRequest
}

func (f *fakeGenerator) Translate(_ context.Context, req domain.GenerationRequest) (string, error) {
	f.calls++
	f.req = req
	return f.out, f.err
}

func (f *fakeGenerator) Name() string { return "openai" }

type fakeBudget struct{}

func (fakeBudget) Status() embedding.BudgetStatus {
	return embedding.BudgetStatus{DailyLimit: 1000, DailyRemaining: 900, MonthlyRemaining: -1}
}

func match(score float64) domain.TranslationMatch {
	return domain.TranslationMatch{
		PairID: 1, SourceText: "The server is down", TargetText: "Le serveur est hors service",
		SimilarityScore: score, Confidence: 0.95,
	}
}

func newService(mem *fakeMemory, gen domain.Generator) *Service {
	return New(mem, &fakeGlossary{terms: []domain.TermMatch{{Term: "server", Translation: "serveur", Confidence: 1}}},
		routing.DefaultPolicy(), gen, nil, Config{EmbeddingModel: "m", SimilarityThreshold: 0.7, TopK: 5}, zap.NewNop())
}

var fullRequest = Request{Text: "The server is down", TargetLanguage: "fr", UseGlossary: true, UseMemory: true}

// --- Tests ---

func TestTranslate_UsesMemory(t *testing.T) {
	mem := &fakeMemory{result: domain.NewSearchResult([]domain.TranslationMatch{match(1.0)})}
	gen := &fakeGenerator{out: "unused"}

	resp, err := newService(mem, gen).Translate(context.Background(), fullRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Action != routing.UseMemory || resp.Translation != "Le serveur est hors service" || resp.ModelUsed != ModelMemory {
		t.Errorf("unexpected response: %+v", resp)
	}
	if gen.calls != 0 {
		t.Error("generator must not be called for a memory hit")
	}
	if resp.RequestID == "" || len(resp.MemoryMatches) != 1 || len(resp.GlossaryMatches) != 1 {
		t.Errorf("response missing details: %+v", resp)
	}
	if q := mem.lastQuery; q.SourceLanguage != "en" || q.TopK != 5 || q.SimilarityThreshold == nil || *q.SimilarityThreshold != 0.7 {
		t.Errorf("unexpected search query: %+v", mem.lastQuery)
	}
}

func TestTranslate_InvokesGenerator(t *testing.T) {
	mem := &fakeMemory{result: domain.NewSearchResult([]domain.TranslationMatch{match(0.75)})}
	gen := &fakeGenerator{out: "Le serveur est en panne"}

	req := fullRequest
	req.Domain = "infrastructure"
	resp, err := newService(mem, gen).Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Action != routing.InvokeGenerative || resp.Translation != "Le serveur est en panne" || resp.ModelUsed != "openai" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(gen.req.Hints.Matches) != 1 || len(gen.req.Hints.Terms) != 1 || gen.req.Domain != "infrastructure" {
		t.Errorf("generator did not receive hints: %+v", gen.req)
	}
	wantConf := 0.5 + 1.0*0.3 + 0.75*0.2
	if resp.Confidence != wantConf {
		t.Errorf("expected confidence %v, got %v", wantConf, resp.Confidence)
	}
}

func TestTranslate_GeneratorFailureFallsBack(t *testing.T) {
	mem := &fakeMemory{result: domain.NewSearchResult(nil)}
	gen := &fakeGenerator{err: domain.ErrGenerativeBackend}

	resp, err := newService(mem, gen).Translate(context.Background(), fullRequest)
	if err != nil {
		t.Fatalf("generator failure must not fail the request: %v", err)
	}
	if resp.Action != routing.FallbackSubstitute || resp.Translation != "[subst] The server is down" || resp.ModelUsed != ModelFallback {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestTranslate_NoGenerator(t *testing.T) {
	mem := &fakeMemory{result: domain.NewSearchResult(nil)}

	resp, err := newService(mem, nil).Translate(context.Background(), fullRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Action != routing.FallbackSubstitute || resp.Translation != "[subst] The server is down" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestTranslate_SkipsDisabledSources(t *testing.T) {
	mem := &fakeMemory{result: domain.NewSearchResult([]domain.TranslationMatch{match(1.0)})}

	resp, err := newService(mem, nil).Translate(context.Background(), Request{Text: "x", TargetLanguage: "fr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mem.searches != 0 || len(resp.GlossaryMatches) != 0 || resp.Confidence != 0.5 {
		t.Errorf("expected no lookups, got searches=%d resp=%+v", mem.searches, resp)
	}
}

func TestTranslate_EmbeddingUnavailableDegrades(t *testing.T) {
	mem := &fakeMemory{searchErr: domain.ErrEmbeddingUnavailable}
	gen := &fakeGenerator{out: "ok"}

	resp, err := newService(mem, gen).Translate(context.Background(), fullRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Action != routing.InvokeGenerative || len(resp.MemoryMatches) != 0 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestTranslate_StorageErrorFails(t *testing.T) {
	mem := &fakeMemory{searchErr: domain.ErrStorage}

	_, err := newService(mem, nil).Translate(context.Background(), fullRequest)
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
}

func TestFeedback_AcceptedDefaultsConfidence(t *testing.T) {
	mem := &fakeMemory{appendID: 7}

	res, err := newService(mem, nil).Feedback(context.Background(), Feedback{
		RequestID: "req-1", SourceText: "Invalid input format", TargetText: "Format d'entrée invalide",
		TargetLanguage: "fr", Accepted: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PairID != 7 || !res.Stored || !res.Indexed {
		t.Errorf("unexpected result: %+v", res)
	}
	p := mem.appended[0]
	if p.Confidence != DefaultFeedbackConfidence || p.Metadata["request_id"] != "req-1" {
		t.Errorf("unexpected stored pair: %+v", p)
	}
}

func TestFeedback_ExplicitConfidence(t *testing.T) {
	mem := &fakeMemory{appendID: 1}
	c := 0.6
	_, err := newService(mem, nil).Feedback(context.Background(), Feedback{
		SourceText: "a", TargetText: "b", TargetLanguage: "fr", Accepted: true, Confidence: &c,
	})
	if err != nil || mem.appended[0].Confidence != 0.6 {
		t.Errorf("expected confidence 0.6, got %+v, %v", mem.appended, err)
	}
}

func TestFeedback_Rejected(t *testing.T) {
	mem := &fakeMemory{}
	res, err := newService(mem, nil).Feedback(context.Background(), Feedback{SourceText: "a", Accepted: false})
	if err != nil || res.Stored || len(mem.appended) != 0 {
		t.Errorf("rejected feedback must not be stored: %+v, %v", res, err)
	}
}

func TestFeedback_IndexDeferred(t *testing.T) {
	mem := &fakeMemory{appendID: 3, appendErr: domain.ErrPersistence}
	res, err := newService(mem, nil).Feedback(context.Background(), Feedback{
		SourceText: "a", TargetText: "b", TargetLanguage: "fr", Accepted: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Stored || res.Indexed {
		t.Errorf("expected stored but not indexed, got %+v", res)
	}
}

func TestFeedback_InvalidPair(t *testing.T) {
	mem := &fakeMemory{appendErr: domain.ErrInvalidPair}
	_, err := newService(mem, nil).Feedback(context.Background(), Feedback{Accepted: true})
	if !errors.Is(err, domain.ErrInvalidPair) {
		t.Errorf("expected ErrInvalidPair, got %v", err)
	}
}

func TestStats(t *testing.T) {
	svc := New(&fakeMemory{}, &fakeGlossary{}, routing.DefaultPolicy(), &fakeGenerator{}, fakeBudget{},
		Config{EmbeddingModel: "text-embedding-3-small", SimilarityThreshold: 0.7, TopK: 5}, zap.NewNop())

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.EntryCount != 5 || st.GlossaryTerms != 15 || st.Generator != "openai" || st.DirectUseThreshold != 0.8 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.Budget == nil || st.Budget.DailyRemaining != 900 {
		t.Errorf("expected budget status, got %+v", st.Budget)
	}

	st, _ = newService(&fakeMemory{}, nil).Stats(context.Background())
	if st.Generator != ModelFallback || st.Budget != nil {
		t.Errorf("unexpected stats without generator: %+v", st)
	}
}
