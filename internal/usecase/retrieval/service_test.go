package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/index"
)

// --- Fakes ---

type fakeMemory struct {
	pairs   []domain.TranslationPair
	findErr error
	addErr  error
}

func (f *fakeMemory) Add(_ context.Context, p domain.TranslationPair) (int64, error) {
	if f.addErr != nil {
		return 0, f.addErr
	}
	if p.SourceLanguage == "" {
		p.SourceLanguage = domain.DefaultSourceLanguage
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	p.ID = int64(len(f.pairs) + 1)
	f.pairs = append(f.pairs, p)
	return p.ID, nil
}

func (f *fakeMemory) FindExact(_ context.Context, text, target, source string) ([]domain.TranslationPair, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []domain.TranslationPair
	for _, p := range f.pairs {
		if p.SourceText == text && p.TargetLanguage == target && p.SourceLanguage == source {
			out = append(out, p)
		}
	}
	// confidence desc, id asc
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Confidence > out[j-1].Confidence; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeMemory) SourceTexts(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range f.pairs {
		if !seen[p.SourceText] {
			seen[p.SourceText] = true
			out = append(out, p.SourceText)
		}
	}
	return out, nil
}

func (f *fakeMemory) Count(_ context.Context) (int, error) { return len(f.pairs), nil }

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.calls++
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	v, ok := f.vectors[text]
	if !ok {
		return domain.EmbeddingResult{Embedding: []float32{0, 0, 0, 1}}, nil
	}
	return domain.EmbeddingResult{Embedding: v, TotalTokens: 1}, nil
}

var testVectors = map[string][]float32{
	"The server is down":             {1, 0, 0, 0},
	"Server is down":                 {0.9, 0.1, 0, 0},
	"Please restart the application": {0, 1, 0, 0},
	"Database connection failed":     {0, 0, 1, 0},
	"Authentication required":        {0, 0.2, 0.9, 0.1},
}

func starterPairs() []domain.TranslationPair {
	return []domain.TranslationPair{
		{SourceText: "The server is down", TargetText: "Le serveur est hors service", TargetLanguage: "fr", Domain: "infrastructure", Confidence: 0.95},
		{SourceText: "Please restart the application", TargetText: "Veuillez redémarrer l'application", TargetLanguage: "fr", Domain: "troubleshooting", Confidence: 0.9},
		{SourceText: "Database connection failed", TargetText: "La connexion à la base de données a échoué", TargetLanguage: "fr", Domain: "database", Confidence: 0.98},
	}
}

func newTestService(t *testing.T, store index.SnapshotStore) (*Service, *fakeMemory, *fakeEmbedder, *index.Index) {
	t.Helper()
	idx, err := index.New(index.Config{Dimensions: 4, Model: "fake", Store: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mem := &fakeMemory{}
	emb := &fakeEmbedder{vectors: testVectors}
	svc := New(mem, idx, emb, Config{DefaultTopK: 5, DefaultThreshold: 0.7}, zap.NewNop())
	return svc, mem, emb, idx
}

func threshold(v float64) *float64 { return &v }

func seed(t *testing.T, svc *Service) {
	t.Helper()
	for _, p := range starterPairs() {
		if _, err := svc.Append(context.Background(), p); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

// --- Tests ---

func TestSearch_EmptyIndex(t *testing.T) {
	svc, _, emb, _ := newTestService(t, nil)

	res, err := svc.Search(context.Background(), Query{Text: "The server is down", TargetLanguage: "fr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalMatches != 0 || len(res.Matches) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if emb.calls != 0 {
		t.Error("embedder must not be called on an empty index")
	}
}

func TestSearch_ExactHit(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	seed(t, svc)

	res, err := svc.Search(context.Background(), Query{Text: "The server is down", TargetLanguage: "fr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	best, ok := res.Best()
	if !ok {
		t.Fatal("expected a match")
	}
	if best.SimilarityScore != 1.0 || best.TargetText != "Le serveur est hors service" {
		t.Errorf("unexpected best match: %+v", best)
	}
	if res.ExactMatches != 1 {
		t.Errorf("expected 1 exact match, got %d", res.ExactMatches)
	}
}

func TestSearch_SemanticHit(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	seed(t, svc)

	res, err := svc.Search(context.Background(), Query{Text: "Server is down", TargetLanguage: "fr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalMatches != 1 || res.SemanticMatches != 1 {
		t.Fatalf("expected one semantic match, got %+v", res)
	}
	m := res.Matches[0]
	if m.SourceText != "The server is down" || m.SimilarityScore <= 0.8 || m.SimilarityScore >= 1 {
		t.Errorf("unexpected match: %+v", m)
	}
}

func TestSearch_RespectsThreshold(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	seed(t, svc)

	for _, th := range []float64{0.5, 0.9, 0.99, 1.0} {
		res, err := svc.Search(context.Background(), Query{
			Text: "Authentication required", TargetLanguage: "fr", SimilarityThreshold: threshold(th),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, m := range res.Matches {
			if m.SimilarityScore < th {
				t.Errorf("threshold %v: match below threshold %+v", th, m)
			}
		}
	}

	res, _ := svc.Search(context.Background(), Query{
		Text: "The server is down", TargetLanguage: "fr", SimilarityThreshold: threshold(1.0),
	})
	if res.TotalMatches != 1 {
		t.Errorf("threshold is inclusive: expected the exact match, got %+v", res)
	}
}

func TestSearch_ZeroThresholdIsHonored(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	seed(t, svc)

	def, err := svc.Search(context.Background(), Query{Text: "Authentication required", TargetLanguage: "fr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.TotalMatches != 1 {
		t.Fatalf("default threshold: expected 1 match, got %+v", def)
	}

	res, err := svc.Search(context.Background(), Query{
		Text: "Authentication required", TargetLanguage: "fr", SimilarityThreshold: threshold(0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalMatches <= def.TotalMatches {
		t.Fatalf("threshold 0 must not fall back to the default, got %+v", res)
	}
	var found bool
	for _, m := range res.Matches {
		if m.SourceText == "Please restart the application" {
			found = true
		}
		if m.SimilarityScore < 0 {
			t.Errorf("match below threshold 0: %+v", m)
		}
	}
	if !found {
		t.Errorf("expected the low-similarity neighbor, got %+v", res.Matches)
	}
}

func TestSearch_NearDuplicateIsNotExact(t *testing.T) {
	svc, _, emb, _ := newTestService(t, nil)
	seed(t, svc)

	vectors := make(map[string][]float32, len(testVectors)+1)
	for k, v := range testVectors {
		vectors[k] = v
	}
	vectors["The server is down!"] = []float32{1, 0.001, 0, 0}
	emb.vectors = vectors

	res, err := svc.Search(context.Background(), Query{Text: "The server is down!", TargetLanguage: "fr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalMatches != 1 || res.ExactMatches != 0 || res.SemanticMatches != 1 {
		t.Fatalf("expected one semantic match, got %+v", res)
	}
	if s := res.Matches[0].SimilarityScore; s >= 1 || s < 0.999 {
		t.Errorf("expected a score just under 1, got %v", s)
	}
}

func TestSearch_DropsOtherLanguages(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	seed(t, svc)

	res, err := svc.Search(context.Background(), Query{Text: "The server is down", TargetLanguage: "de"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalMatches != 0 {
		t.Errorf("expected no matches for de, got %+v", res)
	}
}

func TestSearch_PolysemyRanking(t *testing.T) {
	svc, _, _, idx := newTestService(t, nil)
	seed(t, svc)

	extra := []domain.TranslationPair{
		{SourceText: "The server is down", TargetText: "Le serveur est en panne", TargetLanguage: "fr", Confidence: 0.99},
		{SourceText: "The server is down", TargetText: "Le serveur ne répond plus", TargetLanguage: "fr", Confidence: 0.95},
	}
	for _, p := range extra {
		if _, err := svc.Append(context.Background(), p); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if idx.Len() != 3 {
		t.Fatalf("repeated source text must not be re-indexed, len=%d", idx.Len())
	}

	res, err := svc.Search(context.Background(), Query{Text: "The server is down", TargetLanguage: "fr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalMatches != 3 || res.ExactMatches != 3 {
		t.Fatalf("expected three exact matches, got %+v", res)
	}
	want := []string{"Le serveur est en panne", "Le serveur est hors service", "Le serveur ne répond plus"}
	for i, w := range want {
		if res.Matches[i].TargetText != w {
			t.Errorf("rank %d: want %q, got %q", i, w, res.Matches[i].TargetText)
		}
	}
}

func TestSearch_DeduplicatesPairsAcrossNeighbors(t *testing.T) {
	svc, mem, _, idx := newTestService(t, nil)
	seed(t, svc)

	// Same text indexed twice.
	if err := idx.Insert("The server is down", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := svc.Search(context.Background(), Query{Text: "The server is down", TargetLanguage: "fr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalMatches != 1 {
		t.Errorf("expected one match for pair %d, got %+v", mem.pairs[0].ID, res)
	}
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	svc, _, emb, _ := newTestService(t, nil)
	seed(t, svc)
	emb.err = context.DeadlineExceeded

	_, err := svc.Search(context.Background(), Query{Text: "x", TargetLanguage: "fr"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestSearch_StorageFailure(t *testing.T) {
	svc, mem, _, _ := newTestService(t, nil)
	seed(t, svc)
	mem.findErr = domain.ErrStorage

	_, err := svc.Search(context.Background(), Query{Text: "The server is down", TargetLanguage: "fr"})
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
}

func TestAppend_InvalidPair(t *testing.T) {
	svc, _, _, idx := newTestService(t, nil)

	_, err := svc.Append(context.Background(), domain.TranslationPair{SourceText: "x", TargetLanguage: "fr"})
	if !errors.Is(err, domain.ErrInvalidPair) {
		t.Errorf("expected ErrInvalidPair, got %v", err)
	}
	if idx.Len() != 0 {
		t.Error("invalid pair must not be indexed")
	}
}

func TestAppend_EmbeddingFailureKeepsPair(t *testing.T) {
	svc, mem, emb, idx := newTestService(t, nil)
	emb.err = errors.New("provider down")

	id, err := svc.Append(context.Background(), starterPairs()[0])
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if id == 0 || len(mem.pairs) != 1 || idx.Len() != 0 {
		t.Errorf("expected durable pair without index entry: id=%d pairs=%d len=%d", id, len(mem.pairs), idx.Len())
	}
}

func TestInit_RecoversAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.tmx")
	svc, mem, _, _ := newTestService(t, index.NewFileStore(path))
	seed(t, svc)

	// Restart: new index over the same snapshot and memory store.
	idx2, _ := index.New(index.Config{Dimensions: 4, Model: "fake", Store: index.NewFileStore(path)})
	emb2 := &fakeEmbedder{vectors: testVectors}
	svc2 := New(mem, idx2, emb2, Config{}, zap.NewNop())

	if err := svc2.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx2.Len() != 3 {
		t.Errorf("expected 3 records after restart, got %d", idx2.Len())
	}
	if emb2.calls != 0 {
		t.Errorf("snapshot load must not re-embed, got %d calls", emb2.calls)
	}

	res, err := svc2.Search(context.Background(), Query{Text: "Database connection failed", TargetLanguage: "fr"})
	if err != nil || res.ExactMatches != 1 {
		t.Errorf("expected exact hit after restart, got %+v, %v", res, err)
	}
}

func TestInit_RebuildsWhenSnapshotMissingOrBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.tmx")
	svc, mem, emb, idx := newTestService(t, index.NewFileStore(path))
	mem.pairs = nil
	for _, p := range starterPairs() {
		if _, err := mem.Add(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}

	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != 3 || emb.calls != 3 {
		t.Errorf("expected rebuild of 3 texts, len=%d calls=%d", idx.Len(), emb.calls)
	}

	// Pair written while the index was unavailable.
	_, _ = mem.Add(context.Background(), domain.TranslationPair{
		SourceText: "Authentication required", TargetText: "Authentification requise", TargetLanguage: "fr", Confidence: 0.92,
	})
	idx2, _ := index.New(index.Config{Dimensions: 4, Model: "fake", Store: index.NewFileStore(path)})
	svc2 := New(mem, idx2, &fakeEmbedder{vectors: testVectors}, Config{}, zap.NewNop())
	if err := svc2.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx2.Len() != 4 {
		t.Errorf("expected rebuild to 4 records, got %d", idx2.Len())
	}
}

func TestInit_RebuildsOnModelChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.tmx")
	svc, mem, _, _ := newTestService(t, index.NewFileStore(path))
	seed(t, svc)

	idx2, _ := index.New(index.Config{Dimensions: 4, Model: "other", Store: index.NewFileStore(path)})
	emb2 := &fakeEmbedder{vectors: testVectors}
	svc2 := New(mem, idx2, emb2, Config{}, zap.NewNop())
	if err := svc2.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx2.Len() != 3 || emb2.calls != 3 {
		t.Errorf("expected full re-embed, len=%d calls=%d", idx2.Len(), emb2.calls)
	}
}

func TestStats(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	seed(t, svc)
	_, _ = svc.Append(context.Background(), domain.TranslationPair{
		SourceText: "The server is down", TargetText: "Le serveur est en panne", TargetLanguage: "fr", Confidence: 0.9,
	})

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.EntryCount != 4 || st.IndexSize != 3 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if !svc.IndexLoaded() {
		t.Error("expected index loaded")
	}
}
