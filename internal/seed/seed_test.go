package seed

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

type fakePairs struct {
	existing int
	added    []domain.TranslationPair
	err      error
}

func (f *fakePairs) Count(context.Context) (int, error) { return f.existing + len(f.added), nil }

func (f *fakePairs) Add(_ context.Context, p domain.TranslationPair) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.added = append(f.added, p)
	return int64(len(f.added)), nil
}

type fakeTerms struct {
	existing int
	added    []domain.GlossaryTerm
}

func (f *fakeTerms) Count(context.Context) (int, error) { return f.existing + len(f.added), nil }

func (f *fakeTerms) Add(_ context.Context, g domain.GlossaryTerm) (int64, error) {
	f.added = append(f.added, g)
	return int64(len(f.added)), nil
}

func TestStarterData_Valid(t *testing.T) {
	for _, p := range Pairs() {
		if err := p.Validate(); err != nil {
			t.Errorf("pair %q: %v", p.SourceText, err)
		}
	}
	for _, g := range Terms() {
		if err := g.Validate(); err != nil {
			t.Errorf("term %q: %v", g.Term, err)
		}
	}
	if len(Pairs()) != 5 || len(Terms()) != 15 {
		t.Errorf("expected 5 pairs and 15 terms, got %d and %d", len(Pairs()), len(Terms()))
	}
}

func TestRun_EmptyTables(t *testing.T) {
	pairs, terms := &fakePairs{}, &fakeTerms{}
	res, err := Run(context.Background(), pairs, terms, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Pairs != 5 || res.Terms != 15 {
		t.Errorf("unexpected result: %+v", res)
	}
	if pairs.added[0].SourceText != "The server is down" || pairs.added[0].Confidence != 0.95 {
		t.Errorf("unexpected first pair: %+v", pairs.added[0])
	}
}

func TestRun_Idempotent(t *testing.T) {
	pairs, terms := &fakePairs{}, &fakeTerms{}
	if _, err := Run(context.Background(), pairs, terms, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	res, err := Run(context.Background(), pairs, terms, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if res.Pairs != 0 || res.Terms != 0 || len(pairs.added) != 5 {
		t.Errorf("second run must not insert, got %+v", res)
	}
}

func TestRun_SkipsNonEmptyTable(t *testing.T) {
	pairs, terms := &fakePairs{existing: 3}, &fakeTerms{}
	res, err := Run(context.Background(), pairs, terms, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if res.Pairs != 0 || res.Terms != 15 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRun_StoreError(t *testing.T) {
	pairs := &fakePairs{err: domain.ErrStorage}
	_, err := Run(context.Background(), pairs, &fakeTerms{}, zap.NewNop())
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
}
