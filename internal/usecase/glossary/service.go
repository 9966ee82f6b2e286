// Package glossary serves terminology lookups from an in-memory copy of the glossary table.
package glossary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// Match confidences.
const (
	WholeTermConfidence   = 1.0
	PartialTermConfidence = 0.8
)

type entry struct {
	term  domain.GlossaryTerm
	lower []rune
}

// Service caches glossary terms per target language. Lookups never touch the store.
type Service struct {
	repo   Repository
	logger *zap.Logger

	// writeMu serializes Add and Reload so a reload never drops a concurrent add.
	writeMu sync.Mutex

	mu     sync.RWMutex
	byLang map[string][]entry // insertion order
	total  int
}

// New creates a glossary service. Call Reload to populate it.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, byLang: make(map[string][]entry)}
}

// Reload replaces the cache with the store contents.
func (s *Service) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	terms, err := s.repo.List(ctx, "")
	if err != nil {
		return fmt.Errorf("load glossary: %w", err)
	}

	byLang := make(map[string][]entry)
	for _, t := range terms {
		byLang[t.TargetLanguage] = append(byLang[t.TargetLanguage], newEntry(t))
	}

	s.mu.Lock()
	s.byLang = byLang
	s.total = len(terms)
	s.mu.Unlock()

	s.logger.Info("Glossary loaded", zap.Int("terms", len(terms)), zap.Int("languages", len(byLang)))
	return nil
}

// Add stores a term and makes it visible to lookups.
func (s *Service) Add(ctx context.Context, g domain.GlossaryTerm) (domain.GlossaryTerm, error) {
	if g.TargetLanguage == "" {
		g.TargetLanguage = domain.DefaultTargetLanguage
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.repo.Add(ctx, g)
	if err != nil {
		return domain.GlossaryTerm{}, fmt.Errorf("add term: %w", err)
	}
	g.ID = id

	s.mu.Lock()
	s.byLang[g.TargetLanguage] = append(s.byLang[g.TargetLanguage], newEntry(g))
	s.total++
	s.mu.Unlock()
	return g, nil
}

// List returns the terms for a target language, or every term when it is empty.
func (s *Service) List(targetLanguage string) []domain.GlossaryTerm {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.GlossaryTerm
	if targetLanguage != "" {
		for _, e := range s.byLang[targetLanguage] {
			out = append(out, e.term)
		}
		return out
	}

	langs := make([]string, 0, len(s.byLang))
	for l := range s.byLang {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		for _, e := range s.byLang[l] {
			out = append(out, e.term)
		}
	}
	return out
}

// Count returns the number of cached terms.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// ExtractTerms finds glossary terms in text, case-insensitively. A term found on word
// boundaries scores 1.0; a term found only inside a longer word scores 0.8.
func (s *Service) ExtractTerms(text, targetLanguage string) []domain.TermMatch {
	s.mu.RLock()
	entries := s.byLang[targetLanguage]
	s.mu.RUnlock()

	lower := lowerRunes(text)
	var out []domain.TermMatch
	for _, e := range entries {
		whole, partial := find(lower, e.lower)
		var conf float64
		switch {
		case whole:
			conf = WholeTermConfidence
		case partial:
			conf = PartialTermConfidence
		default:
			continue
		}
		out = append(out, domain.TermMatch{
			Term:        e.term.Term,
			Translation: e.term.PreferredTranslation,
			Notes:       e.term.Notes,
			Confidence:  conf,
		})
	}
	return out
}

// Substitute replaces every whole-word glossary term with its preferred translation in
// a single left-to-right pass. Longer terms win over their prefixes, and replaced text
// is never matched again.
func (s *Service) Substitute(text, targetLanguage string) string {
	s.mu.RLock()
	entries := append([]entry(nil), s.byLang[targetLanguage]...)
	s.mu.RUnlock()

	if len(entries) == 0 {
		return text
	}
	sort.SliceStable(entries, func(i, j int) bool { return len(entries[i].lower) > len(entries[j].lower) })

	src := []rune(text)
	lower := lowerRunes(text)
	var b strings.Builder
	for i := 0; i < len(src); {
		matched := false
		for _, e := range entries {
			if hasWordAt(lower, e.lower, i) {
				b.WriteString(e.term.PreferredTranslation)
				i += len(e.lower)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteRune(src[i])
			i++
		}
	}
	return b.String()
}

func newEntry(t domain.GlossaryTerm) entry {
	return entry{term: t, lower: lowerRunes(t.Term)}
}

func lowerRunes(s string) []rune {
	r := []rune(s)
	for i := range r {
		r[i] = unicode.ToLower(r[i])
	}
	return r
}

// find reports whether term occurs in text on word boundaries, and whether it occurs at all.
func find(text, term []rune) (whole, partial bool) {
	if len(term) == 0 {
		return false, false
	}
	for i := 0; i+len(term) <= len(text); i++ {
		if !equalAt(text, term, i) {
			continue
		}
		partial = true
		if boundary(text, i-1) && boundary(text, i+len(term)) {
			return true, true
		}
	}
	return false, partial
}

func hasWordAt(text, term []rune, i int) bool {
	return len(term) > 0 &&
		i+len(term) <= len(text) &&
		equalAt(text, term, i) &&
		boundary(text, i-1) &&
		boundary(text, i+len(term))
}

func equalAt(text, term []rune, i int) bool {
	for j, r := range term {
		if text[i+j] != r {
			return false
		}
	}
	return true
}

// boundary reports whether position i is outside text or not a word character.
func boundary(text []rune, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	r := text[i]
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
