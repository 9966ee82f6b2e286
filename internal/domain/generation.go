package domain

import "context"

// TermMatch is a glossary term found in the source text.
type TermMatch struct {
	Term        string  `json:"term"`
	Translation string  `json:"translation"`
	Notes       string  `json:"notes,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// ContextHints is the structured context handed to a generative provider.
type ContextHints struct {
	Matches []TranslationMatch
	Terms   []TermMatch
}

// GenerationRequest is one generative translation call.
type GenerationRequest struct {
	Text           string
	TargetLanguage string
	SourceLanguage string
	Domain         string
	Hints          ContextHints
}

// Generator is a generative translation provider. One implementation exists per
// provider; the active one is chosen once at startup.
type Generator interface {
	Translate(ctx context.Context, req GenerationRequest) (string, error)
	// Name identifies the provider and model for responses and metrics.
	Name() string
}

// TermExtractor finds glossary terms in text and performs deterministic substitution.
// Both operations are pure lookups over an in-memory glossary.
type TermExtractor interface {
	ExtractTerms(text, targetLanguage string) []TermMatch
	Substitute(text, targetLanguage string) string
}
