package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSourceLanguage is assumed when a caller omits the source language.
const DefaultSourceLanguage = "en"

// TranslationPair is a confirmed source/target text pair held by the memory store.
type TranslationPair struct {
	ID             int64
	SourceText     string
	TargetText     string
	SourceLanguage string
	TargetLanguage string
	Domain         string
	Confidence     float64
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks required fields and the confidence range.
func (p *TranslationPair) Validate() error {
	switch {
	case strings.TrimSpace(p.SourceText) == "":
		return fmt.Errorf("%w: source_text is required", ErrInvalidPair)
	case strings.TrimSpace(p.TargetText) == "":
		return fmt.Errorf("%w: target_text is required", ErrInvalidPair)
	case p.SourceLanguage == "":
		return fmt.Errorf("%w: source_language is required", ErrInvalidPair)
	case p.TargetLanguage == "":
		return fmt.Errorf("%w: target_language is required", ErrInvalidPair)
	case !(p.Confidence >= 0 && p.Confidence <= 1):
		return fmt.Errorf("%w: confidence %v out of [0,1]", ErrInvalidPair, p.Confidence)
	}
	return nil
}

// Stats summarizes memory and index size.
type Stats struct {
	EntryCount int
	IndexSize  int
}
