package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTargetLanguage is used for glossary terms added without a target language.
const DefaultTargetLanguage = "fr"

// GlossaryTerm is a preferred translation for a term in one target language.
type GlossaryTerm struct {
	ID                   int64
	Term                 string
	PreferredTranslation string
	TargetLanguage       string
	Notes                string
	Domain               string
	CreatedAt            time.Time
}

// Validate checks required fields.
func (g *GlossaryTerm) Validate() error {
	switch {
	case strings.TrimSpace(g.Term) == "":
		return fmt.Errorf("%w: term is required", ErrInvalidTerm)
	case strings.TrimSpace(g.PreferredTranslation) == "":
		return fmt.Errorf("%w: preferred_translation is required", ErrInvalidTerm)
	case g.TargetLanguage == "":
		return fmt.Errorf("%w: target_language is required", ErrInvalidTerm)
	}
	return nil
}
