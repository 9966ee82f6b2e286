package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// TermWriter stores one glossary term.
type TermWriter interface {
	Add(ctx context.Context, g domain.GlossaryTerm) (int64, error)
}

// Required and optional glossary CSV columns. Column order is free.
const (
	ColumnTerm           = "term"
	ColumnPreferred      = "preferred_translation"
	ColumnNotes          = "notes"
	ColumnDomain         = "domain"
	ColumnTargetLanguage = "target_language"
)

// ImportTerms reads a glossary CSV with a header row and adds every row to store.
// Rows without a target_language column value use targetLanguage. Import stops at the
// first invalid row; rows before it stay stored.
func ImportTerms(ctx context.Context, r io.Reader, store TermWriter, targetLanguage string, logger *zap.Logger) (int, error) {
	if targetLanguage == "" {
		targetLanguage = domain.DefaultTargetLanguage
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: empty glossary csv", domain.ErrInvalidTerm)
	}
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range []string{ColumnTerm, ColumnPreferred} {
		if _, ok := cols[c]; !ok {
			return 0, fmt.Errorf("%w: csv header is missing column %q", domain.ErrInvalidTerm, c)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var n int
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		g := domain.GlossaryTerm{
			Term:                 field(rec, ColumnTerm),
			PreferredTranslation: field(rec, ColumnPreferred),
			Notes:                field(rec, ColumnNotes),
			Domain:               field(rec, ColumnDomain),
			TargetLanguage:       field(rec, ColumnTargetLanguage),
		}
		if g.TargetLanguage == "" {
			g.TargetLanguage = targetLanguage
		}
		if err := g.Validate(); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := store.Add(ctx, g); err != nil {
			return n, fmt.Errorf("line %d: add term %q: %w", line, g.Term, err)
		}
		n++
	}

	logger.Info("Glossary imported", zap.Int("terms", n), zap.String("default_target_language", targetLanguage))
	return n, nil
}
