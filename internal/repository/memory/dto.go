package memory

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// pairRow is the translation_memory table.
type pairRow struct {
	bun.BaseModel `bun:"table:translation_memory,alias:tm"`

	ID             int64          `bun:"id,pk,autoincrement"`
	SourceText     string         `bun:"source_text,notnull"`
	TargetText     string         `bun:"target_text,notnull"`
	SourceLanguage string         `bun:"source_language,notnull"`
	TargetLanguage string         `bun:"target_language,notnull"`
	Domain         string         `bun:"domain,nullzero"`
	Confidence     float64        `bun:"confidence,notnull"`
	Metadata       map[string]any `bun:"metadata,nullzero,json_use_number"`
	CreatedAt      time.Time      `bun:"created_at,notnull"`
	UpdatedAt      time.Time      `bun:"updated_at,notnull"`
}

func toRow(p *domain.TranslationPair) *pairRow {
	return &pairRow{
		SourceText:     p.SourceText,
		TargetText:     p.TargetText,
		SourceLanguage: p.SourceLanguage,
		TargetLanguage: p.TargetLanguage,
		Domain:         p.Domain,
		Confidence:     p.Confidence,
		Metadata:       p.Metadata,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (r *pairRow) toDomain() domain.TranslationPair {
	return domain.TranslationPair{
		ID:             r.ID,
		SourceText:     r.SourceText,
		TargetText:     r.TargetText,
		SourceLanguage: r.SourceLanguage,
		TargetLanguage: r.TargetLanguage,
		Domain:         r.Domain,
		Confidence:     r.Confidence,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func rowsToDomain(rows []pairRow) []domain.TranslationPair {
	out := make([]domain.TranslationPair, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}
