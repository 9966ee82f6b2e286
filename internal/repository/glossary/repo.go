// Package glossary stores preferred term translations.
package glossary

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

type termRow struct {
	bun.BaseModel `bun:"table:glossary,alias:g"`

	ID                   int64     `bun:"id,pk,autoincrement"`
	Term                 string    `bun:"term,notnull"`
	PreferredTranslation string    `bun:"preferred_translation,notnull"`
	TargetLanguage       string    `bun:"target_language,notnull"`
	Notes                string    `bun:"notes,nullzero"`
	Domain               string    `bun:"domain,nullzero"`
	CreatedAt            time.Time `bun:"created_at,notnull"`
}

func (r *termRow) toDomain() domain.GlossaryTerm {
	return domain.GlossaryTerm{
		ID:                   r.ID,
		Term:                 r.Term,
		PreferredTranslation: r.PreferredTranslation,
		TargetLanguage:       r.TargetLanguage,
		Notes:                r.Notes,
		Domain:               r.Domain,
		CreatedAt:            r.CreatedAt,
	}
}

// Repo implements glossary persistence.
type Repo struct {
	db bun.IDB
}

// New creates a glossary repository.
func New(db bun.IDB) *Repo {
	return &Repo{db: db}
}

// CreateSchema creates the glossary table and indexes if missing.
func (r *Repo) CreateSchema(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().Model((*termRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("%w: create glossary: %w", domain.ErrStorage, err)
	}
	for name, column := range map[string]string{
		"idx_glossary_term": "term",
		"idx_glossary_lang": "target_language",
	} {
		_, err := r.db.NewCreateIndex().Model((*termRow)(nil)).Index(name).Column(column).IfNotExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("%w: create index %s: %w", domain.ErrStorage, name, err)
		}
	}
	return nil
}

// Add inserts a term and returns its id.
func (r *Repo) Add(ctx context.Context, g domain.GlossaryTerm) (int64, error) {
	if g.TargetLanguage == "" {
		g.TargetLanguage = domain.DefaultTargetLanguage
	}
	if err := g.Validate(); err != nil {
		return 0, err
	}
	row := &termRow{
		Term:                 g.Term,
		PreferredTranslation: g.PreferredTranslation,
		TargetLanguage:       g.TargetLanguage,
		Notes:                g.Notes,
		Domain:               g.Domain,
		CreatedAt:            time.Now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: insert term: %w", domain.ErrStorage, err)
	}
	return row.ID, nil
}

// List returns terms in insertion order, optionally filtered by target language.
func (r *Repo) List(ctx context.Context, targetLanguage string) ([]domain.GlossaryTerm, error) {
	var rows []termRow
	q := r.db.NewSelect().Model(&rows).Order("id")
	if targetLanguage != "" {
		q = q.Where("target_language = ?", targetLanguage)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list terms: %w", domain.ErrStorage, err)
	}
	out := make([]domain.GlossaryTerm, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// Count returns the number of stored terms.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().Model((*termRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count terms: %w", domain.ErrStorage, err)
	}
	return n, nil
}
