// Package memory is the durable translation-memory store.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// Repo stores translation pairs in a SQL table. Every write commits before returning.
type Repo struct {
	db  bun.IDB
	now func() time.Time
}

// New creates a memory repository.
func New(db bun.IDB) *Repo {
	return &Repo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateSchema creates the table and its lookup indexes if missing.
func (r *Repo) CreateSchema(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().Model((*pairRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("%w: create translation_memory: %w", domain.ErrStorage, err)
	}

	indexes := []struct {
		name    string
		columns []string
	}{
		{"idx_tm_source", []string{"source_text"}},
		{"idx_tm_lang", []string{"source_language", "target_language"}},
		{"idx_tm_domain", []string{"domain"}},
	}
	for _, idx := range indexes {
		_, err := r.db.NewCreateIndex().
			Model((*pairRow)(nil)).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("%w: create index %s: %w", domain.ErrStorage, idx.name, err)
		}
	}
	return nil
}

// Add validates and inserts a pair, returning its surrogate id.
func (r *Repo) Add(ctx context.Context, p domain.TranslationPair) (int64, error) {
	if p.SourceLanguage == "" {
		p.SourceLanguage = domain.DefaultSourceLanguage
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}

	now := r.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	row := toRow(&p)
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: insert pair: %w", domain.ErrStorage, err)
	}
	return row.ID, nil
}

// FindExact returns pairs whose source text and language pair match exactly,
// highest confidence first. Equal confidence keeps insertion order.
func (r *Repo) FindExact(
	ctx context.Context, sourceText, targetLanguage, sourceLanguage string,
) ([]domain.TranslationPair, error) {
	var rows []pairRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("source_text = ?", sourceText).
		Where("target_language = ?", targetLanguage).
		Where("source_language = ?", sourceLanguage).
		OrderExpr("confidence DESC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: find exact: %w", domain.ErrStorage, err)
	}
	return rowsToDomain(rows), nil
}

// All returns every pair in insertion order, optionally filtered by target language.
func (r *Repo) All(ctx context.Context, targetLanguage string) ([]domain.TranslationPair, error) {
	var rows []pairRow
	q := r.db.NewSelect().Model(&rows).Order("id")
	if targetLanguage != "" {
		q = q.Where("target_language = ?", targetLanguage)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list pairs: %w", domain.ErrStorage, err)
	}
	return rowsToDomain(rows), nil
}

// SourceTexts returns the distinct source texts in first-seen order.
func (r *Repo) SourceTexts(ctx context.Context) ([]string, error) {
	var texts []string
	err := r.db.NewSelect().
		Model((*pairRow)(nil)).
		Column("source_text").
		GroupExpr("source_text").
		OrderExpr("MIN(id)").
		Scan(ctx, &texts)
	if err != nil {
		return nil, fmt.Errorf("%w: list source texts: %w", domain.ErrStorage, err)
	}
	return texts, nil
}

// Count returns the number of stored pairs.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().Model((*pairRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count pairs: %w", domain.ErrStorage, err)
	}
	return n, nil
}
