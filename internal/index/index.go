// Package index implements the in-memory vector index over unit-normalized embeddings.
//
// The index is a flat inner-product scan. On unit vectors the inner product equals cosine
// similarity, so every stored vector is normalized on the way in. Positions in the
// sequence are stable for the life of the index and serve as internal identifiers.
//
// A single RWMutex guards the pair (in-memory sequence, snapshot): Insert and Build hold
// the exclusive lock through persistence, Query holds the shared lock.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// Record is one (text, vector) pair.
type Record struct {
	Text   string
	Vector []float32
}

// SnapshotStore persists and restores full index snapshots.
type SnapshotStore interface {
	Save(snap *Snapshot) error
	// Load returns ErrSnapshotNotFound when no snapshot exists.
	Load() (*Snapshot, error)
}

// Config holds index construction parameters.
type Config struct {
	Dimensions int
	Model      string
	Store      SnapshotStore // nil disables persistence
	Logger     *zap.Logger
}

// Index is a flat inner-product index.
type Index struct {
	mu      sync.RWMutex
	dim     int
	model   string
	texts   []string
	vectors []float32 // len(texts)*dim, row-major
	store   SnapshotStore
	logger  *zap.Logger
}

// New creates an empty index of fixed dimensionality.
func New(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("index dimensions must be positive, got %d", cfg.Dimensions)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		dim:    cfg.Dimensions,
		model:  cfg.Model,
		store:  cfg.Store,
		logger: logger,
	}, nil
}

// Dimensions returns D.
func (x *Index) Dimensions() int { return x.dim }

// Model returns the embedding model identifier recorded in snapshots.
func (x *Index) Model() string { return x.model }

// Len returns the number of stored records.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.texts)
}

// Build replaces the index wholesale and persists it. Nothing changes on a dimension or
// normalization failure.
func (x *Index) Build(records []Record) error {
	texts := make([]string, len(records))
	vectors := make([]float32, 0, len(records)*x.dim)
	for i, r := range records {
		unit, err := x.prepare(r.Vector)
		if err != nil {
			return fmt.Errorf("record %d (%q): %w", i, r.Text, err)
		}
		texts[i] = r.Text
		vectors = append(vectors, unit...)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.texts = texts
	x.vectors = vectors
	x.logger.Info("Vector index built", zap.Int("records", len(texts)), zap.Int("dimensions", x.dim))

	return x.persistLocked()
}

// Insert appends one record and persists the snapshot. A dimension mismatch leaves the
// index unchanged. A persistence failure is reported as ErrPersistence with the record
// kept in memory, so the caller may rebuild from the memory store.
func (x *Index) Insert(text string, vector []float32) error {
	unit, err := x.prepare(vector)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.texts = append(x.texts, text)
	x.vectors = append(x.vectors, unit...)

	return x.persistLocked()
}

// Query returns up to k nearest records by inner product, best first.
// Ties keep insertion order. An empty index yields an empty result.
func (x *Index) Query(vector []float32, k int) ([]domain.SimilarityMatch, error) {
	if len(vector) != x.dim {
		return nil, domain.NewDimensionError(x.dim, len(vector))
	}
	q, err := domain.Normalize(vector)
	if err != nil {
		return nil, fmt.Errorf("normalize query: %w", err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := len(x.texts)
	if k <= 0 || n == 0 {
		return []domain.SimilarityMatch{}, nil
	}

	top := newTopK(k)
	for pos := 0; pos < n; pos++ {
		row := x.vectors[pos*x.dim : (pos+1)*x.dim]
		top.offer(pos, domain.Dot(q, row))
	}

	hits := top.sorted()
	out := make([]domain.SimilarityMatch, len(hits))
	for i, h := range hits {
		out[i] = domain.SimilarityMatch{
			Text:     x.texts[h.pos],
			Position: h.pos,
			Score:    domain.ClampSimilarity(h.score),
		}
	}
	return out, nil
}

// Contains reports whether text is already indexed.
func (x *Index) Contains(text string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, t := range x.texts {
		if t == text {
			return true
		}
	}
	return false
}

// Persist writes the current snapshot.
func (x *Index) Persist() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.persistLocked()
}

// Load restores the index from the snapshot store. loaded is false when no snapshot
// exists; the caller must then Build from the memory store.
func (x *Index) Load() (loaded bool, err error) {
	if x.store == nil {
		return false, nil
	}

	snap, err := x.store.Load()
	if errors.Is(err, ErrSnapshotNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}

	if snap.Dimensions != x.dim {
		return false, fmt.Errorf("snapshot: %w", domain.NewDimensionError(x.dim, snap.Dimensions))
	}
	if snap.Model != "" && x.model != "" && snap.Model != x.model {
		return false, fmt.Errorf("%w: snapshot model %q, active model %q",
			domain.ErrSnapshotIncompatible, snap.Model, x.model)
	}

	texts := make([]string, len(snap.Records))
	vectors := make([]float32, 0, len(snap.Records)*x.dim)
	for i, r := range snap.Records {
		unit, err := x.prepare(r.Vector)
		if err != nil {
			return false, fmt.Errorf("snapshot record %d: %w", i, err)
		}
		texts[i] = r.Text
		vectors = append(vectors, unit...)
	}

	x.mu.Lock()
	x.texts = texts
	x.vectors = vectors
	x.mu.Unlock()

	x.logger.Info("Vector index loaded from snapshot", zap.Int("records", len(texts)))
	return true, nil
}

// prepare validates dimensionality and returns a normalized copy.
func (x *Index) prepare(v []float32) ([]float32, error) {
	if len(v) != x.dim {
		return nil, domain.NewDimensionError(x.dim, len(v))
	}
	unit, err := domain.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return unit, nil
}

// persistLocked saves the snapshot. Caller holds x.mu.
func (x *Index) persistLocked() error {
	if x.store == nil {
		return nil
	}
	snap := &Snapshot{
		Model:      x.model,
		Dimensions: x.dim,
		Records:    make([]Record, len(x.texts)),
	}
	for i, t := range x.texts {
		snap.Records[i] = Record{Text: t, Vector: x.vectors[i*x.dim : (i+1)*x.dim]}
	}
	if err := x.store.Save(snap); err != nil {
		x.logger.Error("Failed to persist vector index", zap.Int("records", len(x.texts)), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return nil
}

// hit is a scored position.
type hit struct {
	pos   int
	score float64
}

// worse orders hits: lower score first, later position first on ties.
func worse(a, b hit) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.pos > b.pos
}

// topK keeps the k best hits in a min-heap rooted at the worst kept hit.
type topK struct {
	k    int
	heap []hit
}

func newTopK(k int) *topK {
	return &topK{k: k, heap: make([]hit, 0, k)}
}

func (t *topK) offer(pos int, score float64) {
	h := hit{pos: pos, score: score}
	if len(t.heap) < t.k {
		t.heap = append(t.heap, h)
		t.up(len(t.heap) - 1)
		return
	}
	if worse(t.heap[0], h) {
		t.heap[0] = h
		t.down(0)
	}
}

func (t *topK) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !worse(t.heap[i], t.heap[parent]) {
			return
		}
		t.heap[i], t.heap[parent] = t.heap[parent], t.heap[i]
		i = parent
	}
}

func (t *topK) down(i int) {
	n := len(t.heap)
	for {
		smallest := i
		l, r := 2*i+1, 2*i+2
		if l < n && worse(t.heap[l], t.heap[smallest]) {
			smallest = l
		}
		if r < n && worse(t.heap[r], t.heap[smallest]) {
			smallest = r
		}
		if smallest == i {
			return
		}
		t.heap[i], t.heap[smallest] = t.heap[smallest], t.heap[i]
		i = smallest
	}
}

// sorted returns kept hits best first.
func (t *topK) sorted() []hit {
	out := append([]hit(nil), t.heap...)
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	return out
}
