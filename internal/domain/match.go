package domain

import "sort"

// ExactScoreEpsilon bounds the rounding error of self-similarity for a float32 unit
// vector, which lands within ~1e-7 of 1.
const ExactScoreEpsilon = 1e-6

// SimilarityMatch is one nearest-neighbor hit from the vector index.
type SimilarityMatch struct {
	Text     string
	Position int
	Score    float64
}

// TranslationMatch is a memory pair tagged with the similarity of the neighbor that found it.
type TranslationMatch struct {
	PairID          int64          `json:"pair_id"`
	SourceText      string         `json:"source_text"`
	TargetText      string         `json:"target_text"`
	SimilarityScore float64        `json:"similarity_score"`
	Confidence      float64        `json:"confidence"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// IsExact reports whether the match came from an identical source text.
func (m *TranslationMatch) IsExact() bool {
	return m.SimilarityScore == 1.0
}

// SearchResult is the ranked output of a memory search.
type SearchResult struct {
	Matches         []TranslationMatch `json:"matches"`
	TotalMatches    int                `json:"total_matches"`
	ExactMatches    int                `json:"exact_matches"`
	SemanticMatches int                `json:"semantic_matches"`
}

// NewSearchResult ranks matches and fills the counters.
// Order: similarity desc, confidence desc, pair insertion order asc.
func NewSearchResult(matches []TranslationMatch) SearchResult {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.SimilarityScore != b.SimilarityScore {
			return a.SimilarityScore > b.SimilarityScore
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.PairID < b.PairID
	})

	res := SearchResult{Matches: matches, TotalMatches: len(matches)}
	for i := range matches {
		switch {
		case matches[i].IsExact():
			res.ExactMatches++
		case matches[i].SimilarityScore > 0:
			res.SemanticMatches++
		}
	}
	return res
}

// Best returns the match with the highest similarity, ties broken by confidence.
func (r *SearchResult) Best() (TranslationMatch, bool) {
	if len(r.Matches) == 0 {
		return TranslationMatch{}, false
	}
	best := r.Matches[0]
	for _, m := range r.Matches[1:] {
		if m.SimilarityScore > best.SimilarityScore ||
			(m.SimilarityScore == best.SimilarityScore && m.Confidence > best.Confidence) {
			best = m
		}
	}
	return best, true
}
