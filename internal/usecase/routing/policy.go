// Package routing decides how a translation request is served from a memory search.
package routing

import (
	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// Action is the routing outcome.
type Action string

const (
	// UseMemory returns the best memory match verbatim.
	UseMemory Action = "memory"
	// InvokeGenerative calls the generative backend with matches and terms as hints.
	InvokeGenerative Action = "generative"
	// FallbackSubstitute applies glossary substitution to the source text.
	FallbackSubstitute Action = "fallback"
)

// Policy holds the decision constants.
type Policy struct {
	// DirectUseThreshold is exclusive: a best score equal to it does not qualify.
	DirectUseThreshold float64
	Baseline           float64
	TermWeight         float64
	MemoryWeight       float64
}

// DefaultPolicy returns the stock constants.
func DefaultPolicy() Policy {
	return Policy{
		DirectUseThreshold: 0.8,
		Baseline:           0.5,
		TermWeight:         0.3,
		MemoryWeight:       0.2,
	}
}

// Input is everything the policy looks at.
type Input struct {
	Result        domain.SearchResult
	Terms         []domain.TermMatch
	HasGenerative bool
}

// Decision is the routing outcome. Match is set only for UseMemory, Hints only for
// InvokeGenerative. Confidence is advisory.
type Decision struct {
	Action     Action
	Match      *domain.TranslationMatch
	Hints      *domain.ContextHints
	Confidence float64
}

// Decide is pure: the same input always yields the same decision.
func (p Policy) Decide(in Input) Decision {
	best, hasBest := in.Result.Best()
	d := Decision{Confidence: p.Confidence(in.Terms, best, hasBest)}

	switch {
	case hasBest && best.SimilarityScore > p.DirectUseThreshold:
		d.Action = UseMemory
		d.Match = &best
	case in.HasGenerative:
		d.Action = InvokeGenerative
		d.Hints = &domain.ContextHints{Matches: in.Result.Matches, Terms: in.Terms}
	default:
		d.Action = FallbackSubstitute
	}
	return d
}

// Confidence combines the baseline, mean term confidence and best similarity, clamped
// to [0, 1].
func (p Policy) Confidence(terms []domain.TermMatch, best domain.TranslationMatch, hasBest bool) float64 {
	c := p.Baseline
	if len(terms) > 0 {
		var sum float64
		for _, t := range terms {
			sum += t.Confidence
		}
		c += sum / float64(len(terms)) * p.TermWeight
	}
	if hasBest {
		c += best.SimilarityScore * p.MemoryWeight
	}
	return min(max(c, 0), 1)
}
