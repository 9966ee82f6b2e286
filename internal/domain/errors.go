package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch signals a vector whose dimensionality differs from the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrDegenerateVector signals a zero-norm vector that cannot be normalized.
	ErrDegenerateVector = errors.New("degenerate vector")
	// ErrEmbeddingUnavailable signals a failed, timed out, or cancelled embedding call.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrStorage signals a durable-store read or write failure.
	ErrStorage = errors.New("storage error")
	// ErrInvalidPair signals a translation pair with missing or out-of-range fields.
	ErrInvalidPair = fmt.Errorf("%w: invalid translation pair", ErrStorage)
	// ErrInvalidTerm signals a glossary term with missing fields.
	ErrInvalidTerm = fmt.Errorf("%w: invalid glossary term", ErrStorage)
	// ErrPersistence signals a failed index snapshot write.
	ErrPersistence = errors.New("index persistence error")
	// ErrSnapshotIncompatible signals a snapshot written for another embedding model.
	ErrSnapshotIncompatible = errors.New("index snapshot incompatible")
	// ErrGenerativeBackend signals a generative translation failure.
	ErrGenerativeBackend = errors.New("generative backend error")
	// ErrNoGenerativeBackend signals that no generative provider is configured.
	ErrNoGenerativeBackend = errors.New("no generative backend configured")
)

// DimensionError carries the expected and actual dimensionality.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrDimensionMismatch.Error(), e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionError creates a dimension mismatch error.
func NewDimensionError(want, got int) error {
	return &DimensionError{Want: want, Got: got}
}
