package domain

import "errors"

// Sentinel errors for the scheduling engine.
// Callers check them with errors.Is, e.g. errors.Is(err, domain.ErrInvalidRating).
var (
	ErrInvalidRating    = errors.New("versed: invalid rating")
	ErrInvalidScore     = errors.New("versed: score out of range")
	ErrInvalidLineIndex = errors.New("versed: line index out of range")
	ErrInvalidLearner   = errors.New("versed: invalid learner identifier")
	ErrInvalidItem      = errors.New("versed: invalid item identifier")
	ErrInvalidSection   = errors.New("versed: invalid section identifier")
	ErrInvalidCard      = errors.New("versed: card violates invariants")
	ErrStaleCard        = errors.New("versed: card update is stale")
	ErrBatchLimit       = errors.New("versed: batch exceeds configured maximum")
	ErrUnauthorized     = errors.New("versed: caller is not a trusted writer")

	// ErrStoreUnavailable wraps infrastructure failures from a card store
	// backend. It is the only error kind here that is not a caller
	// input-shape error.
	ErrStoreUnavailable = errors.New("versed: card store unavailable")
)
