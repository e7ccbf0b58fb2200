package models

import "errors"

// Error taxonomy. Callers match categories with errors.Is; causes stay on the
// chain via double-%w wrapping, e.g.
//
//	fmt.Errorf("%w: embed query: %w", models.ErrEmbedding, err)
var (
	// ErrConfiguration signals bad provider or dimension setup.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmbedding signals provider failure after the retry budget is
	// exhausted, or a dimension mismatch against the configured model.
	ErrEmbedding = errors.New("embedding error")

	// ErrStorage signals an I/O or transaction failure in SQLite.
	ErrStorage = errors.New("storage error")

	// ErrValidation signals malformed request parameters.
	ErrValidation = errors.New("validation error")

	// ErrSafetyCritical signals that the safety validator scored content
	// CRITICAL and the caller attempted to proceed anyway.
	ErrSafetyCritical = errors.New("safety critical content")

	// ErrNotFound signals a lookup for a hash or scope that doesn't exist.
	ErrNotFound = errors.New("not found")
)
