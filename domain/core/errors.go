package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound       = errors.New("resource not found")
	ErrSourceNotFound = fmt.Errorf("%w: source", ErrNotFound)
	ErrGeneNotFound   = fmt.Errorf("%w: gene", ErrNotFound)

	// Input errors
	ErrValidation = errors.New("validation failed")

	// Registry errors
	ErrDuplicateSource      = errors.New("source already registered")
	ErrDuplicateDisplayName = errors.New("source display name already in use")
	ErrInvalidRule          = errors.New("invalid scoring rule")

	// Scoring errors
	ErrUnresolvedField     = errors.New("rule field could not be resolved")
	ErrNoActiveSources     = errors.New("no active sources")
	ErrInconsistentSource  = errors.New("evidence references an unknown or inactive source")
	ErrRecomputeSuperseded = errors.New("recompute superseded by a newer snapshot")
	ErrCoordinatorStopped  = errors.New("refresh coordinator stopped")
)

// NewNotFoundError wraps ErrNotFound with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewValidationError describes a rejected field
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w for %s: %s", ErrValidation, field, reason)
}
