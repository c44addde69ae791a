package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateItem indicates an equivalent inventory item already exists.
	ErrDuplicateItem = errors.New("duplicate item")
	// ErrDuplicateSubmission indicates an identical create arrived within the dedup window.
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("validation failed")
)

// Validationf wraps ErrValidation with field context.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// OpError decorates a failure with the operation name and entity id so callers
// can log and display it without re-deriving context.
func OpError(op, entityID string, err error) error {
	if err == nil {
		return nil
	}
	if entityID == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s %s: %w", op, entityID, err)
}
