package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

var (
	// ErrConflict is returned when a write collides with a uniqueness constraint,
	// e.g. two concurrent edits computing the same next version number.
	ErrConflict = errors.New("conflicting write")
	// ErrNotConfigured is returned when an operation needs a backend that has
	// not been configured.
	ErrNotConfigured = errors.New("backend not configured")
	// ErrNoAggregate is returned by a DetailLoader whose backend has no
	// single-call query for the requested read model.
	ErrNoAggregate = errors.New("aggregated query not available")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
