package errors

import (
	"errors"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrVersionConflict = errors.New("version conflict")
	ErrExpired         = errors.New("expired")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
)

// ValidationError lists every problem found in a rejected input.
type ValidationError struct {
	Problems []string
}

// NewValidationError builds ValidationError from problem descriptions.
func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
