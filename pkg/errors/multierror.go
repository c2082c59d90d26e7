package errors

import (
	"fmt"
	"strings"
)

// MultiError collects the failures of a batch operation that keeps going
// past individual errors, such as an ingest cycle that processes every
// discovered billing file before reporting.
type MultiError struct {
	Message string
	Errors  []error
}

// Error returns the error message to satisfy the error interface
func (e MultiError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
}

// Is to satisfy the error comparison interface
func (e MultiError) Is(err error) bool {
	return e.Error() == err.Error()
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// NewMultiError wraps the collected errors under one message
func NewMultiError(msg string, errs []error) *MultiError {
	return &MultiError{
		Message: msg,
		Errors:  errs,
	}
}
