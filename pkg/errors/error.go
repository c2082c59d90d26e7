package errors

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// These are the Codes used in the error messages surfaced to operators.
// Some of the errors have similar codes so making them consistent
const (
	validationError    = "RequestValidationError"
	serverError        = "ServerError"
	notFoundError      = "NotFoundError"
	alreadyExistsError = "AlreadyExistsError"
	configError        = "ConfigurationError"
	corruptDataError   = "CorruptDataError"
)

type detailError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// StatusError is the custom error type we are using.
// Should satisfy errors interface
type StatusError struct {
	cause   error
	Details detailError `json:"error"`
	stack   *stack
}

func (e *StatusError) Error() string { return e.Details.Message }

// OriginalError provides the underlying error
func (e *StatusError) OriginalError() error { return e.cause }

// Code returns the error code
func (e *StatusError) Code() string { return e.Details.Code }

// StackTrace returns the frames for a stack trace
func (e *StatusError) StackTrace() errors.StackTrace {
	return e.stack.StackTrace()
}

// Format for the standard format library
func (e *StatusError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%+v", e.OriginalError())
			e.stack.Format(s, verb)
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// Is checks to see if the errors match
func (e *StatusError) Is(err error) bool {
	s, ok := err.(Coded)
	if ok {
		if s.Code() == e.Details.Code && e.Error() == err.Error() {
			return true
		}
	}
	return false
}

// Coded is an error carrying one of the package error codes
type Coded interface {
	Code() string
}

// CodeForError returns the code for a particular error.
func CodeForError(err error) string {
	switch t := err.(type) {
	case Coded:
		return t.Code()
	}
	return serverError
}

// GetStackTrace is satisfied by errors that record a stack
type GetStackTrace interface {
	StackTrace() errors.StackTrace
}

// GetStackTraceForError returns the recorded stack for a particular error.
func GetStackTraceForError(err error) errors.StackTrace {
	switch t := err.(type) {
	case GetStackTrace:
		return t.StackTrace()
	}
	return nil
}

// NewValidation creates a validation error
func NewValidation(group string, err error) *StatusError {
	return &StatusError{
		cause: err,
		Details: detailError{
			Message: fmt.Sprintf("%s validation error: %v", group, err),
			Code:    validationError,
		},
		stack: callers(),
	}
}

// NewNotFound returns an a NotFound error with standard messaging
func NewNotFound(group string, name string) *StatusError {
	return &StatusError{
		Details: detailError{
			Message: fmt.Sprintf("%s %q not found", group, name),
			Code:    notFoundError,
		},
		stack: callers(),
	}
}

// NewInternalServer returns an error for internal failures
func NewInternalServer(m string, err error) *StatusError {
	return &StatusError{
		cause: err,
		Details: detailError{
			Message: m,
			Code:    serverError,
		},
		stack: callers(),
	}
}

// NewConfiguration returns an error for missing or unusable configuration.
// These are fatal at startup.
func NewConfiguration(m string, err error) *StatusError {
	return &StatusError{
		cause: err,
		Details: detailError{
			Message: m,
			Code:    configError,
		},
		stack: callers(),
	}
}

// NewCorruptData returns an error for undecodable stored data
func NewCorruptData(key string, err error) *StatusError {
	return &StatusError{
		cause: err,
		Details: detailError{
			Message: fmt.Sprintf("stored object %q is not decodable: %v", key, err),
			Code:    corruptDataError,
		},
		stack: callers(),
	}
}

// NewAlreadyExists returns a new error representing an already exists error
func NewAlreadyExists(group string, name string) *StatusError {
	return &StatusError{
		cause: nil,
		Details: detailError{
			Message: fmt.Sprintf("%s %q already exists", group, name),
			Code:    alreadyExistsError,
		},
		stack: callers(),
	}
}

// Cause gets the original error
func Cause(err error) error {
	type unwraper interface {
		Unwrap() error
	}

	for err != nil {
		cause, ok := err.(unwraper)
		if !ok {
			break
		}
		err = cause.Unwrap()
	}
	return err
}
