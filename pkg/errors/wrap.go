package errors

import (
	"errors"
)

// Is is a wrapper around the standard errors.Is function
func Is(err error, target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(err, target)
}
