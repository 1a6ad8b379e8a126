package core

import (
	"errors"
	"strings"
)

// ErrMalformedContent is returned when input cannot be read as tabular data.
// It is distinct from a low-confidence detection.
var ErrMalformedContent = errors.New("malformed content")

// ValidationError rejects a file before any job is created.
// Errors lists every blocking problem; Warnings carries non-blocking findings.
type ValidationError struct {
	Reason   string
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Errors, "; ")
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
