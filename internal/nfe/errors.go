package nfe

import (
	"errors"
	"fmt"
)

// Common NFe extraction errors
var (
	// ErrMalformedDocument is returned when the XML cannot be parsed or
	// one of the required groups (ide, emit, dest, total/ICMSTot) is missing.
	ErrMalformedDocument = errors.New("malformed or incomplete NFe document")
)

// ExtractionError wraps errors with additional context about an NFe
// extraction failure.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "Extract").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("nfe: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("nfe: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExtractionError creates a new ExtractionError with the specified operation and underlying error.
func NewExtractionError(op string, err error, details string) *ExtractionError {
	return &ExtractionError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}
