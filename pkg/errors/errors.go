// Package errors provides structured error types for catalogsnap.
//
// Every failure surfaced by the capture pipeline carries an ErrorCode so that
// callers (the CLI, tests) can branch on the failure class without string
// matching. The underlying cause is preserved and reachable with errors.Is and
// errors.As.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a failure.
type ErrorCode string

const (
	// ErrCodeValidation marks invalid request input: missing host, missing
	// directories, or no resolvable manifest source.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeManifestWrite marks a failure to create the ephemeral manifest.
	ErrCodeManifestWrite ErrorCode = "MANIFEST_WRITE_ERROR"

	// ErrCodeCaptureProcess marks a compiler binary that could not be found or started.
	ErrCodeCaptureProcess ErrorCode = "CAPTURE_PROCESS_ERROR"

	// ErrCodeCaptureTimeout marks a compiler run that exceeded its deadline.
	ErrCodeCaptureTimeout ErrorCode = "CAPTURE_TIMEOUT_ERROR"

	// ErrCodeMalformedOutput marks compiler output whose last line is not a JSON document.
	ErrCodeMalformedOutput ErrorCode = "MALFORMED_OUTPUT_ERROR"

	// ErrCodeStore marks snapshot store I/O failures (write, promote, lock).
	ErrCodeStore ErrorCode = "STORE_ERROR"

	// ErrCodeInternal marks unexpected failures.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StructuredError is an error with a code, a human readable message,
// an optional cause, and optional context details.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a StructuredError without a cause.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a StructuredError around cause.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext creates a StructuredError around cause with context details.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the code of the outermost StructuredError in err's chain,
// or an empty code if there is none.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether any StructuredError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *StructuredError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}
