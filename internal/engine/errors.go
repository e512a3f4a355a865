package engine

import (
	"errors"
	"fmt"
)

// Kind categorizes a request failure.
type Kind string

const (
	// KindValidation indicates a malformed payload or argument. Local
	// validation failures are reported before any optimistic write.
	KindValidation Kind = "validation"

	// KindNotFound indicates the target id is unknown, locally or remotely.
	KindNotFound Kind = "not_found"

	// KindNetwork indicates the remote call failed, timed out or was refused.
	KindNetwork Kind = "network"

	// KindStale marks a response from a superseded request. It is used for
	// logging and metrics only and never returned to callers.
	KindStale Kind = "stale_response"

	// KindConflict indicates the server rejected the optimistic assumption,
	// e.g. a concurrent edit.
	KindConflict Kind = "conflict"
)

// RequestError is the single error type returned by Engine operations.
//
// Remote failures of any shape are normalized into a RequestError at the
// engine boundary (see normalizeError), so callers only ever branch on Kind.
type RequestError struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Code is the machine-readable code reported by the server, if any.
	Code string

	// Status is the HTTP status of the failed remote call, if any.
	Status int

	// Details contains additional context.
	Details map[string]any

	// TraceID correlates the failure with server logs.
	TraceID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" if err is not a RequestError.
func KindOf(err error) Kind {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsValidation returns true if err is a validation error.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsNetwork returns true if err is a network error.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsConflict returns true if err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsStale returns true if err is a stale-response error.
func IsStale(err error) bool { return KindOf(err) == KindStale }

// NewValidationError creates a RequestError for a rejected argument.
func NewValidationError(format string, args ...any) *RequestError {
	return &RequestError{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
		Code:    string(KindValidation),
	}
}

// NewNotFoundError creates a RequestError for an unknown entity id.
func NewNotFoundError(id string) *RequestError {
	return &RequestError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("entity %q not found", id),
		Code:    string(KindNotFound),
		Details: map[string]any{"id": id},
	}
}

// newStaleError describes a discarded response. Never returned to callers.
func newStaleError(kind string, token uint64) *RequestError {
	return &RequestError{
		Kind:    KindStale,
		Message: fmt.Sprintf("%s response for token %d superseded", kind, token),
		Details: map[string]any{"token": token},
	}
}
