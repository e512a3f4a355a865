// Package remote defines the contract between the sync engine and the
// authority that owns the entity collection.
package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/roach88/optisync/internal/entity"
)

// Remote is the server-side collection API.
//
// Implementations report failures as *Error where they can. Any other error
// is treated by the engine as a network failure.
type Remote interface {
	List(ctx context.Context, q entity.ListQuery) (entity.ListResult, error)
	Get(ctx context.Context, id string) (entity.Entity, error)
	Create(ctx context.Context, p entity.Payload) (entity.Entity, error)
	Update(ctx context.Context, id string, p entity.Payload) (entity.Entity, error)
	Patch(ctx context.Context, id string, p entity.Payload) (entity.Entity, error)
	Delete(ctx context.Context, id string) error
}

// Reorderer is implemented by remotes with a bulk reorder endpoint.
// The returned entities carry the server's order, in that order.
type Reorderer interface {
	Reorder(ctx context.Context, ids []string) ([]entity.Entity, error)
}

// ErrorKind classifies a remote failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindNetwork    ErrorKind = "network"
)

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindNetwork
	}
}

// Error is a typed remote failure.
type Error struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Status  int            `json:"status,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
}

// NotFound builds a not_found error for id.
func NotFound(id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("entity %q not found", id),
		Code:    "not_found",
		Status:  http.StatusNotFound,
	}
}

// Errorf builds an error of kind with a formatted message and the status
// code that kind is usually served with.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Code:    string(kind),
		Status:  statusForKind(kind),
	}
}

func statusForKind(kind ErrorKind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}
