package engine

import (
	"context"
	"errors"
	"maps"

	"github.com/roach88/optisync/internal/remote"
	"github.com/roach88/optisync/internal/schema"
)

// normalizeError is the single adapter from whatever a remote (or the
// validator) returned into a *RequestError. Nil stays nil.
func normalizeError(err error) *RequestError {
	if err == nil {
		return nil
	}

	var re *RequestError
	if errors.As(err, &re) {
		return re
	}

	var rerr *remote.Error
	if errors.As(err, &rerr) {
		return &RequestError{
			Kind:    remoteKind(rerr),
			Message: rerr.Message,
			Code:    rerr.Code,
			Status:  rerr.Status,
			Details: maps.Clone(rerr.Details),
			TraceID: rerr.TraceID,
			Err:     err,
		}
	}

	var verrs schema.Errors
	if errors.As(err, &verrs) {
		fields := make([]any, len(verrs))
		for i, fe := range verrs {
			fields[i] = map[string]any{"field": fe.Field, "message": fe.Message}
		}
		return &RequestError{
			Kind:    KindValidation,
			Message: verrs.Error(),
			Code:    string(KindValidation),
			Details: map[string]any{"fields": fields},
			Err:     err,
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &RequestError{Kind: KindNetwork, Message: "request timed out", Code: "timeout", Err: err}
	case errors.Is(err, context.Canceled):
		return &RequestError{Kind: KindNetwork, Message: "request cancelled", Code: "cancelled", Err: err}
	}
	return &RequestError{Kind: KindNetwork, Message: err.Error(), Err: err}
}

func remoteKind(e *remote.Error) Kind {
	switch e.Kind {
	case remote.KindValidation:
		return KindValidation
	case remote.KindNotFound:
		return KindNotFound
	case remote.KindConflict:
		return KindConflict
	case remote.KindNetwork:
		return KindNetwork
	}
	if e.Status != 0 {
		return remoteKind(&remote.Error{Kind: remote.KindForStatus(e.Status)})
	}
	return KindNetwork
}
