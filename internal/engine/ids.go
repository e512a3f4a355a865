package engine

import (
	"github.com/google/uuid"

	"github.com/roach88/optisync/internal/entity"
)

// IDGenerator allocates the local identifiers the engine needs.
// Implemented by UUIDv7Generator (production) and testutil.SequentialIDs
// (tests and scenarios).
type IDGenerator interface {
	// TempID returns a temporary entity id carrying entity.TempPrefix.
	TempID() string

	// CorrelationID returns a fresh id keying one optimistic registration.
	CorrelationID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

var _ IDGenerator = UUIDv7Generator{}

// TempID returns "temp:" followed by a UUIDv7.
func (UUIDv7Generator) TempID() string {
	return entity.NewTempID()
}

// CorrelationID returns a hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) CorrelationID() string {
	return uuid.Must(uuid.NewV7()).String()
}
