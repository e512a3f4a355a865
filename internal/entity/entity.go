// Package entity defines the records mirrored from the remote collection.
//
// An Entity is owned by the server. The client holds a copy of it in the
// normalized store and may hold optimistic versions of it while a mutation is
// in flight. Payload is the partial input accepted by create, update and patch.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempPrefix marks ids allocated locally for entities the server has not
// confirmed yet. A temporary id is either promoted to the server id or
// removed; it never outlives its create call.
const TempPrefix = "temp:"

// Entity is one element of the ordered collection.
type Entity struct {
	ID        string         `json:"id"`
	Order     int            `json:"order"`
	Active    bool           `json:"active"`
	Caption   string         `json:"caption,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy. Meta is copied recursively so the clone can be
// mutated without touching the stored original.
func (e Entity) Clone() Entity {
	e.Meta = cloneMeta(e.Meta)
	return e
}

// Apply merges the fields present in p into a copy of e and stamps UpdatedAt.
func (e Entity) Apply(p Payload, now time.Time) Entity {
	out := e.Clone()
	if p.Order != nil {
		out.Order = *p.Order
	}
	if p.Active != nil {
		out.Active = *p.Active
	}
	if p.Caption != nil {
		out.Caption = *p.Caption
	}
	if p.Meta != nil {
		out.Meta = cloneMeta(p.Meta)
	}
	out.UpdatedAt = now
	return out
}

// Revert copies back from prev the fields present in p, and prev's
// UpdatedAt. Fields p did not touch keep their current values, so a change
// confirmed by another call in the meantime survives.
func (e Entity) Revert(prev Entity, p Payload) Entity {
	out := e.Clone()
	if p.Order != nil {
		out.Order = prev.Order
	}
	if p.Active != nil {
		out.Active = prev.Active
	}
	if p.Caption != nil {
		out.Caption = prev.Caption
	}
	if p.Meta != nil {
		out.Meta = cloneMeta(prev.Meta)
	}
	out.UpdatedAt = prev.UpdatedAt
	return out
}

// IsTemp reports whether the entity still carries a temporary id.
func (e Entity) IsTemp() bool {
	return IsTemp(e.ID)
}

// Payload is the partial input for create, update and patch calls.
// A nil field is absent and left untouched by Apply.
type Payload struct {
	Order   *int           `json:"order,omitempty"`
	Active  *bool          `json:"active,omitempty"`
	Caption *string        `json:"caption,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Fields returns the present fields as a plain map, keyed by their JSON names.
func (p Payload) Fields() map[string]any {
	m := make(map[string]any, 4)
	if p.Order != nil {
		m["order"] = *p.Order
	}
	if p.Active != nil {
		m["active"] = *p.Active
	}
	if p.Caption != nil {
		m["caption"] = *p.Caption
	}
	if p.Meta != nil {
		m["meta"] = cloneMeta(p.Meta)
	}
	return m
}

// IsTemp reports whether id was allocated locally by NewTempID.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}

// NewTempID allocates a temporary id. UUIDv7 keeps temporary ids sortable by
// allocation time, which makes traces easier to read.
func NewTempID() string {
	return TempPrefix + uuid.Must(uuid.NewV7()).String()
}

// Ptr returns a pointer to v. Handy for building payloads.
func Ptr[T any](v T) *T {
	return &v
}

// CloneAll deep-copies a slice of entities.
func CloneAll(in []Entity) []Entity {
	if in == nil {
		return nil
	}
	out := make([]Entity, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMeta(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}
