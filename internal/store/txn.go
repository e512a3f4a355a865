package store

import (
	"maps"

	"github.com/roach88/optisync/internal/entity"
)

// Txn is the working copy handed to Batch. Changes become visible to
// readers only when Batch returns.
type Txn struct {
	base *Snapshot
	byID map[string]entity.Entity
	ids  []string
}

func newTxn(base *Snapshot) *Txn {
	ids := make([]string, len(base.ids))
	copy(ids, base.ids)
	return &Txn{
		base: base,
		byID: maps.Clone(base.byID),
		ids:  ids,
	}
}

func (tx *Txn) commit() *Snapshot {
	if tx.byID == nil {
		tx.byID = make(map[string]entity.Entity)
	}
	return &Snapshot{
		version: tx.base.version + 1,
		byID:    tx.byID,
		ids:     tx.ids,
	}
}

// Len returns the number of entities in the working copy.
func (tx *Txn) Len() int { return len(tx.ids) }

// Has reports whether id is present in the working copy.
func (tx *Txn) Has(id string) bool {
	_, ok := tx.byID[id]
	return ok
}

// Get returns a copy of the entity with the given id.
func (tx *Txn) Get(id string) (entity.Entity, bool) {
	e, ok := tx.byID[id]
	if !ok {
		return entity.Entity{}, false
	}
	return e.Clone(), true
}

// IDs returns the working order list.
func (tx *Txn) IDs() []string {
	out := make([]string, len(tx.ids))
	copy(out, tx.ids)
	return out
}

// IndexOf returns the position of id in the working list, or -1.
func (tx *Txn) IndexOf(id string) int {
	return indexOf(tx.ids, id)
}

// Entities returns copies of all entities in working list order.
func (tx *Txn) Entities() []entity.Entity {
	out := make([]entity.Entity, len(tx.ids))
	for i, id := range tx.ids {
		out[i] = tx.byID[id].Clone()
	}
	return out
}

// Upsert replaces e in place or appends it.
func (tx *Txn) Upsert(e entity.Entity) {
	if _, ok := tx.byID[e.ID]; !ok {
		tx.ids = append(tx.ids, e.ID)
	}
	tx.byID[e.ID] = e.Clone()
}

// InsertAt places e at position idx, moving it if it is already present.
// idx is clamped to the list bounds.
func (tx *Txn) InsertAt(e entity.Entity, idx int) {
	tx.Remove(e.ID)
	if idx < 0 {
		idx = 0
	}
	if idx > len(tx.ids) {
		idx = len(tx.ids)
	}
	tx.ids = append(tx.ids, "")
	copy(tx.ids[idx+1:], tx.ids[idx:])
	tx.ids[idx] = e.ID
	tx.byID[e.ID] = e.Clone()
}

// Remove deletes id. Returns false if it was not present.
func (tx *Txn) Remove(id string) bool {
	if _, ok := tx.byID[id]; !ok {
		return false
	}
	delete(tx.byID, id)
	if i := indexOf(tx.ids, id); i >= 0 {
		tx.ids = append(tx.ids[:i], tx.ids[i+1:]...)
	}
	return true
}

// SetOrder rearranges the order list. Known ids from ids come first in the
// given sequence; known ids missing from it keep their relative order after
// them. Unknown and duplicate ids are ignored.
func (tx *Txn) SetOrder(ids []string) {
	next := make([]string, 0, len(tx.ids))
	seen := make(map[string]bool, len(tx.ids))
	for _, id := range ids {
		if _, ok := tx.byID[id]; ok && !seen[id] {
			next = append(next, id)
			seen[id] = true
		}
	}
	for _, id := range tx.ids {
		if !seen[id] {
			next = append(next, id)
		}
	}
	tx.ids = next
}

// ReplaceAll stores every entity in entities (in that list order) and drops
// anything not included.
func (tx *Txn) ReplaceAll(entities []entity.Entity) {
	tx.byID = make(map[string]entity.Entity, len(entities))
	tx.ids = make([]string, 0, len(entities))
	for _, e := range entities {
		tx.Upsert(e)
	}
}
