// Package order re-derives sequential order values for the entity list.
//
// Resolve runs after every structural change (insert, remove, reorder,
// reconcile) so the order values the presentation layer sees are always
// 0, 1, 2, ... with no gaps or duplicates.
package order

import (
	"slices"

	"github.com/roach88/optisync/internal/entity"
)

// Resolve sorts entities by Order ascending and renumbers them by position.
//
// Ties are broken by CreatedAt ascending and then by ID, so the result does
// not depend on the input order of equal entities. A single entity whose
// order is 1 is normalized to 0 first; that value is left behind when the
// first of two entities is removed without renumbering.
//
// Resolve is pure: the input slice and its entities are not modified.
// It is idempotent: Resolve(Resolve(x)) equals Resolve(x).
func Resolve(entities []entity.Entity) []entity.Entity {
	out := entity.CloneAll(entities)
	if len(out) == 1 && out[0].Order == 1 {
		out[0].Order = 0
	}

	slices.SortStableFunc(out, compare)

	for i := range out {
		out[i].Order = i
	}
	return out
}

// Renumber assigns Order = position without sorting. It is used when the
// list order itself is the source of truth (an explicit reorder).
func Renumber(entities []entity.Entity) []entity.Entity {
	out := entity.CloneAll(entities)
	for i := range out {
		out[i].Order = i
	}
	return out
}

// IsResolved reports whether entities are already in resolved form:
// sorted by position with Order equal to the index.
func IsResolved(entities []entity.Entity) bool {
	for i, e := range entities {
		if e.Order != i {
			return false
		}
	}
	return true
}

func compare(a, b entity.Entity) int {
	if a.Order != b.Order {
		if a.Order < b.Order {
			return -1
		}
		return 1
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
