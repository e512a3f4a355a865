package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/remote"
	"github.com/roach88/optisync/internal/store"
	"github.com/roach88/optisync/internal/tracker"
)

// reorderConcurrency bounds the per-entity patches issued when the remote
// has no bulk reorder endpoint.
const reorderConcurrency = 8

// Create inserts an optimistic entity under a temporary id and asks the
// remote to create it. On success the temporary entity is replaced by the
// confirmed one at the same list position; on failure it is removed.
func (e *Engine) Create(ctx context.Context, p entity.Payload) (entity.Entity, error) {
	if rerr := e.validate(p); rerr != nil {
		return entity.Entity{}, rerr
	}

	tempID := e.ids.TempID()
	now := e.clock.Now()
	draft := entity.Entity{ID: tempID, Active: true, CreatedAt: now}.Apply(p, now)
	e.store.Batch(func(tx *store.Txn) {
		idx := tx.Len()
		if p.Order != nil {
			idx = *p.Order
		}
		tx.InsertAt(draft, idx)
		renumberTxn(tx)
	})

	pd := e.issue(tracker.KindCreate, tempID, tempID, func() {
		e.store.Batch(func(tx *store.Txn) {
			if tx.Remove(tempID) {
				resolveTxn(tx)
			}
		})
	})
	pd.alwaysRestore = true

	created, err := e.remote.Create(ctx, p)
	rerr := normalizeError(err)
	e.settle(pd, rerr, func() {
		e.store.Batch(func(tx *store.Txn) {
			idx := tx.IndexOf(tempID)
			tx.Remove(tempID)
			if idx < 0 {
				idx = tx.Len()
			}
			tx.InsertAt(created, idx)
			resolveTxn(tx)
		})
	})
	if rerr != nil {
		return entity.Entity{}, rerr
	}
	return created, nil
}

// Update merges p into entity id optimistically and sends it to the remote.
// A failure restores the fields p touched, and UpdatedAt, to their values
// before the call.
func (e *Engine) Update(ctx context.Context, id string, p entity.Payload) (entity.Entity, error) {
	if rerr := e.checkConfirmed(id); rerr != nil {
		return entity.Entity{}, rerr
	}
	if rerr := e.validate(p); rerr != nil {
		return entity.Entity{}, rerr
	}
	snap := e.store.Snapshot()
	prev, ok := snap.Get(id)
	if !ok {
		return entity.Entity{}, NewNotFoundError(id)
	}

	idx := snap.IndexOf(id)
	orders := ordersOf(snap)
	moved := p.Order != nil && *p.Order != prev.Order
	next := prev.Apply(p, e.clock.Now())
	e.store.Batch(func(tx *store.Txn) {
		if moved {
			tx.InsertAt(next, *p.Order)
			renumberTxn(tx)
			return
		}
		tx.Upsert(next)
	})

	pd := e.issue(tracker.KindUpdate, id, e.ids.CorrelationID(), func() {
		e.store.Batch(func(tx *store.Txn) {
			cur, ok := tx.Get(id)
			if !ok {
				return
			}
			reverted := cur.Revert(prev, p)
			if moved {
				tx.InsertAt(reverted, idx)
				restoreOrdersTxn(tx, orders)
				return
			}
			tx.Upsert(reverted)
		})
	})

	updated, err := e.remote.Update(ctx, id, p)
	rerr := normalizeError(err)
	e.settle(pd, rerr, func() {
		e.store.Batch(func(tx *store.Txn) { reconcileTxn(tx, updated) })
	})
	if rerr != nil {
		return entity.Entity{}, rerr
	}
	return updated, nil
}

// ToggleActive flips the Active flag of entity id and patches the remote.
func (e *Engine) ToggleActive(ctx context.Context, id string) (entity.Entity, error) {
	if rerr := e.checkConfirmed(id); rerr != nil {
		return entity.Entity{}, rerr
	}
	prev, ok := e.store.Get(id)
	if !ok {
		return entity.Entity{}, NewNotFoundError(id)
	}

	active := !prev.Active
	next := prev.Apply(entity.Payload{Active: &active}, e.clock.Now())
	e.store.Upsert(next)

	pd := e.issue(tracker.KindPatch, id, e.ids.CorrelationID(), func() {
		e.store.Batch(func(tx *store.Txn) {
			if cur, ok := tx.Get(id); ok {
				tx.Upsert(cur.Revert(prev, entity.Payload{Active: &active}))
			}
		})
	})

	patched, err := e.remote.Patch(ctx, id, entity.Payload{Active: &active})
	rerr := normalizeError(err)
	e.settle(pd, rerr, func() {
		e.store.Batch(func(tx *store.Txn) { reconcileTxn(tx, patched) })
	})
	if rerr != nil {
		return entity.Entity{}, rerr
	}
	return patched, nil
}

// Remove deletes entity id optimistically and renumbers the rest at once.
// A failure re-inserts it at its original position with the original
// numbering.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if rerr := e.checkConfirmed(id); rerr != nil {
		return rerr
	}
	snap := e.store.Snapshot()
	prev, ok := snap.Get(id)
	if !ok {
		return NewNotFoundError(id)
	}

	idx := snap.IndexOf(id)
	orders := ordersOf(snap)
	e.store.Batch(func(tx *store.Txn) {
		if tx.Remove(id) {
			resolveTxn(tx)
		}
	})

	pd := e.issue(tracker.KindDelete, id, e.ids.CorrelationID(), func() {
		e.store.Batch(func(tx *store.Txn) {
			tx.InsertAt(prev, idx)
			restoreOrdersTxn(tx, orders)
		})
	})

	rerr := normalizeError(e.remote.Delete(ctx, id))
	e.settle(pd, rerr, func() {
		// A late confirmation after expiry removes the restored entity again.
		e.store.Batch(func(tx *store.Txn) {
			if tx.Remove(id) {
				resolveTxn(tx)
			}
		})
	})
	if rerr != nil {
		return rerr
	}
	return nil
}

// Reorder rearranges the list to ids, which must be a permutation of the
// confirmed entities in the store.
func (e *Engine) Reorder(ctx context.Context, ids []string) error {
	snap := e.store.Snapshot()
	if rerr := checkPermutation(snap, ids); rerr != nil {
		return rerr
	}

	orders := ordersOf(snap)
	var changed []string
	for i, id := range ids {
		if orders[id] != i {
			changed = append(changed, id)
		}
	}

	e.store.Batch(func(tx *store.Txn) {
		tx.SetOrder(ids)
		renumberTxn(tx)
	})

	pd := e.issue(tracker.KindReorder, "", e.ids.CorrelationID(), func() {
		e.store.Batch(func(tx *store.Txn) { restoreOrdersTxn(tx, orders) })
	})

	confirmed, err := e.reorderRemote(ctx, ids, changed)
	rerr := normalizeError(err)
	e.settle(pd, rerr, func() {
		e.store.Batch(func(tx *store.Txn) {
			for _, c := range confirmed {
				if tx.Has(c.ID) {
					tx.Upsert(c)
				}
			}
			resolveTxn(tx)
		})
	})
	if rerr != nil {
		return rerr
	}
	return nil
}

// reorderRemote uses the bulk endpoint when the remote has one, otherwise
// patches the order of every entity that moved.
func (e *Engine) reorderRemote(ctx context.Context, ids, changed []string) ([]entity.Entity, error) {
	if ro, ok := e.remote.(remote.Reorderer); ok {
		return ro.Reorder(ctx, ids)
	}

	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}

	out := make([]entity.Entity, len(changed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reorderConcurrency)
	for i, id := range changed {
		i, id := i, id
		g.Go(func() error {
			patched, err := e.remote.Patch(gctx, id, entity.Payload{Order: entity.Ptr(pos[id])})
			if err != nil {
				return err
			}
			out[i] = patched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// reconcileTxn replaces the local copy of confirmed with server truth and
// moves it when its order changed. Entities removed locally in the meantime
// stay removed.
func reconcileTxn(tx *store.Txn, confirmed entity.Entity) {
	cur, ok := tx.Get(confirmed.ID)
	if !ok {
		return
	}
	if cur.Order != confirmed.Order {
		tx.InsertAt(confirmed, confirmed.Order)
		renumberTxn(tx)
		return
	}
	tx.Upsert(confirmed)
}

func (e *Engine) validate(p entity.Payload) *RequestError {
	if e.validator == nil {
		return nil
	}
	err := e.validator.Validate(p)
	if err == nil {
		return nil
	}
	if rerr := normalizeError(err); rerr.Kind == KindValidation {
		return rerr
	}
	return &RequestError{Kind: KindValidation, Message: err.Error(), Code: string(KindValidation), Err: err}
}

// checkConfirmed rejects temporary ids: the server does not know them yet.
func (e *Engine) checkConfirmed(id string) *RequestError {
	if entity.IsTemp(id) {
		return NewValidationError("entity %q is not confirmed yet", id)
	}
	return nil
}

func checkPermutation(snap *store.Snapshot, ids []string) *RequestError {
	if len(ids) != snap.Len() {
		return NewValidationError("reorder needs all %d ids, got %d", snap.Len(), len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		switch {
		case entity.IsTemp(id):
			return NewValidationError("entity %q is not confirmed yet", id)
		case !snap.Has(id):
			return NewValidationError("reorder: unknown id %q", id)
		case seen[id]:
			return NewValidationError("reorder: duplicate id %q", id)
		}
		seen[id] = true
	}
	return nil
}
