package engine

import (
	"time"

	"github.com/roach88/optisync/internal/optimistic"
	"github.com/roach88/optisync/internal/order"
	"github.com/roach88/optisync/internal/store"
	"github.com/roach88/optisync/internal/tracker"
)

// pending is one issued optimistic write awaiting its remote outcome.
type pending struct {
	kind    tracker.Kind
	id      string // tracker entity id; "" guards on the global record
	key     optimistic.Key
	token   uint64
	started time.Time

	// restore undoes the optimistic write. It runs at most once per path:
	// on failure, on TTL expiry, or on Close.
	restore func()

	// alwaysRestore runs restore on failure even when the registry entry
	// is already gone. Creates use it so a temporary entity never outlives
	// a failed call.
	alwaysRestore bool
}

// issue records p as the latest request for (kind, id) and registers its
// rollback. The optimistic write itself must already be applied.
func (e *Engine) issue(kind tracker.Kind, id, ref string, restore func()) *pending {
	p := &pending{
		kind:    kind,
		id:      id,
		key:     optimistic.Key{Op: string(kind), Ref: ref},
		token:   e.tokens.Next(),
		started: e.clock.Now(),
		restore: restore,
	}
	e.tracker.Begin(kind, id, p.token)
	e.registry.Register(p.key, func(cause optimistic.Cause) { e.expire(p, cause) }, e.ttl)

	e.logger.Debug("optimistic write issued",
		"kind", kind,
		"id", id,
		"key", p.key.String(),
		"token", p.token,
	)
	return p
}

// expire is the registry callback for p: TTL expiry or Close. Only a
// rollback the tracker let through is counted.
func (e *Engine) expire(p *pending, cause optimistic.Cause) {
	if !e.tracker.Expire(p.kind, p.id, p.token, p.restore) {
		e.logger.Debug("rollback skipped, request superseded",
			"kind", p.kind,
			"id", p.id,
			"token", p.token,
		)
		return
	}
	e.metrics.rolledBack(string(p.kind), string(cause))
	e.logger.Info("optimistic write rolled back",
		"kind", p.kind,
		"id", p.id,
		"key", p.key.String(),
		"cause", cause,
	)
}

// settle applies the outcome of p's remote call under the tracker's token
// guard. On success reconcile runs and the list cache is invalidated; on
// failure the optimistic write is undone. It returns false when a newer
// request superseded p, in which case nothing was applied.
func (e *Engine) settle(p *pending, rerr *RequestError, reconcile func()) bool {
	kind := string(p.kind)
	e.metrics.observe(kind, e.clock.Now().Sub(p.started))

	var err error
	var apply func()
	if rerr == nil {
		apply = func() {
			e.registry.Resolve(p.key)
			if reconcile != nil {
				reconcile()
			}
			e.touch(p.id)
			e.cache.Invalidate(nil)
		}
	} else {
		err = rerr
		apply = func() {
			live := e.registry.Resolve(p.key)
			if live || p.alwaysRestore {
				p.restore()
			}
			if live {
				e.metrics.rolledBack(kind, reasonFailure)
			}
		}
	}

	if !e.tracker.Settle(p.kind, p.id, p.token, err, apply) {
		e.registry.Resolve(p.key)
		e.discardStale(kind, p.id, p.token)
		return false
	}

	if rerr != nil {
		e.metrics.settled(kind, outcomeFailure)
		e.logger.Warn("remote call failed",
			"kind", kind,
			"id", p.id,
			"error_kind", rerr.Kind,
			"status", rerr.Status,
			"error", rerr.Message,
		)
		return true
	}
	e.metrics.settled(kind, outcomeSuccess)
	e.logger.Debug("remote call confirmed", "kind", kind, "id", p.id, "token", p.token)
	return true
}

// touch records a confirmed mutation of id ("" for the whole list). It runs
// under the tracker lock.
func (e *Engine) touch(id string) {
	e.touched.Store(id, e.generation.Add(1))
}

// touchedSince reports whether a mutation of id, or of the whole list, was
// confirmed after generation gen.
func (e *Engine) touchedSince(id string, gen uint64) bool {
	if g, ok := e.touched.Load(""); ok && g > gen {
		return true
	}
	g, ok := e.touched.Load(id)
	return ok && g > gen
}

func (e *Engine) discardStale(kind, id string, token uint64) {
	e.metrics.stale.WithLabelValues(kind).Inc()
	e.metrics.settled(kind, outcomeStale)
	e.logger.Debug("discarding stale response",
		"id", id,
		"error", newStaleError(kind, token),
	)
}

// resolveTxn runs the order resolver over the whole working copy.
func resolveTxn(tx *store.Txn) {
	tx.ReplaceAll(order.Resolve(tx.Entities()))
}

// renumberTxn makes list position the source of truth for Order.
func renumberTxn(tx *store.Txn) {
	tx.ReplaceAll(order.Renumber(tx.Entities()))
}

// ordersOf records the Order of every entity in snap.
func ordersOf(snap *store.Snapshot) map[string]int {
	all := snap.Entities()
	orders := make(map[string]int, len(all))
	for _, en := range all {
		orders[en.ID] = en.Order
	}
	return orders
}

// restoreOrdersTxn puts back the captured orders of entities still present
// and re-resolves. Entities added since keep their current order.
func restoreOrdersTxn(tx *store.Txn, orders map[string]int) {
	all := tx.Entities()
	for i := range all {
		if o, ok := orders[all[i].ID]; ok {
			all[i].Order = o
		}
	}
	tx.ReplaceAll(order.Resolve(all))
}
