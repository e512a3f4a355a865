package engine

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/querycache"
	"github.com/roach88/optisync/internal/store"
	"github.com/roach88/optisync/internal/tracker"
)

// fetched is the value shared by joined list calls: the page and the
// mutation generation observed before the remote read.
type fetched struct {
	res entity.ListResult
	gen uint64
}

// FetchList returns the page selected by q and merges it into the store.
//
// A fresh cached result is returned without a remote call. Concurrent
// misses for the same query share one remote call. Items are merged, never
// pruned: entities missing from the page stay in the store. A page read
// before a mutation was confirmed does not overwrite that mutation.
func (e *Engine) FetchList(ctx context.Context, q entity.ListQuery) (entity.ListResult, error) {
	key, err := querycache.Key(q)
	if err != nil {
		return entity.ListResult{}, NewValidationError("list query: %v", err)
	}

	token := e.tokens.Next()
	e.tracker.Begin(tracker.KindFetch, "", token)

	if cached, ok := e.cache.Get(key); ok {
		e.metrics.cache.WithLabelValues("hit").Inc()
		e.tracker.Succeed(tracker.KindFetch, "", token)
		res := entity.ListResult{Items: cached.Data}
		if cached.Meta != nil {
			res.Meta = *cached.Meta
		}
		return res, nil
	}
	e.metrics.cache.WithLabelValues("miss").Inc()

	started := e.clock.Now()
	// The shared call outlives any single caller; each caller stops waiting
	// when its own ctx is done.
	ch := e.fetches.DoChan(key, func() (any, error) {
		gen := e.generation.Load()
		res, err := e.remote.List(context.WithoutCancel(ctx), q)
		return fetched{res: res, gen: gen}, err
	})
	var out singleflight.Result
	select {
	case out = <-ch:
	case <-ctx.Done():
		out = singleflight.Result{Err: ctx.Err()}
	}
	e.metrics.observe(string(tracker.KindFetch), e.clock.Now().Sub(started))

	kind := string(tracker.KindFetch)
	if rerr := normalizeError(out.Err); rerr != nil {
		if !e.tracker.Settle(tracker.KindFetch, "", token, rerr, nil) {
			e.discardStale(kind, "", token)
		} else {
			e.metrics.settled(kind, outcomeFailure)
			e.logger.Warn("list fetch failed", "query", key, "error_kind", rerr.Kind, "error", rerr.Message)
		}
		return entity.ListResult{}, rerr
	}

	f := out.Val.(fetched)
	res := f.res
	applied := e.tracker.Settle(tracker.KindFetch, "", token, nil, func() {
		// A mutation confirmed after the remote read began makes the page
		// older than the store: entities it touched keep their local state
		// and the page is not cached.
		current := e.generation.Load() == f.gen
		e.store.Batch(func(tx *store.Txn) {
			for _, item := range res.Items {
				if current || !e.touchedSince(item.ID, f.gen) {
					tx.Upsert(item)
				}
			}
			resolveTxn(tx)
		})
		if current {
			e.cache.Put(key, res.Items, &res.Meta)
		}
	})
	if !applied {
		e.discardStale(kind, "", token)
	} else {
		e.metrics.settled(kind, outcomeSuccess)
		e.logger.Debug("list fetched", "query", key, "items", len(res.Items), "shared", out.Shared)
	}

	return entity.ListResult{Items: entity.CloneAll(res.Items), Meta: res.Meta}, nil
}

// Refresh reloads entity id from the remote. When the remote no longer has
// it, the local copy is dropped and a not-found error is returned.
func (e *Engine) Refresh(ctx context.Context, id string) (entity.Entity, error) {
	if rerr := e.checkConfirmed(id); rerr != nil {
		return entity.Entity{}, rerr
	}

	token := e.tokens.Next()
	e.tracker.Begin(tracker.KindRefresh, id, token)

	started := e.clock.Now()
	got, err := e.remote.Get(ctx, id)
	kind := string(tracker.KindRefresh)
	e.metrics.observe(kind, e.clock.Now().Sub(started))

	rerr := normalizeError(err)
	var serr error
	if rerr != nil {
		serr = rerr
	}
	applied := e.tracker.Settle(tracker.KindRefresh, id, token, serr, func() {
		e.store.Batch(func(tx *store.Txn) {
			switch {
			case rerr == nil:
				tx.Upsert(got)
			case rerr.Kind == KindNotFound:
				tx.Remove(id)
			default:
				return
			}
			resolveTxn(tx)
		})
	})

	switch {
	case !applied:
		e.discardStale(kind, id, token)
	case rerr != nil:
		e.metrics.settled(kind, outcomeFailure)
	default:
		e.metrics.settled(kind, outcomeSuccess)
	}

	if rerr != nil {
		return entity.Entity{}, rerr
	}
	return got, nil
}
