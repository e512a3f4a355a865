// Package engine implements the optimistic sync engine.
//
// The engine mirrors a server-owned, ordered entity collection. Every
// mutation is applied to the local store at once and confirmed or undone
// when the remote answers.
//
// ARCHITECTURE:
//
// Mutation lifecycle:
// 1. Local preconditions are checked (validation, known id). Failures are
// returned before anything changes.
// 2. The optimistic write is committed to the store as one snapshot.
// 3. A request token is issued and the tracker marks (kind, id) pending.
// 4. A rollback closure is registered under (kind, temp or correlation id)
// with the configured TTL.
// 5. The remote is called. This is the only blocking step.
// 6. The outcome is settled under the tracker's token guard: success
// reconciles server truth and invalidates the list cache, failure runs the
// rollback. Both mark the tracker.
//
// Staleness:
// The tracker keeps the latest token per (kind, id). A settlement carrying
// an older token is discarded whole: no store, tracker or cache change, and
// its rollback is dropped without running. The caller still receives its
// own remote outcome.
//
// TTL expiry:
// A rollback whose remote call neither succeeded nor failed within the TTL
// runs on its own and marks the request cancelled. A success arriving
// later still reconciles server truth.
//
// Ordering:
// Structural changes (insert, remove, reorder, reconcile) re-run the order
// resolver so Order values stay 0..n-1 in list order.
package engine
