// Package harness runs YAML scenarios against the engine and an in-process
// remote, checks their outcomes and records a deterministic trace.
//
// # Scenario Format
//
//	name: update_rollback
//	description: "A rejected update restores the entity"
//	ttl: 60s                       # optional
//	id_prefix: srv-                # optional, ids assigned on create
//	seed:
//	  - { id: a, caption: first }
//	remote_only:                   # optional, known to the remote only
//	  - { id: z }
//	steps:
//	  - op: update
//	    id: a
//	    payload: { caption: x }
//	    fail: { kind: network, message: connection reset }
//	    expect: { outcome: failure, error: network }
//	  - op: create
//	    payload: { caption: later }
//	    hold: h1                   # keep the remote call open
//	  - op: advance
//	    duration: 60s
//	  - op: release
//	    hold: h1
//	assertions:
//	  - { type: entity, id: a, expect: { caption: first } }
//	  - { type: operation, kind: update, id: a, status: failed }
//
// Step ops: create, update, toggle, remove, reorder, fetch, refresh,
// advance, release, clear_errors, close.
//
// # Assertion Types
//
//   - store_size: the store holds exactly count entities
//   - store_order: the store's ids are exactly ids, in order
//   - entity: the entity's fields match expect (subset match)
//   - absent: the entity is not in the store
//   - operation: the tracker record has status (and message)
//   - no_temp_entities: no temporary id is left in the store
//   - remote_order: the remote's ids are exactly ids, in order
//   - pending: exactly count optimistic writes await confirmation
//
// # Deterministic Testing
//
// Every run uses a fake clock starting at testutil.Epoch, sequential
// temporary and correlation ids ("temp:1", "corr-1") and a fresh remote.
// Time only moves on advance steps, so TTL expiry happens exactly where the
// scenario says. Traces are rendered as canonical JSON and compared against
// golden files with goldie.
package harness
