// Package mirrordb persists the local store to SQLite so a client can start
// with the last known list before the remote answers.
//
// The mirror holds exactly one snapshot. Every save replaces the previous
// one inside a single transaction, so a reader never sees a mix of two
// snapshots. The snapshot is what the presentation layer saw, so pending
// optimistic edits of server entities are included. Entities under a
// temporary id are never written: they only exist until their create
// settles, and a restarted client has no way to settle them.
//
// Persister keeps the mirror current. It subscribes to the store and writes
// the latest snapshot whenever the store changed, coalescing bursts of
// commits into one write.
//
// Database configuration:
//   - WAL mode so the CLI can read the mirror while a client writes it
//   - a single open connection, SQLite allows one writer at a time
//   - schema migrations keyed by PRAGMA user_version
package mirrordb
