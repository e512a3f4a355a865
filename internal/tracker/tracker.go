// Package tracker records the request state of every operation the engine
// issues, globally per operation kind and per affected entity.
//
// STALENESS GUARD:
//
// Each record carries the request token of the call that last began it.
// Terminal transitions (Succeed, Fail, Cancel, Settle, Expire) are applied to
// a record only when the record's token equals the caller's token or the
// record has no token yet. A response from a call that has since been
// superseded is silently dropped: it is neither applied nor reported. This
// is what keeps an out-of-order network response from re-animating state a
// newer request already replaced ("last issuer wins").
//
// State is copy-on-write: every transition builds a new state value and
// publishes it atomically, so readers never observe a partial update.
package tracker

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/optisync/internal/clock"
)

// Kind is an operation kind.
type Kind string

const (
	KindCreate  Kind = "create"
	KindUpdate  Kind = "update"
	KindPatch   Kind = "patch"
	KindDelete  Kind = "delete"
	KindReorder Kind = "reorder"
	KindFetch   Kind = "fetch"
	KindRefresh Kind = "refresh"
)

// Kinds lists every operation kind in a stable order.
var Kinds = []Kind{KindCreate, KindUpdate, KindPatch, KindDelete, KindReorder, KindFetch, KindRefresh}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record is the request state of one operation kind, globally or for one
// entity. The zero Record is idle with no token.
type Record struct {
	Status     Status
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Token      uint64 // 0 means no token stored
}

// Message returns the error message, or "" when there is no error.
func (r Record) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type recordKey struct {
	kind Kind
	id   string
}

type state struct {
	global   map[Kind]Record
	entities map[recordKey]Record
}

func (s *state) clone() *state {
	return &state{
		global:   maps.Clone(s.global),
		entities: maps.Clone(s.entities),
	}
}

// Tracker holds all operation records.
type Tracker struct {
	mu    sync.Mutex // serializes transitions
	clock clock.Clock
	cur   atomic.Pointer[state]
}

// New creates an empty tracker. A nil clock means clock.Real.
func New(c clock.Clock) *Tracker {
	if c == nil {
		c = clock.Real{}
	}
	t := &Tracker{clock: c}
	t.cur.Store(&state{
		global:   make(map[Kind]Record),
		entities: make(map[recordKey]Record),
	})
	return t
}

// Global returns the global record for kind.
func (t *Tracker) Global(kind Kind) Record {
	return withIdle(t.cur.Load().global[kind])
}

// Get returns the record for kind on entity id.
func (t *Tracker) Get(kind Kind, id string) Record {
	return withIdle(t.cur.Load().entities[recordKey{kind, id}])
}

// IsCurrent reports whether token is still the latest issuer for
// (kind, id). With an empty id the global record is consulted.
func (t *Tracker) IsCurrent(kind Kind, id string, token uint64) bool {
	return accepts(t.guardRecord(t.cur.Load(), kind, id), token)
}

// Begin marks (kind, id) pending under token. The global record of kind is
// always updated; the entity record only when id is non-empty. Begin never
// checks the stored token: the newest issuer always takes over.
func (t *Tracker) Begin(kind Kind, id string, token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	rec := Record{Status: StatusPending, StartedAt: now, Token: token}
	next := t.cur.Load().clone()
	next.global[kind] = rec
	if id != "" {
		next.entities[recordKey{kind, id}] = rec
	}
	t.cur.Store(next)
}

// Succeed marks (kind, id) successful. Returns whether any record changed.
func (t *Tracker) Succeed(kind Kind, id string, token uint64) bool {
	return t.finish(kind, id, token, StatusSuccess, nil, nil, false)
}

// Fail marks (kind, id) failed with err. Returns whether any record changed.
func (t *Tracker) Fail(kind Kind, id string, err error, token uint64) bool {
	return t.finish(kind, id, token, StatusFailed, err, nil, false)
}

// Cancel marks (kind, id) cancelled. Returns whether any record changed.
func (t *Tracker) Cancel(kind Kind, id string, token uint64) bool {
	return t.finish(kind, id, token, StatusCancelled, nil, nil, false)
}

// Settle atomically applies the outcome of a remote call.
//
// The guarding record is the entity record when id is non-empty, otherwise
// the global record. If it no longer accepts token the call is stale:
// nothing runs, nothing changes and Settle returns false. Otherwise apply
// (which may be nil) runs while the tracker lock is held, then the records
// are marked success (err == nil) or failed.
//
// apply must not call back into the tracker.
func (t *Tracker) Settle(kind Kind, id string, token uint64, err error, apply func()) bool {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	return t.finish(kind, id, token, status, err, apply, true)
}

// Expire is Settle for the optimistic time-to-live path: when token is
// still current, apply runs and the records are marked cancelled.
func (t *Tracker) Expire(kind Kind, id string, token uint64, apply func()) bool {
	return t.finish(kind, id, token, StatusCancelled, nil, apply, true)
}

// ClearErrors drops every stored error without touching statuses.
func (t *Tracker) ClearErrors() {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.cur.Load().clone()
	for k, rec := range next.global {
		rec.Err = nil
		next.global[k] = rec
	}
	for k, rec := range next.entities {
		rec.Err = nil
		next.entities[k] = rec
	}
	t.cur.Store(next)
}

// finish applies a terminal transition. With guarded set, the guard record
// decides for the whole transition (Settle/Expire); otherwise each record
// is guarded independently.
func (t *Tracker) finish(kind Kind, id string, token uint64, status Status, err error, apply func(), guarded bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.cur.Load()
	if guarded && !accepts(t.guardRecord(cur, kind, id), token) {
		return false
	}
	if apply != nil {
		apply()
	}

	now := t.clock.Now()
	next := cur.clone()
	changed := false

	if rec := next.global[kind]; accepts(rec, token) {
		next.global[kind] = terminal(rec, status, err, now, token)
		changed = true
	}
	if id != "" {
		key := recordKey{kind, id}
		if rec := next.entities[key]; accepts(rec, token) {
			next.entities[key] = terminal(rec, status, err, now, token)
			changed = true
		}
	}

	if changed {
		t.cur.Store(next)
	}
	return changed || guarded
}

func (t *Tracker) guardRecord(s *state, kind Kind, id string) Record {
	if id != "" {
		return s.entities[recordKey{kind, id}]
	}
	return s.global[kind]
}

func accepts(rec Record, token uint64) bool {
	return rec.Token == 0 || rec.Token == token
}

func terminal(rec Record, status Status, err error, now time.Time, token uint64) Record {
	rec.Status = status
	rec.Err = err
	rec.FinishedAt = now
	rec.Token = token
	return rec
}

func withIdle(rec Record) Record {
	if rec.Status == "" {
		rec.Status = StatusIdle
	}
	return rec
}
