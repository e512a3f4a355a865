// Package optimistic keeps the rollback closures of in-flight optimistic
// mutations and expires them after a time-to-live.
//
// Every optimistic write registers a rollback under a key. The entry is
// settled in one of three ways:
//
//   - Resolve: the remote call succeeded; the timer is cancelled and the
//     rollback is dropped without running.
//   - Rollback: the remote call failed; the timer is cancelled and the
//     rollback runs.
//   - Expiry: neither happened within the TTL; the timer fires and the
//     rollback runs, so the UI never shows an unconfirmed state forever.
//
// At most one entry is live per key. Registering a key again cancels the
// previous timer, and a timer that fires after being replaced finds a
// different entry under its key and does nothing.
//
// Each rollback is told its Cause. Rollbacks never run while the registry
// lock is held, so a rollback may call back into the registry.
package optimistic

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/optisync/internal/clock"
)

// Key identifies a pending optimistic mutation: the operation kind and
// either the entity's temporary id (creates) or a per-call correlation id.
type Key struct {
	Op  string
	Ref string
}

// String renders the key as "op/ref".
func (k Key) String() string {
	return k.Op + "/" + k.Ref
}

// Cause tells a rollback why it runs.
type Cause string

const (
	CauseFailure Cause = "failure" // Rollback
	CauseExpired Cause = "expired" // TTL elapsed
	CauseClose   Cause = "close"   // RollbackAll
)

// Entry is a live registration.
type Entry struct {
	Key       Key
	CreatedAt time.Time
	TTL       time.Duration

	rollback func(Cause)
	timer    clock.Timer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Registry is the keyed table of pending rollbacks.
type Registry struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[Key]*Entry
	logger  *slog.Logger
}

// New creates an empty registry. A nil clock means clock.Real.
func New(c clock.Clock, opts ...Option) *Registry {
	if c == nil {
		c = clock.Real{}
	}
	r := &Registry{
		clock:   c,
		entries: make(map[Key]*Entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores rollback under key and schedules it to run after ttl.
// An existing entry under key is replaced and its timer cancelled; the old
// rollback does not run.
func (r *Registry) Register(key Key, rollback func(Cause), ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[key]; ok {
		old.timer.Stop()
		r.logger.Debug("optimistic entry replaced", "key", key.String())
	}

	e := &Entry{
		Key:       key,
		CreatedAt: r.clock.Now(),
		TTL:       ttl,
		rollback:  rollback,
	}
	e.timer = r.clock.AfterFunc(ttl, func() { r.expire(e) })
	r.entries[key] = e
}

// Resolve cancels the entry under key without running its rollback.
// Returns false if no entry was live (never registered, already settled or
// already expired).
func (r *Registry) Resolve(key Key) bool {
	_, ok := r.take(key)
	return ok
}

// Rollback cancels the entry under key and runs its rollback.
// Returns false, running nothing, if no entry was live.
func (r *Registry) Rollback(key Key) bool {
	e, ok := r.take(key)
	if !ok {
		return false
	}
	e.rollback(CauseFailure)
	return true
}

// RollbackAll rolls back every live entry, oldest first, and returns the
// keys that ran in that order.
func (r *Registry) RollbackAll() []Key {
	r.mu.Lock()
	all := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		e.timer.Stop()
		all = append(all, e)
	}
	r.entries = make(map[Key]*Entry)
	r.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	keys := make([]Key, len(all))
	for i, e := range all {
		e.rollback(CauseClose)
		keys[i] = e.Key
	}
	return keys
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Has reports whether key has a live entry.
func (r *Registry) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Keys returns the live keys sorted by op then ref.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Op != keys[j].Op {
			return keys[i].Op < keys[j].Op
		}
		return keys[i].Ref < keys[j].Ref
	})
	return keys
}

func (r *Registry) take(key Key) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	e.timer.Stop()
	delete(r.entries, key)
	return e, true
}

// expire runs when e's timer fires. It acts only if e is still the entry
// stored under its key.
func (r *Registry) expire(e *Entry) {
	r.mu.Lock()
	if r.entries[e.Key] != e {
		r.mu.Unlock()
		return
	}
	delete(r.entries, e.Key)
	r.mu.Unlock()

	r.logger.Info("optimistic entry expired, rolling back",
		"key", e.Key.String(),
		"ttl", e.TTL,
	)
	e.rollback(CauseExpired)
}
