// Package store implements the normalized client-side entity store.
//
// The store is an id-keyed entity map paired with an explicit ordered id
// list. It is the single source of truth for what the presentation layer
// currently sees, optimistic entities included.
//
// CONCURRENCY MODEL:
//
// Every committing operation (Upsert, Remove, Batch) builds a new immutable
// Snapshot and publishes it with a single atomic pointer swap. Readers call
// Snapshot() and keep a consistent view for as long as they hold it; they
// never observe a half-applied change. Writers are serialized by a mutex.
//
// The store performs no validation. It is a structural primitive used by the
// engine, the order resolver and the mirror persister.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/optisync/internal/entity"
)

// Snapshot is an immutable view of the store at one commit.
type Snapshot struct {
	version uint64
	byID    map[string]entity.Entity
	ids     []string
}

// Version increases by one with every commit. The empty store is version 0.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of entities.
func (s *Snapshot) Len() int { return len(s.ids) }

// Has reports whether id is present.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Get returns a copy of the entity with the given id.
func (s *Snapshot) Get(id string) (entity.Entity, bool) {
	e, ok := s.byID[id]
	if !ok {
		return entity.Entity{}, false
	}
	return e.Clone(), true
}

// IDs returns the ordered id list.
func (s *Snapshot) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// IndexOf returns the position of id in the ordered list, or -1.
func (s *Snapshot) IndexOf(id string) int {
	return indexOf(s.ids, id)
}

// Entities returns copies of all entities in list order.
func (s *Snapshot) Entities() []entity.Entity {
	out := make([]entity.Entity, len(s.ids))
	for i, id := range s.ids {
		out[i] = s.byID[id].Clone()
	}
	return out
}

// Store holds the current snapshot and its subscribers.
type Store struct {
	mu      sync.Mutex // serializes commits
	current atomic.Pointer[Snapshot]
	subs    map[int]func(*Snapshot)
	nextSub int
}

// New creates a store holding the given entities in the given order.
// Later duplicates of an id replace earlier ones in place.
func New(initial ...entity.Entity) *Store {
	s := &Store{subs: make(map[int]func(*Snapshot))}
	snap := &Snapshot{byID: make(map[string]entity.Entity, len(initial))}
	for _, e := range initial {
		if _, ok := snap.byID[e.ID]; !ok {
			snap.ids = append(snap.ids, e.ID)
		}
		snap.byID[e.ID] = e.Clone()
	}
	s.current.Store(snap)
	return s
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Get is shorthand for Snapshot().Get(id).
func (s *Store) Get(id string) (entity.Entity, bool) {
	return s.Snapshot().Get(id)
}

// Len is shorthand for Snapshot().Len().
func (s *Store) Len() int {
	return s.Snapshot().Len()
}

// Upsert inserts e, appending its id to the order list, or replaces the
// stored entity with the same id in place.
func (s *Store) Upsert(e entity.Entity) *Snapshot {
	return s.Batch(func(tx *Txn) { tx.Upsert(e) })
}

// Remove deletes id from the map and the order list. Removing an unknown id
// still commits (an unchanged) new snapshot.
func (s *Store) Remove(id string) *Snapshot {
	return s.Batch(func(tx *Txn) { tx.Remove(id) })
}

// Batch applies fn to a private working copy and commits the result as one
// snapshot. fn must not call back into the store.
func (s *Store) Batch(fn func(tx *Txn)) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTxn(s.current.Load())
	fn(tx)
	next := tx.commit()
	s.current.Store(next)

	for _, sub := range s.sortedSubs() {
		sub(next)
	}
	return next
}

// Subscribe registers fn to receive every committed snapshot, in commit
// order. fn runs while the commit lock is held and must return quickly
// without calling back into the store. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(*Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) sortedSubs() []func(*Snapshot) {
	out := make([]func(*Snapshot), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
