// Package querycache caches list results keyed by the canonical encoding of
// their query parameters.
//
// Entries are fresh for a fixed TTL measured from the moment they were put.
// A stale entry is evicted by the Get that finds it.
package querycache

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/optisync/internal/canon"
	"github.com/roach88/optisync/internal/clock"
	"github.com/roach88/optisync/internal/entity"
)

// DefaultTTL is used when New is given a non-positive TTL.
const DefaultTTL = 60 * time.Second

// Entry is one cached list result.
type Entry struct {
	Data      []entity.Entity
	Meta      *entity.ListMeta
	CreatedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	clock   clock.Clock
	ttl     time.Duration
	entries *xsync.MapOf[string, *Entry]
}

// New creates an empty cache. A nil clock means clock.Real.
func New(c clock.Clock, ttl time.Duration) *Cache {
	if c == nil {
		c = clock.Real{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		clock:   c,
		ttl:     ttl,
		entries: xsync.NewMapOf[string, *Entry](),
	}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Key returns the cache key of q: the canonical JSON of q.Params().
// Equal queries always produce equal keys.
func Key(q entity.ListQuery) (string, error) {
	b, err := canon.Marshal(q.Params())
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	return string(b), nil
}

// Get returns a copy of the entry under key if it is still fresh.
// A stale entry is removed and reported absent.
func (c *Cache) Get(key string) (Entry, bool) {
	e, ok := c.entries.Load(key)
	if !ok {
		return Entry{}, false
	}
	if c.clock.Now().Sub(e.CreatedAt) > c.ttl {
		c.entries.Compute(key, func(cur *Entry, loaded bool) (*Entry, bool) {
			// Only evict the entry we judged stale; a concurrent Put wins.
			return cur, !loaded || cur == e
		})
		return Entry{}, false
	}
	return e.clone(), true
}

// Put stores data under key with a fresh timestamp, replacing any entry.
func (c *Cache) Put(key string, data []entity.Entity, meta *entity.ListMeta) {
	e := &Entry{
		Data:      entity.CloneAll(data),
		CreatedAt: c.clock.Now(),
	}
	if meta != nil {
		m := *meta
		e.Meta = &m
	}
	c.entries.Store(key, e)
}

// Invalidate removes entries and returns how many were removed.
// A nil pred clears the cache. Otherwise an entry is removed when pred
// accepts its decoded query, or when its key no longer decodes.
func (c *Cache) Invalidate(pred func(entity.ListQuery) bool) int {
	n := 0
	c.entries.Range(func(key string, _ *Entry) bool {
		if pred == nil || matches(key, pred) {
			if _, ok := c.entries.LoadAndDelete(key); ok {
				n++
			}
		}
		return true
	})
	return n
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	return c.entries.Size()
}

func matches(key string, pred func(entity.ListQuery) bool) bool {
	params, err := canon.Unmarshal([]byte(key))
	if err != nil {
		return true
	}
	q, err := entity.QueryFromParams(params)
	if err != nil {
		return true
	}
	return pred(q)
}

func (e *Entry) clone() Entry {
	out := Entry{
		Data:      entity.CloneAll(e.Data),
		CreatedAt: e.CreatedAt,
	}
	if e.Meta != nil {
		m := *e.Meta
		out.Meta = &m
	}
	return out
}
