// Package memremote is an in-process remote authority. It backs scenario
// runs, demos and engine tests.
//
// Every call may be intercepted: Intercept queues a hook per operation that
// runs before the call touches state. Hooks can fail a call, or hold it
// until released, which is how tests produce out-of-order responses.
package memremote

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/optisync/internal/clock"
	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/order"
	"github.com/roach88/optisync/internal/remote"
)

// Op names a remote operation.
type Op string

const (
	OpList    Op = "list"
	OpGet     Op = "get"
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpPatch   Op = "patch"
	OpDelete  Op = "delete"
	OpReorder Op = "reorder"
)

// Hook runs before an intercepted call. A non-nil error fails the call.
type Hook func(ctx context.Context) error

// Option configures a Remote.
type Option func(*Remote)

// WithClock sets the clock used for timestamps. Default: clock.Real.
func WithClock(c clock.Clock) Option {
	return func(r *Remote) { r.clock = c }
}

// WithIDPrefix sets the prefix of server-assigned ids. Default: "srv-".
func WithIDPrefix(p string) Option {
	return func(r *Remote) { r.idPrefix = p }
}

// Remote is safe for concurrent use.
type Remote struct {
	mu       sync.Mutex
	clock    clock.Clock
	idPrefix string
	nextID   int
	items    map[string]entity.Entity
	hooks    map[Op][]Hook
	calls    map[Op]int
}

var (
	_ remote.Remote    = (*Remote)(nil)
	_ remote.Reorderer = (*Remote)(nil)
)

// New creates an empty authority.
func New(opts ...Option) *Remote {
	r := &Remote{
		clock:    clock.Real{},
		idPrefix: "srv-",
		items:    make(map[string]entity.Entity),
		hooks:    make(map[Op][]Hook),
		calls:    make(map[Op]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed stores entities as-is, replacing any with the same id.
func (r *Remote) Seed(entities ...entity.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entities {
		r.items[e.ID] = e.Clone()
	}
}

// Entities returns the authority's collection sorted by order.
func (r *Remote) Entities() []entity.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

// Calls returns how many times op was invoked, intercepted or not.
func (r *Remote) Calls(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// Intercept queues hook for the next call of op. Hooks are consumed in
// FIFO order, one per call.
func (r *Remote) Intercept(op Op, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[op] = append(r.hooks[op], hook)
}

// Fail makes the next call of op return err.
func (r *Remote) Fail(op Op, err error) {
	r.Intercept(op, func(context.Context) error { return err })
}

// Hold makes the next call of op wait until the returned gate is released.
func (r *Remote) Hold(op Op) *Gate {
	g := &Gate{entered: make(chan struct{}), release: make(chan error, 1)}
	r.Intercept(op, g.wait)
	return g
}

// WithoutReorder hides the bulk reorder endpoint, so callers fall back to
// per-entity patches.
func (r *Remote) WithoutReorder() remote.Remote {
	return struct{ remote.Remote }{r}
}

func (r *Remote) List(ctx context.Context, q entity.ListQuery) (entity.ListResult, error) {
	if err := r.enter(ctx, OpList); err != nil {
		return entity.ListResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []entity.Entity
	for _, e := range r.sortedLocked() {
		if q.Active != nil && e.Active != *q.Active {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(e.Caption), strings.ToLower(q.Search)) {
			continue
		}
		matched = append(matched, e)
	}
	if err := sortBy(matched, q.Sort); err != nil {
		return entity.ListResult{}, err
	}

	total := len(matched)
	lo := min(q.Offset, total)
	hi := total
	if q.Limit > 0 {
		hi = min(lo+q.Limit, total)
	}
	return entity.ListResult{
		Items: entity.CloneAll(matched[lo:hi]),
		Meta:  entity.ListMeta{Total: total, Limit: q.Limit, Offset: q.Offset},
	}, nil
}

func (r *Remote) Get(ctx context.Context, id string) (entity.Entity, error) {
	if err := r.enter(ctx, OpGet); err != nil {
		return entity.Entity{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[id]
	if !ok {
		return entity.Entity{}, remote.NotFound(id)
	}
	return e.Clone(), nil
}

func (r *Remote) Create(ctx context.Context, p entity.Payload) (entity.Entity, error) {
	if err := r.enter(ctx, OpCreate); err != nil {
		return entity.Entity{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := r.clock.Now()
	e := entity.Entity{
		ID:        fmt.Sprintf("%s%d", r.idPrefix, r.nextID),
		Order:     len(r.items),
		Active:    true,
		CreatedAt: now,
	}
	e = e.Apply(p, now)
	r.items[e.ID] = e
	return e.Clone(), nil
}

func (r *Remote) Update(ctx context.Context, id string, p entity.Payload) (entity.Entity, error) {
	return r.modify(ctx, OpUpdate, id, p)
}

func (r *Remote) Patch(ctx context.Context, id string, p entity.Payload) (entity.Entity, error) {
	return r.modify(ctx, OpPatch, id, p)
}

func (r *Remote) Delete(ctx context.Context, id string) error {
	if err := r.enter(ctx, OpDelete); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return remote.NotFound(id)
	}
	delete(r.items, id)
	r.renumberLocked()
	return nil
}

func (r *Remote) Reorder(ctx context.Context, ids []string) ([]entity.Entity, error) {
	if err := r.enter(ctx, OpReorder); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ids) != len(r.items) {
		return nil, remote.Errorf(remote.KindValidation, "reorder needs %d ids, got %d", len(r.items), len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.items[id]; !ok || seen[id] {
			return nil, remote.Errorf(remote.KindValidation, "reorder: bad or duplicate id %q", id)
		}
		seen[id] = true
	}

	now := r.clock.Now()
	out := make([]entity.Entity, len(ids))
	for i, id := range ids {
		e := r.items[id]
		if e.Order != i {
			e.Order = i
			e.UpdatedAt = now
		}
		r.items[id] = e
		out[i] = e.Clone()
	}
	return out, nil
}

func (r *Remote) modify(ctx context.Context, op Op, id string, p entity.Payload) (entity.Entity, error) {
	if err := r.enter(ctx, op); err != nil {
		return entity.Entity{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[id]
	if !ok {
		return entity.Entity{}, remote.NotFound(id)
	}
	e = e.Apply(p, r.clock.Now())
	r.items[id] = e
	return e.Clone(), nil
}

// enter counts the call and runs the next queued hook for op, if any.
func (r *Remote) enter(ctx context.Context, op Op) error {
	r.mu.Lock()
	r.calls[op]++
	var hook Hook
	if q := r.hooks[op]; len(q) > 0 {
		hook = q[0]
		r.hooks[op] = q[1:]
	}
	r.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (r *Remote) sortedLocked() []entity.Entity {
	all := make([]entity.Entity, 0, len(r.items))
	for _, e := range r.items {
		all = append(all, e.Clone())
	}
	slices.SortFunc(all, func(a, b entity.Entity) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return all
}

// renumberLocked closes order gaps the way clients do after a removal.
func (r *Remote) renumberLocked() {
	for _, e := range order.Resolve(r.sortedLocked()) {
		r.items[e.ID] = e
	}
}

func sortBy(items []entity.Entity, key string) error {
	switch key {
	case "", "order":
		// already ordered
	case "-order":
		slices.Reverse(items)
	case "caption":
		slices.SortStableFunc(items, func(a, b entity.Entity) int {
			return strings.Compare(a.Caption, b.Caption)
		})
	case "created":
		slices.SortStableFunc(items, func(a, b entity.Entity) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	default:
		return remote.Errorf(remote.KindValidation, "unknown sort key %q", key)
	}
	return nil
}
