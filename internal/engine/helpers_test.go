package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/remote"
	"github.com/roach88/optisync/internal/remote/memremote"
	"github.com/roach88/optisync/internal/store"
	"github.com/roach88/optisync/internal/testutil"
)

const testTTL = time.Minute

type fixture struct {
	t      *testing.T
	ctx    context.Context
	clock  *testutil.FakeClock
	remote *memremote.Remote
	reg    *prometheus.Registry
	engine *Engine
}

func seedEntities(ids ...string) []entity.Entity {
	out := make([]entity.Entity, len(ids))
	for i, id := range ids {
		out[i] = entity.Entity{
			ID:        id,
			Order:     i,
			Active:    true,
			Caption:   "caption " + id,
			CreatedAt: testutil.Epoch,
			UpdatedAt: testutil.Epoch,
		}
	}
	return out
}

// newFixture builds an engine whose store and remote both hold ids.
func newFixture(t *testing.T, ids ...string) *fixture {
	return newFixtureWith(t, func(r *memremote.Remote) remote.Remote { return r }, ids...)
}

// newFixtureWith lets the test wrap the remote, e.g. to hide Reorder.
func newFixtureWith(t *testing.T, wrap func(*memremote.Remote) remote.Remote, ids ...string) *fixture {
	t.Helper()
	c := testutil.NewFakeClock()
	r := memremote.New(memremote.WithClock(c), memremote.WithIDPrefix("srv-"))
	seed := seedEntities(ids...)
	r.Seed(seed...)

	reg := prometheus.NewRegistry()
	e := New(wrap(r),
		WithClock(c),
		WithTTL(testTTL),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(testutil.NewSequentialIDs()),
		WithRegisterer(reg),
		WithStore(store.New(seed...)),
	)
	return &fixture{t: t, ctx: context.Background(), clock: c, remote: r, reg: reg, engine: e}
}

func (f *fixture) ids() []string {
	return f.engine.Store().Snapshot().IDs()
}

func (f *fixture) orders() []int {
	all := f.engine.Store().Snapshot().Entities()
	out := make([]int, len(all))
	for i, e := range all {
		out[i] = e.Order
	}
	return out
}

func (f *fixture) get(id string) entity.Entity {
	f.t.Helper()
	e, ok := f.engine.Store().Get(id)
	require.True(f.t, ok, "entity %q not in store", id)
	return e
}

func (f *fixture) entities() []entity.Entity {
	return f.engine.Store().Snapshot().Entities()
}

// result is the outcome of an engine call run in the background.
type result struct {
	entity entity.Entity
	err    error
}

// async runs fn in a goroutine and returns a channel with its outcome.
func async(fn func() (entity.Entity, error)) <-chan result {
	ch := make(chan result, 1)
	go func() {
		e, err := fn()
		ch <- result{entity: e, err: err}
	}()
	return ch
}

func asyncErr(fn func() error) <-chan result {
	return async(func() (entity.Entity, error) { return entity.Entity{}, fn() })
}

// await waits for a background result.
func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine call")
		return result{}
	}
}

// entered waits until a held remote call has reached its gate.
func entered(t *testing.T, g *memremote.Gate) {
	t.Helper()
	select {
	case <-g.Entered():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for remote call")
	}
}

func noTempIDs(t *testing.T, s *store.Snapshot) {
	t.Helper()
	for _, id := range s.IDs() {
		require.False(t, entity.IsTemp(id), "temporary id %q left in store", id)
	}
}
