package mirrordb

import (
	"context"
	"log/slog"

	"github.com/roach88/optisync/internal/clock"
	"github.com/roach88/optisync/internal/store"
)

// Persister keeps the mirror in step with a store.
//
// The store subscription only raises a dirty flag; Run does the writing on
// its own goroutine. Commits that land while a save is running coalesce into
// one follow-up save of the then-current snapshot.
type Persister struct {
	db     *DB
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
	dirty  chan struct{}
	saved  func(State)
}

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithPersisterClock sets the clock used for saved_at. Default: clock.Real.
func WithPersisterClock(c clock.Clock) PersisterOption {
	return func(p *Persister) { p.clock = c }
}

// WithPersisterLogger sets the logger. Default: slog.Default().
func WithPersisterLogger(l *slog.Logger) PersisterOption {
	return func(p *Persister) { p.logger = l }
}

// WithSaveHook sets a callback invoked after every successful save.
func WithSaveHook(fn func(State)) PersisterOption {
	return func(p *Persister) { p.saved = fn }
}

// NewPersister creates a persister writing s to db.
func NewPersister(db *DB, s *store.Store, opts ...PersisterOption) *Persister {
	p := &Persister{
		db:     db,
		store:  s,
		clock:  clock.Real{},
		logger: slog.Default(),
		dirty:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Flush saves the current snapshot now.
func (p *Persister) Flush(ctx context.Context) (State, error) {
	snap := p.store.Snapshot()
	now := p.clock.Now()
	n, err := p.db.Save(ctx, snap, now)
	if err != nil {
		return State{}, err
	}
	st := State{Version: snap.Version(), SavedAt: now, Count: n}
	p.logger.Debug("mirror saved", "version", st.Version, "entities", st.Count)
	if p.saved != nil {
		p.saved(st)
	}
	return st, nil
}

// Run saves the store once, then after every commit until ctx is done. A
// final save runs on shutdown so the last commit is never lost. A failed
// save is logged and retried on the next commit.
func (p *Persister) Run(ctx context.Context) error {
	unsubscribe := p.store.Subscribe(func(*store.Snapshot) { p.markDirty() })
	defer unsubscribe()

	p.markDirty()
	for {
		select {
		case <-ctx.Done():
			if _, err := p.Flush(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			return nil
		case <-p.dirty:
			if _, err := p.Flush(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				p.logger.Warn("mirror save failed", "error", err)
			}
		}
	}
}

func (p *Persister) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}
