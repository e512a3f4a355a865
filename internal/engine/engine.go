package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/optisync/internal/clock"
	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/optimistic"
	"github.com/roach88/optisync/internal/querycache"
	"github.com/roach88/optisync/internal/remote"
	"github.com/roach88/optisync/internal/schema"
	"github.com/roach88/optisync/internal/store"
	"github.com/roach88/optisync/internal/tracker"
)

// DefaultTTL bounds both cached list results and unconfirmed optimistic
// writes.
const DefaultTTL = 60 * time.Second

// Validator checks a payload before any optimistic write.
// *schema.Validator is the default implementation.
type Validator interface {
	Validate(p entity.Payload) error
}

// Engine is the optimistic sync engine.
//
// Thread-safety model: every exported method is safe for concurrent use.
// Operations block only on the remote call. The store, tracker and cache
// publish immutable snapshots; the registry never runs rollbacks under its
// lock. Lock order is tracker, then registry or store.
type Engine struct {
	remote    remote.Remote
	store     *store.Store
	tracker   *tracker.Tracker
	registry  *optimistic.Registry
	cache     *querycache.Cache
	clock     clock.Clock
	tokens    *TokenSource
	ids       IDGenerator
	validator Validator
	logger    *slog.Logger
	ttl       time.Duration
	reg       prometheus.Registerer
	metrics   *metrics
	fetches   singleflight.Group

	// generation counts confirmed mutations. touched maps an entity id to
	// the generation that last confirmed a mutation of it; the "" key marks
	// mutations of the whole list (reorder).
	generation atomic.Uint64
	touched    *xsync.MapOf[string, uint64]
}

// Option configures an Engine.
type Option func(*Engine)

// WithTTL sets the time-to-live of cached list results and unconfirmed
// optimistic writes.
//
// Default: 60s (DefaultTTL)
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithClock sets the clock. Tests pass a testutil.FakeClock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator sets the generator of temporary and correlation ids.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithValidator replaces the payload validator. nil disables validation.
func WithValidator(v Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithRegisterer registers the engine's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.reg = reg }
}

// WithStore starts the engine on an existing store, e.g. one loaded from
// the local mirror database.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithTokenSource sets the request token source. Used to resume numbering.
func WithTokenSource(ts *TokenSource) Option {
	return func(e *Engine) { e.tokens = ts }
}

// New creates an engine mirroring the collection owned by r.
func New(r remote.Remote, opts ...Option) *Engine {
	e := &Engine{
		remote:    r,
		clock:     clock.Real{},
		tokens:    NewTokenSource(),
		ids:       UUIDv7Generator{},
		validator: schema.MustNew(),
		logger:    slog.Default(),
		ttl:       DefaultTTL,
		touched:   xsync.NewMapOf[string, uint64](),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = store.New()
	}
	e.tracker = tracker.New(e.clock)
	e.cache = querycache.New(e.clock, e.ttl)
	e.registry = optimistic.New(e.clock, optimistic.WithLogger(e.logger))
	e.metrics = newMetrics(e.reg, func() float64 {
		return float64(e.registry.Len())
	})
	return e
}

// Store returns the normalized store. Presentation code reads snapshots
// from it and must not write to it.
func (e *Engine) Store() *store.Store { return e.store }

// Tracker returns the request-state tracker.
func (e *Engine) Tracker() *tracker.Tracker { return e.tracker }

// Cache returns the list query cache.
func (e *Engine) Cache() *querycache.Cache { return e.cache }

// Registry returns the optimistic rollback registry.
func (e *Engine) Registry() *optimistic.Registry { return e.registry }

// TTL returns the configured time-to-live.
func (e *Engine) TTL() time.Duration { return e.ttl }

// ClearErrors drops every error recorded by the tracker.
func (e *Engine) ClearErrors() {
	e.tracker.ClearErrors()
}

// Close rolls back every optimistic write still awaiting confirmation.
// Responses arriving afterwards still reconcile server truth.
func (e *Engine) Close() error {
	keys := e.registry.RollbackAll()
	if len(keys) > 0 {
		e.logger.Info("engine closed with pending optimistic writes", "rolled_back", len(keys))
	}
	return nil
}
