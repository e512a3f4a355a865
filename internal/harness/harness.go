package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/optisync/internal/engine"
	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/remote"
	"github.com/roach88/optisync/internal/remote/memremote"
	"github.com/roach88/optisync/internal/store"
	"github.com/roach88/optisync/internal/testutil"
)

// callTimeout bounds how long the harness waits for a held call to reach
// its gate or for a released call to return.
const callTimeout = 5 * time.Second

// Harness executes one scenario.
//
// Every run gets a fresh fake clock, sequential id generator, in-process
// remote and engine, so identical scenarios always produce identical
// traces.
type Harness struct {
	clock  *testutil.FakeClock
	remote *memremote.Remote
	engine *engine.Engine
	holds  map[string]*heldCall
	result *Result
}

// heldCall is an engine call whose remote call waits on a gate.
type heldCall struct {
	step int
	op   string
	id   string
	gate *memremote.Gate
	done chan callResult
}

type callResult struct {
	id  string
	err error
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes engine logs to l. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run executes a scenario and returns its result. The error is non-nil only
// when the scenario could not be executed at all; failed expectations and
// assertions are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	h := newHarness(scenario, o)
	defer h.engine.Close()

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step); err != nil {
			h.releaseAll()
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	for name := range h.holds {
		h.result.AddError(fmt.Sprintf("hold %q was never released", name))
	}
	h.releaseAll()

	actx := &AssertionContext{Engine: h.engine, Remote: h.remote}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(s *Scenario, o options) *Harness {
	clk := testutil.NewFakeClock()

	prefix := s.IDPrefix
	if prefix == "" {
		prefix = "srv-"
	}
	mr := memremote.New(memremote.WithClock(clk), memremote.WithIDPrefix(prefix))

	local := seedEntities(s.Seed, 0)
	mr.Seed(local...)
	mr.Seed(seedEntities(s.RemoteOnly, len(local))...)

	var r remote.Remote = mr
	if s.NoBulkReorder {
		r = mr.WithoutReorder()
	}

	ttl := s.TTL
	if ttl == 0 {
		ttl = engine.DefaultTTL
	}
	eng := engine.New(r,
		engine.WithClock(clk),
		engine.WithTTL(ttl),
		engine.WithLogger(o.logger),
		engine.WithIDGenerator(testutil.NewSequentialIDs()),
		engine.WithStore(store.New(local...)),
	)

	return &Harness{
		clock:  clk,
		remote: mr,
		engine: eng,
		holds:  make(map[string]*heldCall),
		result: NewResult(),
	}
}

// seedEntities builds entities from seed definitions. Orders default to
// offset plus the list position.
func seedEntities(seed []SeedEntity, offset int) []entity.Entity {
	out := make([]entity.Entity, len(seed))
	for i, s := range seed {
		e := entity.Entity{
			ID:        s.ID,
			Order:     offset + i,
			Active:    true,
			Caption:   s.Caption,
			Meta:      s.Meta,
			CreatedAt: testutil.Epoch,
			UpdatedAt: testutil.Epoch,
		}
		if s.Order != nil {
			e.Order = *s.Order
		}
		if s.Active != nil {
			e.Active = *s.Active
		}
		out[i] = e
	}
	return out
}

func (h *Harness) execute(ctx context.Context, i int, step Step) error {
	switch step.Op {
	case OpAdvance:
		h.clock.Advance(step.Duration)
		h.record(EventStep, i, step.Op, "", "", nil)
		return nil
	case OpClearErrors:
		h.engine.ClearErrors()
		h.record(EventStep, i, step.Op, "", "", nil)
		return nil
	case OpClose:
		if err := h.engine.Close(); err != nil {
			return err
		}
		h.record(EventStep, i, step.Op, "", "", nil)
		return nil
	case OpRelease:
		return h.release(i, step)
	}

	rop := remoteOps[step.Op]
	if step.Hold != "" {
		held := &heldCall{
			step: i,
			op:   step.Op,
			id:   step.ID,
			gate: h.remote.Hold(rop),
			done: make(chan callResult, 1),
		}
		go func() {
			id, err := h.call(ctx, step)
			held.done <- callResult{id: id, err: err}
		}()

		select {
		case <-held.gate.Entered():
		case res := <-held.done:
			return fmt.Errorf("call returned before reaching the remote: %v", res.err)
		case <-time.After(callTimeout):
			return fmt.Errorf("held call never reached the remote")
		}
		h.holds[step.Hold] = held
		h.record(EventStep, i, step.Op, step.ID, OutcomePending, nil)
		return nil
	}

	if step.Fail != nil {
		h.remote.Fail(rop, failError(step.Fail))
	}
	id, err := h.call(ctx, step)
	if id == "" {
		id = step.ID
	}
	h.record(EventStep, i, step.Op, id, outcomeOf(err), err)
	h.check(i, step.Expect, err)
	return nil
}

// release lets a held call finish and records its settlement.
func (h *Harness) release(i int, step Step) error {
	held, ok := h.holds[step.Hold]
	if !ok {
		return fmt.Errorf("unknown hold %q", step.Hold)
	}
	delete(h.holds, step.Hold)

	held.gate.Release(failError(step.Fail))
	var res callResult
	select {
	case res = <-held.done:
	case <-time.After(callTimeout):
		return fmt.Errorf("released call for hold %q never returned", step.Hold)
	}

	id := res.id
	if id == "" {
		id = held.id
	}
	h.record(EventSettle, i, held.op, id, outcomeOf(res.err), res.err)
	h.check(i, step.Expect, res.err)
	return nil
}

// releaseAll lets every open held call finish so no goroutine outlives the
// run.
func (h *Harness) releaseAll() {
	for name, held := range h.holds {
		held.gate.Release(nil)
		select {
		case <-held.done:
		case <-time.After(callTimeout):
		}
		delete(h.holds, name)
	}
}

// call runs the engine operation of step and returns the id it settled on.
func (h *Harness) call(ctx context.Context, step Step) (string, error) {
	switch step.Op {
	case OpCreate:
		p, err := payloadFromMap(step.Payload)
		if err != nil {
			return "", err
		}
		created, err := h.engine.Create(ctx, p)
		return created.ID, err
	case OpUpdate:
		p, err := payloadFromMap(step.Payload)
		if err != nil {
			return "", err
		}
		_, err = h.engine.Update(ctx, step.ID, p)
		return step.ID, err
	case OpToggle:
		_, err := h.engine.ToggleActive(ctx, step.ID)
		return step.ID, err
	case OpRemove:
		return step.ID, h.engine.Remove(ctx, step.ID)
	case OpReorder:
		return "", h.engine.Reorder(ctx, step.IDs)
	case OpFetch:
		q, err := entity.QueryFromParams(step.Query)
		if err != nil {
			return "", err
		}
		_, err = h.engine.FetchList(ctx, q)
		return "", err
	case OpRefresh:
		_, err := h.engine.Refresh(ctx, step.ID)
		return step.ID, err
	}
	return "", fmt.Errorf("unknown op %q", step.Op)
}

// record appends an event carrying the current store contents.
func (h *Harness) record(typ string, step int, op, id, outcome string, err error) {
	h.result.addEvent(TraceEvent{
		Step:    step,
		Type:    typ,
		Op:      op,
		ID:      id,
		Outcome: outcome,
		Error:   string(engine.KindOf(err)),
		Store:   storeView(h.engine.Store().Snapshot()),
	})
}

// check compares a call outcome with the step expectation.
func (h *Harness) check(i int, want *StepExpect, err error) {
	if want == nil {
		return
	}
	if got := outcomeOf(err); got != want.Outcome {
		msg := fmt.Sprintf("steps[%d]: expected %s, got %s", i, want.Outcome, got)
		if err != nil {
			msg += ": " + err.Error()
		}
		h.result.AddError(msg)
		return
	}
	if want.Error != "" {
		if got := string(engine.KindOf(err)); got != want.Error {
			h.result.AddError(fmt.Sprintf("steps[%d]: expected error kind %s, got %q", i, want.Error, got))
		}
	}
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// storeView renders a snapshot as "id@order" entries in list order.
func storeView(snap *store.Snapshot) []string {
	all := snap.Entities()
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = fmt.Sprintf("%s@%d", e.ID, e.Order)
	}
	return out
}
