package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, data string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(data))
	require.NoError(t, err)
	return s
}

func TestRun_RecordsTrace(t *testing.T) {
	s := mustParse(t, `
name: trace
description: "update then reorder"
seed: [{ id: a }, { id: b }]
steps:
  - { op: update, id: a, payload: { caption: x }, expect: { outcome: success } }
  - { op: reorder, ids: [b, a] }
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvent{
		Seq: 1, Step: 0, Type: EventStep, Op: OpUpdate, ID: "a",
		Outcome: OutcomeSuccess, Store: []string{"a@0", "b@1"},
	}, result.Trace[0])
	assert.Equal(t, []string{"b@0", "a@1"}, result.Trace[1].Store)
	assert.Equal(t, 2, result.Trace[1].Seq)
}

func TestRun_HeldCallShowsOptimisticState(t *testing.T) {
	s := mustParse(t, `
name: held
description: "a held remove is visible before it settles"
seed: [{ id: a }, { id: b }]
steps:
  - { op: remove, id: a, hold: h }
  - { op: release, hold: h, fail: { kind: not_found, message: gone }, expect: { outcome: failure, error: not_found } }
assertions:
  - { type: store_order, ids: [a, b] }
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, OutcomePending, result.Trace[0].Outcome)
	assert.Equal(t, []string{"b@0"}, result.Trace[0].Store)
	assert.Equal(t, EventSettle, result.Trace[1].Type)
	assert.Equal(t, "not_found", result.Trace[1].Error)
	assert.Equal(t, []string{"a@0", "b@1"}, result.Trace[1].Store)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	s := mustParse(t, `
name: mismatch
description: "wrong expectations are reported, not returned"
seed: [{ id: a }]
steps:
  - { op: toggle, id: a, expect: { outcome: failure } }
  - { op: toggle, id: a, fail: { kind: conflict, message: m }, expect: { outcome: failure, error: validation } }
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "steps[0]: expected failure, got success")
	assert.Contains(t, result.Errors[1], "steps[1]: expected error kind validation, got \"conflict\"")
}

func TestRun_UnreleasedHold(t *testing.T) {
	s := mustParse(t, `
name: dangling
description: "a hold left open fails the run"
seed: [{ id: a }]
steps:
  - { op: toggle, id: a, hold: h }
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, `hold "h" was never released`)
}

func TestRun_AssertionFailure(t *testing.T) {
	s := mustParse(t, `
name: failing
description: "assertion failures land in the result"
seed: [{ id: a }]
steps:
  - { op: advance, duration: 1s }
assertions:
  - { type: store_size, count: 5 }
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "store_size")
}

func TestRun_CloseRollsBackHeldCall(t *testing.T) {
	s := mustParse(t, `
name: close
description: "closing the engine rolls back pending writes"
seed: [{ id: a, caption: original }]
steps:
  - { op: update, id: a, payload: { caption: new }, hold: h }
  - { op: close }
  - { op: release, hold: h, expect: { outcome: success } }
assertions:
  - { type: pending, count: 0 }
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, OpClose, result.Trace[1].Op)
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/create_expires_then_confirms.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := TraceJSON(s.Name, first)
	require.NoError(t, err)
	b, err := TraceJSON(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestPayloadFromMap(t *testing.T) {
	p, err := payloadFromMap(map[string]any{
		"order":   2,
		"active":  false,
		"caption": "c",
		"meta":    map[string]any{"k": "v"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, *p.Order)
	assert.False(t, *p.Active)
	assert.Equal(t, "c", *p.Caption)
	assert.Equal(t, map[string]any{"k": "v"}, p.Meta)

	_, err = payloadFromMap(map[string]any{"order": "two"})
	assert.ErrorContains(t, err, "order: expected integer")
}
