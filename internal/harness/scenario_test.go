package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Full(t *testing.T) {
	data := []byte(`
name: full
description: "every field"
ttl: 30s
id_prefix: x
no_bulk_reorder: true
seed:
  - { id: a, caption: first, order: 0, active: false, meta: { k: v } }
remote_only:
  - { id: z }
steps:
  - op: update
    id: a
    payload: { caption: new }
    hold: h
  - op: advance
    duration: 1s
  - op: release
    hold: h
    fail: { kind: conflict, message: nope }
    expect: { outcome: failure, error: conflict }
  - op: fetch
    query: { limit: 2, active: true }
assertions:
  - { type: store_size, count: 1 }
`)

	s, err := ParseScenario(data)
	require.NoError(t, err)

	assert.Equal(t, "full", s.Name)
	assert.Equal(t, 30*time.Second, s.TTL)
	assert.Equal(t, "x", s.IDPrefix)
	assert.True(t, s.NoBulkReorder)
	require.Len(t, s.Seed, 1)
	assert.Equal(t, 0, *s.Seed[0].Order)
	assert.False(t, *s.Seed[0].Active)
	assert.Equal(t, map[string]any{"k": "v"}, s.Seed[0].Meta)
	require.Len(t, s.RemoteOnly, 1)
	assert.Nil(t, s.RemoteOnly[0].Order)

	require.Len(t, s.Steps, 4)
	assert.Equal(t, "h", s.Steps[0].Hold)
	assert.Equal(t, time.Second, s.Steps[1].Duration)
	assert.Equal(t, &FailSpec{Kind: "conflict", Message: "nope"}, s.Steps[2].Fail)
	assert.Equal(t, &StepExpect{Outcome: OutcomeFailure, Error: "conflict"}, s.Steps[2].Expect)
	assert.Equal(t, 2, s.Steps[3].Query["limit"])
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed",
			yaml:    "name: [",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: d\nsteps: [{op: advance, duration: 1s}]\nassertion: []",
			wantErr: "field assertion not found",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{op: advance, duration: 1s}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: x\nsteps: [{op: advance, duration: 1s}]",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: x\ndescription: d",
			wantErr: "steps list is required",
		},
		{
			name:    "negative ttl",
			yaml:    "name: x\ndescription: d\nttl: -1s\nsteps: [{op: advance, duration: 1s}]",
			wantErr: "ttl must not be negative",
		},
		{
			name:    "seed without id",
			yaml:    "name: x\ndescription: d\nseed: [{caption: c}]\nsteps: [{op: advance, duration: 1s}]",
			wantErr: "seed[0]: id is required",
		},
		{
			name:    "temporary seed id",
			yaml:    "name: x\ndescription: d\nseed: [{id: 'temp:1'}]\nsteps: [{op: advance, duration: 1s}]",
			wantErr: "temporary id",
		},
		{
			name:    "duplicate seed across lists",
			yaml:    "name: x\ndescription: d\nseed: [{id: a}]\nremote_only: [{id: a}]\nsteps: [{op: advance, duration: 1s}]",
			wantErr: "duplicate id \"a\"",
		},
		{
			name:    "unknown op",
			yaml:    "name: x\ndescription: d\nsteps: [{op: explode}]",
			wantErr: "unknown op \"explode\"",
		},
		{
			name:    "update without id",
			yaml:    "name: x\ndescription: d\nsteps: [{op: update, payload: {caption: c}}]",
			wantErr: "id is required for update",
		},
		{
			name:    "reorder without ids",
			yaml:    "name: x\ndescription: d\nsteps: [{op: reorder}]",
			wantErr: "ids is required for reorder",
		},
		{
			name:    "bad query",
			yaml:    "name: x\ndescription: d\nsteps: [{op: fetch, query: {colour: red}}]",
			wantErr: "unknown query parameter",
		},
		{
			name:    "advance without duration",
			yaml:    "name: x\ndescription: d\nsteps: [{op: advance}]",
			wantErr: "positive duration",
		},
		{
			name:    "release of unknown hold",
			yaml:    "name: x\ndescription: d\nsteps: [{op: release, hold: h}]",
			wantErr: "release of unknown hold \"h\"",
		},
		{
			name:    "payload on remove",
			yaml:    "name: x\ndescription: d\nsteps: [{op: remove, id: a, payload: {caption: c}}]",
			wantErr: "payload is only valid for create and update",
		},
		{
			name:    "unknown payload field",
			yaml:    "name: x\ndescription: d\nsteps: [{op: create, payload: {colour: red}}]",
			wantErr: "unknown field \"colour\"",
		},
		{
			name:    "hold without remote call",
			yaml:    "name: x\ndescription: d\nsteps: [{op: clear_errors, hold: h}]",
			wantErr: "makes no remote call to hold",
		},
		{
			name:    "hold opened twice",
			yaml:    "name: x\ndescription: d\nsteps: [{op: create, hold: h}, {op: create, hold: h}]",
			wantErr: "hold \"h\" is already open",
		},
		{
			name:    "fail on held step",
			yaml:    "name: x\ndescription: d\nsteps: [{op: create, hold: h, fail: {kind: network, message: m}}]",
			wantErr: "fails on its release step",
		},
		{
			name:    "unknown fail kind",
			yaml:    "name: x\ndescription: d\nsteps: [{op: create, fail: {kind: teapot, message: m}}]",
			wantErr: "unknown fail kind \"teapot\"",
		},
		{
			name:    "bad expected outcome",
			yaml:    "name: x\ndescription: d\nsteps: [{op: create, expect: {outcome: maybe}}]",
			wantErr: "outcome must be success or failure",
		},
		{
			name:    "expect on held step",
			yaml:    "name: x\ndescription: d\nsteps: [{op: create, hold: h, expect: {outcome: success}}]",
			wantErr: "checked on its release step",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: d\nsteps: [{op: advance, duration: 1s}]\nassertions: [{type: vibes}]",
			wantErr: "unknown assertion type \"vibes\"",
		},
		{
			name:    "entity assertion without expect",
			yaml:    "name: x\ndescription: d\nsteps: [{op: advance, duration: 1s}]\nassertions: [{type: entity, id: a}]",
			wantErr: "expect is required for entity",
		},
		{
			name:    "operation assertion with unknown kind",
			yaml:    "name: x\ndescription: d\nsteps: [{op: advance, duration: 1s}]\nassertions: [{type: operation, kind: launch, status: idle}]",
			wantErr: "unknown operation kind \"launch\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "create_confirmed.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "create_confirmed", s.Name)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_AllTestdataValid(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	names := make(map[string]string)
	for _, p := range paths {
		s, err := LoadScenario(p)
		require.NoError(t, err, p)
		if prev, dup := names[s.Name]; dup {
			t.Fatalf("scenario name %q used by %s and %s", s.Name, prev, p)
		}
		names[s.Name] = p

		_, err = os.Stat(filepath.Join("testdata", "golden", s.Name+".golden"))
		assert.NoError(t, err, "golden file for %s", s.Name)
	}
}
