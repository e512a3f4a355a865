package tracker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/testutil"
)

func newTracker() (*Tracker, *testutil.FakeClock) {
	c := testutil.NewFakeClock()
	return New(c), c
}

func TestZeroRecordsAreIdle(t *testing.T) {
	tr, _ := newTracker()
	for _, k := range Kinds {
		assert.Equal(t, StatusIdle, tr.Global(k).Status)
		assert.Equal(t, StatusIdle, tr.Get(k, "x").Status)
	}
}

func TestBegin_GlobalAndEntity(t *testing.T) {
	tr, c := newTracker()

	tr.Begin(KindUpdate, "a", 1)

	g := tr.Global(KindUpdate)
	assert.Equal(t, StatusPending, g.Status)
	assert.Equal(t, uint64(1), g.Token)
	assert.Equal(t, c.Now(), g.StartedAt)

	r := tr.Get(KindUpdate, "a")
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, uint64(1), r.Token)

	assert.Equal(t, StatusIdle, tr.Get(KindDelete, "a").Status, "kinds are independent")
}

func TestBegin_GlobalOnly(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindFetch, "", 4)
	assert.Equal(t, StatusPending, tr.Global(KindFetch).Status)
}

func TestSucceed_MatchingToken(t *testing.T) {
	tr, c := newTracker()
	tr.Begin(KindCreate, "temp:1", 1)
	c.Advance(time.Second)

	assert.True(t, tr.Succeed(KindCreate, "temp:1", 1))

	r := tr.Get(KindCreate, "temp:1")
	assert.Equal(t, StatusSuccess, r.Status)
	assert.Equal(t, c.Now(), r.FinishedAt)
	assert.Equal(t, StatusSuccess, tr.Global(KindCreate).Status)
}

func TestFail_RecordsError(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindUpdate, "a", 1)

	assert.True(t, tr.Fail(KindUpdate, "a", errors.New("boom"), 1))

	r := tr.Get(KindUpdate, "a")
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "boom", r.Message())
}

func TestTerminal_WithoutStoredTokenIsAccepted(t *testing.T) {
	tr, _ := newTracker()
	assert.True(t, tr.Succeed(KindPatch, "a", 9))
	assert.Equal(t, StatusSuccess, tr.Get(KindPatch, "a").Status)
}

func TestStaleCompletionIsNoOp(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindUpdate, "a", 1)
	tr.Begin(KindUpdate, "a", 2)

	assert.False(t, tr.Fail(KindUpdate, "a", errors.New("late"), 1))

	r := tr.Get(KindUpdate, "a")
	assert.Equal(t, StatusPending, r.Status)
	assert.Nil(t, r.Err)
	assert.Equal(t, uint64(2), r.Token)
}

func TestStaleAfterNewerSettled(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindUpdate, "a", 1)
	tr.Begin(KindUpdate, "a", 2)
	require.True(t, tr.Succeed(KindUpdate, "a", 2))

	assert.False(t, tr.Fail(KindUpdate, "a", errors.New("late"), 1))

	r := tr.Get(KindUpdate, "a")
	assert.Equal(t, StatusSuccess, r.Status)
	assert.Nil(t, r.Err)
}

func TestGlobalAndEntityGuardedIndependently(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindUpdate, "a", 1)
	tr.Begin(KindUpdate, "b", 2)

	// Token 1 is still current for entity a but no longer for the global record.
	assert.True(t, tr.Succeed(KindUpdate, "a", 1))
	assert.Equal(t, StatusSuccess, tr.Get(KindUpdate, "a").Status)
	assert.Equal(t, StatusPending, tr.Global(KindUpdate).Status)
	assert.Equal(t, uint64(2), tr.Global(KindUpdate).Token)
}

func TestSettle_RunsApplyWhenCurrent(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindDelete, "a", 3)
	applied := false

	ok := tr.Settle(KindDelete, "a", 3, nil, func() { applied = true })

	assert.True(t, ok)
	assert.True(t, applied)
	assert.Equal(t, StatusSuccess, tr.Get(KindDelete, "a").Status)
}

func TestSettle_FailureStatus(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindDelete, "a", 3)

	ok := tr.Settle(KindDelete, "a", 3, errors.New("nope"), nil)

	assert.True(t, ok)
	assert.Equal(t, StatusFailed, tr.Get(KindDelete, "a").Status)
	assert.Equal(t, "nope", tr.Global(KindDelete).Message())
}

func TestSettle_StaleSkipsApply(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindUpdate, "a", 1)
	tr.Begin(KindUpdate, "a", 2)
	applied := false

	ok := tr.Settle(KindUpdate, "a", 1, nil, func() { applied = true })

	assert.False(t, ok)
	assert.False(t, applied)
	assert.Equal(t, StatusPending, tr.Get(KindUpdate, "a").Status)
}

func TestSettle_GlobalGuardWithoutID(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindFetch, "", 1)
	tr.Begin(KindFetch, "", 2)

	assert.False(t, tr.Settle(KindFetch, "", 1, nil, nil))
	assert.True(t, tr.Settle(KindFetch, "", 2, nil, nil))
	assert.Equal(t, StatusSuccess, tr.Global(KindFetch).Status)
}

func TestExpire_MarksCancelled(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindPatch, "a", 5)
	applied := false

	assert.True(t, tr.Expire(KindPatch, "a", 5, func() { applied = true }))
	assert.True(t, applied)
	assert.Equal(t, StatusCancelled, tr.Get(KindPatch, "a").Status)

	// A late failure of the same call still lands.
	assert.True(t, tr.Fail(KindPatch, "a", errors.New("late"), 5))
	assert.Equal(t, StatusFailed, tr.Get(KindPatch, "a").Status)
}

func TestCancel(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindReorder, "", 1)
	assert.True(t, tr.Cancel(KindReorder, "", 1))
	assert.Equal(t, StatusCancelled, tr.Global(KindReorder).Status)
}

func TestIsCurrent(t *testing.T) {
	tr, _ := newTracker()
	assert.True(t, tr.IsCurrent(KindUpdate, "a", 7), "no token stored yet")

	tr.Begin(KindUpdate, "a", 1)
	assert.True(t, tr.IsCurrent(KindUpdate, "a", 1))
	tr.Begin(KindUpdate, "a", 2)
	assert.False(t, tr.IsCurrent(KindUpdate, "a", 1))
	assert.True(t, tr.IsCurrent(KindUpdate, "a", 2))
}

func TestClearErrors_KeepsStatus(t *testing.T) {
	tr, _ := newTracker()
	tr.Begin(KindUpdate, "a", 1)
	tr.Fail(KindUpdate, "a", errors.New("boom"), 1)

	tr.ClearErrors()

	r := tr.Get(KindUpdate, "a")
	assert.Equal(t, StatusFailed, r.Status)
	assert.Nil(t, r.Err)
	assert.Equal(t, "", tr.Global(KindUpdate).Message())
}

func TestConcurrentTransitions(t *testing.T) {
	tr, _ := newTracker()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(token uint64) {
			defer wg.Done()
			id := "e"
			tr.Begin(KindUpdate, id, token)
			tr.Succeed(KindUpdate, id, token)
		}(uint64(i))
	}
	wg.Wait()

	r := tr.Get(KindUpdate, "e")
	assert.NotEqual(t, uint64(0), r.Token)
	assert.Contains(t, []Status{StatusPending, StatusSuccess}, r.Status)
}
