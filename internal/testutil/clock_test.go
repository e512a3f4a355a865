package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	c := NewFakeClock()
	assert.Equal(t, Epoch, c.Now())
}

func TestFakeClock_AdvanceMovesTime(t *testing.T) {
	c := NewFakeClock()
	c.Advance(90 * time.Second)
	assert.Equal(t, Epoch.Add(90*time.Second), c.Now())
}

func TestFakeClock_SetNeverGoesBackwards(t *testing.T) {
	c := NewFakeClock()
	c.Advance(time.Minute)
	c.Set(Epoch)
	assert.Equal(t, Epoch.Add(time.Minute), c.Now())
}

func TestFakeClock_FiresDueTimersInDeadlineOrder(t *testing.T) {
	c := NewFakeClock()
	var fired []string

	c.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b2") })

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b", "b2"}, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "b2", "c"}, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_StoppedTimerDoesNotFire(t *testing.T) {
	c := NewFakeClock()
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	c.Advance(time.Hour)
	assert.False(t, fired)
}

func TestFakeClock_StopAfterFire(t *testing.T) {
	c := NewFakeClock()
	timer := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	assert.False(t, timer.Stop())
}

func TestFakeClock_CallbackMayScheduleTimers(t *testing.T) {
	c := NewFakeClock()
	count := 0
	c.AfterFunc(time.Second, func() {
		count++
		c.AfterFunc(time.Second, func() { count++ })
	})

	c.Advance(2 * time.Second)
	assert.Equal(t, 2, count)
}

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs()
	assert.Equal(t, "temp:1", g.TempID())
	assert.Equal(t, "temp:2", g.TempID())
	assert.Equal(t, "corr-1", g.CorrelationID())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	g := NewSequentialIDs()
	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, dup := seen.LoadOrStore(g.TempID(), true)
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
}
