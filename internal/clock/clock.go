// Package clock abstracts wall time and delayed callbacks.
//
// Optimistic rollbacks and cache expiry depend on time. Production code uses
// Real; tests substitute testutil.FakeClock so expiry can be driven
// deterministically instead of sleeping.
package clock

import "time"

// Clock reports the current time and schedules cancellable callbacks.
type Clock interface {
	Now() time.Time

	// AfterFunc runs f in its own goroutine once d has elapsed, unless the
	// returned Timer is stopped first.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
