// Package resendable implements the resendable timer overlay (C10): a thin
// layer over package timer that guarantees every Start is eventually
// matched by exactly one Receive, regardless of re-sends or cancels,
// eliminating the cancel/restart race a bare timer.Timer leaves to the
// caller.
//
// Grounded on the teacher's (joeycumines/go-eventloop) promise.go
// PromiseState (Pending/Fulfilled/Rejected) settle-once discipline — both
// are "exactly one terminal observation" state machines. The teacher
// settles once; Timer generalizes that to an N-deep counter, since a timer
// may be re-armed any number of times before any delivery is observed
// (spec.md §4.4's ARMED(n) state).
package resendable

import (
	"github.com/nestlabs/nler/atomic"
	"github.com/nestlabs/nler/event"
	"github.com/nestlabs/nler/timer"
)

// Timer wraps a timer.Timer with the active_timers bookkeeping of
// spec.md §4.4: active_timers = (posts to scheduler) - (acknowledged
// receives), at most 1 at steady state.
type Timer struct {
	sched *timer.Scheduler
	inner *timer.Timer

	activeTimers atomic.Value[int32]
}

// New creates a resendable Timer bound to sched, wrapping a fresh
// timer.Timer with DISPLACE permanently set (spec.md §4.4: "sets internal
// flags so DISPLACE is on and REPEAT is off").
func New(sched *timer.Scheduler, handler event.Handler, closure any, returnQueue event.Poster) *Timer {
	inner := sched.EventTimerInit(handler, closure, returnQueue)
	inner.SetDisplace(true)
	return &Timer{sched: sched, inner: inner}
}

// Start arms (or re-arms) the timer, incrementing active_timers before
// forwarding to the scheduler. On failure the increment is undone
// (spec.md §4.4: "On failure, undoes the increment").
func (t *Timer) Start(timeoutMs int64) error {
	t.activeTimers.Increment()
	if err := t.sched.EventTimerStart(t.inner, timeoutMs, false); err != nil {
		t.activeTimers.Decrement()
		return err
	}
	return nil
}

// Cancel requests a cancel-echo if the timer is currently armed
// (active_timers > 0); the cancel itself will surface as a received event
// (spec.md §4.4).
func (t *Timer) Cancel() {
	if t.activeTimers.Load() > 0 {
		t.inner.SetCancelEcho()
	}
}

// Receive must be called exactly once per dequeued FiredEvent for this
// timer. It decrements active_timers and reports ok iff this delivery was
// the single outstanding arming (active_timers == 1 pre-decrement, i.e. 0
// after) and the underlying timer itself reports valid; any other outcome
// is ignore (spec.md §4.4's ARMED(n)/DELIVERING/IDLE state machine).
func (t *Timer) Receive(e event.Event) (ok bool) {
	n := t.activeTimers.Decrement()
	// timer.IsValid must run regardless of n, to keep the underlying
	// timer's queued_count/ignore_count bookkeeping (spec.md §4.3)
	// balanced across every echoed delivery DISPLACE generates.
	valid := timer.IsValid(e)
	return n == 0 && valid
}

// IsValid is a read-only, non-consuming inspection permitted only for
// observers that are not the intended receiver (spec.md §4.4).
func (t *Timer) IsValid() bool {
	return t.activeTimers.Load() == 1
}
