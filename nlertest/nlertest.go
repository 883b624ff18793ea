// Package nlertest is a deterministic test harness built on package
// simclock: a paused simulated clock and a timer scheduler bound to it, for
// scenario tests (single-shot, four-parallel, restart, cancel-while-running,
// repeating, resendable) that should not touch the wall clock. It does not
// contain the scenarios themselves.
//
// Grounded on the teacher's (joeycumines/go-eventloop) SetTickAnchor/
// CurrentTickTime exposure for deterministic timer tests: a thin wrapper
// the test suite imports rather than reimplementing clock plumbing in
// every _test.go file.
package nlertest

import (
	"time"

	"github.com/nestlabs/nler/clock"
	"github.com/nestlabs/nler/event"
	"github.com/nestlabs/nler/queue"
	"github.com/nestlabs/nler/simclock"
	"github.com/nestlabs/nler/task"
	"github.com/nestlabs/nler/timer"
)

// Harness bundles a paused simulated clock, a running timer scheduler
// bound to it, and a helper to create counted return queues — the fixture
// every scenario test starts from.
type Harness struct {
	Clock     *simclock.Clock
	Scheduler *timer.Scheduler
}

// New creates a Harness with a scheduler started against a paused
// simulated clock. maxTimers bounds MAX_TIMER_EVENTS, matching the
// scenario under test.
func New(maxTimers int) (*Harness, error) {
	clk := simclock.New(true, clock.DefaultRate)

	sched, err := timer.NewScheduler(
		timer.WithMaxTimers(maxTimers),
		timer.WithClockSource(clk.Now, clk.Rate()),
		timer.WithWakeTracking(),
	)
	if err != nil {
		return nil, err
	}
	clk.Watch(sched)
	sched.TimerStart(task.Priority(0))

	return &Harness{Clock: clk, Scheduler: sched}, nil
}

// NewQueue creates a return queue wired into the harness's outstanding-
// event counter, useful for assertions that want to observe in-flight
// event counts; AdvanceMs itself no longer depends on it.
func (h *Harness) NewQueue(depth int) (*queue.Queue, error) {
	return queue.New(depth, queue.WithCounter(h.Clock))
}

// Advance steps the simulated clock forward by d, processing every timer
// event due in that window before returning.
func (h *Harness) Advance(d time.Duration) error {
	return h.Clock.AdvanceMs(d.Milliseconds())
}

// RecordingHandler returns an event.Handler that appends every dispatched
// event to *log, for scenario tests that just need to observe delivery
// order and validity.
func RecordingHandler(log *[]Delivery) event.Handler {
	return func(e event.Event, closure any) int32 {
		*log = append(*log, Delivery{
			Event: e,
			Valid: timerValid(e),
		})
		return event.ResultOK
	}
}

// Delivery records one dispatched event and whether package timer
// considered it a valid (non-stale) delivery.
type Delivery struct {
	Event event.Event
	Valid bool
}

func timerValid(e event.Event) bool {
	if e.Kind() != event.KindTimer {
		return true
	}
	return timer.IsValid(e)
}
