// Package simclock implements the simulated-time overlay (C11): a paused,
// manually-advanced virtual clock plus an advance-to-deadline loop that lets
// tests drive the timer scheduler and event queues deterministically
// instead of sleeping on the wall clock. Each step relies on
// timer.Scheduler.Poke's synchronous acknowledgement, not on watching a
// consumer drain its queues, so AdvanceMs returns only once every event due
// at the new virtual time has actually been posted.
//
// Grounded on the teacher's (joeycumines/go-eventloop) tickAnchor/
// tickElapsedTime/CurrentTickTime/SetTickAnchor pause/resume bookkeeping
// (used there to make its own timer tests deterministic), extended with
// the advance-to-deadline loop spec.md §4.6 describes, which the teacher
// has no equivalent of (it never pauses its own clock, only anchors it).
package simclock

import (
	"sync"
	"time"

	"github.com/nestlabs/nler/clock"
	"github.com/nestlabs/nler/internal/errcode"
	"github.com/nestlabs/nler/queue"
	"github.com/nestlabs/nler/timer"
)

// watched is the narrow view Clock needs of a registered scheduler: enough
// to nudge it awake and read its current deadline, without depending on
// any more of timer.Scheduler's surface than that.
type watched interface {
	Poke() error
	NextDeadline() clock.Ticks
}

// Clock is the simulated-time overlay. The zero value is not usable;
// create one with New.
type Clock struct {
	rate clock.Rate

	mu                  sync.Mutex
	realTimeWhenStarted time.Time
	paused              bool
	simTimeDelay        clock.Ticks
	virtualNow          clock.Ticks
	advanceTarget       clock.Ticks

	schedMu    sync.Mutex
	schedulers []watched

	// cmu guards outstanding, a diagnostic-only count of events posted to
	// counted queues minus events received from them. AdvanceMs no longer
	// gates on this (Poke's synchronous acknowledgement makes each step
	// deterministic on its own); it remains for tests and introspection.
	cmu         sync.Mutex
	outstanding int64
}

// New creates a Clock. startPaused matches spec.md §4.6: a sim-time test
// harness typically starts paused so the first events aren't dispatched
// until the test explicitly advances.
func New(startPaused bool, rate clock.Rate) *Clock {
	if rate.TicksPerSecond <= 0 {
		rate = clock.DefaultRate
	}
	return &Clock{
		rate:                rate,
		realTimeWhenStarted: time.Now(),
		paused:              startPaused,
	}
}

// Rate returns the clock's tick rate, for wiring into timer.WithClockSource.
func (c *Clock) Rate() clock.Rate { return c.rate }

// Watch registers a scheduler this Clock drives during AdvanceMs. Schedulers
// must be created with timer.WithClockSource(clk.Now, clk.Rate()) so their
// own notion of "now" tracks this clock.
func (c *Clock) Watch(s *timer.Scheduler) {
	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	c.schedulers = append(c.schedulers, s)
}

// Now returns the current tick: real-or-paused minus delay minus start,
// per spec.md §3's sim-clock state (real_time_when_started,
// real_time_when_paused folded into sim_time_delay here, advance_target,
// sim_time_delay, time_paused).
func (c *Clock) Now() clock.Ticks {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return c.virtualNow
	}
	return c.realNowLocked() - c.simTimeDelay
}

func (c *Clock) realNowLocked() clock.Ticks {
	elapsed := time.Since(c.realTimeWhenStarted)
	return clock.Ticks(elapsed.Milliseconds() * c.rate.TicksPerSecond / 1000)
}

// Pause freezes the clock at its current value; AdvanceMs is only valid
// while paused.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.virtualNow = c.realNowLocked() - c.simTimeDelay
	c.paused = true
}

// Unpause resumes wall-clock-driven time, recomputing sim_time_delay so
// Now() stays continuous across the transition.
func (c *Clock) Unpause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.simTimeDelay = c.realNowLocked() - c.virtualNow
	c.paused = false
}

// AdvanceMs steps the virtual clock forward by dt milliseconds, valid only
// while paused (spec.md §4.6). It repeatedly: (a) nudges every watched
// scheduler to run one sweep pass and block until that pass (including any
// resulting posts to return queues) is fully applied, and (b) advances
// virtual time to the smaller of the next timer deadline across all watched
// schedulers or the advance target, returning once the target is reached.
// Poke's synchronous acknowledgement (timer.Scheduler.Poke) is what makes
// each step deterministic here; the outstanding-event counter (Inc/Dec,
// wired in via queue.WithCounter) is retained only as a diagnostic for
// tests, not as a correctness gate — see DESIGN.md.
func (c *Clock) AdvanceMs(dt int64) error {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return errcode.Wrap(errcode.BadState, "simclock: advance valid only while paused")
	}
	target := c.virtualNow + clock.Ticks(dt*c.rate.TicksPerSecond/1000)
	c.advanceTarget = target
	c.mu.Unlock()

	for {
		c.poke()

		c.mu.Lock()
		next := c.nextDeadlineLocked()
		if next > c.advanceTarget {
			next = c.advanceTarget
		}
		if next <= c.virtualNow {
			done := c.virtualNow >= c.advanceTarget
			if !done {
				c.virtualNow++
			}
			c.mu.Unlock()
			if done {
				return nil
			}
			continue
		}
		c.virtualNow = next
		c.mu.Unlock()
	}
}

func (c *Clock) poke() {
	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	for _, s := range c.schedulers {
		_ = s.Poke()
	}
}

func (c *Clock) nextDeadlineLocked() clock.Ticks {
	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	min := clock.Never
	for _, s := range c.schedulers {
		if d := s.NextDeadline(); d < min {
			min = d
		}
	}
	return min
}

func (c *Clock) adjustOutstanding(delta int64) {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	c.outstanding += delta
}

// Inc and Dec implement queue.Counter: every Post increments the
// diagnostic outstanding count, every successful Get decrements it.
func (c *Clock) Inc() { c.adjustOutstanding(1) }
func (c *Clock) Dec() { c.adjustOutstanding(-1) }

// SimCountInc and SimCountDec are the spec-named aliases for Inc/Dec.
func (c *Clock) SimCountInc() { c.Inc() }
func (c *Clock) SimCountDec() { c.Dec() }

// DisableCounting excludes q from this Clock's outstanding-event
// accounting (spec.md §4.1, §4.6).
func (c *Clock) DisableCounting(q *queue.Queue) {
	q.DisableCounting()
}
