// Package timer implements the single-task timer scheduler (C9): client
// tasks arm and cancel Timer handles, and one scheduler goroutine (the
// "timer task") owns a fixed-capacity array of live timers, reposting
// expired ones to their return queues and honoring cancel/repeat/wake/
// displace semantics.
//
// Grounded on the teacher's (joeycumines/go-eventloop) Loop.run/tick/
// runTimers/calculateTimeout structure and its container/heap-based
// timerHeap, generalized from "run a closure" to "post a timer event to an
// arbitrary return queue" and extended with the fixed-capacity array and
// CANCELLED/REPEAT/CANCEL_ECHO/WAKE/DISPLACE bookkeeping spec.md §4.3
// describes, none of which the teacher needs since it only ever schedules
// plain closures on its own queue.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/nestlabs/nler/atomic"
	"github.com/nestlabs/nler/clock"
	"github.com/nestlabs/nler/event"
	"github.com/nestlabs/nler/internal/errcode"
	"github.com/nestlabs/nler/internal/log"
	"github.com/nestlabs/nler/queue"
	"github.com/nestlabs/nler/task"
)

// Flag is the timer event flag bitmask of spec.md §3.
type Flag uint8

const (
	FlagCancelled Flag = 1 << iota
	FlagRepeat
	FlagCancelEcho
	FlagWake
	FlagDisplace
)

// DefaultMaxTimers is MAX_TIMER_EVENTS' default capacity (spec.md §6).
const DefaultMaxTimers = 4

// kindTimerArm is the reserved-range type tag for the internal "arm
// request" control message the scheduler's own queue carries; it is never
// dispatched through event.Dispatch.
const kindTimerArm event.Kind = event.KindReservedBase + 1

// Timer is a client-facing timer handle, created by Scheduler.EventTimerInit.
// The zero value is not usable.
type Timer struct {
	sched       *Scheduler
	handler     event.Handler
	closure     any
	returnQueue event.Poster

	mu            sync.Mutex
	timeoutMs     int64
	timeoutNative clock.Ticks
	flags         Flag
	timeNow       clock.Ticks
	deadline      clock.Ticks

	queuedCount atomic.Value[int32]
	ignoreCount atomic.Value[int32]
}

// SetDisplace toggles the DISPLACE flag, used by package resendable to keep
// it permanently on.
func (t *Timer) SetDisplace(on bool) { t.setFlag(FlagDisplace, on) }

// SetWake toggles the WAKE flag (spec.md §4.3: "WAKE-flagged timers
// additionally contribute to a separately tracked min_wake_time").
func (t *Timer) SetWake(on bool) { t.setFlag(FlagWake, on) }

// SetCancelEcho requests the scheduler post one invalid "echo" delivery on
// its next pass without tearing down a live, armed entry any other way —
// the primitive package resendable's Cancel builds on.
func (t *Timer) SetCancelEcho() { t.setFlag(FlagCancelEcho, true) }

func (t *Timer) setFlag(f Flag, on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if on {
		t.flags |= f
	} else {
		t.flags &^= f
	}
}

func (t *Timer) flagSet(f Flag) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flags&f != 0
}

func (t *Timer) deadlineSnapshot() clock.Ticks {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// rebase re-bases time_now (spec.md §4.3: "rebase time_now = now - 1_tick"
// for repeating timers, subtracting the rounding tick added on arm).
func (t *Timer) rebase(now clock.Ticks) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeNow = now
	if t.timeoutNative >= clock.Never {
		t.deadline = clock.Never
	} else {
		t.deadline = now + t.timeoutNative
	}
}

// checkValidity implements the cancellation-correctness protocol of
// spec.md §4.3: atomically decrement queued_count; if ignore_count is
// still positive, decrement it too and report invalid; otherwise report
// !cancelled.
func (t *Timer) checkValidity() bool {
	t.queuedCount.Decrement()
	if t.ignoreCount.Load() > 0 {
		t.ignoreCount.Decrement()
		return false
	}
	return !t.flagSet(FlagCancelled)
}

// FiredEvent is what the scheduler posts to a Timer's return queue, either
// because the timer expired or because it was displaced/cancel-echoed.
// FiredEvent implements event.Event, and its Valid method — callable
// exactly once per spec.md §4.3 ("event_timer_is_valid... must be called
// exactly once per received timer event") — is memoized with sync.Once so
// repeat calls are harmless rather than double-counting the bookkeeping.
type FiredEvent struct {
	event.Header
	timer  *Timer
	once   sync.Once
	result bool
}

func newFiredEvent(t *Timer) *FiredEvent {
	return &FiredEvent{
		Header: event.NewHeader(event.KindTimer, t.handler, t.closure),
		timer:  t,
	}
}

// Valid reports whether this particular delivery corresponds to a live,
// uncancelled arming of the timer. Automatically consulted by
// event.Dispatch for KindTimer events; also callable directly.
func (e *FiredEvent) Valid() bool {
	e.once.Do(func() { e.result = e.timer.checkValidity() })
	return e.result
}

// IsValid is the package-level form of event_timer_is_valid, operating on a
// received event rather than the Timer handle directly, since by the time
// a client has something to ask about it only has the delivered event.
func IsValid(e event.Event) bool {
	fe, ok := e.(*FiredEvent)
	if !ok {
		return false
	}
	return fe.Valid()
}

// armRequest is the control message EventTimerStart posts to the
// scheduler's own queue; it is the "aEvent" of spec.md §4.3's internal
// protocol.
type armRequest struct {
	event.Header
	timer *Timer
	// ack, if non-nil, is closed once this pass of the scheduler loop has
	// fully applied the request (including any resulting posts to return
	// queues). Poke uses this to make "nudge and sweep" synchronous, which
	// package simclock relies on for deterministic advancement.
	ack chan struct{}
}

// shutdownRequest asks the scheduler goroutine to drain and stop.
type shutdownRequest struct {
	event.Header
	done chan struct{}
}

// Scheduler is the single timer task of spec.md §4.3. The zero value is
// not usable; create one with NewScheduler.
type Scheduler struct {
	maxTimers    int
	rate         clock.Rate
	nowFn        func() clock.Ticks
	wakeTracking bool
	logger       *log.Logger
	assertFn     func(string)

	queue *queue.Queue

	mu           sync.Mutex
	timers       []*Timer
	nextDeadline clock.Ticks

	minWakeTime atomic.Value[int64]

	started  atomic.Bool
	draining atomic.Bool
	t        *task.Task
}

// Option configures a Scheduler at construction.
type Option interface{ apply(*schedulerOptions) }

type schedulerOptions struct {
	maxTimers    int
	rate         clock.Rate
	nowFn        func() clock.Ticks
	wakeTracking bool
	logger       *log.Logger
	assertFn     func(string)
}

type optionFunc func(*schedulerOptions)

func (f optionFunc) apply(o *schedulerOptions) { f(o) }

// WithMaxTimers overrides MAX_TIMER_EVENTS (default DefaultMaxTimers).
func WithMaxTimers(n int) Option {
	return optionFunc(func(o *schedulerOptions) { o.maxTimers = n })
}

// WithWakeTracking enables FEATURE_WAKE_TIMER: the scheduler tracks a
// running minimum deadline across WAKE-flagged timers, queryable via
// Scheduler.WakeTime.
func WithWakeTracking() Option {
	return optionFunc(func(o *schedulerOptions) { o.wakeTracking = true })
}

// WithClockSource overrides the scheduler's time source and tick rate,
// the seam package simclock (C11) uses to drive the scheduler from a
// paused, manually-advanced virtual clock instead of the wall clock.
func WithClockSource(now func() clock.Ticks, rate clock.Rate) Option {
	return optionFunc(func(o *schedulerOptions) {
		o.nowFn = now
		o.rate = rate
	})
}

// WithLogger attaches a structured logger for overflow/drop diagnostics.
func WithLogger(l *log.Logger) Option {
	return optionFunc(func(o *schedulerOptions) { o.logger = l })
}

// WithAssertFunc overrides the function invoked on MAX_TIMER_EVENTS
// overflow (default panic), mirroring the teacher's pluggable-delegate
// convention for programmer-error asserts.
func WithAssertFunc(fn func(string)) Option {
	return optionFunc(func(o *schedulerOptions) { o.assertFn = fn })
}

func resolve(opts []Option) schedulerOptions {
	o := schedulerOptions{
		maxTimers: DefaultMaxTimers,
		rate:      clock.DefaultRate,
		nowFn:     defaultNow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&o)
		}
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	if o.assertFn == nil {
		o.assertFn = func(message string) { panic(message) }
	}
	return o
}

func defaultNow() clock.Ticks {
	return clock.Ticks(time.Now().UnixNano() / int64(time.Millisecond))
}

// NewScheduler creates a Scheduler. Its inbound "timer queue" is sized
// MaxTimers+1, per SUPPLEMENTED FEATURES (room for one in-flight arm on top
// of a full timer array).
func NewScheduler(opts ...Option) (*Scheduler, error) {
	o := resolve(opts)
	if o.maxTimers <= 0 {
		return nil, errcode.Wrap(errcode.BadInput, "timer: MaxTimers must be positive")
	}

	q, err := queue.New(o.maxTimers+1, queue.WithLogger(o.logger), queue.WithName("timer"))
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		maxTimers:    o.maxTimers,
		rate:         o.rate,
		nowFn:        o.nowFn,
		wakeTracking: o.wakeTracking,
		logger:       o.logger,
		assertFn:     o.assertFn,
		queue:        q,
		nextDeadline: clock.Never,
	}
	s.minWakeTime.Store(int64(clock.Never))
	return s, nil
}

// EventTimerInit creates a Timer bound to this scheduler, per spec.md
// §4.3's "event_timer_init(timer, handler, closure, return_queue)".
func (s *Scheduler) EventTimerInit(handler event.Handler, closure any, returnQueue event.Poster) *Timer {
	return &Timer{
		sched:       s,
		handler:     handler,
		closure:     closure,
		returnQueue: returnQueue,
		deadline:    clock.Never,
	}
}

// TimerStart launches the scheduler goroutine at the given priority,
// spec.md §4.3's "timer_start()". Calling it more than once is a no-op.
func (s *Scheduler) TimerStart(priority task.Priority) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.t = task.New("timer", priority, func(*task.Task) { s.run() })
	s.t.Start()
}

// GetTimerQueue returns the scheduler's own inbound queue, for backlog
// introspection (spec.md §2: "client tasks... post them to the timer
// queue").
func (s *Scheduler) GetTimerQueue() *queue.Queue { return s.queue }

// Poke nudges the scheduler to run one sweep pass immediately, without
// arming or replacing anything, and blocks until that pass has been fully
// applied (including any resulting posts to return queues). Package
// simclock uses this to force the scheduler to re-evaluate expiries
// against its clock source after advancing virtual time, rather than
// waiting out a real-time timeout that would never fire on its own — and
// relies on the synchronous acknowledgement to know a step is complete
// without needing a concurrently running consumer drain the result queue.
func (s *Scheduler) Poke() error {
	ack := make(chan struct{})
	if err := s.queue.Post(&armRequest{
		Header: event.NewHeader(kindTimerArm, nil, nil),
		timer:  nil,
		ack:    ack,
	}); err != nil {
		return err
	}
	<-ack
	return nil
}

// NextDeadline returns the scheduler's current next_timeout_native value,
// the absolute tick at which its next sweep is due (or clock.Never).
// Package simclock reads this to compute how far it may safely advance
// virtual time in one step.
func (s *Scheduler) NextDeadline() clock.Ticks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDeadline
}

// WakeTime returns the running minimum deadline across WAKE-flagged
// timers, and whether wake tracking is enabled at all (spec.md §4.3,
// SUPPLEMENTED FEATURES).
func (s *Scheduler) WakeTime() (clock.Ticks, bool) {
	if !s.wakeTracking {
		return clock.Never, false
	}
	return clock.Ticks(s.minWakeTime.Load()), true
}

// EventTimerStart arms or re-arms a Timer. An already-armed (or
// fired-and-queued) timer is cancelled and restarted atomically with
// respect to its receiving task, via the ignore_count := queued_count
// bump below (spec.md §4.3).
func (s *Scheduler) EventTimerStart(t *Timer, timeoutMs int64, repeating bool) error {
	if !s.started.Load() {
		return errcode.Wrap(errcode.Init, "timer: start before scheduler launched")
	}
	if s.draining.Load() {
		return errcode.Wrap(errcode.Init, "timer: scheduler draining")
	}

	now := s.now()
	native := s.rate.MsToTicks(timeoutMs)

	t.mu.Lock()
	t.timeoutMs = timeoutMs
	t.timeoutNative = native
	if repeating {
		t.flags |= FlagRepeat
	} else {
		t.flags &^= FlagRepeat
	}
	t.flags &^= FlagCancelled
	t.flags &^= FlagCancelEcho
	t.timeNow = now
	if native >= clock.Never {
		t.deadline = clock.Never
	} else {
		t.deadline = now + native
	}
	t.mu.Unlock()

	t.ignoreCount.Store(t.queuedCount.Load())

	return s.queue.Post(&armRequest{
		Header: event.NewHeader(kindTimerArm, nil, nil),
		timer:  t,
	})
}

// EventTimerCancel marks t cancelled. Cancellation is cooperative: the flag
// is consumed by the scheduler on its next pass (spec.md §9 Design Notes).
// An already-posted-but-not-yet-received event may still surface, but
// IsValid on it will report false.
func (s *Scheduler) EventTimerCancel(t *Timer) {
	t.setFlag(FlagCancelled, true)
}

// Shutdown drains the scheduler and stops its goroutine.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}
	s.draining.Store(true)
	done := make(chan struct{})
	if err := s.queue.Post(&shutdownRequest{
		Header: event.NewHeader(kindTimerArm, nil, nil),
		done:   done,
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) now() clock.Ticks { return s.nowFn() }

func (s *Scheduler) timeoutMsLocked() int64 {
	if s.nextDeadline >= clock.Never {
		return queue.NeverMs
	}
	remaining := s.nextDeadline - s.now()
	if remaining < 0 {
		remaining = 0
	}
	return s.rate.TicksToMs(remaining)
}

// run is the scheduler goroutine, implementing the internal protocol of
// spec.md §4.3 steps 1-4 in a single combined pass per wakeup.
func (s *Scheduler) run() {
	for {
		s.mu.Lock()
		timeoutMs := s.timeoutMsLocked()
		s.mu.Unlock()

		msg, ok := s.queue.GetWithTimeout(timeoutMs)

		var incoming *Timer
		var arm *armRequest
		var shutdown *shutdownRequest
		if ok {
			switch m := msg.(type) {
			case *armRequest:
				arm = m
				incoming = m.timer
			case *shutdownRequest:
				shutdown = m
			}
		}

		now := s.now()

		s.mu.Lock()
		survivors := make([]*Timer, 0, len(s.timers)+1)
		consumedIncoming := false
		minDeadline := clock.Never
		minWake := clock.Never

		for _, tm := range s.timers {
			switch {
			case incoming != nil && tm == incoming:
				// DISPLACE: per SPEC_FULL.md's resolution of the matching
				// Open Question, a replace always echoes the prior live
				// occupant — the flag itself is scheduler-set state for
				// observers, not a client-side opt-in.
				if !tm.flagSet(FlagCancelled) {
					s.echoLocked(tm)
				}
				consumedIncoming = true
			case tm.flagSet(FlagCancelEcho):
				s.echoLocked(tm)
			case tm.flagSet(FlagCancelled):
				// silently removed
			case now >= tm.deadlineSnapshot():
				s.expireLocked(tm)
				if tm.flagSet(FlagRepeat) {
					tm.rebase(now - 1)
					survivors = append(survivors, tm)
					minDeadline, minWake = accumulate(tm, minDeadline, minWake)
				}
			default:
				survivors = append(survivors, tm)
				minDeadline, minWake = accumulate(tm, minDeadline, minWake)
			}
		}

		if incoming != nil {
			if !consumedIncoming && len(survivors) >= s.maxTimers {
				s.assertFn("timer: MAX_TIMER_EVENTS exceeded")
			} else {
				survivors = append(survivors, incoming)
				minDeadline, minWake = accumulate(incoming, minDeadline, minWake)
			}
		}

		s.timers = survivors
		s.nextDeadline = minDeadline
		if s.wakeTracking {
			s.minWakeTime.Store(int64(minWake))
		}
		s.mu.Unlock()

		if arm != nil && arm.ack != nil {
			close(arm.ack)
		}

		if shutdown != nil {
			close(shutdown.done)
			return
		}
	}
}

func accumulate(tm *Timer, minDeadline, minWake clock.Ticks) (clock.Ticks, clock.Ticks) {
	d := tm.deadlineSnapshot()
	if d < minDeadline {
		minDeadline = d
	}
	if tm.flagSet(FlagWake) && d < minWake {
		minWake = d
	}
	return minDeadline, minWake
}

// expireLocked posts tm's fired event to its return queue because its
// deadline passed. Must be called with s.mu held.
func (s *Scheduler) expireLocked(tm *Timer) {
	fe := newFiredEvent(tm)
	tm.queuedCount.Increment()
	if err := tm.returnQueue.Post(fe); err != nil {
		s.logger.Warning().Log("timer: failed to post expired timer event, return queue full")
	}
}

// echoLocked posts an invalid "echo" delivery for a displaced or
// cancel-echoed timer, per spec.md §4.3 ("DISPLACE: the prior event is
// echoed to the return queue as invalid rather than silently dropped").
// The echo bumps ignore_count alongside queued_count, so the validity check
// on its delivery reports false. Must be called with s.mu held.
func (s *Scheduler) echoLocked(tm *Timer) {
	fe := newFiredEvent(tm)
	tm.queuedCount.Increment()
	tm.ignoreCount.Increment()
	if err := tm.returnQueue.Post(fe); err != nil {
		s.logger.Warning().Log("timer: failed to post displace/cancel echo, return queue full")
	}
	tm.setFlag(FlagCancelEcho, false)
}
