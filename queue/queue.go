// Package queue implements the bounded, blocking, multi-producer/
// multi-consumer event queue (C7) — the hub every producer task, ISR, and
// the timer task post into, and every consumer task blocks on.
//
// Grounded on the teacher's (joeycumines/go-eventloop) internalQueueMu-
// guarded microtask ring and its channel-based wakeup idiom (fastWakeupCh,
// a buffered-by-one channel with a non-blocking send as the dedup), reused
// here for get_with_timeout's blocking wait. Unlike the teacher's
// dynamically-growing ring, capacity here is fixed at construction and
// never resized (SPEC_FULL.md Component Design, C7): posting past capacity
// always fails with NO_RESOURCE rather than growing.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/nestlabs/nler/event"
	"github.com/nestlabs/nler/internal/errcode"
	"github.com/nestlabs/nler/internal/log"
)

// NeverMs, passed to GetWithTimeout, blocks indefinitely, per spec.md §4.1
// ("timeout_ms = NEVER blocks indefinitely").
const NeverMs int64 = -1

// maxDrainOnAssert bounds how many queued events WithAssertOnFull logs
// before invoking the assert function, per spec.md §4.1 ("drains and logs
// up to a bounded number of queued events before aborting").
const maxDrainOnAssert = 64

// Counter receives a callback on every successful Post and every
// successful Get, the seam package simclock (C11) hooks into for its
// outstanding-event accounting. A Queue with no Counter attached, or with
// counting disabled via DisableCounting, never calls it.
type Counter interface {
	Inc()
	Dec()
}

// AssertFunc is invoked when WithAssertOnFull is enabled and a Post would
// overflow the queue, after the queue has been drained and logged. The
// default is panic, mirroring the teacher's safeExecute recoverable-panic
// convention (callers may plug in a delegate, per spec.md §7).
type AssertFunc func(message string)

// Queue is a fixed-capacity, lock-guarded, FIFO event queue. The zero value
// is not usable; create one with New.
type Queue struct {
	mu   sync.Mutex
	buf  []event.Event
	head int
	n    int

	wakeupCh chan struct{}

	counter          Counter
	countingDisabled bool
	assertOnFull     bool
	assertFn         AssertFunc
	logger           *log.Logger
	name             string
}

// Option configures a Queue at construction.
type Option interface{ apply(*queueOptions) }

type queueOptions struct {
	counter      Counter
	assertOnFull bool
	assertFn     AssertFunc
	logger       *log.Logger
	name         string
}

type optionFunc func(*queueOptions)

func (f optionFunc) apply(o *queueOptions) { f(o) }

// WithCounter attaches a Counter, the hook package simclock uses to track
// outstanding events across every queue it hasn't excluded.
func WithCounter(c Counter) Option {
	return optionFunc(func(o *queueOptions) { o.counter = c })
}

// WithAssertOnFull enables the assert-on-full build option of spec.md
// §4.1: an overflowing Post drains and logs up to 64 queued events, then
// invokes fn (or panic, if fn is nil).
func WithAssertOnFull(fn AssertFunc) Option {
	return optionFunc(func(o *queueOptions) {
		o.assertOnFull = true
		o.assertFn = fn
	})
}

// WithLogger attaches a structured logger for overflow/drain diagnostics.
func WithLogger(l *log.Logger) Option {
	return optionFunc(func(o *queueOptions) { o.logger = l })
}

// WithName labels the queue in log output; purely diagnostic.
func WithName(name string) Option {
	return optionFunc(func(o *queueOptions) { o.name = name })
}

func resolve(opts []Option) queueOptions {
	o := queueOptions{assertFn: func(message string) { panic(message) }}
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

// New creates a Queue with the given depth. depth <= 0 fails with
// errcode.BadInput, the Go counterpart of spec.md §4.1's "zero depth or
// null memory fails with BAD_INPUT" (Go has no raw memory/size-in-bytes
// argument to validate, so depth is the element count directly).
func New(depth int, opts ...Option) (*Queue, error) {
	if depth <= 0 {
		return nil, errcode.Wrap(errcode.BadInput, "queue: depth must be positive")
	}
	o := resolve(opts)

	return &Queue{
		buf:              make([]event.Event, depth),
		wakeupCh:         make(chan struct{}, 1),
		counter:          o.counter,
		countingDisabled: false,
		assertOnFull:     o.assertOnFull,
		assertFn:         o.assertFn,
		logger:           o.logger,
		name:             o.name,
	}, nil
}

// Depth returns the queue's fixed capacity.
func (q *Queue) Depth() int { return len(q.buf) }

// DisableCounting opts this queue out of a Counter's accounting hook. No
// effect if no Counter is attached (spec.md §4.1: "No effect in non-sim
// builds").
func (q *Queue) DisableCounting() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.countingDisabled = true
}

func (q *Queue) wake() {
	select {
	case q.wakeupCh <- struct{}{}:
	default:
	}
}

// Post enqueues e without blocking. It fails with errcode.NoResource if the
// queue is full; it never blocks and never overwrites (spec.md §4.1).
func (q *Queue) Post(e event.Event) error {
	q.mu.Lock()
	if q.n == len(q.buf) {
		if q.assertOnFull {
			q.drainOnFullLocked()
		}
		q.mu.Unlock()
		return errcode.Wrap(errcode.NoResource, "queue: full")
	}

	idx := (q.head + q.n) % len(q.buf)
	q.buf[idx] = e
	q.n++
	countOK := q.counter != nil && !q.countingDisabled
	q.mu.Unlock()

	if countOK {
		q.counter.Inc()
	}
	q.wake()
	return nil
}

// drainOnFullLocked implements the AssertOnFull option: log up to
// maxDrainOnAssert already-queued survivors in FIFO order, then assert.
// Per SPEC_FULL.md's resolution of the matching Open Question, the drain is
// destructive — drained events are logged, not re-delivered. Must be
// called with q.mu held.
func (q *Queue) drainOnFullLocked() {
	drained := 0
	for q.n > 0 && drained < maxDrainOnAssert {
		e := q.buf[q.head]
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		drained++
		q.logger.Warning().Str("queue", q.name).Uint64("kind", uint64(e.Kind())).Log("queue: dropping event on full-queue assert")
	}
	q.assertFn("queue: full, assert-on-full triggered")
}

// PostFromISR has the same contract as Post but is safe to call from an
// interrupt-equivalent context: it never blocks and never allocates beyond
// what the caller already owns. The returned bool hints that a
// higher-priority consumer was unblocked and a context switch may be
// warranted, per spec.md §4.1 ("may cause a context-switch hint on
// return"); on a goroutine scheduler this is advisory only.
func (q *Queue) PostFromISR(e event.Event) (woke bool, err error) {
	q.mu.Lock()
	hadWaiter := q.n == 0
	q.mu.Unlock()

	if err := q.Post(e); err != nil {
		return false, err
	}
	return hadWaiter, nil
}

// GetWithTimeout blocks up to timeoutMs for an event, returning (nil,
// false) on timeout. timeoutMs == 0 polls without waiting; timeoutMs ==
// NeverMs blocks indefinitely (spec.md §4.1).
func (q *Queue) GetWithTimeout(timeoutMs int64) (event.Event, bool) {
	if timeoutMs == 0 {
		return q.tryGet()
	}
	if timeoutMs == NeverMs {
		return q.get(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()
	return q.get(ctx)
}

// Get blocks until an event is available or ctx is done, returning (nil,
// false) in the latter case. The idiomatic-Go primitive underlying
// GetWithTimeout, per SPEC_FULL.md §5.
func (q *Queue) Get(ctx context.Context) (event.Event, bool) {
	return q.get(ctx)
}

func (q *Queue) tryGet() (event.Event, bool) {
	q.mu.Lock()
	e, ok, countOK, remaining := q.popLocked()
	q.mu.Unlock()
	if countOK {
		q.counter.Dec()
	}
	if ok && remaining > 0 {
		// Re-arm the wakeup token: wakeupCh is buffered by one, so a burst
		// of posts can collapse to a single pending token. Without this, a
		// second blocked consumer in get() would never learn about the
		// event this pop left behind.
		q.wake()
	}
	return e, ok
}

func (q *Queue) get(ctx context.Context) (event.Event, bool) {
	for {
		q.mu.Lock()
		e, ok, countOK, remaining := q.popLocked()
		q.mu.Unlock()
		if ok {
			if countOK {
				q.counter.Dec()
			}
			if remaining > 0 {
				q.wake()
			}
			return e, true
		}

		select {
		case <-q.wakeupCh:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// popLocked pops the head event if present, also reporting how many events
// remain queued afterward so the caller can re-signal other blocked
// consumers. Must be called with q.mu held. The counter callback is
// deliberately left to the caller, invoked only after q.mu is released, so
// a Counter implementation (simclock) is never called back while the
// queue's own lock is held.
func (q *Queue) popLocked() (e event.Event, ok bool, countOK bool, remaining int) {
	if q.n == 0 {
		return nil, false, false, 0
	}
	e = q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	countOK = q.counter != nil && !q.countingDisabled
	return e, true, countOK, q.n
}

// GetCount returns an instantaneous snapshot of the queued-event count,
// which may be stale immediately (spec.md §4.1).
func (q *Queue) GetCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Destroy releases the queue's backing storage. After Destroy, the Queue
// must not be used.
func (q *Queue) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = nil
	q.n = 0
	q.head = 0
}
