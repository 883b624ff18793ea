// Package semaphore provides binary and counting semaphores with timed
// acquire, the blocking-primitive sibling of package lock.
//
// Grounded on the teacher's (joeycumines/go-eventloop) channel-based
// timeout idiom in Loop.pollFastMode (loop.go): a buffered channel as the
// signal, select against a time.Timer for the bounded wait, and a direct
// non-blocking select for the zero-timeout poll case.
package semaphore

import (
	"context"
	"errors"
	"time"
)

// ErrNoResource is returned by TakeWithTimeout when the semaphore could not
// be acquired before the deadline, and by Give when the semaphore is already
// at its maximum, mirroring the core's NO_RESOURCE status.
var ErrNoResource = errors.New("semaphore: no resource")

// Semaphore is a counting semaphore bounded by a maximum count. A binary
// semaphore is a Semaphore created with max 1.
type Semaphore struct {
	slots chan struct{}
}

// NewCounting creates a counting semaphore with the given maximum and
// initial count.
func NewCounting(max, initial int) *Semaphore {
	if max <= 0 {
		max = 1
	}
	if initial < 0 {
		initial = 0
	}
	if initial > max {
		initial = max
	}
	s := &Semaphore{slots: make(chan struct{}, max)}
	for i := 0; i < initial; i++ {
		s.slots <- struct{}{}
	}
	return s
}

// NewBinary creates a binary semaphore, initially given (available).
func NewBinary(given bool) *Semaphore {
	initial := 0
	if given {
		initial = 1
	}
	return NewCounting(1, initial)
}

// Give releases one count. Give on an already-full counting semaphore
// returns ErrNoResource instead of blocking, matching the spec's "give on a
// counting semaphore at max" state error (spec.md §7).
func (s *Semaphore) Give() error {
	select {
	case s.slots <- struct{}{}:
		return nil
	default:
		return ErrNoResource
	}
}

// Take blocks until a count is available.
func (s *Semaphore) Take() {
	<-s.slots
}

// TryTake polls without blocking.
func (s *Semaphore) TryTake() bool {
	select {
	case <-s.slots:
		return true
	default:
		return false
	}
}

// TakeWithTimeout blocks up to timeout for a count to become available.
// timeout <= 0 polls like TryTake.
func (s *Semaphore) TakeWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		if s.TryTake() {
			return nil
		}
		return ErrNoResource
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.slots:
		return nil
	case <-t.C:
		return ErrNoResource
	}
}

// TakeContext blocks until a count is available or ctx is done.
func (s *Semaphore) TakeContext(ctx context.Context) error {
	select {
	case <-s.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns an instantaneous snapshot of the available count; like the
// queue's GetCount, it may be stale immediately.
func (s *Semaphore) Count() int {
	return len(s.slots)
}
