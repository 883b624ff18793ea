// Package lock provides blocking mutual exclusion: a binary Lock and a
// Recursive variant that the same goroutine may re-enter.
//
// Grounded on the teacher's (joeycumines/go-eventloop) own use of
// sync.Mutex for its externalMu/internalQueueMu queue guards — plain
// sync.Mutex is the pack's universal choice for this concern, so the core
// wraps it rather than reimplementing a futex. The recursive variant's
// owner tracking reuses the teacher's goroutine-ID trick from
// isLoopThread()/getGoroutineID() (loop.go), which parses the running
// goroutine's ID out of a runtime.Stack trace to detect same-thread
// re-entry without a third-party dependency.
package lock

import (
	"runtime"
	"sync"
)

// cond lazily initializes the wait condition on first use so
// the zero value of Recursive remains usable without a constructor.
func (r *Recursive) cond() *sync.Cond {
	if r.c == nil {
		r.c = sync.NewCond(&r.mu)
	}
	return r.c
}

// Lock is a binary mutex. The zero value is ready to use.
type Lock struct {
	mu sync.Mutex
}

// Enter blocks until the lock is held.
func (l *Lock) Enter() { l.mu.Lock() }

// Exit releases the lock. Exit on an unheld Lock panics, matching
// sync.Mutex's own contract.
func (l *Lock) Exit() { l.mu.Unlock() }

// TryEnter attempts to acquire the lock without blocking.
func (l *Lock) TryEnter() bool { return l.mu.TryLock() }

// Recursive is a mutex that may be re-entered by the goroutine that
// currently holds it, decrementing a depth counter on each matching Exit.
type Recursive struct {
	mu    sync.Mutex
	c     *sync.Cond
	owner uint64
	depth int
}

// Enter acquires the lock, or increments the re-entry depth if the calling
// goroutine already holds it.
func (r *Recursive) Enter() {
	id := goroutineID()

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.depth > 0 && r.owner != id {
		r.cond().Wait()
	}
	r.owner = id
	r.depth++
}

// Exit decrements the re-entry depth, releasing the lock once it reaches
// zero. Exit from a goroutine that doesn't hold the lock panics.
func (r *Recursive) Exit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.depth == 0 || r.owner != goroutineID() {
		panic("lock: Recursive.Exit called by non-owner")
	}
	r.depth--
	if r.depth == 0 {
		r.owner = 0
		r.cond().Signal()
	}
}

// goroutineID extracts the current goroutine's numeric ID from a runtime
// stack trace, exactly as the teacher's loop.go getGoroutineID does for its
// isLoopThread() thread-affinity check.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
