// Package pool implements the fixed-size pooled-event allocator (C8): a
// freelist of event.Pooled structures carved from one backing slice that
// New allocates for the requested element count, so producers never call
// into the Go allocator on a hot path. The pool does not take
// caller-supplied memory.
//
// Grounded on the teacher's (joeycumines/go-eventloop) chunk/chunkPool
// free-list bookkeeping (internal chunked-ring-buffer helpers): a slice of
// preallocated elements, a freelist kept as a stack of pointers into it,
// reset-on-reuse before handing an element back out. Unlike the teacher's
// pool, this one is not a sync.Pool: it is a bounded backing array, not a
// GC-able cache.
package pool

import (
	"sync"

	"github.com/nestlabs/nler/event"
	"github.com/nestlabs/nler/internal/errcode"
	"github.com/nestlabs/nler/internal/log"
)

// Pool is a fixed-capacity freelist of *event.Pooled values. The zero value
// is not usable; create one with New.
type Pool struct {
	mu     sync.Mutex
	logger *log.Logger

	storage []event.Pooled
	free    []*event.Pooled // LIFO freelist
}

// Option configures a Pool.
type Option interface{ apply(*poolOptions) }

type poolOptions struct {
	logger *log.Logger
}

type optionFunc func(*poolOptions)

func (f optionFunc) apply(o *poolOptions) { f(o) }

// WithLogger attaches a structured logger used to report a full pool on
// recycle, per spec.md §4.2 ("a full pool on recycle must be logged").
func WithLogger(l *log.Logger) Option {
	return optionFunc(func(o *poolOptions) { o.logger = l })
}

func resolve(opts []Option) poolOptions {
	var o poolOptions
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&o)
		}
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	return o
}

// New carves size fixed-size event.Pooled structures, matching spec.md
// §4.2's "create(memory, size, out_pool)": size is the element count, not a
// byte count, since Go has no reason to hand-carve raw bytes into structs.
// An error is returned distinctly rather than the original's unclear
// cast-from-int-pointer error path (SPEC_FULL.md, Open Questions).
func New(size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, errcode.Wrap(errcode.BadInput, "pool: size must be positive")
	}
	o := resolve(opts)

	p := &Pool{
		logger:  o.logger,
		storage: make([]event.Pooled, size),
		free:    make([]*event.Pooled, 0, size),
	}
	for i := range p.storage {
		p.free = append(p.free, &p.storage[i])
	}
	return p, nil
}

// GetEvent returns a pointer owned by the caller, or nil when the pool is
// drained. Safe for concurrent callers (spec.md §4.2).
func (p *Pool) GetEvent() *event.Pooled {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil
	}
	ev := p.free[n-1]
	p.free = p.free[:n-1]
	return ev
}

// RecycleEvent returns ev to the freelist. Double-recycling an event is a
// caller bug the pool does not fully guard against (spec.md §4.2: "Double-
// recycle is a bug the caller must prevent"); RecycleEvent does reset the
// event's fields so a stale reference can't resurrect old header state.
// Recycling into an already-full pool is logged, per spec.md §4.2.
func (p *Pool) RecycleEvent(ev *event.Pooled) {
	if ev == nil {
		return
	}
	ev.Reset()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) >= cap(p.free) {
		p.logger.Warning().Log("pool: recycle into full pool")
		return
	}
	p.free = append(p.free, ev)
}

// Capacity returns the pool's fixed element count.
func (p *Pool) Capacity() int { return len(p.storage) }

// Available returns an instantaneous snapshot of the free count.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Destroy releases the pool's backing storage. After Destroy, the Pool must
// not be used.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storage = nil
	p.free = nil
}
