// Package atomic provides width-typed read-modify-write primitives over
// 8/16/32-bit signed integers and pointer-sized integers, the way the NLER
// core's arch layer wraps the host's atomic builtins (or a global mutex
// fallback, on hosts without them) behind one small surface.
//
// Go always lowers sync/atomic operations to the architecture's intrinsics,
// so the HAVE_ATOMIC_BUILTINS/global-mutex split the original C arch layer
// needs has no Go equivalent to toggle (documented in DESIGN.md); what
// remains worth keeping is the width-typed, generic surface itself, which
// is grounded on the teacher's FastState (joeycumines/go-eventloop
// state.go): a small struct wrapping one sync/atomic field with Load/Store/
// CompareAndSwap methods and no transition validation of its own.
package atomic

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// Width is the set of integer widths the NLER core performs atomic
// read-modify-write on: any signed integer kind (int8, int16, int32, int64,
// and the pointer-sized int).
type Width interface {
	constraints.Signed
}

// Value is a width-typed atomic cell. The zero Value holds a zero T.
type Value[T Width] struct {
	v atomic.Int64
}

// Load reads the current value.
func (a *Value[T]) Load() T {
	return T(a.v.Load())
}

// Store writes a new value unconditionally.
func (a *Value[T]) Store(val T) {
	a.v.Store(int64(val))
}

// Add adds delta and returns the new value.
func (a *Value[T]) Add(delta T) T {
	return T(a.v.Add(int64(delta)))
}

// Increment is Add(1), named for the common "increment and read" use in the
// timer's queued_count/ignore_count bookkeeping (spec §4.3).
func (a *Value[T]) Increment() T {
	return a.Add(1)
}

// Decrement is Add(-1).
func (a *Value[T]) Decrement() T {
	return a.Add(-1)
}

// CompareAndSwap performs the compare-and-swap and reports success.
func (a *Value[T]) CompareAndSwap(old, new T) bool {
	return a.v.CompareAndSwap(int64(old), int64(new))
}

// Swap stores new and returns the previous value.
func (a *Value[T]) Swap(new T) T {
	return T(a.v.Swap(int64(new)))
}

// Bool is an atomic boolean flag, used for single-bit state such as the
// timer scheduler's "started" and "draining".
type Bool struct {
	v atomic.Bool
}

func (a *Bool) Load() bool       { return a.v.Load() }
func (a *Bool) Store(val bool)   { a.v.Store(val) }
func (a *Bool) Swap(val bool) bool {
	return a.v.Swap(val)
}
func (a *Bool) CompareAndSwap(old, new bool) bool {
	return a.v.CompareAndSwap(old, new)
}
