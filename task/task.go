// Package task models a named, priority-ranked unit of execution created on
// top of the host scheduler. The NLER core never implements its own
// preemption policy (spec.md §5) — a Task is a goroutine plus the metadata
// (name, declared priority) the rest of the core reads for diagnostics and
// for the timer task's own startup.
//
// Grounded on the teacher's (joeycumines/go-eventloop) Loop goroutine
// lifecycle in loop.go (Run/Shutdown/run, panic-recovering safeExecute) and
// ygrebnov-workers' lifecycleCoordinator (lifecycle.go), which drives a
// deterministic, exactly-once shutdown via sync.Once.
package task

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Priority ranks a Task for the host scheduler. Higher values run first
// when the host's scheduler honors priority (it usually doesn't, for
// goroutines — the field exists for API fidelity and for components, such
// as the timer scheduler, that need to assert their own priority).
type Priority int

// Func is a task's entry point. It receives the Task it runs in.
type Func func(t *Task)

// Task is a named unit of execution. The zero value is not usable; create
// one with New.
type Task struct {
	name     string
	priority Priority
	entry    Func

	startOnce sync.Once
	done      chan struct{}
	running   atomic.Bool
	panicVal  atomic.Value // recovered panic, if any
}

// New creates a Task. It is not started until Start is called.
func New(name string, priority Priority, entry Func) *Task {
	return &Task{
		name:     name,
		priority: priority,
		entry:    entry,
		done:     make(chan struct{}),
	}
}

// Name returns the task's declared name.
func (t *Task) Name() string { return t.name }

// Priority returns the task's declared priority.
func (t *Task) Priority() Priority { return t.priority }

// Start launches the task's goroutine exactly once. Calling Start more than
// once is a no-op after the first call.
func (t *Task) Start() {
	t.startOnce.Do(func() {
		t.running.Store(true)
		go t.run()
	})
}

func (t *Task) run() {
	defer close(t.done)
	defer t.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			t.panicVal.Store(fmt.Errorf("task %q panicked: %v", t.name, r))
		}
	}()
	t.entry(t)
}

// Running reports whether the task's entry function is currently executing.
func (t *Task) Running() bool { return t.running.Load() }

// Done returns a channel closed when the task's entry function returns.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the recovered panic, if the task's entry function panicked.
func (t *Task) Err() error {
	if v := t.panicVal.Load(); v != nil {
		return v.(error)
	}
	return nil
}
