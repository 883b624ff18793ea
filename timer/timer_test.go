package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestlabs/nler/clock"
	"github.com/nestlabs/nler/event"
	"github.com/nestlabs/nler/queue"
	"github.com/nestlabs/nler/task"
)

func newStartedScheduler(t *testing.T, maxTimers int) (*Scheduler, *queue.Queue) {
	t.Helper()
	s, err := NewScheduler(WithMaxTimers(maxTimers))
	require.NoError(t, err)
	s.TimerStart(task.Priority(0))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	q, err := queue.New(maxTimers + 1)
	require.NoError(t, err)
	return s, q
}

func waitForEvent(t *testing.T, q *queue.Queue, timeout time.Duration) event.Event {
	t.Helper()
	e, ok := q.GetWithTimeout(timeout.Milliseconds())
	require.True(t, ok, "expected an event within %s", timeout)
	return e
}

// S1: single-shot timer fires exactly once and is valid.
func TestSingleShotFiresOnceAndIsValid(t *testing.T) {
	s, q := newStartedScheduler(t, 4)
	tm := s.EventTimerInit(nil, nil, q)

	require.NoError(t, s.EventTimerStart(tm, 20, false))

	e := waitForEvent(t, q, time.Second)
	assert.True(t, IsValid(e))

	_, ok := q.GetWithTimeout(50)
	assert.False(t, ok, "single-shot timer must not fire twice")
}

// S2: four parallel timers all fire and are all valid.
func TestFourParallelTimersAllFire(t *testing.T) {
	s, q := newStartedScheduler(t, 4)
	timers := make([]*Timer, 4)
	for i := range timers {
		timers[i] = s.EventTimerInit(nil, nil, q)
		require.NoError(t, s.EventTimerStart(timers[i], int64(10*(i+1)), false))
	}

	seen := 0
	for seen < 4 {
		e := waitForEvent(t, q, time.Second)
		assert.True(t, IsValid(e))
		seen++
	}
}

// S3: restarting an armed timer is atomic — the stale delivery from the
// first arming must read as invalid, and exactly one live delivery occurs.
func TestRestartInvalidatesPriorArming(t *testing.T) {
	s, q := newStartedScheduler(t, 4)
	tm := s.EventTimerInit(nil, nil, q)

	require.NoError(t, s.EventTimerStart(tm, 5, false))
	time.Sleep(15 * time.Millisecond) // let the first arming fire and queue
	require.NoError(t, s.EventTimerStart(tm, 20, false))

	var valids, invalids int
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		e, ok := q.GetWithTimeout(50)
		if !ok {
			continue
		}
		if IsValid(e) {
			valids++
		} else {
			invalids++
		}
		if valids >= 1 {
			break
		}
	}
	assert.Equal(t, 1, valids)
	assert.Equal(t, 1, invalids)
}

// S4: cancelling a timer before it fires means any already-posted copy
// reads as invalid, and no further live delivery occurs.
func TestCancelWhileRunning(t *testing.T) {
	s, q := newStartedScheduler(t, 4)
	tm := s.EventTimerInit(nil, nil, q)

	require.NoError(t, s.EventTimerStart(tm, 30, false))
	time.Sleep(5 * time.Millisecond)
	s.EventTimerCancel(tm)

	_, ok := q.GetWithTimeout(200)
	assert.False(t, ok, "cancelled timer must not deliver a valid event")
}

// S5: a repeating timer fires more than once, each delivery valid.
func TestRepeatingTimerFiresMultipleTimes(t *testing.T) {
	s, q := newStartedScheduler(t, 4)
	tm := s.EventTimerInit(nil, nil, q)
	require.NoError(t, s.EventTimerStart(tm, 10, true))

	for i := 0; i < 3; i++ {
		e := waitForEvent(t, q, time.Second)
		assert.True(t, IsValid(e))
	}
	s.EventTimerCancel(tm)
}

func TestStartBeforeSchedulerLaunchedFailsWithInit(t *testing.T) {
	s, err := NewScheduler(WithMaxTimers(2))
	require.NoError(t, err)
	q, err := queue.New(4)
	require.NoError(t, err)
	tm := s.EventTimerInit(nil, nil, q)
	err = s.EventTimerStart(tm, 10, false)
	assert.Error(t, err)
}

func TestTimerArrayOverflowAsserts(t *testing.T) {
	var asserted bool
	s, err := NewScheduler(WithMaxTimers(1), WithAssertFunc(func(string) { asserted = true }))
	require.NoError(t, err)
	s.TimerStart(task.Priority(0))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	q, err := queue.New(4)
	require.NoError(t, err)

	a := s.EventTimerInit(nil, nil, q)
	b := s.EventTimerInit(nil, nil, q)
	require.NoError(t, s.EventTimerStart(a, 500, false))
	require.NoError(t, s.EventTimerStart(b, 500, false))

	assert.Eventually(t, func() bool { return asserted }, time.Second, time.Millisecond)
}

func TestWakeTimeTracksWakeFlaggedTimers(t *testing.T) {
	s, err := NewScheduler(WithMaxTimers(2), WithWakeTracking())
	require.NoError(t, err)
	s.TimerStart(task.Priority(0))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	q, err := queue.New(4)
	require.NoError(t, err)
	tm := s.EventTimerInit(nil, nil, q)
	tm.SetWake(true)
	require.NoError(t, s.EventTimerStart(tm, 500, false))

	assert.Eventually(t, func() bool {
		deadline, tracking := s.WakeTime()
		return tracking && deadline < clock.Never
	}, time.Second, time.Millisecond)
}
