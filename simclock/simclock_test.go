package simclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestlabs/nler/clock"
	"github.com/nestlabs/nler/event"
	"github.com/nestlabs/nler/queue"
	"github.com/nestlabs/nler/task"
	"github.com/nestlabs/nler/timer"
)

type stubEvent struct {
	event.Header
}

func newStubEvent() stubEvent {
	return stubEvent{Header: event.NewHeader(event.KindApplicationBase, nil, nil)}
}

func TestPauseFreezesNow(t *testing.T) {
	c := New(false, clock.DefaultRate)
	time.Sleep(5 * time.Millisecond)
	c.Pause()
	a := c.Now()
	time.Sleep(5 * time.Millisecond)
	b := c.Now()
	assert.Equal(t, a, b)
}

func TestAdvanceMsRejectedWhenNotPaused(t *testing.T) {
	c := New(false, clock.DefaultRate)
	assert.Error(t, c.AdvanceMs(10))
}

func TestCounterTracksPostAndGet(t *testing.T) {
	c := New(true, clock.DefaultRate)
	q, err := queue.New(2, queue.WithCounter(c))
	require.NoError(t, err)

	require.NoError(t, q.Post(newStubEvent()))
	c.cmu.Lock()
	outstanding := c.outstanding
	c.cmu.Unlock()
	assert.Equal(t, int64(1), outstanding)

	_, ok := q.GetWithTimeout(0)
	require.True(t, ok)
	c.cmu.Lock()
	outstanding = c.outstanding
	c.cmu.Unlock()
	assert.Equal(t, int64(0), outstanding)
}

func TestDisableCountingExcludesQueue(t *testing.T) {
	c := New(true, clock.DefaultRate)
	q, err := queue.New(2, queue.WithCounter(c))
	require.NoError(t, err)
	c.DisableCounting(q)

	require.NoError(t, q.Post(newStubEvent()))
	c.cmu.Lock()
	outstanding := c.outstanding
	c.cmu.Unlock()
	assert.Equal(t, int64(0), outstanding)
}

// TestAdvanceMsFiresDueTimers exercises the full loop: a timer scheduler
// bound to a paused simulated clock only fires once the clock is advanced
// past its deadline, deterministically and without sleeping on wall time.
func TestAdvanceMsFiresDueTimers(t *testing.T) {
	c := New(true, clock.DefaultRate)
	sched, err := timer.NewScheduler(
		timer.WithMaxTimers(2),
		timer.WithClockSource(c.Now, c.Rate()),
	)
	require.NoError(t, err)
	c.Watch(sched)
	sched.TimerStart(task.Priority(0))

	q, err := queue.New(4, queue.WithCounter(c))
	require.NoError(t, err)
	tm := sched.EventTimerInit(nil, nil, q)
	require.NoError(t, sched.EventTimerStart(tm, 100, false))

	_, ok := q.GetWithTimeout(0)
	assert.False(t, ok, "timer must not fire before the clock advances")

	require.NoError(t, c.AdvanceMs(150))

	e, ok := q.GetWithTimeout(0)
	require.True(t, ok, "timer must have fired once the clock passed its deadline")
	assert.True(t, timer.IsValid(e))
}
