package resendable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestlabs/nler/queue"
	"github.com/nestlabs/nler/task"
	"github.com/nestlabs/nler/timer"
)

func newScheduler(t *testing.T) (*timer.Scheduler, *queue.Queue) {
	t.Helper()
	s, err := timer.NewScheduler(timer.WithMaxTimers(4))
	require.NoError(t, err)
	s.TimerStart(task.Priority(0))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	q, err := queue.New(8)
	require.NoError(t, err)
	return s, q
}

// S6: a single Start of a resendable timer delivers an event whose Receive
// reports ok.
func TestResendableSingleArmDeliversExactlyOnce(t *testing.T) {
	s, q := newScheduler(t)
	rt := New(s, nil, nil, q)

	require.NoError(t, rt.Start(10))

	e, ok := q.GetWithTimeout(1000)
	require.True(t, ok)
	assert.True(t, rt.Receive(e))
}

func TestResendableRestartInvalidatesEarlierArming(t *testing.T) {
	s, q := newScheduler(t)
	rt := New(s, nil, nil, q)

	require.NoError(t, rt.Start(200)) // long enough that a restart beats it
	require.NoError(t, rt.Start(10))  // displaces the first arming

	var oks, ignores int
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		e, ok := q.GetWithTimeout(50)
		if !ok {
			continue
		}
		if rt.Receive(e) {
			oks++
		} else {
			ignores++
		}
		if oks >= 1 {
			break
		}
	}
	assert.Equal(t, 1, oks)
	assert.Equal(t, 1, ignores)
}

func TestResendableCancelSurfacesAsReceivedEvent(t *testing.T) {
	s, q := newScheduler(t)
	rt := New(s, nil, nil, q)

	require.NoError(t, rt.Start(500))
	rt.Cancel()

	e, ok := q.GetWithTimeout(1000)
	require.True(t, ok, "cancel must surface as a received event")
	assert.False(t, rt.Receive(e))
}

func TestResendableIsValidObserverOnly(t *testing.T) {
	s, q := newScheduler(t)
	rt := New(s, nil, nil, q)

	assert.False(t, rt.IsValid())
	require.NoError(t, rt.Start(500))
	assert.True(t, rt.IsValid())
}
