package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunsEntry(t *testing.T) {
	ran := make(chan struct{})
	tk := New("worker", 0, func(self *Task) {
		assert.Equal(t, "worker", self.Name())
		close(ran)
	})
	tk.Start()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task entry never ran")
	}

	select {
	case <-tk.Done():
	case <-time.After(time.Second):
		t.Fatal("task never completed")
	}
	assert.NoError(t, tk.Err())
}

func TestTaskStartIsIdempotent(t *testing.T) {
	var runs int
	done := make(chan struct{})
	tk := New("once", 0, func(self *Task) {
		runs++
		close(done)
	})
	tk.Start()
	tk.Start()
	tk.Start()
	<-done
	<-tk.Done()
	assert.Equal(t, 1, runs)
}

func TestTaskRecoversPanic(t *testing.T) {
	tk := New("panicker", 0, func(self *Task) {
		panic("boom")
	})
	tk.Start()
	<-tk.Done()
	require.Error(t, tk.Err())
	assert.Contains(t, tk.Err().Error(), "boom")
}

func TestTaskRunningReflectsLifecycle(t *testing.T) {
	proceed := make(chan struct{})
	tk := New("slow", 0, func(self *Task) {
		<-proceed
	})
	assert.False(t, tk.Running())
	tk.Start()
	assert.Eventually(t, tk.Running, time.Second, time.Millisecond)
	close(proceed)
	<-tk.Done()
	assert.False(t, tk.Running())
}

func TestTaskPriority(t *testing.T) {
	tk := New("p", Priority(7), func(*Task) {})
	assert.Equal(t, Priority(7), tk.Priority())
}
