package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type plainEvent struct {
	Header
}

func TestDispatchCallsOwnHandler(t *testing.T) {
	called := false
	h := NewHeader(KindApplicationBase, func(e Event, closure any) int32 {
		called = true
		assert.Equal(t, "payload", closure)
		return ResultOK
	}, "payload")

	result := Dispatch(plainEvent{Header: h}, nil, nil)
	assert.True(t, called)
	assert.Equal(t, ResultOK, result)
}

func TestDispatchFallsBackToDefaultHandler(t *testing.T) {
	h := NewHeader(KindApplicationBase, nil, nil)
	result := Dispatch(plainEvent{Header: h}, func(e Event, closure any) int32 {
		assert.Equal(t, "default-closure", closure)
		return ResultIgnored
	}, "default-closure")
	assert.Equal(t, ResultIgnored, result)
}

func TestDispatchReturnsIgnoredWithNoHandlerAtAll(t *testing.T) {
	h := NewHeader(KindApplicationBase, nil, nil)
	assert.Equal(t, ResultIgnored, Dispatch(plainEvent{Header: h}, nil, nil))
}

type invalidTimerEvent struct {
	Header
	valid bool
}

func (e invalidTimerEvent) Valid() bool { return e.valid }

func TestDispatchSkipsInvalidTimerEvents(t *testing.T) {
	called := false
	h := NewHeader(KindTimer, func(Event, any) int32 {
		called = true
		return ResultOK
	}, nil)

	result := Dispatch(invalidTimerEvent{Header: h, valid: false}, nil, nil)
	assert.False(t, called)
	assert.Equal(t, ResultOK, result)
}

func TestDispatchDeliversValidTimerEvents(t *testing.T) {
	called := false
	h := NewHeader(KindTimer, func(Event, any) int32 {
		called = true
		return ResultOK
	}, nil)

	result := Dispatch(invalidTimerEvent{Header: h, valid: true}, nil, nil)
	assert.True(t, called)
	assert.Equal(t, ResultOK, result)
}

func TestHeaderAccessors(t *testing.T) {
	h := NewHeader(KindExit, nil, 42)
	assert.Equal(t, KindExit, h.Kind())
	assert.Nil(t, h.Handler())
	assert.Equal(t, 42, h.Closure())
}
