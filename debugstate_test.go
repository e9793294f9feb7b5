package vmdbg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackTraceVisibleIndexMapsToAbsoluteIndex(t *testing.T) {
	bt := NewBackTrace([]BackTraceFrame{
		{FunctionId: 1, IsVisible: false},
		{FunctionId: 2, IsVisible: true},
		{FunctionId: 3, IsVisible: false},
		{FunctionId: 4, IsVisible: true},
	})
	assert.Equal(t, 2, bt.VisibleFrameCount())
	assert.Equal(t, 1, bt.ActualFrameNumber(0))
	assert.Equal(t, 3, bt.ActualFrameNumber(1))
	assert.Equal(t, -1, bt.ActualFrameNumber(2))
	assert.Equal(t, -1, bt.ActualFrameNumber(-1))
}

func TestBackTraceTopFrameIsFirstFrameRegardlessOfVisibility(t *testing.T) {
	bt := NewBackTrace([]BackTraceFrame{{FunctionId: 9, IsVisible: false}})
	top := bt.TopFrame()
	assert.NotNil(t, top)
	assert.Equal(t, 9, top.FunctionId)
	assert.Nil(t, (&BackTrace{}).TopFrame())
}

func TestDebugStateSelectFrameRequiresCachedBackTrace(t *testing.T) {
	ds := NewDebugState()
	assert.False(t, ds.SelectFrame(0))

	ds.CurrentBackTrace = NewBackTrace([]BackTraceFrame{{IsVisible: true}})
	assert.True(t, ds.SelectFrame(0))
	assert.Equal(t, 0, ds.CurrentFrameNumber)
	assert.False(t, ds.SelectFrame(5))
}

func TestDebugStateResetClearsPauseScopedCachesButKeepsBreakpoints(t *testing.T) {
	ds := NewDebugState()
	bp := &Breakpoint{Id: 1}
	ds.AddBreakpoint(bp)
	ds.CurrentBackTrace = NewBackTrace(nil)
	thrown := RemoteObjectValue(RemoteValue{Payload: []byte("x")})
	ds.CurrentUncaughtException = &thrown
	ds.CurrentFrameNumber = 3

	ds.Reset()

	assert.Nil(t, ds.CurrentBackTrace)
	assert.Nil(t, ds.CurrentUncaughtException)
	assert.Equal(t, 0, ds.CurrentFrameNumber)
	assert.Contains(t, ds.Breakpoints, 1)
}

func TestDebugStateAddAndRemoveBreakpoint(t *testing.T) {
	ds := NewDebugState()
	bp := &Breakpoint{Id: 5}
	ds.AddBreakpoint(bp)

	removed, ok := ds.RemoveBreakpoint(5)
	assert.True(t, ok)
	assert.Same(t, bp, removed)
	assert.NotContains(t, ds.Breakpoints, 5)

	_, ok = ds.RemoveBreakpoint(5)
	assert.False(t, ok)
}
