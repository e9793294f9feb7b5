package vmdbg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbrew-vm/vmdbg/internal/fakevm"
	"github.com/coldbrew-vm/vmdbg/wire"
)

func TestControllerSetBreakpointByNameInstallsOneBreakpointPerMatch(t *testing.T) {
	system := newStubSystem(
		FunctionRef{Id: 1, Name: "target", Kind: FunctionKindNormal},
		FunctionRef{Id: 2, Name: "other", Kind: FunctionKindNormal},
	)
	ctrl, fv, listener := newTestController(t)
	ctrl.system = system
	_ = listener

	done := make(chan []*Breakpoint, 1)
	go func() {
		bps, err := ctrl.SetBreakpoint("target")
		require.NoError(t, err)
		done <- bps
	}()

	fv.Expect(wire.CodePushFromMap)
	fv.Expect(wire.CodeProcessSetBreakpoint)
	fv.Reply(wire.CodeProcessSetBreakpoint, fakevm.Uint32Payload(42))

	bps := <-done
	require.Len(t, bps, 1)
	assert.Equal(t, 42, bps[0].Id)
	assert.Equal(t, 1, bps[0].Function.Id)
	assert.Contains(t, ctrl.debug.Breakpoints, 42)
}

func TestControllerDeleteBreakpointRemovesFromTableAndNotifiesListeners(t *testing.T) {
	ctrl, fv, listener := newTestController(t)
	ctrl.debug.AddBreakpoint(&Breakpoint{Id: 9})

	done := make(chan error, 1)
	go func() { done <- ctrl.DeleteBreakpoint(9) }()

	fv.Expect(wire.CodeProcessDeleteBreakpoint)
	fv.Reply(wire.CodeProcessDeleteBreakpoint, fakevm.Uint32Payload(9))

	require.NoError(t, <-done)
	assert.NotContains(t, ctrl.debug.Breakpoints, 9)
	assert.Contains(t, listener.snapshot(), "breakpointRemoved")
}

func TestControllerDeleteBreakpointUnknownIdIsANoOp(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	require.NoError(t, ctrl.DeleteBreakpoint(404))
}

func TestControllerInterruptSendsWithoutWaitingForReply(t *testing.T) {
	ctrl, fv, _ := newTestController(t)
	done := make(chan error, 1)
	go func() { done <- ctrl.Interrupt() }()

	fv.Expect(wire.CodeProcessDebugInterrupt)
	require.NoError(t, <-done)
}

func TestControllerRejectsOperationsAfterTermination(t *testing.T) {
	ctrl, fv, _ := newTestController(t)
	fv.Close()

	require.NoError(t, ctrl.Shutdown(true))
	assert.True(t, ctrl.VmState().IsTerminated())

	err := ctrl.StartRunning()
	require.Error(t, err)
	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, ErrSessionTerminated, sessionErr.Kind)
}

func TestControllerShutdownIsIdempotentWhenIgnoringExtraCommands(t *testing.T) {
	ctrl, fv, _ := newTestController(t)
	fv.Close()

	require.NoError(t, ctrl.Shutdown(true))
	require.NoError(t, ctrl.Shutdown(true))
}

func TestWithShowInternalFramesSetsInitialDisplayFlag(t *testing.T) {
	c, _ := fakevm.Pair(t)
	ctrl := NewController(c, WithShowInternalFrames(true))
	assert.True(t, ctrl.debug.ShowInternalFrames)
}
