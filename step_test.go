package vmdbg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbrew-vm/vmdbg/internal/fakevm"
	"github.com/coldbrew-vm/vmdbg/wire"
)

func pauseAtBreakpoint(t *testing.T, ctrl *Controller, fv *fakevm.FakeVM, processId, breakpointId, functionId, bcp int) {
	t.Helper()
	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.StartRunning() }()
	fv.Expect(wire.CodeProcessRun)
	fv.Reply(wire.CodeProcessBreakpoint, fakevm.Uint32x4Payload(processId, breakpointId, functionId, bcp))
	require.NoError(t, <-runDone)
	require.Equal(t, VmStatePaused, ctrl.VmState())
}

func TestStepWithNoSourceMapFallsBackToPlainBytecodeStep(t *testing.T) {
	system := newStubSystem(FunctionRef{Id: 5, Name: "leaf", Kind: FunctionKindNormal})
	ctrl, fv, _ := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, system)
	pauseAtBreakpoint(t, ctrl, fv, 1, 0, 5, 0)

	done := make(chan error, 1)
	go func() { done <- ctrl.Step() }()

	fv.Expect(wire.CodeProcessStep)
	fv.ReplyEmpty(wire.CodeProcessTerminated)

	require.NoError(t, <-done)
	assert.Equal(t, VmStateTerminating, ctrl.VmState())
}

func TestStepOverInstallsOneShotThenPausesOnItsHit(t *testing.T) {
	system := newStubSystem(FunctionRef{Id: 5, Name: "leaf", Kind: FunctionKindNormal})
	ctrl, fv, _ := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, system)
	pauseAtBreakpoint(t, ctrl, fv, 1, 0, 5, 0)

	done := make(chan error, 1)
	go func() { done <- ctrl.StepOver() }()

	fv.Expect(wire.CodeProcessStepOver)
	fv.Reply(wire.CodeProcessSetBreakpoint, fakevm.Uint32Payload(99))
	fv.Reply(wire.CodeProcessBreakpoint, fakevm.Uint32x4Payload(1, 99, 5, 10))

	require.NoError(t, <-done)
	assert.Equal(t, VmStatePaused, ctrl.VmState())
}

func TestStepOverDeletesStaleOneShotWhenStopIsUnrelated(t *testing.T) {
	system := newStubSystem(FunctionRef{Id: 5, Name: "leaf", Kind: FunctionKindNormal})
	ctrl, fv, _ := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, system)
	pauseAtBreakpoint(t, ctrl, fv, 1, 0, 5, 0)

	done := make(chan error, 1)
	go func() { done <- ctrl.StepOver() }()

	fv.Expect(wire.CodeProcessStepOver)
	fv.Reply(wire.CodeProcessSetBreakpoint, fakevm.Uint32Payload(7))
	fv.Reply(wire.CodeProcessBreakpoint, fakevm.Uint32x4Payload(1, 3, 5, 10))
	fv.Expect(wire.CodeProcessDeleteOneShotBreakpoint)

	require.NoError(t, <-done)
	assert.Equal(t, VmStatePaused, ctrl.VmState())
}
