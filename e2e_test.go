package vmdbg

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbrew-vm/vmdbg/internal/fakevm"
	"github.com/coldbrew-vm/vmdbg/wire"
)

type stubSystem struct {
	functions map[int]FunctionRef
}

func newStubSystem(functions ...FunctionRef) *stubSystem {
	s := &stubSystem{functions: make(map[int]FunctionRef)}
	for _, fn := range functions {
		s.functions[fn.Id] = fn
	}
	return s
}

func (s *stubSystem) FunctionById(id int) (FunctionRef, bool) {
	fn, ok := s.functions[id]
	return fn, ok
}

func (s *stubSystem) FunctionsByName(name string) []FunctionRef {
	var out []FunctionRef
	for _, fn := range s.functions {
		if fn.Name == name {
			out = append(out, fn)
		}
	}
	return out
}

func (s *stubSystem) NextStepLocation(functionId, bcp int) (int, bool) { return 0, false }

func (s *stubSystem) ResolvePosition(file string, line, column int, pattern string) (FunctionRef, int, bool) {
	return FunctionRef{}, 0, false
}

type recordingListener struct {
	BaseListener
	mu     sync.Mutex
	events []string
}

func (r *recordingListener) record(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingListener) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingListener) ProcessStart(int)      { r.record("processStart") }
func (r *recordingListener) ProcessRunnable(int)   { r.record("processRunnable") }
func (r *recordingListener) ProcessExit(int)       { r.record("processExit") }
func (r *recordingListener) PauseStart(int)        { r.record("pauseStart") }
func (r *recordingListener) Resume(int)            { r.record("resume") }
func (r *recordingListener) LostConnection()       { r.record("lostConnection") }
func (r *recordingListener) BreakpointAdded(int, *Breakpoint)   { r.record("breakpointAdded") }
func (r *recordingListener) BreakpointRemoved(int, *Breakpoint) { r.record("breakpointRemoved") }

func (r *recordingListener) PauseBreakpoint(pid int, frame *BackTraceFrame, bp *Breakpoint) {
	r.record("pauseBreakpoint")
}

func (r *recordingListener) PauseException(pid int, frame *BackTraceFrame, thrown RemoteObjectValue) {
	r.record("pauseException")
}

func (r *recordingListener) WriteStdOut(pid int, data []byte) {
	r.record("writeStdOut:" + string(data))
}

func newTestController(t *testing.T) (*Controller, *fakevm.FakeVM, *recordingListener) {
	c, fv := fakevm.Pair(t)
	t.Cleanup(fv.Close)
	listener := &recordingListener{}
	ctrl := NewController(c)
	ctrl.AddListener(listener)
	return ctrl, fv, listener
}

// initializeNonSnapshot drives the Debugging/LiveEditing/spawn exchange
// common to every scenario below, returning once the controller is spawned.
func initializeNonSnapshot(t *testing.T, ctrl *Controller, fv *fakevm.FakeVM, system CompiledSystem) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- ctrl.Initialize(context.Background(), "", "", []CompilationDelta{{System: system}}, nil, nil)
	}()

	fv.Expect(wire.CodeDebugging)
	fv.Reply(wire.CodeDebuggingReply, fakevm.DebuggingReplyPayload(false, 0))
	fv.Expect(wire.CodeLiveEditing)
	fv.Expect(wire.CodeProcessSpawnForMain)
	fv.ReplyEmpty(wire.CodeProcessSpawnForMain)

	require.NoError(t, <-done)
}

func TestScenarioS1SpawnRunCleanExit(t *testing.T) {
	ctrl, fv, listener := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, newStubSystem())

	done := make(chan error, 1)
	go func() { done <- ctrl.StartRunning() }()

	fv.Expect(wire.CodeProcessRun)
	fv.Reply(wire.CodeStdoutData, []byte("hi\n"))
	fv.ReplyEmpty(wire.CodeProcessTerminated)

	require.NoError(t, <-done)

	assert.Equal(t, []string{
		"pauseStart", "processRunnable",
		"processStart", "processRunnable", "resume",
		"writeStdOut:hi\n", "processExit",
	}, listener.snapshot())
	assert.Equal(t, VmStateTerminating, ctrl.VmState())
	assert.Equal(t, ExitCodeOk, ctrl.InteractiveExitCode())
}

func TestScenarioS2BreakpointHitThenContinue(t *testing.T) {
	system := newStubSystem(FunctionRef{Id: 17, Name: "target", Kind: FunctionKindNormal})
	ctrl, fv, listener := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, system)

	setDone := make(chan error, 1)
	go func() {
		_, err := ctrl.SetBreakpoint("target")
		setDone <- err
	}()
	fv.Expect(wire.CodePushFromMap)
	fv.Expect(wire.CodeProcessSetBreakpoint)
	fv.Reply(wire.CodeProcessSetBreakpoint, fakevm.Uint32Payload(7))
	require.NoError(t, <-setDone)

	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.StartRunning() }()
	fv.Expect(wire.CodeProcessRun)
	fv.Reply(wire.CodeProcessBreakpoint, fakevm.Uint32x4Payload(1, 7, 17, 4))
	require.NoError(t, <-runDone)

	assert.Equal(t, VmStatePaused, ctrl.VmState())

	contDone := make(chan error, 1)
	go func() { contDone <- ctrl.Cont() }()
	fv.Expect(wire.CodeProcessContinue)
	fv.ReplyEmpty(wire.CodeProcessTerminated)
	require.NoError(t, <-contDone)

	events := listener.snapshot()
	assert.Contains(t, events, "breakpointAdded")
	assert.Contains(t, events, "pauseBreakpoint")
	assert.Contains(t, events, "resume")
	assert.Contains(t, events, "processExit")
}

func TestScenarioS3ConnectionDroppedMidRun(t *testing.T) {
	ctrl, fv, listener := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, newStubSystem())

	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.StartRunning() }()
	fv.Expect(wire.CodeProcessRun)
	fv.Close()

	require.NoError(t, <-runDone)
	assert.Contains(t, listener.snapshot(), "lostConnection")
	assert.Equal(t, VmStateTerminated, ctrl.VmState())
	assert.Equal(t, CompilerExitCodeConnectionError, ctrl.InteractiveExitCode())
}

func TestScenarioS4UncaughtException(t *testing.T) {
	system := newStubSystem(FunctionRef{Id: 9, Name: "boom", Kind: FunctionKindNormal})
	ctrl, fv, listener := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, system)

	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.StartRunning() }()
	fv.Expect(wire.CodeProcessRun)

	payload := fakevm.Uint32Payload(2)
	payload = append(payload, fakevm.Uint32Payload(9)...)
	payload = append(payload, fakevm.Uint32Payload(12)...)
	fv.Reply(wire.CodeUncaughtException, payload)

	fv.Expect(wire.CodeProcessUncaughtExceptionRequest)
	fv.Reply(wire.CodeDartValue, []byte("E"))

	require.NoError(t, <-runDone)
	assert.Contains(t, listener.snapshot(), "pauseException")
	assert.Equal(t, DartVmExitCodeUncaughtException, ctrl.InteractiveExitCode())
}

func TestScenarioS5StepOutFromSingleVisibleFrameDegradesToContinue(t *testing.T) {
	system := newStubSystem(FunctionRef{Id: 5, Name: "leaf", Kind: FunctionKindNormal})
	ctrl, fv, listener := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, system)

	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.StartRunning() }()
	fv.Expect(wire.CodeProcessRun)
	fv.Reply(wire.CodeProcessBreakpoint, fakevm.Uint32x4Payload(1, 0, 5, 0))
	require.NoError(t, <-runDone)

	btDone := make(chan error, 1)
	go func() {
		_, err := ctrl.BackTrace(1)
		btDone <- err
	}()
	fv.Expect(wire.CodeProcessBacktraceRequest)
	payload := fakevm.Uint32Payload(1)
	payload = append(payload, fakevm.Uint32Payload(5)...)
	payload = append(payload, fakevm.Uint32Payload(0)...)
	fv.Reply(wire.CodeProcessBacktrace, payload)
	require.NoError(t, <-btDone)

	stepOutDone := make(chan error, 1)
	go func() { stepOutDone <- ctrl.StepOut() }()
	fv.Expect(wire.CodeProcessContinue)
	fv.ReplyEmpty(wire.CodeProcessTerminated)
	require.NoError(t, <-stepOutDone)

	assert.Contains(t, listener.snapshot(), "processExit")
}

func TestScenarioS6SnapshotHashMismatch(t *testing.T) {
	dir := t.TempDir()
	snapshotLocation := dir + "/app.snapshot"
	infoPath := snapshotLocation + ".info.json"
	require.NoError(t, os.WriteFile(infoPath,
		[]byte(`{"snapshot_hash": 48059, "function_offsets": {}, "class_offsets": {}}`), 0o644))

	c, fv := fakevm.Pair(t)
	defer fv.Close()
	ctrl := NewController(c)

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Initialize(context.Background(), snapshotLocation, "", nil, nil, nil)
	}()

	fv.Expect(wire.CodeDebugging)
	fv.Reply(wire.CodeDebuggingReply, fakevm.DebuggingReplyPayload(true, 0xAAAA))

	err := <-done
	require.Error(t, err)
	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, ErrSnapshotHashMismatch, sessionErr.Kind)
	assert.Equal(t, VmStateTerminated, ctrl.VmState())
}
