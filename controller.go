package vmdbg

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/coldbrew-vm/vmdbg/conn"
	"github.com/coldbrew-vm/vmdbg/metrics"
	"github.com/coldbrew-vm/vmdbg/snapshot"
	"github.com/coldbrew-vm/vmdbg/wire"
)

// CompilationDelta is an opaque compiled-code update from the incremental
// compiler: an ordered command list plus the resulting compiled system. The
// compiler itself is out of scope; the controller only consumes deltas it is
// handed.
type CompilationDelta struct {
	Commands []wire.GenericCommand
	System   CompiledSystem
}

// CompiledSystem exposes just enough of the compiler's current compilation
// system for the controller to resolve function ids to FunctionRefs. The
// compiler and its symbol tables are out of scope; callers supply an
// implementation.
type CompiledSystem interface {
	FunctionById(id int) (FunctionRef, bool)
	FunctionsByName(name string) []FunctionRef

	// NextStepLocation performs the frame-local source-map computation the
	// step loop needs: given the function and bytecode pointer the process is
	// currently stopped at, it reports the next bytecode pointer within that
	// function that would leave the current source location, or ok=false if
	// no such point exists in this frame (the step loop then falls back to a
	// single-bytecode step).
	NextStepLocation(functionId, bytecodePointer int) (bcp int, ok bool)

	// ResolvePosition resolves a source position to a (function, bytecode
	// index) pair via debug info, for setFileBreakpoint. column selects among
	// multiple candidate statements on the same line when pattern is empty;
	// otherwise pattern disambiguates by matching source text.
	ResolvePosition(file string, line, column int, pattern string) (FunctionRef, int, bool)
}

// Option configures a Controller at construction time, following the
// functional-options pattern the example corpus uses for client
// configuration instead of file-based config (there is no configuration file
// loading in this package).
type Option func(*Controller)

// WithLogger overrides the controller's zap logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithShowInternalFrames sets the initial show-internal-frames display flag.
func WithShowInternalFrames(show bool) Option {
	return func(c *Controller) { c.debug.ShowInternalFrames = show }
}

// Controller is the VM Debug Session Controller: the client-side state
// machine and protocol driver. A single driver goroutine owns all mutation of
// vmState, debug state, and the breakpoint table; operations are serialized
// by mu except for handshake's read+retry pair.
type Controller struct {
	log        *zap.Logger
	conn       conn.Connection
	engine     *engine
	listeners  *ListenerRegistry
	translator snapshot.Translator
	system     CompiledSystem

	mu                  sync.Mutex
	vmState             VmState
	debug               *DebugState
	interactiveExitCode int
	infoWatcher         *snapshot.InfoWatcher
}

// NewController creates a Controller driving c, with translation starting in
// non-snapshot (identity) mode until Initialize possibly installs a snapshot
// translator.
func NewController(c conn.Connection, opts ...Option) *Controller {
	ctrl := &Controller{
		conn:       c,
		listeners:  NewListenerRegistry(),
		translator: snapshot.Identity(),
		vmState:    VmStateInitial,
		debug:      NewDebugState(),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	ctrl.engine = newEngine(c, ctrl.translator, ctrl.listeners, ctrl.log)
	metrics.Get().VmState.Set(float64(ctrl.vmState))
	return ctrl
}

// AddListener subscribes a lifecycle listener.
func (c *Controller) AddListener(l Listener) { c.listeners.Add(l) }

// RemoveListener unsubscribes a lifecycle listener.
func (c *Controller) RemoveListener(l Listener) { c.listeners.Remove(l) }

// VmState returns the current session state.
func (c *Controller) VmState() VmState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vmState
}

// InteractiveExitCode returns the exit code recorded by the most recent
// process-stop.
func (c *Controller) InteractiveExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interactiveExitCode
}

func (c *Controller) setState(s VmState) {
	c.vmState = s
	metrics.Get().VmState.Set(float64(s))
}

func (c *Controller) checkNotTerminated() error {
	if c.vmState == VmStateTerminated {
		return newSessionError(ErrSessionTerminated, "", nil)
	}
	return nil
}

// Initialize sends Debugging, installs the id-offset translator when the VM
// answers from a snapshot, or applies the given deltas under live-editing
// otherwise, then spawns the process if it has not been spawned already.
func (c *Controller) Initialize(ctx context.Context, snapshotLocation, defaultScript string, deltas []CompilationDelta, functionIds, classIds map[string]int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkNotTerminated(); err != nil {
		return err
	}

	reply, err := c.engine.runCommand(wire.Debugging{})
	if err != nil {
		return err
	}
	debuggingReply, ok := reply.(wire.DebuggingReply)
	if !ok {
		return c.protocolViolation("expected DebuggingReply", reply)
	}

	if debuggingReply.IsFromSnapshot {
		infoPath := snapshot.InfoPathFor(snapshotLocation, defaultScript)
		mapping, err := snapshot.LoadNameOffsetMapping(infoPath)
		if err != nil {
			c.killLocked()
			return err
		}
		if mapping.SnapshotHash != debuggingReply.SnapshotHash {
			c.killLocked()
			return newSessionError(ErrSnapshotHashMismatch,
				fmt.Sprintf("info file hash %d != VM snapshot hash %d", mapping.SnapshotHash, debuggingReply.SnapshotHash), nil)
		}
		offsetMapping := snapshot.NewIdOffsetMapping(mapping, functionIds, classIds)
		c.translator = snapshot.Offset(offsetMapping)
		c.engine.setTranslator(c.translator)
	} else {
		if _, err := c.engine.runCommand(wire.LiveEditing{}); err != nil {
			return err
		}
		for _, delta := range deltas {
			if _, err := c.engine.runCommands(delta.Commands); err != nil {
				return err
			}
			c.system = delta.System
		}
	}

	if !c.vmState.IsSpawned() {
		if err := c.spawnProcessLocked(nil); err != nil {
			return err
		}
	}
	return nil
}

// WatchSnapshotInfo attaches an fsnotify-backed watcher on the snapshot info
// file at path, emitting SnapshotReplaced through the listener registry
// whenever the file is rewritten. It never re-validates the snapshot hash or
// swaps the active translator; a caller that wants to react to the
// notification must re-run Initialize explicitly. Calling it twice replaces
// the previous watcher.
func (c *Controller) WatchSnapshotInfo(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.infoWatcher != nil {
		c.infoWatcher.Close()
	}
	w, err := snapshot.WatchInfoFile(path)
	if err != nil {
		return err
	}
	c.infoWatcher = w
	go func() {
		for range w.Events() {
			c.listeners.snapshotReplaced()
		}
	}()
	go func() {
		for err := range w.Errors() {
			c.log.Warn("snapshot info watcher error", zap.Error(err))
		}
	}()
	return nil
}

// SpawnProcess sends ProcessSpawnForMain, transitions to spawned, and emits
// PauseStart(0) then ProcessRunnable(0).
func (c *Controller) SpawnProcess(args []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spawnProcessLocked(args)
}

func (c *Controller) spawnProcessLocked(args []string) error {
	if err := c.checkNotTerminated(); err != nil {
		return err
	}
	if _, err := c.engine.runCommand(wire.ProcessSpawnForMain{Args: args}); err != nil {
		return err
	}
	c.setState(VmStateSpawned)
	c.listeners.pauseStart(0)
	c.listeners.processRunnable(0)
	return nil
}

// StartRunning sends ProcessRun, transitions to running, emits ProcessStart,
// ProcessRunnable, and Resume for pid 0, then reads and handles the next
// stop.
func (c *Controller) StartRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkNotTerminated(); err != nil {
		return err
	}
	if err := c.engine.send(wire.ProcessRun{}); err != nil {
		return err
	}
	c.setState(VmStateRunning)
	c.listeners.processStart(0)
	c.listeners.processRunnable(0)
	c.listeners.resume(0)

	reply, err := c.engine.readNext(true)
	if err != nil {
		return err
	}
	return c.handleStopLocked(reply)
}

// protocolViolation raises ErrProtocolViolation for an unexpected reply.
func (c *Controller) protocolViolation(context string, got wire.InboundCommand) error {
	metrics.Get().ProtocolViolations.Inc()
	code := "nil"
	if got != nil {
		code = got.Code().String()
	}
	return newSessionError(ErrProtocolViolation, fmt.Sprintf("%s, got %s", context, code), nil)
}

// handleStopLocked runs process-stop handling for a reply that may or may not
// be a stop: resets debug state, computes the exit code, advances vmState,
// resolves the top frame, and dispatches the matching listener notification.
// Must be called with mu held.
func (c *Controller) handleStopLocked(reply wire.InboundCommand) error {
	if reply == nil || !wire.IsStop(reply) {
		return nil
	}

	c.debug.Reset()
	metrics.Get().StopsHandled.WithLabelValues(reply.Code().String()).Inc()

	switch v := reply.(type) {
	case wire.ProcessBreakpoint:
		c.interactiveExitCode = ExitCodeOk
		c.setState(VmStatePaused)
		c.debug.CurrentProcessId = v.ProcessId
		functionId := c.translator.FromWire(v.FunctionId)
		fn := c.resolveFunctionLocked(functionId)
		c.debug.TopFrame = &fn
		c.debug.CurrentBytecodePointer = v.BytecodeIndex
		frame := &BackTraceFrame{FunctionId: functionId, BytecodePointer: v.BytecodeIndex, IsVisible: fn.Kind == FunctionKindNormal}
		if bp, ok := c.debug.Breakpoints[v.BreakpointId]; ok && !bp.IsOneShot {
			c.listeners.pauseBreakpoint(v.ProcessId, frame, bp)
		} else {
			c.listeners.pauseInterrupted(v.ProcessId, frame)
		}

	case wire.UncaughtException:
		c.interactiveExitCode = DartVmExitCodeUncaughtException
		c.setState(VmStateTerminating)
		c.debug.CurrentProcessId = v.ProcessId
		functionId := c.translator.FromWire(v.FunctionId)
		fn := c.resolveFunctionLocked(functionId)
		c.debug.TopFrame = &fn
		frame := &BackTraceFrame{FunctionId: functionId, BytecodePointer: v.BytecodeIndex, IsVisible: fn.Kind == FunctionKindNormal}
		if err := c.engine.send(wire.ProcessUncaughtExceptionRequest{}); err != nil {
			return err
		}
		thrown, err := c.readStructuredObjectLocked()
		if err != nil {
			return err
		}
		c.debug.CurrentUncaughtException = &thrown
		c.listeners.pauseException(v.ProcessId, frame, thrown)

	case wire.ProcessCompileTimeError:
		c.interactiveExitCode = DartVmExitCodeCompileTimeError
		c.setState(VmStateTerminating)
		c.listeners.processExit(0)

	case wire.ProcessTerminated:
		c.interactiveExitCode = ExitCodeOk
		c.setState(VmStateTerminating)
		c.listeners.processExit(0)

	case wire.ConnectionError:
		c.interactiveExitCode = CompilerExitCodeConnectionError
		c.setState(VmStateTerminating)
		c.setState(VmStateTerminated)
		c.listeners.lostConnection()

	default:
		return c.protocolViolation("unexpected stop-dispatch reply", reply)
	}
	return nil
}

func (c *Controller) resolveFunctionLocked(id int) FunctionRef {
	if c.system == nil {
		return missingFunction
	}
	fn, ok := c.system.FunctionById(id)
	if !ok {
		return missingFunction
	}
	return fn
}

// Cont resumes a paused process, transitioning to running and handling the
// next stop.
func (c *Controller) Cont() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.vmState.IsPaused() {
		panic("Cont called while not paused")
	}
	if err := c.engine.send(wire.ProcessContinue{}); err != nil {
		return err
	}
	c.setState(VmStateRunning)
	c.debug.Reset()

	reply, err := c.engine.readNext(true)
	if err != nil {
		return err
	}
	return c.handleStopLocked(reply)
}

// Interrupt sends ProcessDebugInterrupt without waiting for a reply.
func (c *Controller) Interrupt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkNotTerminated(); err != nil {
		return err
	}
	return c.engine.send(wire.ProcessDebugInterrupt{})
}

// CreateSnapshot issues CreateSnapshot, reads the reply, then shuts down.
func (c *Controller) CreateSnapshot() (*wire.CreateSnapshotResult, error) {
	c.mu.Lock()
	reply, err := c.engine.runCommand(wire.CreateSnapshot{})
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if shutErr := c.Shutdown(true); shutErr != nil {
		return nil, shutErr
	}
	result, ok := reply.(wire.CreateSnapshotResult)
	if !ok {
		return nil, nil
	}
	return &result, nil
}

// Terminate sends SessionEnd and shuts down.
func (c *Controller) Terminate() error {
	c.mu.Lock()
	err := c.engine.send(wire.SessionEnd{})
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Shutdown(true)
}

// Shutdown closes the connection and drains pending frames. Any non-nil frame
// observed while ignoreExtraCommands is false is fatal, and Kill is invoked
// first. Calling Shutdown on an already-terminated session is a no-op when
// ignoreExtraCommands is true.
func (c *Controller) Shutdown(ignoreExtraCommands bool) error {
	c.mu.Lock()
	if c.vmState == VmStateTerminated {
		c.mu.Unlock()
		if ignoreExtraCommands {
			return nil
		}
		return newSessionError(ErrSessionTerminated, "", nil)
	}
	c.mu.Unlock()

	_ = c.conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.drain(ignoreExtraCommands); err != nil {
		c.killLocked()
		return err
	}
	c.killLocked()
	return nil
}

// Kill marks the session terminated and closes the connection. It never
// raises and is idempotent.
func (c *Controller) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killLocked()
}

func (c *Controller) killLocked() {
	if c.vmState == VmStateTerminated {
		return
	}
	c.setState(VmStateTerminated)
	_ = c.conn.Close()
	if c.infoWatcher != nil {
		c.infoWatcher.Close()
		c.infoWatcher = nil
	}
	c.listeners.terminated()
}
