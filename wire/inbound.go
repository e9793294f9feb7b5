package wire

import (
	"encoding/binary"
	"fmt"
)

// InboundCommand is a decoded reply or event from the VM.
type InboundCommand interface {
	Code() Code
}

func getUint32(b []byte, off int) int {
	return int(binary.BigEndian.Uint32(b[off : off+4]))
}

func getUint64(b []byte, off int) int {
	return int(binary.BigEndian.Uint64(b[off : off+8]))
}

func getString(b []byte, off int) (string, int) {
	n := getUint32(b, off)
	start := off + 4
	return string(b[start : start+n]), start + n
}

// ConnectionError is the client-local sentinel materialized whenever the
// inbound stream ends unexpectedly or a decode fails. It is never actually
// sent by the VM.
type ConnectionError struct {
	Cause error
}

func (ConnectionError) Code() Code { return CodeConnectionError }

// HandShakeResult confirms protocol compatibility.
type HandShakeResult struct{}

func (HandShakeResult) Code() Code { return CodeHandShakeResult }

// DebuggingReply answers Debugging, announcing whether the VM is serving a
// pre-serialized snapshot.
type DebuggingReply struct {
	IsFromSnapshot bool
	SnapshotHash   uint64
}

func (DebuggingReply) Code() Code { return CodeDebuggingReply }

func decodeDebuggingReply(p []byte) (DebuggingReply, error) {
	if len(p) < 9 {
		return DebuggingReply{}, fmt.Errorf("DebuggingReply: payload too short (%d bytes)", len(p))
	}
	return DebuggingReply{
		IsFromSnapshot: p[0] != 0,
		SnapshotHash:   binary.BigEndian.Uint64(p[1:9]),
	}, nil
}

// ProcessBreakpoint announces a breakpoint hit.
type ProcessBreakpoint struct {
	ProcessId     int
	BreakpointId  int
	FunctionId    int
	BytecodeIndex int
}

func (ProcessBreakpoint) Code() Code { return CodeProcessBreakpoint }

func decodeProcessBreakpoint(p []byte) (ProcessBreakpoint, error) {
	if len(p) < 16 {
		return ProcessBreakpoint{}, fmt.Errorf("ProcessBreakpoint: payload too short (%d bytes)", len(p))
	}
	return ProcessBreakpoint{
		ProcessId:     getUint32(p, 0),
		BreakpointId:  getUint32(p, 4),
		FunctionId:    getUint32(p, 8),
		BytecodeIndex: getUint32(p, 12),
	}, nil
}

// ProcessSpawnForMainReply acknowledges ProcessSpawnForMain; it carries no
// payload of its own, the process id becomes known only once a subsequent
// stop or listener notification names it.
type ProcessSpawnForMainReply struct{}

func (ProcessSpawnForMainReply) Code() Code { return CodeProcessSpawnForMain }

// ProcessSetBreakpointReply is the reply to the outbound ProcessSetBreakpoint,
// carrying the newly allocated breakpoint id.
type ProcessSetBreakpointReply struct {
	Value int
}

func (ProcessSetBreakpointReply) Code() Code { return CodeProcessSetBreakpoint }

func decodeProcessSetBreakpointReply(p []byte) (ProcessSetBreakpointReply, error) {
	if len(p) < 4 {
		return ProcessSetBreakpointReply{}, fmt.Errorf("ProcessSetBreakpoint reply: payload too short (%d bytes)", len(p))
	}
	return ProcessSetBreakpointReply{Value: getUint32(p, 0)}, nil
}

// ProcessDeleteBreakpointReply confirms a breakpoint deletion.
type ProcessDeleteBreakpointReply struct {
	Id int
}

func (ProcessDeleteBreakpointReply) Code() Code { return CodeProcessDeleteBreakpoint }

func decodeProcessDeleteBreakpointReply(p []byte) (ProcessDeleteBreakpointReply, error) {
	if len(p) < 4 {
		return ProcessDeleteBreakpointReply{}, fmt.Errorf("ProcessDeleteBreakpoint reply: payload too short (%d bytes)", len(p))
	}
	return ProcessDeleteBreakpointReply{Id: getUint32(p, 0)}, nil
}

// ProcessBacktrace carries the raw function id / bytecode index pairs for
// each frame, innermost (current) frame first.
type ProcessBacktrace struct {
	Frames          int
	FunctionIds     []int
	BytecodeIndices []int
}

func (ProcessBacktrace) Code() Code { return CodeProcessBacktrace }

func decodeProcessBacktrace(p []byte) (ProcessBacktrace, error) {
	if len(p) < 4 {
		return ProcessBacktrace{}, fmt.Errorf("ProcessBacktrace: payload too short (%d bytes)", len(p))
	}
	frames := getUint32(p, 0)
	off := 4
	need := 4 + frames*8
	if len(p) < need {
		return ProcessBacktrace{}, fmt.Errorf("ProcessBacktrace: payload too short for %d frames", frames)
	}
	funcIds := make([]int, frames)
	bcis := make([]int, frames)
	for i := 0; i < frames; i++ {
		funcIds[i] = getUint32(p, off)
		off += 4
	}
	for i := 0; i < frames; i++ {
		bcis[i] = getUint32(p, off)
		off += 4
	}
	return ProcessBacktrace{Frames: frames, FunctionIds: funcIds, BytecodeIndices: bcis}, nil
}

// ProcessNumberOfStacks reports the number of live call stacks (fibers).
type ProcessNumberOfStacks struct {
	Value int
}

func (ProcessNumberOfStacks) Code() Code { return CodeProcessNumberOfStacks }

func decodeProcessNumberOfStacks(p []byte) (ProcessNumberOfStacks, error) {
	if len(p) < 4 {
		return ProcessNumberOfStacks{}, fmt.Errorf("ProcessNumberOfStacks: payload too short (%d bytes)", len(p))
	}
	return ProcessNumberOfStacks{Value: getUint32(p, 0)}, nil
}

// ProcessGetProcessIdsResult carries the live process id table.
type ProcessGetProcessIdsResult struct {
	Ids []int
}

func (ProcessGetProcessIdsResult) Code() Code { return CodeProcessGetProcessIdsResult }

func decodeProcessGetProcessIdsResult(p []byte) (ProcessGetProcessIdsResult, error) {
	if len(p) < 4 {
		return ProcessGetProcessIdsResult{}, fmt.Errorf("ProcessGetProcessIdsResult: payload too short (%d bytes)", len(p))
	}
	n := getUint32(p, 0)
	off := 4
	if len(p) < off+n*4 {
		return ProcessGetProcessIdsResult{}, fmt.Errorf("ProcessGetProcessIdsResult: payload too short for %d ids", n)
	}
	ids := make([]int, n)
	for i := 0; i < n; i++ {
		ids[i] = getUint32(p, off)
		off += 4
	}
	return ProcessGetProcessIdsResult{Ids: ids}, nil
}

// UncaughtException announces that an exception reached the top of the stack.
type UncaughtException struct {
	ProcessId     int
	FunctionId    int
	BytecodeIndex int
}

func (UncaughtException) Code() Code { return CodeUncaughtException }

func decodeUncaughtException(p []byte) (UncaughtException, error) {
	if len(p) < 12 {
		return UncaughtException{}, fmt.Errorf("UncaughtException: payload too short (%d bytes)", len(p))
	}
	return UncaughtException{
		ProcessId:     getUint32(p, 0),
		FunctionId:    getUint32(p, 4),
		BytecodeIndex: getUint32(p, 8),
	}, nil
}

// ProcessCompileTimeError announces a compile-time error stop.
type ProcessCompileTimeError struct{}

func (ProcessCompileTimeError) Code() Code { return CodeProcessCompileTimeError }

// ProcessTerminated announces the debuggee process has exited.
type ProcessTerminated struct{}

func (ProcessTerminated) Code() Code { return CodeProcessTerminated }

// StdoutData carries a chunk of the debuggee's standard output.
type StdoutData struct {
	Bytes []byte
}

func (StdoutData) Code() Code { return CodeStdoutData }

// StderrData carries a chunk of the debuggee's standard error.
type StderrData struct {
	Bytes []byte
}

func (StderrData) Code() Code { return CodeStderrData }

// DartValue is a leaf primitive value in a structured object read.
type DartValue struct {
	Payload []byte
}

func (DartValue) Code() Code { return CodeDartValue }

// InstanceStructure announces an object instance with FieldCount fields to
// follow as additional frames.
type InstanceStructure struct {
	ClassId    int
	FieldCount int
}

func (InstanceStructure) Code() Code { return CodeInstanceStructure }

func decodeInstanceStructure(p []byte) (InstanceStructure, error) {
	if len(p) < 8 {
		return InstanceStructure{}, fmt.Errorf("InstanceStructure: payload too short (%d bytes)", len(p))
	}
	return InstanceStructure{ClassId: getUint32(p, 0), FieldCount: getUint32(p, 4)}, nil
}

// ArrayStructure announces an array slice [StartIndex, EndIndex) to follow as
// additional frames.
type ArrayStructure struct {
	StartIndex int
	EndIndex   int
}

func (ArrayStructure) Code() Code { return CodeArrayStructure }

func decodeArrayStructure(p []byte) (ArrayStructure, error) {
	if len(p) < 8 {
		return ArrayStructure{}, fmt.Errorf("ArrayStructure: payload too short (%d bytes)", len(p))
	}
	return ArrayStructure{StartIndex: getUint32(p, 0), EndIndex: getUint32(p, 4)}, nil
}

// CreateSnapshotResult carries the reply to CreateSnapshot: an opaque path or
// descriptor identifying the written snapshot.
type CreateSnapshotResult struct {
	Payload []byte
}

func (CreateSnapshotResult) Code() Code { return CodeCreateSnapshotResult }

// ProgramInfoCommand carries diagnostic program metadata; payload is opaque
// to the controller and forwarded verbatim to callers that asked for it.
type ProgramInfoCommand struct {
	Payload []byte
}

func (ProgramInfoCommand) Code() Code { return CodeProgramInfoCommand }

// Decode turns a wire frame into a typed InboundCommand. Stdio frames (Stdout/
// Stderr) are handled by the Event Demultiplexer before reaching here in the
// normal read path, but Decode supports them too for direct testing.
func Decode(frame *Frame) (InboundCommand, error) {
	switch frame.Code {
	case CodeHandShakeResult:
		return HandShakeResult{}, nil
	case CodeDebuggingReply:
		return decodeDebuggingReply(frame.Payload)
	case CodeProcessSpawnForMain:
		return ProcessSpawnForMainReply{}, nil
	case CodeProcessBreakpoint:
		return decodeProcessBreakpoint(frame.Payload)
	case CodeProcessSetBreakpoint:
		return decodeProcessSetBreakpointReply(frame.Payload)
	case CodeProcessDeleteBreakpoint:
		return decodeProcessDeleteBreakpointReply(frame.Payload)
	case CodeProcessBacktrace:
		return decodeProcessBacktrace(frame.Payload)
	case CodeProcessNumberOfStacks:
		return decodeProcessNumberOfStacks(frame.Payload)
	case CodeProcessGetProcessIdsResult:
		return decodeProcessGetProcessIdsResult(frame.Payload)
	case CodeUncaughtException:
		return decodeUncaughtException(frame.Payload)
	case CodeProcessCompileTimeError:
		return ProcessCompileTimeError{}, nil
	case CodeProcessTerminated:
		return ProcessTerminated{}, nil
	case CodeStdoutData:
		return StdoutData{Bytes: frame.Payload}, nil
	case CodeStderrData:
		return StderrData{Bytes: frame.Payload}, nil
	case CodeDartValue:
		return DartValue{Payload: frame.Payload}, nil
	case CodeInstanceStructure:
		return decodeInstanceStructure(frame.Payload)
	case CodeArrayStructure:
		return decodeArrayStructure(frame.Payload)
	case CodeCreateSnapshotResult:
		return CreateSnapshotResult{Payload: frame.Payload}, nil
	case CodeProgramInfoCommand:
		return ProgramInfoCommand{Payload: frame.Payload}, nil
	case CodeConnectionError:
		return ConnectionError{}, nil
	default:
		return nil, fmt.Errorf("unrecognized inbound frame code %s", frame.Code)
	}
}

// IsStop reports whether an inbound command is one of the process-stop
// variants that drive the session state machine's running→paused/terminating
// transitions.
func IsStop(cmd InboundCommand) bool {
	return cmd.Code().IsStop()
}
