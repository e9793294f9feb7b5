// Package wire implements the length-prefixed binary frame codec spoken between
// the debug session controller and the VM: a 4-byte big-endian length prefix, a
// 1-byte command code, and a command-specific payload. It generalizes the
// teacher's length-prefix framing (cbor.FrameReader/FrameWriter) but drops the
// CBOR envelope for the main payload, since this wire's layouts are fixed binary
// structures per command rather than a generic map.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ProtocolVersion identifies the wire layout. Bumped on incompatible changes.
const ProtocolVersion uint8 = 1

// DefaultMaxFrame is the default accepted frame payload size (4 MiB).
const DefaultMaxFrame int = 4 << 20

// MaxFrameHardLimit is the absolute ceiling regardless of negotiated limits (32 MiB).
const MaxFrameHardLimit int = 32 << 20

// Code identifies the command carried by a frame.
type Code uint8

const (
	CodeHandShake Code = iota
	CodeHandShakeResult
	CodeDebugging
	CodeDebuggingReply
	CodeLiveEditing
	CodeProcessSpawnForMain
	CodeProcessRun
	CodeProcessContinue
	CodeProcessSetBreakpoint
	CodeProcessDeleteBreakpoint
	CodeProcessDeleteOneShotBreakpoint
	CodePushFromMap
	CodeNewMap
	CodeDeleteMap
	CodeProcessStep
	CodeProcessStepTo
	CodeProcessStepOver
	CodeProcessStepOut
	CodeProcessBreakpoint
	CodeProcessBacktraceRequest
	CodeProcessBacktrace
	CodeProcessNumberOfStacks
	CodeProcessAddFibersToMap
	CodeProcessFiberBacktraceRequest
	CodeProcessGetProcessIds
	CodeProcessGetProcessIdsResult
	CodeProcessUncaughtExceptionRequest
	CodeUncaughtException
	CodeProcessCompileTimeError
	CodeProcessTerminated
	CodeProcessDebugInterrupt
	CodeSessionEnd
	CodeCreateSnapshot
	CodeCreateSnapshotResult
	CodeStdoutData
	CodeStderrData
	CodeDartValue
	CodeInstanceStructure
	CodeArrayStructure
	CodeProgramInfoCommand
	CodeConnectionError // client-local sentinel; never sent over the wire
)

// String renders the code's name for logs and error messages.
func (c Code) String() string {
	switch c {
	case CodeHandShake:
		return "HandShake"
	case CodeHandShakeResult:
		return "HandShakeResult"
	case CodeDebugging:
		return "Debugging"
	case CodeDebuggingReply:
		return "DebuggingReply"
	case CodeLiveEditing:
		return "LiveEditing"
	case CodeProcessSpawnForMain:
		return "ProcessSpawnForMain"
	case CodeProcessRun:
		return "ProcessRun"
	case CodeProcessContinue:
		return "ProcessContinue"
	case CodeProcessSetBreakpoint:
		return "ProcessSetBreakpoint"
	case CodeProcessDeleteBreakpoint:
		return "ProcessDeleteBreakpoint"
	case CodeProcessDeleteOneShotBreakpoint:
		return "ProcessDeleteOneShotBreakpoint"
	case CodePushFromMap:
		return "PushFromMap"
	case CodeNewMap:
		return "NewMap"
	case CodeDeleteMap:
		return "DeleteMap"
	case CodeProcessStep:
		return "ProcessStep"
	case CodeProcessStepTo:
		return "ProcessStepTo"
	case CodeProcessStepOver:
		return "ProcessStepOver"
	case CodeProcessStepOut:
		return "ProcessStepOut"
	case CodeProcessBreakpoint:
		return "ProcessBreakpoint"
	case CodeProcessBacktraceRequest:
		return "ProcessBacktraceRequest"
	case CodeProcessBacktrace:
		return "ProcessBacktrace"
	case CodeProcessNumberOfStacks:
		return "ProcessNumberOfStacks"
	case CodeProcessAddFibersToMap:
		return "ProcessAddFibersToMap"
	case CodeProcessFiberBacktraceRequest:
		return "ProcessFiberBacktraceRequest"
	case CodeProcessGetProcessIds:
		return "ProcessGetProcessIds"
	case CodeProcessGetProcessIdsResult:
		return "ProcessGetProcessIdsResult"
	case CodeProcessUncaughtExceptionRequest:
		return "ProcessUncaughtExceptionRequest"
	case CodeUncaughtException:
		return "UncaughtException"
	case CodeProcessCompileTimeError:
		return "ProcessCompileTimeError"
	case CodeProcessTerminated:
		return "ProcessTerminated"
	case CodeProcessDebugInterrupt:
		return "ProcessDebugInterrupt"
	case CodeSessionEnd:
		return "SessionEnd"
	case CodeCreateSnapshot:
		return "CreateSnapshot"
	case CodeCreateSnapshotResult:
		return "CreateSnapshotResult"
	case CodeStdoutData:
		return "StdoutData"
	case CodeStderrData:
		return "StderrData"
	case CodeDartValue:
		return "DartValue"
	case CodeInstanceStructure:
		return "InstanceStructure"
	case CodeArrayStructure:
		return "ArrayStructure"
	case CodeProgramInfoCommand:
		return "ProgramInfoCommand"
	case CodeConnectionError:
		return "ConnectionError"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// IsStdio reports whether a code names one of the out-of-band stdio frames the
// event demultiplexer swallows before they ever reach the request/reply engine.
func (c Code) IsStdio() bool {
	return c == CodeStdoutData || c == CodeStderrData
}

// IsStop reports whether a code names a process-stop reply.
func (c Code) IsStop() bool {
	switch c {
	case CodeProcessBreakpoint, CodeUncaughtException, CodeProcessCompileTimeError,
		CodeProcessTerminated, CodeConnectionError:
		return true
	default:
		return false
	}
}

// Frame is a single decoded (code, payload) pair plus an optional CBOR-encoded
// metadata extension. Meta plays the same role the teacher's Frame.Meta map
// plays for its HELLO/ERR/LOG frames: a forward-compatible bag of extra fields
// that doesn't have to grow the fixed wire layout of every command. Only
// HandShake (capability negotiation) and the ConnectionError sentinel
// (diagnostic detail) carry one in practice.
type Frame struct {
	Code    Code
	Payload []byte
	Meta    map[string]interface{}
}

// EncodeMeta CBOR-encodes the frame's Meta map, or returns nil if there is none.
func (f *Frame) EncodeMeta() ([]byte, error) {
	if len(f.Meta) == 0 {
		return nil, nil
	}
	return cbor.Marshal(f.Meta)
}

// DecodeMeta CBOR-decodes a metadata blob into the frame's Meta map.
func (f *Frame) DecodeMeta(b []byte) error {
	if len(b) == 0 {
		f.Meta = nil
		return nil
	}
	var m map[string]interface{}
	if err := cbor.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode frame meta: %w", err)
	}
	f.Meta = m
	return nil
}
