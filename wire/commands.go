package wire

import "encoding/binary"

// ReplyCount declares how many reply frames the Request/Reply Engine must read
// after sending a command. Manual marks a command whose replies are consumed
// directly by a high-level operation rather than the generic engine.
type ReplyCount struct {
	n      int
	manual bool
}

// Fixed declares a command that always produces exactly n reply frames.
func Fixed(n int) ReplyCount { return ReplyCount{n: n} }

// Manual declares a command whose replies are read by hand, outside run_commands.
func Manual() ReplyCount { return ReplyCount{manual: true} }

// IsManual reports whether this reply count is the manual marker.
func (r ReplyCount) IsManual() bool { return r.manual }

// N returns the fixed reply count. Calling it on a manual count is a caller bug.
func (r ReplyCount) N() int { return r.n }

// IdTranslator maps between VM-internal function/class ids and symbolic
// snapshot offsets. In non-snapshot mode an identity translator is used.
type IdTranslator interface {
	ToWire(id int) int
	FromWire(id int) int
}

// identityTranslator is used outside snapshot mode.
type identityTranslator struct{}

func (identityTranslator) ToWire(id int) int   { return id }
func (identityTranslator) FromWire(id int) int { return id }

// IdentityTranslator is the translator used when the session is not running
// against a snapshot: ids pass through unchanged.
var IdentityTranslator IdTranslator = identityTranslator{}

// OutboundCommand is a command this side can serialize and send.
type OutboundCommand interface {
	Code() Code
	Serialize(translator IdTranslator) []byte
	ExpectedReplies() ReplyCount
}

// GenericCommand is an OutboundCommand known at compile time not to be manual;
// it is the only kind accepted by the generic Request/Reply Engine entry
// point, rejecting "manual" commands at the type level per the source's
// expected_replies == null rule.
type GenericCommand interface {
	OutboundCommand
	genericSafe()
}

func putUint32(v int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}

func putUint64(v int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func putString(s string) []byte {
	b := []byte(s)
	buf := putUint32(len(b))
	return append(buf, b...)
}

func putIntSlice(vals []int) []byte {
	buf := putUint32(len(vals))
	for _, v := range vals {
		buf = append(buf, putUint32(v)...)
	}
	return buf
}

// --- Handshake ---------------------------------------------------------

// HandShake negotiates protocol compatibility. Manual: driven by the
// handshake operation's read+retry pair, never by run_commands.
type HandShake struct {
	Version string
}

func (HandShake) Code() Code { return CodeHandShake }
func (h HandShake) Serialize(IdTranslator) []byte {
	return putString(h.Version)
}
func (HandShake) ExpectedReplies() ReplyCount { return Manual() }

// --- Debugging session bootstrap ---------------------------------------

// Debugging opens a debugging session against the VM.
type Debugging struct{}

func (Debugging) Code() Code                        { return CodeDebugging }
func (Debugging) Serialize(IdTranslator) []byte      { return nil }
func (Debugging) ExpectedReplies() ReplyCount        { return Fixed(1) }
func (Debugging) genericSafe()                       {}

// LiveEditing switches the session into live-patching mode (non-snapshot).
type LiveEditing struct{}

func (LiveEditing) Code() Code                   { return CodeLiveEditing }
func (LiveEditing) Serialize(IdTranslator) []byte { return nil }
func (LiveEditing) ExpectedReplies() ReplyCount   { return Fixed(0) }
func (LiveEditing) genericSafe()                 {}

// --- Process lifecycle ---------------------------------------------------

// ProcessSpawnForMain spawns the debuggee process with the given arguments.
type ProcessSpawnForMain struct {
	Args []string
}

func (ProcessSpawnForMain) Code() Code { return CodeProcessSpawnForMain }
func (c ProcessSpawnForMain) Serialize(IdTranslator) []byte {
	buf := putUint32(len(c.Args))
	for _, a := range c.Args {
		buf = append(buf, putString(a)...)
	}
	return buf
}
func (ProcessSpawnForMain) ExpectedReplies() ReplyCount { return Fixed(1) }
func (ProcessSpawnForMain) genericSafe()                {}

// ProcessRun starts execution of the spawned process.
type ProcessRun struct{}

func (ProcessRun) Code() Code                      { return CodeProcessRun }
func (ProcessRun) Serialize(IdTranslator) []byte   { return nil }
func (ProcessRun) ExpectedReplies() ReplyCount      { return Manual() }

// ProcessContinue resumes a paused process.
type ProcessContinue struct{}

func (ProcessContinue) Code() Code                    { return CodeProcessContinue }
func (ProcessContinue) Serialize(IdTranslator) []byte { return nil }
func (ProcessContinue) ExpectedReplies() ReplyCount   { return Manual() }

// ProcessDebugInterrupt asynchronously interrupts a running process. No reply.
type ProcessDebugInterrupt struct{}

func (ProcessDebugInterrupt) Code() Code                    { return CodeProcessDebugInterrupt }
func (ProcessDebugInterrupt) Serialize(IdTranslator) []byte { return nil }
func (ProcessDebugInterrupt) ExpectedReplies() ReplyCount   { return Fixed(0) }
func (ProcessDebugInterrupt) genericSafe()                  {}

// SessionEnd requests an orderly end to the debug session.
type SessionEnd struct{}

func (SessionEnd) Code() Code                    { return CodeSessionEnd }
func (SessionEnd) Serialize(IdTranslator) []byte { return nil }
func (SessionEnd) ExpectedReplies() ReplyCount   { return Fixed(0) }
func (SessionEnd) genericSafe()                  {}

// --- Breakpoints -----------------------------------------------------------

// ProcessSetBreakpoint installs a breakpoint at the given bytecode index in
// whatever function was most recently pushed via PushFromMap.
type ProcessSetBreakpoint struct {
	BytecodeIndex int
}

func (ProcessSetBreakpoint) Code() Code { return CodeProcessSetBreakpoint }
func (c ProcessSetBreakpoint) Serialize(IdTranslator) []byte {
	return putUint32(c.BytecodeIndex)
}
func (ProcessSetBreakpoint) ExpectedReplies() ReplyCount { return Fixed(1) }
func (ProcessSetBreakpoint) genericSafe()                {}

// ProcessDeleteBreakpoint removes a previously installed breakpoint.
type ProcessDeleteBreakpoint struct {
	Id int
}

func (ProcessDeleteBreakpoint) Code() Code { return CodeProcessDeleteBreakpoint }
func (c ProcessDeleteBreakpoint) Serialize(IdTranslator) []byte {
	return putUint32(c.Id)
}
func (ProcessDeleteBreakpoint) ExpectedReplies() ReplyCount { return Fixed(1) }
func (ProcessDeleteBreakpoint) genericSafe()                {}

// ProcessDeleteOneShotBreakpoint removes a one-shot breakpoint installed by
// the VM during stepOver/stepOut when the stop landed elsewhere.
type ProcessDeleteOneShotBreakpoint struct {
	Id int
}

func (ProcessDeleteOneShotBreakpoint) Code() Code { return CodeProcessDeleteOneShotBreakpoint }
func (c ProcessDeleteOneShotBreakpoint) Serialize(IdTranslator) []byte {
	return putUint32(c.Id)
}
func (ProcessDeleteOneShotBreakpoint) ExpectedReplies() ReplyCount { return Fixed(0) }
func (ProcessDeleteOneShotBreakpoint) genericSafe()                {}

// --- Function/class map staging --------------------------------------------

// PushFromMap pushes the function or class identified by id from the named
// map (e.g. "methods") onto the VM's working stack, translating the id
// through the active IdTranslator.
type PushFromMap struct {
	MapName string
	Id      int
}

func (PushFromMap) Code() Code { return CodePushFromMap }
func (c PushFromMap) Serialize(translator IdTranslator) []byte {
	buf := putString(c.MapName)
	return append(buf, putUint32(translator.ToWire(c.Id))...)
}
func (PushFromMap) ExpectedReplies() ReplyCount { return Fixed(0) }
func (PushFromMap) genericSafe()                {}

// NewMap allocates a new named map on the VM side (e.g. "fibers").
type NewMap struct {
	MapName string
}

func (NewMap) Code() Code { return CodeNewMap }
func (c NewMap) Serialize(IdTranslator) []byte {
	return putString(c.MapName)
}
func (NewMap) ExpectedReplies() ReplyCount { return Fixed(0) }
func (NewMap) genericSafe()                {}

// DeleteMap releases a named map on the VM side.
type DeleteMap struct {
	MapName string
}

func (DeleteMap) Code() Code { return CodeDeleteMap }
func (c DeleteMap) Serialize(IdTranslator) []byte {
	return putString(c.MapName)
}
func (DeleteMap) ExpectedReplies() ReplyCount { return Fixed(0) }
func (DeleteMap) genericSafe()                {}

// --- Stepping ----------------------------------------------------------

// ProcessStep issues a single bytecode step.
type ProcessStep struct{}

func (ProcessStep) Code() Code                    { return CodeProcessStep }
func (ProcessStep) Serialize(IdTranslator) []byte { return nil }
func (ProcessStep) ExpectedReplies() ReplyCount   { return Manual() }

// ProcessStepTo steps until the given bytecode pointer in the function most
// recently pushed via PushFromMap.
type ProcessStepTo struct {
	BytecodePointer int
}

func (ProcessStepTo) Code() Code { return CodeProcessStepTo }
func (c ProcessStepTo) Serialize(IdTranslator) []byte {
	return putUint32(c.BytecodePointer)
}
func (ProcessStepTo) ExpectedReplies() ReplyCount { return Manual() }

// ProcessStepOver steps over the current call, installing a one-shot
// breakpoint at the return site.
type ProcessStepOver struct{}

func (ProcessStepOver) Code() Code                    { return CodeProcessStepOver }
func (ProcessStepOver) Serialize(IdTranslator) []byte { return nil }
func (ProcessStepOver) ExpectedReplies() ReplyCount   { return Manual() }

// ProcessStepOut steps until the current frame returns, installing a one-shot
// breakpoint at the caller's return site.
type ProcessStepOut struct{}

func (ProcessStepOut) Code() Code                    { return CodeProcessStepOut }
func (ProcessStepOut) Serialize(IdTranslator) []byte { return nil }
func (ProcessStepOut) ExpectedReplies() ReplyCount   { return Manual() }

// --- Backtrace / fibers --------------------------------------------------

// ProcessBacktraceRequest requests a backtrace for the given process.
type ProcessBacktraceRequest struct {
	ProcessId int
}

func (ProcessBacktraceRequest) Code() Code { return CodeProcessBacktraceRequest }
func (c ProcessBacktraceRequest) Serialize(IdTranslator) []byte {
	return putUint32(c.ProcessId)
}
func (ProcessBacktraceRequest) ExpectedReplies() ReplyCount { return Fixed(1) }
func (ProcessBacktraceRequest) genericSafe()                {}

// ProcessAddFibersToMap enumerates fibers into the "fibers" map and replies
// with the count.
type ProcessAddFibersToMap struct{}

func (ProcessAddFibersToMap) Code() Code                    { return CodeProcessAddFibersToMap }
func (ProcessAddFibersToMap) Serialize(IdTranslator) []byte { return nil }
func (ProcessAddFibersToMap) ExpectedReplies() ReplyCount   { return Fixed(1) }
func (ProcessAddFibersToMap) genericSafe()                  {}

// ProcessFiberBacktraceRequest requests a backtrace for fiber i in the
// "fibers" map.
type ProcessFiberBacktraceRequest struct {
	Index int
}

func (ProcessFiberBacktraceRequest) Code() Code { return CodeProcessFiberBacktraceRequest }
func (c ProcessFiberBacktraceRequest) Serialize(IdTranslator) []byte {
	return putUint32(c.Index)
}
func (ProcessFiberBacktraceRequest) ExpectedReplies() ReplyCount { return Fixed(1) }
func (ProcessFiberBacktraceRequest) genericSafe()                {}

// ProcessGetProcessIds requests the live process id table.
type ProcessGetProcessIds struct{}

func (ProcessGetProcessIds) Code() Code                    { return CodeProcessGetProcessIds }
func (ProcessGetProcessIds) Serialize(IdTranslator) []byte { return nil }
func (ProcessGetProcessIds) ExpectedReplies() ReplyCount   { return Fixed(1) }
func (ProcessGetProcessIds) genericSafe()                  {}

// ProcessUncaughtExceptionRequest requests the thrown value of the current
// uncaught exception as a structured object read.
type ProcessUncaughtExceptionRequest struct{}

func (ProcessUncaughtExceptionRequest) Code() Code                    { return CodeProcessUncaughtExceptionRequest }
func (ProcessUncaughtExceptionRequest) Serialize(IdTranslator) []byte { return nil }
func (ProcessUncaughtExceptionRequest) ExpectedReplies() ReplyCount   { return Manual() }

// --- Snapshot ------------------------------------------------------------

// CreateSnapshot asks the VM to write out a system snapshot.
type CreateSnapshot struct{}

func (CreateSnapshot) Code() Code                    { return CodeCreateSnapshot }
func (CreateSnapshot) Serialize(IdTranslator) []byte { return nil }
func (CreateSnapshot) ExpectedReplies() ReplyCount   { return Fixed(1) }
func (CreateSnapshot) genericSafe()                  {}

var (
	_ GenericCommand = Debugging{}
	_ GenericCommand = LiveEditing{}
	_ GenericCommand = ProcessSpawnForMain{}
	_ GenericCommand = ProcessDebugInterrupt{}
	_ GenericCommand = SessionEnd{}
	_ GenericCommand = ProcessSetBreakpoint{}
	_ GenericCommand = ProcessDeleteBreakpoint{}
	_ GenericCommand = ProcessDeleteOneShotBreakpoint{}
	_ GenericCommand = PushFromMap{}
	_ GenericCommand = NewMap{}
	_ GenericCommand = DeleteMap{}
	_ GenericCommand = ProcessBacktraceRequest{}
	_ GenericCommand = ProcessAddFibersToMap{}
	_ GenericCommand = ProcessFiberBacktraceRequest{}
	_ GenericCommand = ProcessGetProcessIds{}
	_ GenericCommand = CreateSnapshot{}

	_ OutboundCommand = HandShake{}
	_ OutboundCommand = ProcessRun{}
	_ OutboundCommand = ProcessContinue{}
	_ OutboundCommand = ProcessStep{}
	_ OutboundCommand = ProcessStepTo{}
	_ OutboundCommand = ProcessStepOver{}
	_ OutboundCommand = ProcessStepOut{}
	_ OutboundCommand = ProcessUncaughtExceptionRequest{}
)
