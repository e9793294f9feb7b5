package vmdbg

// FunctionRef identifies a function within the current compiled system.
type FunctionRef struct {
	Id   int
	Name string
	Kind FunctionKind
}

// FunctionKind distinguishes user-visible functions from internal ones, used
// to compute BackTraceFrame visibility.
type FunctionKind int

const (
	FunctionKindNormal FunctionKind = iota
	FunctionKindInternal
)

// missingFunction is the sentinel substituted when a back-trace frame
// references an unknown function id (ErrMissingFunction, recovered locally).
var missingFunction = FunctionRef{Id: -1, Name: "<missing function>", Kind: FunctionKindInternal}

// Breakpoint is owned by the DebugState keyed by Id.
type Breakpoint struct {
	Id             int
	Function       FunctionRef
	BytecodeIndex  int
	IsOneShot      bool
}

// BackTraceFrame is one frame of a cached backtrace.
type BackTraceFrame struct {
	FunctionId      int
	BytecodePointer int
	IsVisible       bool
}

// BackTrace is an ordered sequence of frames with a visible-index to
// absolute-index mapping. Cached per-pause; invalidated on any transition out
// of paused.
type BackTrace struct {
	Frames  []BackTraceFrame
	visible []int // visible index -> absolute index
}

// NewBackTrace builds a BackTrace from raw frames, computing the visible-index
// mapping from each frame's IsVisible flag.
func NewBackTrace(frames []BackTraceFrame) *BackTrace {
	bt := &BackTrace{Frames: frames}
	for i, f := range frames {
		if f.IsVisible {
			bt.visible = append(bt.visible, i)
		}
	}
	return bt
}

// ActualFrameNumber maps a visible frame index to its absolute index, or -1
// if out of range.
func (bt *BackTrace) ActualFrameNumber(visibleIndex int) int {
	if visibleIndex < 0 || visibleIndex >= len(bt.visible) {
		return -1
	}
	return bt.visible[visibleIndex]
}

// VisibleFrameCount reports how many frames are visible.
func (bt *BackTrace) VisibleFrameCount() int { return len(bt.visible) }

// TopFrame returns the innermost (first) frame, or nil if empty.
func (bt *BackTrace) TopFrame() *BackTraceFrame {
	if len(bt.Frames) == 0 {
		return nil
	}
	return &bt.Frames[0]
}

// RemoteValue is a leaf primitive value returned by a structured object read.
type RemoteValue struct {
	Payload []byte
}

// RemoteObject is a structured heap object returned by a structured object
// read: an instance's fields or an array's elements.
type RemoteObject struct {
	ClassId int
	Fields  []RemoteObjectValue
}

// RemoteArray is an array slice returned by a structured object read.
type RemoteArray struct {
	StartIndex int
	Elements   []RemoteObjectValue
}

// RemoteErrorObject stands in for any structured-object-read variant the
// controller does not recognize.
type RemoteErrorObject struct {
	Message string
}

// RemoteObjectValue is any of RemoteValue, *RemoteObject, *RemoteArray, or
// RemoteErrorObject, as returned by a recursive structured object read.
type RemoteObjectValue interface {
	isRemoteObjectValue()
}

func (RemoteValue) isRemoteObjectValue()      {}
func (*RemoteObject) isRemoteObjectValue()    {}
func (*RemoteArray) isRemoteObjectValue()     {}
func (RemoteErrorObject) isRemoteObjectValue() {}

// DebugState holds the current process id, top frame, breakpoints table,
// current backtrace cache, and display flags. Reset on every handled
// process-stop, leaving the breakpoint table intact.
type DebugState struct {
	CurrentProcessId         int
	TopFrame                 *FunctionRef
	CurrentBytecodePointer   int
	CurrentBackTrace         *BackTrace
	Breakpoints              map[int]*Breakpoint
	CurrentFrameNumber       int
	ShowInternalFrames       bool
	CurrentUncaughtException *RemoteObjectValue
}

// NewDebugState returns a freshly initialized DebugState with an empty
// breakpoint table.
func NewDebugState() *DebugState {
	return &DebugState{Breakpoints: make(map[int]*Breakpoint)}
}

// Reset clears the current backtrace and uncaught exception, per process-stop
// handling, but leaves the breakpoint table intact.
func (ds *DebugState) Reset() {
	ds.CurrentBackTrace = nil
	ds.CurrentUncaughtException = nil
	ds.CurrentFrameNumber = 0
}

// SelectFrame succeeds iff a current backtrace exists and the visible index
// maps to a valid absolute frame.
func (ds *DebugState) SelectFrame(n int) bool {
	if ds.CurrentBackTrace == nil {
		return false
	}
	if ds.CurrentBackTrace.ActualFrameNumber(n) == -1 {
		return false
	}
	ds.CurrentFrameNumber = n
	return true
}

// AddBreakpoint installs bp into the breakpoint table.
func (ds *DebugState) AddBreakpoint(bp *Breakpoint) {
	ds.Breakpoints[bp.Id] = bp
}

// RemoveBreakpoint removes the breakpoint with the given id, reporting
// whether it was present.
func (ds *DebugState) RemoveBreakpoint(id int) (*Breakpoint, bool) {
	bp, ok := ds.Breakpoints[id]
	if ok {
		delete(ds.Breakpoints, id)
	}
	return bp, ok
}
