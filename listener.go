package vmdbg

// Listener is a capability set of optional callbacks for session lifecycle
// events, matching the Design Notes guidance to express fan-out as a set of
// optional callbacks rather than a deep inheritance tree. Embed BaseListener
// to get no-op defaults and override only what you consume.
type Listener interface {
	ProcessStart(pid int)
	ProcessRunnable(pid int)
	ProcessExit(pid int)
	PauseStart(pid int)
	PauseExit(pid int, frame *BackTraceFrame)
	PauseBreakpoint(pid int, frame *BackTraceFrame, bp *Breakpoint)
	PauseInterrupted(pid int, frame *BackTraceFrame)
	PauseException(pid int, frame *BackTraceFrame, thrown RemoteObjectValue)
	Resume(pid int)
	BreakpointAdded(pid int, bp *Breakpoint)
	BreakpointRemoved(pid int, bp *Breakpoint)
	Gc(pid int)
	WriteStdOut(pid int, data []byte)
	WriteStdErr(pid int, data []byte)
	LostConnection()
	Terminated()

	// SnapshotReplaced fires when an attached InfoWatcher observes the
	// snapshot info file being written, renamed, or recreated on disk. The
	// registry never re-validates or swaps the translator itself; a listener
	// that wants to react must re-initialize explicitly.
	SnapshotReplaced()
}

// BaseListener implements Listener with no-op methods. Concrete listeners
// embed it and override only the callbacks they care about.
type BaseListener struct{}

func (BaseListener) ProcessStart(int)                                {}
func (BaseListener) ProcessRunnable(int)                             {}
func (BaseListener) ProcessExit(int)                                 {}
func (BaseListener) PauseStart(int)                                  {}
func (BaseListener) PauseExit(int, *BackTraceFrame)                  {}
func (BaseListener) PauseBreakpoint(int, *BackTraceFrame, *Breakpoint) {}
func (BaseListener) PauseInterrupted(int, *BackTraceFrame)           {}
func (BaseListener) PauseException(int, *BackTraceFrame, RemoteObjectValue) {}
func (BaseListener) Resume(int)                                      {}
func (BaseListener) BreakpointAdded(int, *Breakpoint)                {}
func (BaseListener) BreakpointRemoved(int, *Breakpoint)              {}
func (BaseListener) Gc(int)                                          {}
func (BaseListener) WriteStdOut(int, []byte)                         {}
func (BaseListener) WriteStdErr(int, []byte)                         {}
func (BaseListener) LostConnection()                                 {}
func (BaseListener) Terminated()                                     {}
func (BaseListener) SnapshotReplaced()                               {}

var _ Listener = BaseListener{}

// ListenerRegistry holds an ordered list of listeners and fans out
// notifications sequentially in subscription order. Listener failures never
// interrupt the core: a panic inside one callback is recovered and discarded,
// and dispatch continues with the next listener. Add ignores a nil listener.
type ListenerRegistry struct {
	listeners []Listener
}

// NewListenerRegistry returns an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{}
}

// Add subscribes a listener. Order of subscription is the order of dispatch.
func (r *ListenerRegistry) Add(l Listener) {
	if l == nil {
		return
	}
	r.listeners = append(r.listeners, l)
}

// Remove unsubscribes a listener, if present.
func (r *ListenerRegistry) Remove(l Listener) {
	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *ListenerRegistry) each(fn func(Listener)) {
	for _, l := range r.listeners {
		func() {
			defer func() { recover() }()
			fn(l)
		}()
	}
}

func (r *ListenerRegistry) processStart(pid int)      { r.each(func(l Listener) { l.ProcessStart(pid) }) }
func (r *ListenerRegistry) processRunnable(pid int)    { r.each(func(l Listener) { l.ProcessRunnable(pid) }) }
func (r *ListenerRegistry) processExit(pid int)        { r.each(func(l Listener) { l.ProcessExit(pid) }) }
func (r *ListenerRegistry) pauseStart(pid int)         { r.each(func(l Listener) { l.PauseStart(pid) }) }
func (r *ListenerRegistry) pauseExit(pid int, f *BackTraceFrame) {
	r.each(func(l Listener) { l.PauseExit(pid, f) })
}
func (r *ListenerRegistry) pauseBreakpoint(pid int, f *BackTraceFrame, bp *Breakpoint) {
	r.each(func(l Listener) { l.PauseBreakpoint(pid, f, bp) })
}
func (r *ListenerRegistry) pauseInterrupted(pid int, f *BackTraceFrame) {
	r.each(func(l Listener) { l.PauseInterrupted(pid, f) })
}
func (r *ListenerRegistry) pauseException(pid int, f *BackTraceFrame, thrown RemoteObjectValue) {
	r.each(func(l Listener) { l.PauseException(pid, f, thrown) })
}
func (r *ListenerRegistry) resume(pid int) { r.each(func(l Listener) { l.Resume(pid) }) }
func (r *ListenerRegistry) breakpointAdded(pid int, bp *Breakpoint) {
	r.each(func(l Listener) { l.BreakpointAdded(pid, bp) })
}
func (r *ListenerRegistry) breakpointRemoved(pid int, bp *Breakpoint) {
	r.each(func(l Listener) { l.BreakpointRemoved(pid, bp) })
}
func (r *ListenerRegistry) gc(pid int) { r.each(func(l Listener) { l.Gc(pid) }) }
func (r *ListenerRegistry) writeStdOut(pid int, data []byte) {
	r.each(func(l Listener) { l.WriteStdOut(pid, data) })
}
func (r *ListenerRegistry) writeStdErr(pid int, data []byte) {
	r.each(func(l Listener) { l.WriteStdErr(pid, data) })
}
func (r *ListenerRegistry) lostConnection()   { r.each(func(l Listener) { l.LostConnection() }) }
func (r *ListenerRegistry) terminated()       { r.each(func(l Listener) { l.Terminated() }) }
func (r *ListenerRegistry) snapshotReplaced() { r.each(func(l Listener) { l.SnapshotReplaced() }) }
