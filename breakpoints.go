package vmdbg

import (
	"github.com/coldbrew-vm/vmdbg/wire"
)

// SetBreakpoint installs a breakpoint on every function named methodName in
// the current compiled system, recording one Breakpoint per match.
func (c *Controller) SetBreakpoint(methodName string) ([]*Breakpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.system == nil {
		return nil, nil
	}

	var installed []*Breakpoint
	for _, fn := range c.system.FunctionsByName(methodName) {
		bp, err := c.setBreakpointHelperLocked(fn, 0)
		if err != nil {
			return installed, err
		}
		installed = append(installed, bp)
	}
	return installed, nil
}

// SetFileBreakpoint resolves (file, line, column|pattern) to a function and
// bytecode index via the compiled system's debug info, then installs a
// breakpoint there. Returns nil, nil if the position does not resolve.
func (c *Controller) SetFileBreakpoint(file string, line, column int, pattern string) (*Breakpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.system == nil {
		return nil, nil
	}

	fn, bytecodeIndex, ok := c.system.ResolvePosition(file, line, column, pattern)
	if !ok {
		return nil, nil
	}
	return c.setBreakpointHelperLocked(fn, bytecodeIndex)
}

// setBreakpointHelperLocked drives PushFromMap + ProcessSetBreakpoint
// manually rather than through run_commands, installs the resulting
// Breakpoint into the DebugState table, and fires breakpointAdded.
func (c *Controller) setBreakpointHelperLocked(fn FunctionRef, bytecodeIndex int) (*Breakpoint, error) {
	if err := c.engine.send(wire.PushFromMap{MapName: "methods", Id: fn.Id}); err != nil {
		return nil, err
	}
	if err := c.engine.send(wire.ProcessSetBreakpoint{BytecodeIndex: bytecodeIndex}); err != nil {
		return nil, err
	}
	reply, err := c.engine.readNext(true)
	if err != nil {
		return nil, err
	}
	result, ok := reply.(wire.ProcessSetBreakpointReply)
	if !ok {
		return nil, c.protocolViolation("expected ProcessSetBreakpointReply", reply)
	}

	bp := &Breakpoint{
		Id:            result.Value,
		Function:      fn,
		BytecodeIndex: bytecodeIndex,
	}
	c.debug.AddBreakpoint(bp)
	c.listeners.breakpointAdded(c.debug.CurrentProcessId, bp)
	return bp, nil
}

// DeleteBreakpoint removes a previously installed breakpoint by id, firing
// breakpointRemoved on success.
func (c *Controller) DeleteBreakpoint(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bp, ok := c.debug.Breakpoints[id]
	if !ok {
		return nil
	}
	if _, err := c.engine.runCommand(wire.ProcessDeleteBreakpoint{Id: id}); err != nil {
		return err
	}
	c.debug.RemoveBreakpoint(id)
	c.listeners.breakpointRemoved(c.debug.CurrentProcessId, bp)
	return nil
}
