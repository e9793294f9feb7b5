package vmdbg

import (
	"github.com/coldbrew-vm/vmdbg/wire"
)

// BackTrace returns the current call stack for processId, using the
// DebugState's per-pause cache when present. Must be called while paused or
// terminating; the cache is invalidated by Reset on every resume.
func (c *Controller) BackTrace(processId int) (*BackTrace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backTraceLocked(processId)
}

func (c *Controller) backTraceLocked(processId int) (*BackTrace, error) {
	if c.debug.CurrentBackTrace != nil {
		return c.debug.CurrentBackTrace, nil
	}

	reply, err := c.engine.runCommand(wire.ProcessBacktraceRequest{ProcessId: processId})
	if err != nil {
		return nil, err
	}
	raw, ok := reply.(wire.ProcessBacktrace)
	if !ok {
		return nil, c.protocolViolation("expected ProcessBacktrace", reply)
	}

	frames := make([]BackTraceFrame, raw.Frames)
	for i := 0; i < raw.Frames; i++ {
		functionId := c.translator.FromWire(raw.FunctionIds[i])
		fn := c.resolveFunctionLocked(functionId)
		frames[i] = BackTraceFrame{
			FunctionId:      functionId,
			BytecodePointer: raw.BytecodeIndices[i],
			IsVisible:       c.debug.ShowInternalFrames || fn.Kind == FunctionKindNormal,
		}
	}

	bt := NewBackTrace(frames)
	c.debug.CurrentBackTrace = bt
	return bt, nil
}

// Fibers enumerates the cooperative sub-stacks of the current process: stage
// the fibers map, request each fiber's backtrace in order, then release the
// map. ProcessNumberOfStacks.Value gives the fiber count to iterate.
func (c *Controller) Fibers() ([]*BackTrace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.engine.runCommand(wire.NewMap{MapName: "fibers"}); err != nil {
		return nil, err
	}
	reply, err := c.engine.runCommand(wire.ProcessAddFibersToMap{})
	if err != nil {
		return nil, err
	}
	count, ok := reply.(wire.ProcessNumberOfStacks)
	if !ok {
		return nil, c.protocolViolation("expected ProcessNumberOfStacks", reply)
	}

	backtraces := make([]*BackTrace, 0, count.Value)
	for i := 0; i < count.Value; i++ {
		btReply, err := c.engine.runCommand(wire.ProcessFiberBacktraceRequest{Index: i})
		if err != nil {
			return nil, err
		}
		raw, ok := btReply.(wire.ProcessBacktrace)
		if !ok {
			return nil, c.protocolViolation("expected ProcessBacktrace for fiber", btReply)
		}
		frames := make([]BackTraceFrame, raw.Frames)
		for j := 0; j < raw.Frames; j++ {
			functionId := c.translator.FromWire(raw.FunctionIds[j])
			fn := c.resolveFunctionLocked(functionId)
			frames[j] = BackTraceFrame{
				FunctionId:      functionId,
				BytecodePointer: raw.BytecodeIndices[j],
				IsVisible:       c.debug.ShowInternalFrames || fn.Kind == FunctionKindNormal,
			}
		}
		backtraces = append(backtraces, NewBackTrace(frames))
	}

	if _, err := c.engine.runCommand(wire.DeleteMap{MapName: "fibers"}); err != nil {
		return nil, err
	}
	return backtraces, nil
}
