package vmdbg

import (
	"github.com/coldbrew-vm/vmdbg/wire"
)

// location identifies where execution is currently stopped, for the purposes
// of the step loops below.
type location struct {
	functionId int
	bcp        int
}

func (c *Controller) currentLocationLocked() location {
	loc := location{functionId: -1, bcp: c.debug.CurrentBytecodePointer}
	if c.debug.TopFrame != nil {
		loc.functionId = c.debug.TopFrame.Id
	}
	return loc
}

// Step performs a source-level single step: it keeps issuing bytecode-level
// steps (or a direct jump to the next point known to leave the current
// location, when the compiled system's source map offers one) until the
// location changes, the session leaves paused, or a step makes no progress.
func (c *Controller) Step() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.vmState.IsPaused() {
		panic("Step called while not paused")
	}

	previous := c.currentLocationLocked()
	for {
		before := c.currentLocationLocked()

		if err := c.issueStepLocked(before); err != nil {
			return err
		}
		reply, err := c.engine.readNext(true)
		if err != nil {
			return err
		}
		if err := c.handleStopLocked(reply); err != nil {
			return err
		}

		if !c.vmState.IsPaused() {
			return nil
		}
		after := c.currentLocationLocked()
		if after == before {
			return nil
		}
		if after != previous {
			return nil
		}
	}
}

// issueStepLocked asks the compiled system for the next bytecode pointer
// that would leave at's location; when one exists it pushes the owning
// function and steps straight to it, otherwise it falls back to a single
// bytecode step.
func (c *Controller) issueStepLocked(at location) error {
	if c.system != nil {
		if bcp, ok := c.system.NextStepLocation(at.functionId, at.bcp); ok {
			if err := c.engine.send(wire.PushFromMap{MapName: "methods", Id: at.functionId}); err != nil {
				return err
			}
			return c.engine.send(wire.ProcessStepTo{BytecodePointer: bcp})
		}
	}
	return c.engine.send(wire.ProcessStep{})
}

// StepOver behaves like Step but drives the VM's one-shot-breakpoint-assisted
// step-over protocol each iteration: ProcessStepOver replies with the
// allocated one-shot id before the next stop arrives, and the one-shot is
// deleted whenever the stop that follows is not the one-shot itself.
func (c *Controller) StepOver() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.vmState.IsPaused() {
		panic("StepOver called while not paused")
	}

	previous := c.currentLocationLocked()
	for {
		before := c.currentLocationLocked()

		if err := c.engine.send(wire.ProcessStepOver{}); err != nil {
			return err
		}
		oneShotReply, err := c.engine.readNext(true)
		if err != nil {
			return err
		}
		oneShot, ok := oneShotReply.(wire.ProcessSetBreakpointReply)
		if !ok {
			return c.protocolViolation("expected ProcessSetBreakpointReply for stepOver one-shot", oneShotReply)
		}
		c.debug.AddBreakpoint(&Breakpoint{Id: oneShot.Value, IsOneShot: true})

		reply, err := c.engine.readNext(true)
		if err != nil {
			return err
		}
		if err := c.deleteStaleOneShotLocked(reply, oneShot.Value); err != nil {
			return err
		}
		if err := c.handleStopLocked(reply); err != nil {
			return err
		}
		c.debug.RemoveBreakpoint(oneShot.Value)

		if !c.vmState.IsPaused() {
			return nil
		}
		after := c.currentLocationLocked()
		if after == before {
			return nil
		}
		if after != previous {
			return nil
		}
	}
}

// deleteStaleOneShotLocked deletes the one-shot breakpoint oneShotId when the
// step did not terminate at that one-shot and the session remains paused,
// i.e. when reply is a ProcessBreakpoint for a different breakpoint. Any other
// reply (the one-shot's own hit, termination, or a ConnectionError) sends
// nothing.
func (c *Controller) deleteStaleOneShotLocked(reply wire.InboundCommand, oneShotId int) error {
	bp, ok := reply.(wire.ProcessBreakpoint)
	if !ok || bp.BreakpointId == oneShotId {
		return nil
	}
	return c.engine.send(wire.ProcessDeleteOneShotBreakpoint{Id: oneShotId})
}

// StepOut runs until control returns to the caller of the current top frame.
// A process with at most one visible frame has no caller to return to, so it
// degrades to Cont. When the final stop lands exactly on the caller's return
// location, one additional source-level Step moves past the call site.
func (c *Controller) StepOut() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.vmState.IsPaused() {
		panic("StepOut called while not paused")
	}

	bt, err := c.backTraceLocked(c.debug.CurrentProcessId)
	if err != nil {
		return err
	}
	if bt.VisibleFrameCount() <= 1 {
		c.mu.Unlock()
		err := c.Cont()
		c.mu.Lock()
		return err
	}

	var returnLocation location
	if callerIdx := bt.ActualFrameNumber(1); callerIdx != -1 {
		caller := bt.Frames[callerIdx]
		returnLocation = location{functionId: caller.FunctionId, bcp: caller.BytecodePointer}
	}

	for {
		if err := c.engine.send(wire.ProcessStepOut{}); err != nil {
			return err
		}
		oneShotReply, err := c.engine.readNext(true)
		if err != nil {
			return err
		}
		oneShot, ok := oneShotReply.(wire.ProcessSetBreakpointReply)
		if !ok {
			return c.protocolViolation("expected ProcessSetBreakpointReply for stepOut one-shot", oneShotReply)
		}
		c.debug.AddBreakpoint(&Breakpoint{Id: oneShot.Value, IsOneShot: true})

		reply, err := c.engine.readNext(true)
		if err != nil {
			return err
		}
		if bp, ok := reply.(wire.ProcessBreakpoint); !ok || bp.BreakpointId != oneShot.Value {
			if err := c.deleteStaleOneShotLocked(reply, oneShot.Value); err != nil {
				return err
			}
			err := c.handleStopLocked(reply)
			c.debug.RemoveBreakpoint(oneShot.Value)
			return err
		}

		if err := c.handleStopLocked(reply); err != nil {
			c.debug.RemoveBreakpoint(oneShot.Value)
			return err
		}
		c.debug.RemoveBreakpoint(oneShot.Value)
		if !c.vmState.IsPaused() {
			return nil
		}
		if c.debug.TopFrame != nil && c.debug.TopFrame.Kind == FunctionKindNormal {
			break
		}
	}

	landed := c.currentLocationLocked()
	if landed == returnLocation {
		c.mu.Unlock()
		err := c.Step()
		c.mu.Lock()
		return err
	}
	return nil
}
