package vmdbg

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coldbrew-vm/vmdbg/conn"
	"github.com/coldbrew-vm/vmdbg/metrics"
	"github.com/coldbrew-vm/vmdbg/wire"
)

// engine is the Request/Reply Engine: sequential send, read-N-replies per
// command, connection-error materialization, and shutdown drain. It
// generalizes the teacher's PluginHost reader loop and pending-request
// bookkeeping to this wire's simpler model — replies are consumed in wire
// order with no per-request id correlation, since exactly one high-level
// operation is ever in flight at a time (see controller.go).
type engine struct {
	sessionId  uuid.UUID
	c          conn.Connection
	reader     *wire.FrameReader
	writer     *wire.FrameWriter
	translator wire.IdTranslator
	listeners  *ListenerRegistry
	log        *zap.Logger

	mu       sync.Mutex
	sentinel wire.InboundCommand
}

func newEngine(c conn.Connection, translator wire.IdTranslator, listeners *ListenerRegistry, log *zap.Logger) *engine {
	sessionId := uuid.New()
	return &engine{
		sessionId:  sessionId,
		c:          c,
		reader:     wire.NewFrameReader(c),
		writer:     wire.NewFrameWriter(c),
		translator: translator,
		listeners:  listeners,
		log:        log.With(zap.String("session_id", sessionId.String())),
	}
}

func (e *engine) setTranslator(t wire.IdTranslator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.translator = t
}

// send serializes and writes a single outbound command.
func (e *engine) send(cmd wire.OutboundCommand) error {
	payload := cmd.Serialize(e.translator)
	frame := &wire.Frame{Code: cmd.Code(), Payload: payload}
	if err := e.writer.WriteFrame(frame); err != nil {
		return newSessionError(ErrConnectionLost, err.Error(), err)
	}
	metrics.Get().FramesSent.WithLabelValues(cmd.Code().String()).Inc()
	return nil
}

// readNext is the Event Demultiplexer: it consumes frames from the inbound
// stream, silently forwarding stdio frames to listeners, until it finds a
// frame the Request/Reply Engine should see. force selects sentinel
// materialization behavior on stream termination: force=true always returns
// the (memoized) ConnectionError sentinel; force=false returns nil, used only
// during shutdown drain.
func (e *engine) readNext(force bool) (wire.InboundCommand, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sentinel != nil {
		if force {
			return e.sentinel, nil
		}
		return nil, nil
	}

	for {
		frame, err := e.reader.ReadFrame()
		if err != nil {
			return e.materializeSentinel(err, force)
		}

		cmd, err := wire.Decode(frame)
		if err != nil {
			return e.materializeSentinel(err, force)
		}
		metrics.Get().FramesReceived.WithLabelValues(cmd.Code().String()).Inc()

		switch v := cmd.(type) {
		case wire.StdoutData:
			e.listeners.writeStdOut(0, v.Bytes)
		case wire.StderrData:
			e.listeners.writeStdErr(0, v.Bytes)
		default:
			return cmd, nil
		}
	}
}

func (e *engine) materializeSentinel(cause error, force bool) (wire.InboundCommand, error) {
	e.sentinel = wire.ConnectionError{Cause: cause}
	metrics.Get().ConnectionErrors.Inc()
	e.log.Warn("connection lost", zap.Error(cause))
	if force {
		return e.sentinel, nil
	}
	return nil, nil
}

// runCommands implements run_commands(cs): reject manual commands is enforced
// at the type level by GenericCommand; for each command in order, serialize
// then read exactly its declared reply count, retaining only the last reply.
func (e *engine) runCommands(cmds []wire.GenericCommand) (wire.InboundCommand, error) {
	var last wire.InboundCommand
	for _, c := range cmds {
		if err := e.send(c); err != nil {
			return nil, err
		}
		n := c.ExpectedReplies().N()
		for i := 0; i < n; i++ {
			reply, err := e.readNext(true)
			if err != nil {
				return nil, err
			}
			last = reply
		}
	}
	return last, nil
}

// runCommand is the single-command convenience form of runCommands.
func (e *engine) runCommand(c wire.GenericCommand) (wire.InboundCommand, error) {
	return e.runCommands([]wire.GenericCommand{c})
}

// drain reads and discards any buffered inbound frames during shutdown. Any
// non-nil frame observed while ignoreExtraCommands is false is a protocol
// error; the caller (Controller.Shutdown) invokes kill before surfacing it.
func (e *engine) drain(ignoreExtraCommands bool) error {
	for {
		cmd, err := e.readNext(false)
		if err != nil {
			return err
		}
		if cmd == nil {
			return nil
		}
		if !ignoreExtraCommands {
			return newSessionError(ErrProtocolViolation,
				fmt.Sprintf("unexpected frame during shutdown: %s", cmd.Code()), nil)
		}
	}
}
