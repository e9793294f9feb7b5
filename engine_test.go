package vmdbg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coldbrew-vm/vmdbg/internal/fakevm"
	"github.com/coldbrew-vm/vmdbg/wire"
)

func newTestEngine(t *testing.T) (*engine, *fakevm.FakeVM) {
	t.Helper()
	c, fv := fakevm.Pair(t)
	t.Cleanup(fv.Close)
	return newEngine(c, wire.IdentityTranslator, NewListenerRegistry(), zap.NewNop()), fv
}

func TestEngineRunCommandReturnsItsSingleReply(t *testing.T) {
	e, fv := newTestEngine(t)
	done := make(chan wire.InboundCommand, 1)
	go func() {
		reply, err := e.runCommand(wire.Debugging{})
		require.NoError(t, err)
		done <- reply
	}()

	fv.Expect(wire.CodeDebugging)
	fv.Reply(wire.CodeDebuggingReply, fakevm.DebuggingReplyPayload(false, 0))

	reply := <-done
	_, ok := reply.(wire.DebuggingReply)
	assert.True(t, ok)
}

func TestEngineReadNextSwallowsStdoutAndForwardsToListeners(t *testing.T) {
	c, fv := fakevm.Pair(t)
	defer fv.Close()
	listeners := NewListenerRegistry()
	rec := &recordingListener{}
	listeners.Add(rec)
	e := newEngine(c, wire.IdentityTranslator, listeners, zap.NewNop())

	done := make(chan wire.InboundCommand, 1)
	go func() {
		reply, err := e.readNext(true)
		require.NoError(t, err)
		done <- reply
	}()

	fv.Reply(wire.CodeStdoutData, []byte("out"))
	fv.ReplyEmpty(wire.CodeProcessTerminated)

	reply := <-done
	_, ok := reply.(wire.ProcessTerminated)
	assert.True(t, ok)
	assert.Contains(t, rec.snapshot(), "writeStdOut:out")
}

func TestEngineMaterializesConnectionErrorSentinelOnceAndMemoizes(t *testing.T) {
	e, fv := newTestEngine(t)
	fv.Close()

	first, err := e.readNext(true)
	require.NoError(t, err)
	_, ok := first.(wire.ConnectionError)
	require.True(t, ok)

	second, err := e.readNext(true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngineDrainReturnsNilAfterSentinelWithoutForce(t *testing.T) {
	e, fv := newTestEngine(t)
	fv.Close()

	require.NoError(t, e.drain(true))
}

func TestEngineDrainRejectsUnexpectedFrameWhenNotIgnoring(t *testing.T) {
	e, fv := newTestEngine(t)
	go fv.ReplyEmpty(wire.CodeProcessTerminated)

	err := e.drain(false)
	require.Error(t, err)
	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, ErrProtocolViolation, sessionErr.Kind)
}
