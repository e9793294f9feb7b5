// Package fakevm provides a scripted stand-in for the remote VM process,
// driving one end of a net.Pipe() so controller tests can assert exact frame
// traffic without a real subprocess, in the style of the source's
// net.Pipe()-based plugin simulation harnesses.
package fakevm

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldbrew-vm/vmdbg/conn"
	"github.com/coldbrew-vm/vmdbg/wire"
)

// FakeVM is the scripting handle for the VM side of a piped connection.
type FakeVM struct {
	t      *testing.T
	reader *wire.FrameReader
	writer *wire.FrameWriter
	conn   net.Conn
}

// Pair creates a net.Pipe(), wraps the controller's end in a
// conn.Connection, and returns a FakeVM scripting handle for the other end.
func Pair(t *testing.T) (conn.Connection, *FakeVM) {
	t.Helper()
	vmSide, controllerSide := net.Pipe()
	fv := &FakeVM{
		t:      t,
		reader: wire.NewFrameReader(vmSide),
		writer: wire.NewFrameWriter(vmSide),
		conn:   vmSide,
	}
	return conn.NewTCPConnection(controllerSide), fv
}

// Close releases the VM-side pipe end.
func (f *FakeVM) Close() { _ = f.conn.Close() }

// Expect reads the next frame and requires it to carry the given code,
// returning its payload.
func (f *FakeVM) Expect(code wire.Code) []byte {
	f.t.Helper()
	frame, err := f.reader.ReadFrame()
	require.NoError(f.t, err)
	require.Equal(f.t, code, frame.Code, "unexpected frame code")
	return frame.Payload
}

// Reply writes a frame with the given code and raw payload.
func (f *FakeVM) Reply(code wire.Code, payload []byte) {
	f.t.Helper()
	require.NoError(f.t, f.writer.WriteFrame(&wire.Frame{Code: code, Payload: payload}))
}

// ReplyEmpty writes a frame with the given code and no payload.
func (f *FakeVM) ReplyEmpty(code wire.Code) {
	f.Reply(code, nil)
}

// Uint32Payload encodes a single uint32 field, the common case for
// fixed-width replies like ProcessSetBreakpoint{value}.
func Uint32Payload(v int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return b[:]
}

// Uint32x2Payload encodes two consecutive uint32 fields.
func Uint32x2Payload(a, b int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(a))
	binary.BigEndian.PutUint32(buf[4:8], uint32(b))
	return buf
}

// Uint32x4Payload encodes four consecutive uint32 fields, the shape used by
// ProcessBreakpoint{process_id, breakpoint_id, function_id, bytecode_index}.
func Uint32x4Payload(a, b, c, d int) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(a))
	binary.BigEndian.PutUint32(buf[4:8], uint32(b))
	binary.BigEndian.PutUint32(buf[8:12], uint32(c))
	binary.BigEndian.PutUint32(buf[12:16], uint32(d))
	return buf
}

// DebuggingReplyPayload encodes DebuggingReply{is_from_snapshot, snapshot_hash}.
func DebuggingReplyPayload(isFromSnapshot bool, hash uint64) []byte {
	buf := make([]byte, 9)
	if isFromSnapshot {
		buf[0] = 1
	}
	binary.BigEndian.PutUint64(buf[1:9], hash)
	return buf
}
