package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// hasMetaExtension reports whether a code's wire layout reserves room for a
// trailing CBOR-encoded Meta blob (the CBOR bytes followed by a 2-byte
// big-endian count of them, appended after the command's fixed payload).
func hasMetaExtension(c Code) bool {
	return c == CodeHandShake || c == CodeHandShakeResult || c == CodeConnectionError
}

// FrameReader reads length-prefixed frames from a stream: a 4-byte big-endian
// length, a 1-byte command code, and a payload. HandShake/HandShakeResult and
// ConnectionError frames additionally carry a trailing 2-byte meta length plus
// that many bytes of CBOR-encoded metadata.
type FrameReader struct {
	reader io.Reader
	limits Limits
}

// NewFrameReader creates a new FrameReader using the default limits.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{reader: r, limits: DefaultLimits()}
}

// SetLimits updates the reader's accepted frame size.
func (fr *FrameReader) SetLimits(limits Limits) {
	fr.limits = limits
}

// ReadFrame reads a single frame from the stream.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(fr.reader, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])

	if int(length) > fr.limits.MaxFrame {
		return nil, fmt.Errorf("frame size %d exceeds max_frame limit %d", length, fr.limits.MaxFrame)
	}
	if int(length) > MaxFrameHardLimit {
		return nil, fmt.Errorf("frame size %d exceeds hard limit %d", length, MaxFrameHardLimit)
	}
	if length < 1 {
		return nil, fmt.Errorf("frame too short: %d bytes", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.reader, body); err != nil {
		return nil, err
	}

	code := Code(body[0])
	rest := body[1:]

	if !hasMetaExtension(code) {
		return &Frame{Code: code, Payload: rest}, nil
	}

	if len(rest) < 2 {
		return &Frame{Code: code, Payload: rest}, nil
	}
	metaLen := binary.BigEndian.Uint16(rest[len(rest)-2:])
	if int(metaLen) > len(rest)-2 {
		return nil, fmt.Errorf("frame %s: meta length %d exceeds remaining %d bytes", code, metaLen, len(rest)-2)
	}

	split := len(rest) - 2 - int(metaLen)
	frame := &Frame{Code: code, Payload: rest[:split]}
	if metaLen > 0 {
		if err := frame.DecodeMeta(rest[split : split+int(metaLen)]); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// FrameWriter writes length-prefixed frames to a stream.
type FrameWriter struct {
	writer io.Writer
	limits Limits
}

// NewFrameWriter creates a new FrameWriter using the default limits.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{writer: w, limits: DefaultLimits()}
}

// SetLimits updates the writer's accepted frame size.
func (fw *FrameWriter) SetLimits(limits Limits) {
	fw.limits = limits
}

// WriteFrame writes a single frame to the stream.
func (fw *FrameWriter) WriteFrame(frame *Frame) error {
	body := make([]byte, 0, 1+len(frame.Payload)+2)
	body = append(body, byte(frame.Code))
	body = append(body, frame.Payload...)

	if hasMetaExtension(frame.Code) {
		metaBytes, err := frame.EncodeMeta()
		if err != nil {
			return err
		}
		body = append(body, metaBytes...)
		var metaLenBuf [2]byte
		binary.BigEndian.PutUint16(metaLenBuf[:], uint16(len(metaBytes)))
		body = append(body, metaLenBuf[:]...)
	}

	if len(body) > fw.limits.MaxFrame {
		return fmt.Errorf("encoded frame size %d exceeds max_frame limit %d", len(body), fw.limits.MaxFrame)
	}
	if len(body) > MaxFrameHardLimit {
		return fmt.Errorf("encoded frame size %d exceeds hard limit %d", len(body), MaxFrameHardLimit)
	}

	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(body)))
	if _, err := fw.writer.Write(lengthBuf[:]); err != nil {
		return err
	}
	if _, err := fw.writer.Write(body); err != nil {
		return err
	}
	return nil
}
