// Package vmdbg implements the client-side state machine and binary wire
// protocol driver for controlling a remote language-runtime VM: loading and
// live-patching compiled code, spawning and controlling a debug process,
// setting breakpoints, stepping, inspecting stack frames and heap objects,
// and dispatching asynchronous stdio and lifecycle events to listeners.
package vmdbg

import "fmt"

// SessionError is the taxonomy of errors this package raises, generalizing
// the teacher's HostError/HostErrorType enum-plus-Error() pattern to the
// debug session domain's failure modes.
type SessionError struct {
	Kind    SessionErrorKind
	Message string
	Cause   error
}

// SessionErrorKind enumerates the kinds of SessionError.
type SessionErrorKind int

const (
	// ErrConnectionLost is returned when writing a command to the connection
	// fails. A connection lost on the read side surfaces instead as the
	// ConnectionError inbound sentinel, which terminates the session and
	// notifies LostConnection.
	ErrConnectionLost SessionErrorKind = iota
	// ErrProtocolViolation covers an unexpected reply code or a reply-count
	// mismatch. Fatal.
	ErrProtocolViolation
	// ErrHandshakeTimeout means the deadline elapsed before a HandShakeResult
	// arrived. The session remains usable only for shutdown.
	ErrHandshakeTimeout
	// ErrSnapshotHashMismatch means the loaded snapshot's hash does not match
	// DebuggingReply.SnapshotHash. Fatal at Initialize.
	ErrSnapshotHashMismatch
	// ErrInfoFileNotFound means the snapshot info file could not be read.
	ErrInfoFileNotFound
	// ErrMalformedInfoFile means the snapshot info file failed validation or
	// decoding.
	ErrMalformedInfoFile
	// ErrSessionTerminated means a command was issued after the session
	// reached VmStateTerminated. Caller error.
	ErrSessionTerminated
	// ErrMissingFunction means a back-trace frame referenced an unknown
	// function id; recovered locally with a sentinel frame, so this kind is
	// informational rather than fatal.
	ErrMissingFunction
)

func (e *SessionError) Error() string {
	switch e.Kind {
	case ErrConnectionLost:
		return fmt.Sprintf("connection lost: %s", e.Message)
	case ErrProtocolViolation:
		return fmt.Sprintf("protocol violation: %s", e.Message)
	case ErrHandshakeTimeout:
		return fmt.Sprintf("handshake timed out: %s", e.Message)
	case ErrSnapshotHashMismatch:
		return fmt.Sprintf("snapshot hash mismatch: %s", e.Message)
	case ErrInfoFileNotFound:
		return fmt.Sprintf("info file not found: %s", e.Message)
	case ErrMalformedInfoFile:
		return fmt.Sprintf("malformed info file: %s", e.Message)
	case ErrSessionTerminated:
		return "session already terminated"
	case ErrMissingFunction:
		return fmt.Sprintf("missing function: %s", e.Message)
	default:
		return fmt.Sprintf("session error: %s", e.Message)
	}
}

func (e *SessionError) Unwrap() error { return e.Cause }

func newSessionError(kind SessionErrorKind, msg string, cause error) *SessionError {
	return &SessionError{Kind: kind, Message: msg, Cause: cause}
}
