package hyperftp

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure kinds. They are matched through
// errors.Is against the typed errors below.
var (
	// ErrCancelled reports that a transfer was cancelled cooperatively.
	ErrCancelled = errors.New("ftp: transfer cancelled")

	// ErrNotFound matches permanent-negative replies for a missing remote
	// file or directory (550).
	ErrNotFound = errors.New("ftp: no such file or directory")

	// ErrPermissionDenied matches permanent-negative replies for
	// insufficient privileges (530, 532, 533, 553).
	ErrPermissionDenied = errors.New("ftp: permission denied")
)

// ProtocolError represents a negative server reply with full context of the
// command/reply conversation.
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g., "STOR file.txt")
	Command string

	// Response is the raw reply text received from the server
	Response string

	// Code is the three-digit FTP reply code (e.g., 550)
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// IsTemporary reports whether the reply is a transient failure (4xx).
func (e *ProtocolError) IsTemporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsPermanent reports whether the reply is a permanent failure (5xx).
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}

// Is maps well-known reply codes onto the package sentinels so callers can
// branch with errors.Is without inspecting codes themselves.
func (e *ProtocolError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == 550
	case ErrPermissionDenied:
		return e.Code == 530 || e.Code == 532 || e.Code == 533 || e.Code == 553
	}
	return false
}

// ConnectError reports a failure to establish or keep the control channel.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ftp: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TLSError reports a failed TLS upgrade or handshake.
type TLSError struct {
	Err error
}

func (e *TLSError) Error() string { return fmt.Sprintf("ftp: tls: %v", e.Err) }

func (e *TLSError) Unwrap() error { return e.Err }

// DataChannelError reports a failed data-channel negotiation, connection,
// accept, or mid-transfer read/write.
type DataChannelError struct {
	// Mode is "passive", "active", or "transfer".
	Mode string
	Err  error
}

func (e *DataChannelError) Error() string {
	return fmt.Sprintf("ftp: %s data channel: %v", e.Mode, e.Err)
}

func (e *DataChannelError) Unwrap() error { return e.Err }

// StateError reports an operation requested while the session was in a phase
// that does not permit it.
type StateError struct {
	Op    string
	Phase Phase
}

func (e *StateError) Error() string {
	return fmt.Sprintf("ftp: %s not allowed in phase %s", e.Op, e.Phase)
}

// IOError reports a local filesystem failure during a transfer.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("ftp: local file %s: %v", e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// OpError wraps a failure with the operation name and remote path so the
// caller can render an actionable message.
type OpError struct {
	// Op is the operation that failed ("upload", "list", "delete", ...).
	Op string

	// Path is the remote path the operation targeted, if any.
	Path string

	Err error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("ftp: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ftp: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
