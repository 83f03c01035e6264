// internal/protocol/robofocus/errors.go
package robofocus

import (
	"errors"
	"fmt"
)

// Connection failure kinds.
var (
	// ErrOpenFailed indicates the OS or driver refused to open the port.
	ErrOpenFailed = errors.New("open failed")
	// ErrProbeFailed indicates the port opened but no Robofocus answered the version probe.
	ErrProbeFailed = errors.New("identity probe failed")
	// ErrNotReady indicates a command was issued on a connection that is not Ready.
	ErrNotReady = errors.New("connection not ready")
)

// Protocol failure kinds.
var (
	ErrTooShort         = errors.New("reply too short")
	ErrOpcodeMismatch   = errors.New("reply opcode mismatch")
	ErrBadChecksum      = errors.New("reply checksum mismatch")
	ErrBadPowerEncoding = errors.New("bad remote power encoding")
	ErrBadPayload       = errors.New("bad reply payload")
)

// ErrOutOfBounds is the kind of every RangeError.
var ErrOutOfBounds = errors.New("value out of bounds")

// ConnectionError reports a connection lifecycle failure.
type ConnectionError struct {
	Kind error
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("robofocus %s", e.Kind)
	if e.Port != "" {
		msg += " on " + e.Port
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is and errors.As.
func (e *ConnectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ProtocolError reports a malformed or unexpected reply.
type ProtocolError struct {
	Kind     error
	Frame    []byte // bytes collected, noise excluded
	Expected string // expected opcode, OpcodeMismatch only
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case ErrTooShort:
		return fmt.Sprintf("robofocus %s: got %d of %d bytes", e.Kind, len(e.Frame), FrameSize)
	case ErrOpcodeMismatch:
		return fmt.Sprintf("robofocus %s: want %q, got %q", e.Kind, e.Expected, e.Frame[:OpcodeSize])
	default:
		return fmt.Sprintf("robofocus %s: frame %q", e.Kind, e.Frame)
	}
}

func (e *ProtocolError) Unwrap() error {
	return e.Kind
}

// Timeout reports whether the device sent nothing at all before the read timeout.
func (e *ProtocolError) Timeout() bool {
	return e.Kind == ErrTooShort && len(e.Frame) == 0
}

// RangeError reports an operand rejected before anything was written.
type RangeError struct {
	Op    string
	Value int
	Min   int // exclusive
	Max   int // exclusive
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("robofocus %s: %d not in (%d, %d)", e.Op, e.Value, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error {
	return ErrOutOfBounds
}

func newProtocolError(kind error, frame []byte) *ProtocolError {
	return &ProtocolError{Kind: kind, Frame: append([]byte(nil), frame...)}
}
