package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is reported when an outbound frame is attempted while
	// the session is not connected.
	ErrNotConnected = errors.New("session: not connected")
	// ErrEmptyMessage is reported when Send receives blank text.
	ErrEmptyMessage = errors.New("session: empty message")
	// ErrReconnectExhausted marks the terminal Failed state.
	ErrReconnectExhausted = errors.New("session: reconnect attempts exhausted")
	// ErrInvalidPayload is reported when a batch payload is not valid JSON.
	ErrInvalidPayload = errors.New("session: invalid batch payload")
)

// TransportError wraps a socket-level failure. Op is one of "dial",
// "read" or "write".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is an error reported by the backend in an "error" frame.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "backend error: " + e.Message
}

// DecodeError wraps a malformed inbound frame.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
