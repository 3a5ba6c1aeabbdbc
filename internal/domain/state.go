package domain

import "fmt"

// ConnectionState is the lifecycle state of the assistant session.
type ConnectionState int

const (
	// StateDisconnected means no connection exists and none is scheduled.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a transport dial is in flight.
	StateConnecting
	// StateConnected means the transport is open and frames flow.
	StateConnected
	// StateReconnecting means a reconnect attempt is scheduled.
	StateReconnecting
	// StateFailed means reconnect attempts are exhausted. Only a manual
	// reconnect leaves this state.
	StateFailed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateChange describes one transition of the session state machine.
type StateChange struct {
	From    ConnectionState
	To      ConnectionState
	Attempt int
	Err     error
}
