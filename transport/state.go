package transport

import "time"

// State is the connection state of a Transport
type State int

// Connection states
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateEvent is a lifecycle notification. Reconnect is set for transitions
// that belong to an automatic reconnection round. Err carries the cause of a
// drop or of a failed connection attempt.
type StateEvent struct {
	State     State
	Reconnect bool
	Err       error
	At        time.Time
}

// MessageHandler receives every inbound frame in arrival order
type MessageHandler func(binary bool, payload []byte)

// StateHandler receives lifecycle notifications
type StateHandler func(StateEvent)
