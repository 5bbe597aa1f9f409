package telemetry

// ConnectionState is the lifecycle of a Channel's stream:
// CONNECTING → OPEN → (CLOSED → CONNECTING)*.
type ConnectionState int

const (
	// StateConnecting indicates a dial is pending or a reconnect is scheduled.
	StateConnecting ConnectionState = iota
	// StateOpen indicates frames are flowing.
	StateOpen
	// StateClosed indicates the stream dropped, or the channel was torn down.
	StateClosed
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
