package monitor

// SessionState represents the lifecycle of a monitoring session.
type SessionState int

const (
	// StateIdle is the rest state before a session starts and after it ends.
	StateIdle SessionState = iota
	// StateConnecting is the window between a start request and the
	// upstream session becoming usable.
	StateConnecting
	// StateActive is a live session streaming audio both ways.
	StateActive
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}
