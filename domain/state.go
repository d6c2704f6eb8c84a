package domain

// State is the lifecycle of a connection handler.
// Transitions only move forward: Handshaking → Authenticating → Active → Closing → Closed.
type State int32

const (
	Handshaking State = iota
	Authenticating
	Active
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Authenticating:
		return "authenticating"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
