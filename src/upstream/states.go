package upstream

// State is a node of the link state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected // transport up, not authorized
	StateAuthorizing
	StateAuthorized
	StateReconnecting // disconnected, reconnect pending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthorized:
		return "authorized"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// TransportUp reports whether a socket is currently open in this state.
func (s State) TransportUp() bool {
	return s == StateConnected || s == StateAuthorizing || s == StateAuthorized
}
