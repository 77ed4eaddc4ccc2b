package lifecycle

// State is the connection lifecycle state. Exactly one is current at any
// time.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
	StateCancelled    State = "cancelled"
)

// edge is a single allowed transition in the lifecycle state machine.
type edge struct {
	from State
	to   State
}

var edges = []edge{
	// Start path
	{StateIdle, StateConnecting},
	{StateDisconnected, StateConnecting},
	{StateError, StateConnecting},
	{StateCancelled, StateConnecting},

	// Attempt outcomes
	{StateConnecting, StateConnected},
	{StateConnecting, StateError},
	{StateConnecting, StateCancelled},

	// Teardown. A superseding connect first walks connecting→cancelled or
	// connected→disconnected, then re-enters connecting from there.
	{StateConnected, StateDisconnected},
}

// canTransition reports whether from→to is a listed edge.
func canTransition(from, to State) bool {
	for _, e := range edges {
		if e.from == from && e.to == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a resting state an attempt can end in.
func (s State) IsTerminal() bool {
	switch s {
	case StateConnected, StateDisconnected, StateError, StateCancelled, StateIdle:
		return true
	default:
		return false
	}
}
