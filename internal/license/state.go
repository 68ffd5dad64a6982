package license

// State is the license state of a Session
type State int32

const (
	// StateUnverified is the initial state and the state after a failed
	// verification.
	StateUnverified State = iota
	// StateVerified means the server accepted the key. The heartbeat may run
	// only in this state.
	StateVerified
	// StateDisconnected means a heartbeat failed or was stopped. The session
	// must be verified again.
	StateDisconnected
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateUnverified:
		return "unverified"
	case StateVerified:
		return "verified"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
