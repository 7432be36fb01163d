package gateway

// State is the lifecycle state of a Gateway.
type State int

const (
	// StateInitialized means the gateway is created but not started.
	StateInitialized State = iota

	// StateRunning means the radio, emitter and worker are running.
	StateRunning

	// StateStopped means the gateway has been shut down. It cannot be
	// restarted.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "Initialized"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
