package types

// State represents the relay lifecycle state.
//
// States follow a defined progression during normal operation:
//
//	StateInit → StateStarting → StateReady → StateShutdown
//
// A relay whose shared directory is unreachable still reaches StateReady;
// presence degradation is reported per-call, not as a lifecycle state.
type State int

const (
	// StateInit is the initial state before any operations.
	StateInit State = iota

	// StateStarting indicates background components are being wired up.
	StateStarting

	// StateReady indicates the relay is accepting connections and requests.
	StateReady

	// StateShutdown indicates graceful shutdown is in progress. Terminal.
	StateShutdown
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateStarting:
		return "Starting"
	case StateReady:
		return "Ready"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}
