package capture

import "fmt"

// State is the worker lifecycle state.
type State int32

// Worker states, in lifecycle order.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateStopped; st <= StateStopping; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("capture: unknown state %q", text)
}
