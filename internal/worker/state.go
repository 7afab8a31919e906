package worker

// State is the worker state machine position.
type State int

const (
	StateNoModel State = iota
	StateModelReady
	StateProcessing
	StateReloading
)

func (s State) String() string {
	switch s {
	case StateNoModel:
		return "no_model"
	case StateModelReady:
		return "model_ready"
	case StateProcessing:
		return "processing"
	case StateReloading:
		return "reloading"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
