package credit

// State is a step of a single acquisition.
type State int

const (
	StateIdle State = iota
	StateChecking
	StateWaiting
	StateGranted
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateWaiting:
		return "waiting"
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Terminal reports whether the acquisition ends in s.
func (s State) Terminal() bool {
	return s == StateGranted || s == StateDenied
}
