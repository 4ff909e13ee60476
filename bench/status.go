package bench

// State is where a test run currently is in its lifecycle.
type State int

// Run lifecycle states. Completed, Stopped and Error are terminal for a
// given run.
const (
	StateIdle State = iota
	StateArming
	StateTaring
	StateRampingToStart
	StateSweeping
	StatePaused
	StateReturningToNeutral
	StateCompleted
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArming:
		return "arming"
	case StateTaring:
		return "taring"
	case StateRampingToStart:
		return "ramping_to_start"
	case StateSweeping:
		return "sweeping"
	case StatePaused:
		return "paused"
	case StateReturningToNeutral:
		return "returning_to_neutral"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateStopped, StateError:
		return true
	default:
		return false
	}
}

// Status is a snapshot of a run in progress. The runner is the only writer;
// readers always get a copy.
type Status struct {
	Running        bool       `json:"running"`
	Paused         bool       `json:"paused"`
	State          State      `json:"state"`
	CurrentPulseUs int        `json:"current_pulse_us"`
	ProgressPct    float64    `json:"progress_pct"`
	LastPoint      *TestPoint `json:"last_point,omitempty"`
	ErrMsg         string     `json:"err_msg,omitempty"`
}
