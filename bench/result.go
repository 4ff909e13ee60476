package bench

import (
	"encoding/json"
	"math"
	"time"
)

// DeadbandResult describes the pulse width range around neutral where the
// thruster produces no usable output. Both bounds are multiples of the
// analysis resolution.
type DeadbandResult struct {
	// MinOffPulseUs is the lower bound of the deadband.
	MinOffPulseUs int `json:"min_off_pulse_us"`
	// MaxOffPulseUs is the upper bound of the deadband.
	MaxOffPulseUs int `json:"max_off_pulse_us"`
	// MidpointUs is the arithmetic mean of the two bounds.
	MidpointUs float64 `json:"midpoint_us"`
	// RangeUs is MaxOffPulseUs minus MinOffPulseUs, always >= 0.
	RangeUs int `json:"range_us"`
}

// TestResult is the complete outcome of one characterization run.
type TestResult struct {
	// ID is the identifier assigned by whatever persisted the result,
	// zero if the result was never stored.
	ID int64 `json:"id,omitempty"`
	// Config is the configuration the run was started with.
	Config Config `json:"config"`
	// Points are the collected measurements in ascending pulse width order.
	Points []TestPoint `json:"points"`
	// Deadband is present when at least one point was collected.
	Deadband *DeadbandResult `json:"deadband,omitempty"`
	// StartedAt and EndedAt bound the run.
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	// Notes is free text supplied by the operator.
	Notes string `json:"notes,omitempty"`
}

// Duration returns how long the run took.
func (r *TestResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// MaxThrustKg returns the largest thrust magnitude seen during the run.
func (r *TestResult) MaxThrustKg() float64 {
	var max float64
	for _, p := range r.Points {
		if abs := math.Abs(p.ThrustKg); abs > max {
			max = abs
		}
	}
	return max
}

// MaxPowerW returns the highest power draw seen during the run.
func (r *TestResult) MaxPowerW() float64 {
	var max float64
	for _, p := range r.Points {
		if p.PowerW > max {
			max = p.PowerW
		}
	}
	return max
}

// MaxCurrentA returns the highest current draw seen during the run.
func (r *TestResult) MaxCurrentA() float64 {
	var max float64
	for _, p := range r.Points {
		if p.CurrentA > max {
			max = p.CurrentA
		}
	}
	return max
}

// MarshalIndentJSON renders the result in the interchange encoding used by
// result sinks and the CLI.
func (r *TestResult) MarshalIndentJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ParseResult decodes a result previously written by MarshalIndentJSON.
func ParseResult(data []byte) (*TestResult, error) {
	var r TestResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
