package bench

import "time"

// TestPoint is one averaged measurement taken at a fixed pulse width.
// Points are immutable once created and ordered by ascending pulse width
// within a test.
type TestPoint struct {
	// PulseUs is the commanded pulse width for this point.
	PulseUs int `json:"pulse_us"`
	// CurrentA is the mean supply current in amps.
	CurrentA float64 `json:"current_a"`
	// VoltageV is the mean bus voltage in volts.
	VoltageV float64 `json:"voltage_v"`
	// PowerW is mean voltage times mean current, not the mean of
	// per-sample power.
	PowerW float64 `json:"power_w"`
	// ThrustKg is the mean measured force, signed. Positive is forward,
	// negative is reverse.
	ThrustKg float64 `json:"thrust_kg"`
	// CapturedAt is when the point was assembled.
	CapturedAt time.Time `json:"captured_at"`
}
