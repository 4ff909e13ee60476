// Package fake implements the power sensor contract without hardware,
// modeling supply draw from the currently commanded pulse width.
package fake

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/openrovlabs/thrustbench/bench"
)

// Electrical model constants, matched to a 12V bench supply driving a small
// brushless thruster.
const (
	busVoltage    = 12.0
	idleCurrentA  = 0.2
	ampsPerKg     = 3.0
	deadbandUs    = 30
	fullThrustKg  = 3.0
	fullThrustDev = 400.0
)

// PowerSensor is an in-memory power monitor.
type PowerSensor struct {
	// Pulse reports the currently commanded pulse width. When nil the
	// sensor behaves as if the thruster is at neutral.
	Pulse func() int
	// NeutralUs defaults to 1500.
	NeutralUs int
	// Rand adds measurement noise when non-nil; leave nil for
	// deterministic readings.
	Rand *rand.Rand
	// ReadErr is returned by every read when non-nil.
	ReadErr error

	mu sync.Mutex
}

func (f *PowerSensor) pulse() int {
	if f.Pulse == nil {
		return f.neutral()
	}
	return f.Pulse()
}

func (f *PowerSensor) neutral() int {
	if f.NeutralUs == 0 {
		return bench.DefaultNeutralPulseUs
	}
	return f.NeutralUs
}

func (f *PowerSensor) noise(scale float64) float64 {
	if f.Rand == nil {
		return 0
	}
	return (f.Rand.Float64()*2 - 1) * scale
}

func (f *PowerSensor) model() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deviation := float64(f.pulse() - f.neutral())
	voltage := busVoltage + f.noise(0.1)
	if math.Abs(deviation) < deadbandUs {
		return voltage, idleCurrentA + f.noise(0.1)
	}
	thrust := deviation / fullThrustDev * fullThrustKg
	return voltage, 0.5 + math.Abs(thrust)*ampsPerKg + f.noise(0.1)
}

// Voltage returns the modeled bus voltage.
func (f *PowerSensor) Voltage(ctx context.Context) (float64, error) {
	if f.ReadErr != nil {
		return 0, f.ReadErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, _ := f.model()
	return v, nil
}

// Current returns the modeled supply current.
func (f *PowerSensor) Current(ctx context.Context) (float64, error) {
	if f.ReadErr != nil {
		return 0, f.ReadErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, i := f.model()
	return i, nil
}

// ReadAll returns modeled voltage, current and power.
func (f *PowerSensor) ReadAll(ctx context.Context) (float64, float64, float64, error) {
	if f.ReadErr != nil {
		return 0, 0, 0, f.ReadErr
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, 0, err
	}
	v, i := f.model()
	return v, i, v * i, nil
}
