// Package fake implements the force sensor contract without hardware,
// modeling thrust from the currently commanded pulse width.
package fake

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/openrovlabs/thrustbench/bench"
)

// Thrust model constants: within the deadband the cell only sees noise,
// outside it thrust grows linearly with deviation from neutral up to
// FullThrustKg at full deviation.
const (
	// DeadbandUs is the half-width of the simulated deadband.
	DeadbandUs = 30
	// FullThrustKg is the thrust at full forward deviation.
	FullThrustKg = 3.0
	// FullDeviationUs is the deviation corresponding to full thrust.
	FullDeviationUs = 400.0
)

// ForceSensor is an in-memory load cell.
type ForceSensor struct {
	// Pulse reports the currently commanded pulse width. When nil the
	// sensor behaves as if the thruster is at neutral.
	Pulse func() int
	// NeutralUs defaults to 1500.
	NeutralUs int
	// Rand adds measurement noise when non-nil; leave nil for
	// deterministic readings.
	Rand *rand.Rand
	// TareErr and ReadErr inject failures when non-nil.
	TareErr error
	ReadErr error

	mu    sync.Mutex
	tared bool
	bias  float64
}

func (f *ForceSensor) neutral() int {
	if f.NeutralUs == 0 {
		return bench.DefaultNeutralPulseUs
	}
	return f.NeutralUs
}

func (f *ForceSensor) noise(scale float64) float64 {
	if f.Rand == nil {
		return 0
	}
	return (f.Rand.Float64()*2 - 1) * scale
}

// Tare zeroes the simulated cell.
func (f *ForceSensor) Tare(ctx context.Context, samples int) error {
	if f.TareErr != nil {
		return f.TareErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.tared = true
	f.bias = 0
	f.mu.Unlock()
	return nil
}

// Tared reports whether Tare has been called.
func (f *ForceSensor) Tared() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tared
}

// ReadKg returns the modeled thrust for the current pulse width.
func (f *ForceSensor) ReadKg(ctx context.Context, samples int) (float64, error) {
	if f.ReadErr != nil {
		return 0, f.ReadErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pulse := f.neutral()
	if f.Pulse != nil {
		pulse = f.Pulse()
	}
	deviation := float64(pulse - f.neutral())
	if math.Abs(deviation) < DeadbandUs {
		return f.bias + f.noise(0.005), nil
	}
	return f.bias + deviation/FullDeviationUs*FullThrustKg + f.noise(0.02), nil
}
