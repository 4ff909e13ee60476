// Package fake implements the ESC contract without hardware, recording
// every commanded pulse width for inspection.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/openrovlabs/thrustbench/bench"
	"github.com/openrovlabs/thrustbench/esc"
)

// ESC is an in-memory ESC. The zero value is usable; fields that inject
// failures may be set at any time before the corresponding call.
type ESC struct {
	// NeutralUs is what EmergencyStop falls back to (default 1500).
	NeutralUs int
	// ArmDuration overrides the warm-up hold (default none, so tests
	// don't wait).
	ArmDuration time.Duration

	// SetErr, ArmErr and RampErr are returned by the matching methods
	// when non-nil.
	SetErr  error
	ArmErr  error
	RampErr error

	mu        sync.Mutex
	currentUs int
	armed     bool
	pulses    []int
}

func (e *ESC) neutral() int {
	if e.NeutralUs == 0 {
		return bench.DefaultNeutralPulseUs
	}
	return e.NeutralUs
}

// SetPulseWidth records the clamped pulse width.
func (e *ESC) SetPulseWidth(ctx context.Context, pulseUs int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.SetErr != nil {
		return e.SetErr
	}
	e.record(esc.Clamp(pulseUs))
	return nil
}

func (e *ESC) record(pulseUs int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentUs = pulseUs
	e.pulses = append(e.pulses, pulseUs)
}

// Arm marks the ESC armed after the configured hold.
func (e *ESC) Arm(ctx context.Context, neutralUs int) error {
	if e.ArmErr != nil {
		return e.ArmErr
	}
	if err := e.SetPulseWidth(ctx, neutralUs); err != nil {
		return err
	}
	if e.ArmDuration > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.ArmDuration):
		}
	}
	e.mu.Lock()
	e.armed = true
	e.mu.Unlock()
	return nil
}

// Disarm returns to neutral and clears the armed flag.
func (e *ESC) Disarm(ctx context.Context, neutralUs int) error {
	err := e.SetPulseWidth(ctx, neutralUs)
	e.mu.Lock()
	e.armed = false
	e.mu.Unlock()
	return err
}

// EmergencyStop forces neutral and disarms, unconditionally.
func (e *ESC) EmergencyStop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentUs = e.neutral()
	e.pulses = append(e.pulses, e.currentUs)
	e.armed = false
}

// RampTo steps toward the target like a hardware ESC driver would.
func (e *ESC) RampTo(ctx context.Context, targetUs, stepUs int, delay time.Duration) error {
	if e.RampErr != nil {
		return e.RampErr
	}
	return esc.Ramp(ctx, e, targetUs, stepUs, delay)
}

// CurrentPulseWidth returns the last commanded pulse width.
func (e *ESC) CurrentPulseWidth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentUs == 0 {
		return e.neutral()
	}
	return e.currentUs
}

// Armed reports the armed flag.
func (e *ESC) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

// Pulses returns a copy of every pulse width commanded so far.
func (e *ESC) Pulses() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, len(e.pulses))
	copy(out, e.pulses)
	return out
}
