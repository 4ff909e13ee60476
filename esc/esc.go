// Package esc defines the contract for the electronic speed controller
// driving the thruster under test.
package esc

import (
	"context"
	"time"

	goutils "go.viam.com/utils"
)

// Safe pulse width range an ESC implementation clamps commands to. These
// are tighter than the configuration bounds because a runaway command must
// never reach the motor.
const (
	MinSafePulseUs = 1000
	MaxSafePulseUs = 2000
)

// DefaultArmDuration is how long an ESC needs to see neutral before it
// responds to other pulse widths.
const DefaultArmDuration = 2 * time.Second

// Defaults for RampTo.
const (
	DefaultRampStepUs = 25
	DefaultRampDelay  = 50 * time.Millisecond
)

// ESC is a pulse width actuator. Implementations own exactly one output
// channel and must be safe for use by one test run at a time.
type ESC interface {
	// SetPulseWidth commands the given pulse width, clamped to the safe
	// range.
	SetPulseWidth(ctx context.Context, pulseUs int) error

	// Arm holds neutral for the ESC's warm-up period, blocking until the
	// controller will accept throttle commands.
	Arm(ctx context.Context, neutralUs int) error

	// Disarm returns the output to neutral and marks the ESC disarmed.
	Disarm(ctx context.Context, neutralUs int) error

	// EmergencyStop synchronously forces the output to neutral and
	// disarms. It is idempotent and safe to call from any state.
	EmergencyStop()

	// RampTo approaches the target pulse width in monotonic steps,
	// blocking between steps. It never overshoots the target.
	RampTo(ctx context.Context, targetUs, stepUs int, delay time.Duration) error

	// CurrentPulseWidth returns the last commanded pulse width.
	CurrentPulseWidth() int

	// Armed reports whether the ESC is armed.
	Armed() bool
}

// Clamp bounds a pulse width to the safe range.
func Clamp(pulseUs int) int {
	if pulseUs < MinSafePulseUs {
		return MinSafePulseUs
	}
	if pulseUs > MaxSafePulseUs {
		return MaxSafePulseUs
	}
	return pulseUs
}

// Ramp steps an ESC from its current pulse width to target without
// overshooting, waiting delay between steps. Implementations use it to
// satisfy RampTo.
func Ramp(ctx context.Context, e ESC, targetUs, stepUs int, delay time.Duration) error {
	if stepUs <= 0 {
		stepUs = DefaultRampStepUs
	}
	if delay <= 0 {
		delay = DefaultRampDelay
	}
	current := e.CurrentPulseWidth()
	for current != targetUs {
		if targetUs > current {
			current += stepUs
			if current > targetUs {
				current = targetUs
			}
		} else {
			current -= stepUs
			if current < targetUs {
				current = targetUs
			}
		}
		if err := e.SetPulseWidth(ctx, current); err != nil {
			return err
		}
		if !goutils.SelectContextOrWait(ctx, delay) {
			return ctx.Err()
		}
	}
	return nil
}
