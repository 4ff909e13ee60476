// Package gpio implements the ESC contract on a hardware PWM capable GPIO
// pin via periph.io.
package gpio

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"

	"github.com/openrovlabs/thrustbench/bench"
	"github.com/openrovlabs/thrustbench/esc"
)

// Config describes the PWM output for an ESC.
type Config struct {
	// Pin is the GPIO pin name, e.g. "GPIO18". Hardware PWM pins give the
	// most stable pulse train.
	Pin string `json:"pin"`
	// FrequencyHz is the PWM frequency (default 50).
	FrequencyHz int `json:"frequency_hz,omitempty"`
	// NeutralUs is the pulse width EmergencyStop falls back to
	// (default 1500).
	NeutralUs int `json:"neutral_us,omitempty"`
	// ArmDuration overrides the warm-up hold at neutral.
	ArmDuration time.Duration `json:"-"`
}

type escGPIO struct {
	pin       pgpio.PinOut
	freq      physic.Frequency
	neutralUs int
	armHold   time.Duration
	logger    golog.Logger

	mu        sync.Mutex
	currentUs int
	armed     atomic.Bool
}

// New opens the configured pin and returns an ESC holding neutral.
func New(cfg Config, logger golog.Logger) (esc.ESC, error) {
	if cfg.Pin == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError("esc", "pin")
	}
	pin := gpioreg.ByName(cfg.Pin)
	if pin == nil {
		return nil, errors.Errorf("no GPIO pin named %q", cfg.Pin)
	}
	freq := cfg.FrequencyHz
	if freq == 0 {
		freq = bench.DefaultFrequencyHz
	}
	neutral := cfg.NeutralUs
	if neutral == 0 {
		neutral = bench.DefaultNeutralPulseUs
	}
	armHold := cfg.ArmDuration
	if armHold == 0 {
		armHold = esc.DefaultArmDuration
	}
	e := &escGPIO{
		pin:       pin,
		freq:      physic.Frequency(freq) * physic.Hertz,
		neutralUs: neutral,
		armHold:   armHold,
		logger:    logger,
		currentUs: neutral,
	}
	// Start the pulse train at neutral so the ESC never sees garbage.
	if err := e.writePulse(neutral); err != nil {
		return nil, errors.Wrap(err, "couldn't start PWM at neutral")
	}
	return e, nil
}

// usToDuty converts a pulse width to the duty cycle for the given PWM
// frequency. At 50Hz the period is 20ms, so 1500us is 7.5%.
func usToDuty(pulseUs int, freq physic.Frequency) pgpio.Duty {
	periodUs := float64(freq.Duration().Microseconds())
	return pgpio.Duty(float64(pulseUs) / periodUs * float64(pgpio.DutyMax))
}

func (e *escGPIO) writePulse(pulseUs int) error {
	pulseUs = esc.Clamp(pulseUs)
	if err := e.pin.PWM(usToDuty(pulseUs, e.freq), e.freq); err != nil {
		return errors.Wrapf(err, "couldn't set %s to %dus", e.pin.Name(), pulseUs)
	}
	e.mu.Lock()
	e.currentUs = pulseUs
	e.mu.Unlock()
	return nil
}

func (e *escGPIO) SetPulseWidth(ctx context.Context, pulseUs int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.writePulse(pulseUs)
}

func (e *escGPIO) Arm(ctx context.Context, neutralUs int) error {
	if err := e.SetPulseWidth(ctx, neutralUs); err != nil {
		return errors.Wrap(err, "couldn't arm ESC")
	}
	if !goutils.SelectContextOrWait(ctx, e.armHold) {
		return ctx.Err()
	}
	e.armed.Store(true)
	e.logger.Debugf("ESC on %s armed at %dus", e.pin.Name(), neutralUs)
	return nil
}

func (e *escGPIO) Disarm(ctx context.Context, neutralUs int) error {
	err := e.SetPulseWidth(ctx, neutralUs)
	e.armed.Store(false)
	return err
}

func (e *escGPIO) EmergencyStop() {
	if err := e.writePulse(e.neutralUs); err != nil {
		e.logger.Errorw("emergency stop write failed", "error", err)
	}
	e.armed.Store(false)
}

func (e *escGPIO) RampTo(ctx context.Context, targetUs, stepUs int, delay time.Duration) error {
	return esc.Ramp(ctx, e, targetUs, stepUs, delay)
}

func (e *escGPIO) CurrentPulseWidth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentUs
}

func (e *escGPIO) Armed() bool {
	return e.armed.Load()
}
