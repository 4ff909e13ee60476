// Package hx711 implements the force sensor contract for the HX711 24-bit
// load cell amplifier, bit-banged over two GPIO pins via periph.io.
// Datasheet: https://cdn.sparkfun.com/datasheets/Sensors/ForceFlex/hx711_english.pdf
package hx711

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/openrovlabs/thrustbench/forcesensor"
)

// Gain selects the input channel and amplification; the value is the total
// number of clock pulses per conversion.
type Gain int

// Supported gain settings.
const (
	Gain128 Gain = 25 // channel A, gain 128
	Gain32  Gain = 26 // channel B, gain 32
	Gain64  Gain = 27 // channel A, gain 64
)

const (
	// readyTimeout bounds the wait for DOUT to go low. The HX711 at 10SPS
	// converts every 100ms, so a second of silence means a wiring or
	// power fault.
	readyTimeout = time.Second
	readyPoll    = time.Millisecond

	defaultTareSamples = 15
)

// Config describes the HX711 wiring and calibration.
type Config struct {
	// DataPin is the DOUT GPIO pin name.
	DataPin string `json:"data_pin"`
	// ClockPin is the PD_SCK GPIO pin name.
	ClockPin string `json:"clock_pin"`
	// Gain defaults to Gain128.
	Gain Gain `json:"gain,omitempty"`
	// CountsPerKg converts raw counts to kilograms (calibration slope).
	// Defaults to 1, i.e. raw counts.
	CountsPerKg float64 `json:"counts_per_kg,omitempty"`
}

type hx711 struct {
	dout        pgpio.PinIn
	sck         pgpio.PinOut
	gain        Gain
	countsPerKg float64
	logger      golog.Logger

	// mu serializes conversions; the 24 clock pulses of one read must
	// never interleave with another.
	mu     sync.Mutex
	offset int64
}

// New opens the configured pins and primes the amplifier with one read so
// the gain setting takes effect.
func New(ctx context.Context, cfg Config, logger golog.Logger) (forcesensor.ForceSensor, error) {
	if cfg.DataPin == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError("hx711", "data_pin")
	}
	if cfg.ClockPin == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError("hx711", "clock_pin")
	}
	dout := gpioreg.ByName(cfg.DataPin)
	if dout == nil {
		return nil, errors.Errorf("no GPIO pin named %q", cfg.DataPin)
	}
	sck := gpioreg.ByName(cfg.ClockPin)
	if sck == nil {
		return nil, errors.Errorf("no GPIO pin named %q", cfg.ClockPin)
	}
	if err := dout.In(pgpio.PullNoChange, pgpio.NoEdge); err != nil {
		return nil, errors.Wrap(err, "couldn't configure HX711 data pin")
	}
	if err := sck.Out(pgpio.Low); err != nil {
		return nil, errors.Wrap(err, "couldn't configure HX711 clock pin")
	}
	gain := cfg.Gain
	if gain == 0 {
		gain = Gain128
	}
	countsPerKg := cfg.CountsPerKg
	if countsPerKg == 0 {
		countsPerKg = 1
	}
	s := &hx711{
		dout:        dout,
		sck:         sck,
		gain:        gain,
		countsPerKg: countsPerKg,
		logger:      logger,
	}
	if _, err := s.readRaw(ctx); err != nil {
		return nil, errors.Wrap(err, "HX711 priming read failed")
	}
	return s, nil
}

// waitReady blocks until DOUT goes low, signaling a finished conversion.
func (s *hx711) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(readyTimeout)
	for s.dout.Read() == pgpio.High {
		if time.Now().After(deadline) {
			return errors.New("HX711 not responding")
		}
		if !goutils.SelectContextOrWait(ctx, readyPoll) {
			return ctx.Err()
		}
	}
	return nil
}

// readRaw clocks out one signed 24-bit conversion and sets the gain for the
// next one.
func (s *hx711) readRaw(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.waitReady(ctx); err != nil {
		return 0, err
	}
	var raw uint32
	for i := 0; i < 24; i++ {
		if err := s.sck.Out(pgpio.High); err != nil {
			return 0, err
		}
		raw <<= 1
		if s.dout.Read() == pgpio.High {
			raw |= 1
		}
		if err := s.sck.Out(pgpio.Low); err != nil {
			return 0, err
		}
	}
	for i := 24; i < int(s.gain); i++ {
		if err := s.sck.Out(pgpio.High); err != nil {
			return 0, err
		}
		if err := s.sck.Out(pgpio.Low); err != nil {
			return 0, err
		}
	}
	return signExtend24(raw), nil
}

// signExtend24 converts a raw 24-bit two's complement word to a signed
// value.
func signExtend24(raw uint32) int64 {
	if raw&0x800000 != 0 {
		return int64(raw) - 0x1000000
	}
	return int64(raw)
}

func (s *hx711) readAverage(ctx context.Context, samples int) (float64, error) {
	if samples <= 0 {
		samples = 1
	}
	var sum int64
	for i := 0; i < samples; i++ {
		raw, err := s.readRaw(ctx)
		if err != nil {
			return 0, err
		}
		sum += raw
	}
	return float64(sum) / float64(samples), nil
}

// Tare records the current average reading as the zero reference.
func (s *hx711) Tare(ctx context.Context, samples int) error {
	if samples <= 0 {
		samples = defaultTareSamples
	}
	avg, err := s.readAverage(ctx, samples)
	if err != nil {
		return errors.Wrap(err, "couldn't tare load cell")
	}
	s.mu.Lock()
	s.offset = int64(avg)
	s.mu.Unlock()
	s.logger.Debugf("load cell tared, offset %d counts", int64(avg))
	return nil
}

// ReadKg returns the averaged force relative to the tare offset.
func (s *hx711) ReadKg(ctx context.Context, samples int) (float64, error) {
	avg, err := s.readAverage(ctx, samples)
	if err != nil {
		return 0, errors.Wrap(err, "couldn't read load cell")
	}
	s.mu.Lock()
	offset := s.offset
	s.mu.Unlock()
	return (avg - float64(offset)) / s.countsPerKg, nil
}
