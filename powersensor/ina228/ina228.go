// Package ina228 implements the power sensor contract for the TI INA228
// 20-bit I2C power monitor.
// Datasheet: https://www.ti.com/lit/ds/symlink/ina228.pdf
package ina228

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/openrovlabs/thrustbench/powersensor"
)

// Register map (subset used here).
const (
	regConfig    byte = 0x00
	regADCConfig byte = 0x01
	regShuntCal  byte = 0x02
	regVShunt    byte = 0x04
	regVBus      byte = 0x05
	regCurrent   byte = 0x07
	regPower     byte = 0x08
)

const (
	// DefaultAddr is the INA228 address with A0/A1 strapped for 0x41.
	DefaultAddr = 0x41

	configReset = 1 << 15
	// Continuous bus voltage, shunt voltage and temperature conversion
	// with 1052us conversion time and 16 sample averaging.
	adcConfigContinuous = 0xFB68

	// vbusLSB is 195.3125uV per datasheet section 7.6.1.5.
	vbusLSB = 195.3125e-6
	// powerLSBFactor scales the power register relative to the current
	// LSB.
	powerLSBFactor = 3.2
	// currentLSBDivisor: CURRENT_LSB = maxCurrent / 2^19.
	currentLSBDivisor = 1 << 19
	// shuntCalFactor per datasheet equation 2 (ADCRANGE=0).
	shuntCalFactor = 13107.2e6
)

// Config describes the I2C attachment and shunt of an INA228.
type Config struct {
	// Bus is the I2C bus name, empty for the first available bus.
	Bus string `json:"bus,omitempty"`
	// Addr is the device address (default 0x41).
	Addr uint16 `json:"addr,omitempty"`
	// ShuntOhms is the shunt resistor value (default 0.015).
	ShuntOhms float64 `json:"shunt_ohms,omitempty"`
	// MaxCurrentA is the expected full-scale current used to derive the
	// current LSB (default 10).
	MaxCurrentA float64 `json:"max_current_a,omitempty"`
}

type ina228 struct {
	mu         sync.Mutex
	bus        i2c.BusCloser
	dev        i2c.Dev
	currentLSB float64
	logger     golog.Logger
}

// New opens the bus, resets the device and starts continuous conversion.
func New(ctx context.Context, cfg Config, logger golog.Logger) (powersensor.PowerSensor, error) {
	addr := cfg.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	shunt := cfg.ShuntOhms
	if shunt == 0 {
		shunt = 0.015
	}
	maxCurrent := cfg.MaxCurrentA
	if maxCurrent == 0 {
		maxCurrent = 10
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open I2C bus for INA228")
	}
	s := &ina228{
		bus:        bus,
		dev:        i2c.Dev{Bus: bus, Addr: addr},
		currentLSB: maxCurrent / currentLSBDivisor,
		logger:     logger,
	}
	if err := s.writeReg16(regConfig, configReset); err != nil {
		return nil, errors.Wrap(err, "couldn't reset INA228")
	}
	shuntCal := uint16(shuntCalFactor * s.currentLSB * shunt)
	if err := s.writeReg16(regShuntCal, shuntCal); err != nil {
		return nil, errors.Wrap(err, "couldn't calibrate INA228 shunt")
	}
	if err := s.writeReg16(regADCConfig, adcConfigContinuous); err != nil {
		return nil, errors.Wrap(err, "couldn't start INA228 conversion")
	}
	return s, nil
}

func (s *ina228) writeReg16(reg byte, val uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Tx([]byte{reg, byte(val >> 8), byte(val)}, nil)
}

func (s *ina228) readReg24(reg byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, 3)
	if err := s.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
}

// busVoltsFromRaw converts a VBUS register value. The low 4 bits are
// reserved.
func busVoltsFromRaw(raw uint32) float64 {
	return float64(raw>>4) * vbusLSB
}

// ampsFromRaw converts a CURRENT register value, a 20-bit two's complement
// field left-justified in 24 bits.
func ampsFromRaw(raw uint32, currentLSB float64) float64 {
	val := int32(raw << 8) >> 12
	return float64(val) * currentLSB
}

// wattsFromRaw converts a POWER register value.
func wattsFromRaw(raw uint32, currentLSB float64) float64 {
	return float64(raw) * powerLSBFactor * currentLSB
}

func (s *ina228) Voltage(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := s.readReg24(regVBus)
	if err != nil {
		return 0, errors.Wrap(err, "couldn't read INA228 bus voltage")
	}
	return busVoltsFromRaw(raw), nil
}

func (s *ina228) Current(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := s.readReg24(regCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "couldn't read INA228 current")
	}
	return ampsFromRaw(raw, s.currentLSB), nil
}

func (s *ina228) ReadAll(ctx context.Context) (float64, float64, float64, error) {
	voltage, err := s.Voltage(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	current, err := s.Current(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	raw, err := s.readReg24(regPower)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "couldn't read INA228 power")
	}
	return voltage, current, wattsFromRaw(raw, s.currentLSB), nil
}

// Close releases the I2C bus.
func (s *ina228) Close() error {
	return s.bus.Close()
}
