// Package powersensor defines the contract for the supply power monitor.
package powersensor

import "context"

// PowerSensor reports the electrical state of the thruster supply.
// Reads may fail transiently; callers treat any error as a driver fault.
type PowerSensor interface {
	// Voltage returns the bus voltage in volts.
	Voltage(ctx context.Context) (float64, error)

	// Current returns the supply current in amps.
	Current(ctx context.Context) (float64, error)

	// ReadAll returns voltage, current and power in one shot.
	ReadAll(ctx context.Context) (voltage, current, power float64, err error)
}
