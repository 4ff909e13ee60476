// Package forcesensor defines the contract for the load cell measuring
// thrust.
package forcesensor

import "context"

// ForceSensor measures thrust in kilograms. Positive values are forward
// thrust, negative reverse.
type ForceSensor interface {
	// Tare establishes a new zero reference from the given number of
	// samples, blocking until done.
	Tare(ctx context.Context, samples int) error

	// ReadKg returns the force averaged over the given number of raw
	// samples.
	ReadKg(ctx context.Context, samples int) (float64, error)
}
