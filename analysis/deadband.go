// Package analysis post-processes the points collected during a sweep into
// a deadband description and thrust onset thresholds. Everything here is a
// pure function of its inputs.
package analysis

import (
	"math"
	"sort"

	"github.com/openrovlabs/thrustbench/bench"
)

// Defaults for deadband analysis.
const (
	// DefaultThrustThresholdKg is the smallest thrust magnitude treated
	// as real output rather than load cell noise.
	DefaultThrustThresholdKg = 0.01
	// DefaultResolutionUs is the grid the deadband bounds snap to.
	DefaultResolutionUs = 5
)

// Options tune the deadband scan. Zero values select the defaults.
type Options struct {
	// ThrustThresholdKg is the noise threshold.
	ThrustThresholdKg float64
	// ResolutionUs is the rounding grid for the bounds.
	ResolutionUs int
}

func (o Options) withDefaults() Options {
	if o.ThrustThresholdKg == 0 {
		o.ThrustThresholdKg = DefaultThrustThresholdKg
	}
	if o.ResolutionUs == 0 {
		o.ResolutionUs = DefaultResolutionUs
	}
	return o
}

// Deadband finds the contiguous pulse width range around neutral where
// thrust magnitude stays below the noise threshold.
//
// Points are scanned outward from neutral in both directions; the scan in
// each direction stops at the first point at or above the threshold. The
// lower bound is rounded down to the resolution grid and the upper bound
// up, so the reported deadband never understates the off zone. With no
// usable points both bounds collapse to neutral.
func Deadband(points []bench.TestPoint, neutralUs int, opts Options) bench.DeadbandResult {
	opts = opts.withDefaults()

	if len(points) == 0 {
		return bench.DeadbandResult{
			MinOffPulseUs: neutralUs,
			MaxOffPulseUs: neutralUs,
			MidpointUs:    float64(neutralUs),
			RangeUs:       0,
		}
	}

	sorted := sortedByPulse(points)

	minOff := neutralUs
	maxOff := neutralUs

	// Downward from neutral.
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		if p.PulseUs > neutralUs {
			continue
		}
		if math.Abs(p.ThrustKg) < opts.ThrustThresholdKg {
			minOff = p.PulseUs
		} else {
			break
		}
	}

	// Upward from neutral.
	for _, p := range sorted {
		if p.PulseUs < neutralUs {
			continue
		}
		if math.Abs(p.ThrustKg) < opts.ThrustThresholdKg {
			maxOff = p.PulseUs
		} else {
			break
		}
	}

	minOff = roundDownTo(minOff, opts.ResolutionUs)
	maxOff = roundUpTo(maxOff, opts.ResolutionUs)

	return bench.DeadbandResult{
		MinOffPulseUs: minOff,
		MaxOffPulseUs: maxOff,
		MidpointUs:    float64(minOff+maxOff) / 2.0,
		RangeUs:       maxOff - minOff,
	}
}

// ThrustOnset finds the first pulse width on each side of neutral where
// thrust becomes significant: above neutral the first point with thrust
// over +threshold, below neutral the first point (scanning down from the
// low end of the deadband) with thrust under -threshold. A side with no
// such point reports neutral.
func ThrustOnset(points []bench.TestPoint, neutralUs int, thresholdKg float64) (forwardUs, reverseUs int) {
	if thresholdKg == 0 {
		thresholdKg = DefaultThrustThresholdKg
	}
	sorted := sortedByPulse(points)

	forwardUs = neutralUs
	reverseUs = neutralUs

	for _, p := range sorted {
		if p.PulseUs > neutralUs && p.ThrustKg > thresholdKg {
			forwardUs = p.PulseUs
			break
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		if p.PulseUs < neutralUs && p.ThrustKg < -thresholdKg {
			reverseUs = p.PulseUs
			break
		}
	}
	return forwardUs, reverseUs
}

// sortedByPulse returns a copy ordered by ascending pulse width, stable for
// equal pulse widths.
func sortedByPulse(points []bench.TestPoint) []bench.TestPoint {
	sorted := make([]bench.TestPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PulseUs < sorted[j].PulseUs
	})
	return sorted
}

// roundDownTo rounds toward negative infinity onto the resolution grid.
func roundDownTo(value, resolution int) int {
	return floorDiv(value, resolution) * resolution
}

// roundUpTo rounds toward positive infinity onto the resolution grid.
func roundUpTo(value, resolution int) int {
	return -floorDiv(-value, resolution) * resolution
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
