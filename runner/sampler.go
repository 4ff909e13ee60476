package runner

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/openrovlabs/thrustbench/bench"
	"github.com/openrovlabs/thrustbench/forcesensor"
	"github.com/openrovlabs/thrustbench/powersensor"
)

// DefaultInterSampleDelay spaces the raw reads within one point far enough
// apart to avoid aliasing against the sensors' conversion cycles.
const DefaultInterSampleDelay = 20 * time.Millisecond

// Sampler reduces repeated sensor reads at a fixed pulse width to one
// averaged test point.
type Sampler struct {
	power powersensor.PowerSensor
	force forcesensor.ForceSensor
	clock clock.Clock
	delay time.Duration
}

// NewSampler returns a sampler reading from the given sensors. A zero delay
// selects the default; a negative delay disables the wait.
func NewSampler(power powersensor.PowerSensor, force forcesensor.ForceSensor, clk clock.Clock, delay time.Duration) *Sampler {
	if clk == nil {
		clk = clock.New()
	}
	if delay == 0 {
		delay = DefaultInterSampleDelay
	}
	return &Sampler{power: power, force: force, clock: clk, delay: delay}
}

// Sample takes the given number of reads from each sensor and averages each
// channel independently. Power is mean voltage times mean current rather
// than the mean of per-sample products, so repeated analysis of the same
// raw reads always reproduces the same point.
func (s *Sampler) Sample(ctx context.Context, pulseUs, samples int) (bench.TestPoint, error) {
	if samples <= 0 {
		samples = 1
	}
	volts := make([]float64, 0, samples)
	amps := make([]float64, 0, samples)
	kgs := make([]float64, 0, samples)

	for i := 0; i < samples; i++ {
		if i > 0 && !selectOrWait(ctx, s.clock, s.delay) {
			return bench.TestPoint{}, ctx.Err()
		}
		v, a, _, err := s.power.ReadAll(ctx)
		if err != nil {
			return bench.TestPoint{}, errors.Wrap(err, "couldn't read power monitor")
		}
		kg, err := s.force.ReadKg(ctx, 1)
		if err != nil {
			return bench.TestPoint{}, errors.Wrap(err, "couldn't read load cell")
		}
		volts = append(volts, v)
		amps = append(amps, a)
		kgs = append(kgs, kg)
	}

	meanV, err := stats.Mean(volts)
	if err != nil {
		return bench.TestPoint{}, err
	}
	meanA, err := stats.Mean(amps)
	if err != nil {
		return bench.TestPoint{}, err
	}
	meanKg, err := stats.Mean(kgs)
	if err != nil {
		return bench.TestPoint{}, err
	}

	return bench.TestPoint{
		PulseUs:    pulseUs,
		VoltageV:   meanV,
		CurrentA:   meanA,
		PowerW:     meanV * meanA,
		ThrustKg:   meanKg,
		CapturedAt: s.clock.Now(),
	}, nil
}

// selectOrWait mirrors goutils.SelectContextOrWait on an injectable clock.
func selectOrWait(ctx context.Context, clk clock.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
