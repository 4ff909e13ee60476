package runner_test

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/openrovlabs/thrustbench/runner"
)

// scriptedPower replays fixed voltage/current pairs.
type scriptedPower struct {
	volts []float64
	amps  []float64
	i     int
}

func (s *scriptedPower) Voltage(ctx context.Context) (float64, error) { return s.volts[s.i], nil }

func (s *scriptedPower) Current(ctx context.Context) (float64, error) { return s.amps[s.i], nil }

func (s *scriptedPower) ReadAll(ctx context.Context) (float64, float64, float64, error) {
	v, a := s.volts[s.i], s.amps[s.i]
	s.i++
	return v, a, v * a, nil
}

// scriptedForce replays fixed thrust readings.
type scriptedForce struct {
	kgs []float64
	i   int
}

func (s *scriptedForce) Tare(ctx context.Context, samples int) error { return nil }

func (s *scriptedForce) ReadKg(ctx context.Context, samples int) (float64, error) {
	kg := s.kgs[s.i]
	s.i++
	return kg, nil
}

func TestSampleAveragesEachChannel(t *testing.T) {
	power := &scriptedPower{volts: []float64{10, 14}, amps: []float64{1, 3}}
	force := &scriptedForce{kgs: []float64{0.4, -0.2}}
	s := runner.NewSampler(power, force, nil, -1)

	pt, err := s.Sample(context.Background(), 1600, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pt.PulseUs, test.ShouldEqual, 1600)
	test.That(t, pt.VoltageV, test.ShouldAlmostEqual, 12.0, 1e-12)
	test.That(t, pt.CurrentA, test.ShouldAlmostEqual, 2.0, 1e-12)
	test.That(t, pt.ThrustKg, test.ShouldAlmostEqual, 0.1, 1e-12)

	// Power is mean(V)*mean(I) = 24, not mean(V*I) = 26.
	test.That(t, pt.PowerW, test.ShouldAlmostEqual, 24.0, 1e-12)
	test.That(t, pt.CapturedAt.IsZero(), test.ShouldBeFalse)
}

func TestSampleCountFloor(t *testing.T) {
	power := &scriptedPower{volts: []float64{12}, amps: []float64{2}}
	force := &scriptedForce{kgs: []float64{0.5}}
	s := runner.NewSampler(power, force, nil, -1)

	// A nonpositive sample count still takes one reading.
	pt, err := s.Sample(context.Background(), 1500, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pt.VoltageV, test.ShouldAlmostEqual, 12.0, 1e-12)
	test.That(t, power.i, test.ShouldEqual, 1)
}

func TestSampleCancelled(t *testing.T) {
	power := &scriptedPower{volts: []float64{12, 12}, amps: []float64{2, 2}}
	force := &scriptedForce{kgs: []float64{0, 0}}
	s := runner.NewSampler(power, force, nil, -1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Sample(ctx, 1500, 2)
	test.That(t, err, test.ShouldNotBeNil)
}
