package analysis

import (
	"testing"

	"go.viam.com/test"

	"github.com/openrovlabs/thrustbench/bench"
)

func quietPoints(minUs, maxUs, stepUs int) []bench.TestPoint {
	var pts []bench.TestPoint
	for us := minUs; us <= maxUs; us += stepUs {
		pts = append(pts, bench.TestPoint{PulseUs: us, ThrustKg: 0.001})
	}
	return pts
}

func TestDeadbandEmpty(t *testing.T) {
	db := Deadband(nil, 1500, Options{})
	test.That(t, db.MinOffPulseUs, test.ShouldEqual, 1500)
	test.That(t, db.MaxOffPulseUs, test.ShouldEqual, 1500)
	test.That(t, db.MidpointUs, test.ShouldEqual, 1500.0)
	test.That(t, db.RangeUs, test.ShouldEqual, 0)
}

func TestDeadbandQuietBand(t *testing.T) {
	// Points 1480..1520 step 5 all below the 0.01kg threshold.
	pts := quietPoints(1480, 1520, 5)
	db := Deadband(pts, 1500, Options{})
	test.That(t, db.MinOffPulseUs, test.ShouldEqual, 1480)
	test.That(t, db.MaxOffPulseUs, test.ShouldEqual, 1520)
	test.That(t, db.MidpointUs, test.ShouldEqual, 1500.0)
	test.That(t, db.RangeUs, test.ShouldEqual, 40)
}

func TestDeadbandScanStopsAtFirstHotPoint(t *testing.T) {
	// Same band, but with a tight threshold the 0.002kg point at 1495
	// ends the downward scan; the bound lands on the nearest quiet point
	// closer to neutral.
	var pts []bench.TestPoint
	for us := 1480; us <= 1520; us += 5 {
		thrust := 0.0005
		if us == 1495 {
			thrust = 0.002
		}
		pts = append(pts, bench.TestPoint{PulseUs: us, ThrustKg: thrust})
	}
	db := Deadband(pts, 1500, Options{ThrustThresholdKg: 0.001})
	test.That(t, db.MinOffPulseUs, test.ShouldEqual, 1500)
	test.That(t, db.MaxOffPulseUs, test.ShouldEqual, 1520)
}

func TestDeadbandRounding(t *testing.T) {
	// Quiet from 1483 to 1517: the lower bound rounds down, the upper up.
	pts := []bench.TestPoint{
		{PulseUs: 1483, ThrustKg: 0.0},
		{PulseUs: 1500, ThrustKg: 0.0},
		{PulseUs: 1517, ThrustKg: 0.0},
	}
	db := Deadband(pts, 1500, Options{})
	test.That(t, db.MinOffPulseUs, test.ShouldEqual, 1480)
	test.That(t, db.MaxOffPulseUs, test.ShouldEqual, 1520)
	test.That(t, db.MinOffPulseUs%DefaultResolutionUs, test.ShouldEqual, 0)
	test.That(t, db.MaxOffPulseUs%DefaultResolutionUs, test.ShouldEqual, 0)
	test.That(t, db.RangeUs, test.ShouldBeGreaterThanOrEqualTo, 0)
}

func TestDeadbandBoundsBracketNeutral(t *testing.T) {
	// Every point is hot; the bounds collapse onto the neutral grid.
	pts := []bench.TestPoint{
		{PulseUs: 1400, ThrustKg: -1.2},
		{PulseUs: 1600, ThrustKg: 1.4},
	}
	db := Deadband(pts, 1500, Options{})
	test.That(t, db.MinOffPulseUs, test.ShouldBeLessThanOrEqualTo, 1500)
	test.That(t, db.MaxOffPulseUs, test.ShouldBeGreaterThanOrEqualTo, 1500)
	test.That(t, db.RangeUs, test.ShouldEqual, 0)
}

func TestDeadbandIdempotent(t *testing.T) {
	pts := quietPoints(1450, 1550, 25)
	first := Deadband(pts, 1500, Options{})
	second := Deadband(pts, 1500, Options{})
	test.That(t, second, test.ShouldResemble, first)
}

func TestDeadbandDoesNotMutateInput(t *testing.T) {
	pts := []bench.TestPoint{
		{PulseUs: 1520, ThrustKg: 0.0},
		{PulseUs: 1480, ThrustKg: 0.0},
	}
	Deadband(pts, 1500, Options{})
	test.That(t, pts[0].PulseUs, test.ShouldEqual, 1520)
	test.That(t, pts[1].PulseUs, test.ShouldEqual, 1480)
}

func TestThrustOnset(t *testing.T) {
	pts := []bench.TestPoint{
		{PulseUs: 1400, ThrustKg: -0.5},
		{PulseUs: 1450, ThrustKg: -0.05},
		{PulseUs: 1475, ThrustKg: -0.002},
		{PulseUs: 1500, ThrustKg: 0.0},
		{PulseUs: 1525, ThrustKg: 0.003},
		{PulseUs: 1550, ThrustKg: 0.06},
		{PulseUs: 1600, ThrustKg: 0.6},
	}
	fwd, rev := ThrustOnset(pts, 1500, 0.01)
	test.That(t, fwd, test.ShouldEqual, 1550)
	test.That(t, rev, test.ShouldEqual, 1450)
}

func TestThrustOnsetDefaultsToNeutral(t *testing.T) {
	fwd, rev := ThrustOnset(nil, 1500, 0.01)
	test.That(t, fwd, test.ShouldEqual, 1500)
	test.That(t, rev, test.ShouldEqual, 1500)

	// Only quiet points on one side.
	pts := quietPoints(1500, 1600, 25)
	fwd, rev = ThrustOnset(pts, 1500, 0.01)
	test.That(t, fwd, test.ShouldEqual, 1500)
	test.That(t, rev, test.ShouldEqual, 1500)
}

func TestRoundingGrid(t *testing.T) {
	test.That(t, roundDownTo(1483, 5), test.ShouldEqual, 1480)
	test.That(t, roundDownTo(1480, 5), test.ShouldEqual, 1480)
	test.That(t, roundUpTo(1517, 5), test.ShouldEqual, 1520)
	test.That(t, roundUpTo(1520, 5), test.ShouldEqual, 1520)
	// Toward negative/positive infinity, not toward zero.
	test.That(t, roundDownTo(-3, 5), test.ShouldEqual, -5)
	test.That(t, roundUpTo(-3, 5), test.ShouldEqual, 0)
}
