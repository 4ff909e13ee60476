package esc_test

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/openrovlabs/thrustbench/esc"
	"github.com/openrovlabs/thrustbench/esc/fake"
)

func TestClamp(t *testing.T) {
	test.That(t, esc.Clamp(900), test.ShouldEqual, esc.MinSafePulseUs)
	test.That(t, esc.Clamp(2100), test.ShouldEqual, esc.MaxSafePulseUs)
	test.That(t, esc.Clamp(1500), test.ShouldEqual, 1500)
}

func TestRampUpIsMonotonicAndExact(t *testing.T) {
	e := &fake.ESC{}
	err := e.RampTo(context.Background(), 1620, 50, time.Nanosecond)
	test.That(t, err, test.ShouldBeNil)
	pulses := e.Pulses()
	test.That(t, pulses, test.ShouldResemble, []int{1550, 1600, 1620})
	test.That(t, e.CurrentPulseWidth(), test.ShouldEqual, 1620)
}

func TestRampDownNeverOvershoots(t *testing.T) {
	e := &fake.ESC{}
	err := e.RampTo(context.Background(), 1390, 50, time.Nanosecond)
	test.That(t, err, test.ShouldBeNil)
	pulses := e.Pulses()
	test.That(t, pulses, test.ShouldResemble, []int{1450, 1400, 1390})
	for i := 1; i < len(pulses); i++ {
		test.That(t, pulses[i], test.ShouldBeLessThan, pulses[i-1])
	}
}

func TestRampAlreadyAtTarget(t *testing.T) {
	e := &fake.ESC{}
	err := e.RampTo(context.Background(), 1500, 25, time.Nanosecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.Pulses(), test.ShouldHaveLength, 0)
}

func TestRampHonorsCancellation(t *testing.T) {
	e := &fake.ESC{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.RampTo(ctx, 1900, 25, time.Nanosecond)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEmergencyStopFromAnyState(t *testing.T) {
	e := &fake.ESC{}

	// Before anything else happened.
	e.EmergencyStop()
	test.That(t, e.CurrentPulseWidth(), test.ShouldEqual, 1500)
	test.That(t, e.Armed(), test.ShouldBeFalse)

	// Mid-run: armed and away from neutral.
	test.That(t, e.Arm(context.Background(), 1500), test.ShouldBeNil)
	test.That(t, e.SetPulseWidth(context.Background(), 1800), test.ShouldBeNil)
	test.That(t, e.Armed(), test.ShouldBeTrue)
	e.EmergencyStop()
	test.That(t, e.CurrentPulseWidth(), test.ShouldEqual, 1500)
	test.That(t, e.Armed(), test.ShouldBeFalse)

	// Idempotent.
	e.EmergencyStop()
	test.That(t, e.CurrentPulseWidth(), test.ShouldEqual, 1500)
	test.That(t, e.Armed(), test.ShouldBeFalse)
}
