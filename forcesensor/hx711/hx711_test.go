package hx711

import (
	"testing"

	"go.viam.com/test"
)

func TestSignExtend24(t *testing.T) {
	test.That(t, signExtend24(0), test.ShouldEqual, 0)
	test.That(t, signExtend24(1), test.ShouldEqual, 1)
	test.That(t, signExtend24(0x7FFFFF), test.ShouldEqual, 8388607)
	test.That(t, signExtend24(0x800000), test.ShouldEqual, -8388608)
	test.That(t, signExtend24(0xFFFFFF), test.ShouldEqual, -1)
	// -100 counts.
	test.That(t, signExtend24(0x1000000-100), test.ShouldEqual, -100)
}

func TestGainPulseCounts(t *testing.T) {
	test.That(t, int(Gain128), test.ShouldEqual, 25)
	test.That(t, int(Gain32), test.ShouldEqual, 26)
	test.That(t, int(Gain64), test.ShouldEqual, 27)
}
