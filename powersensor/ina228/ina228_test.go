package ina228

import (
	"testing"

	"go.viam.com/test"
)

func TestBusVoltsFromRaw(t *testing.T) {
	// 12V / 195.3125uV = 61440 counts, left-justified by 4 reserved bits.
	raw := uint32(61440 << 4)
	test.That(t, busVoltsFromRaw(raw), test.ShouldAlmostEqual, 12.0, 1e-9)
	test.That(t, busVoltsFromRaw(0), test.ShouldEqual, 0.0)
}

func TestAmpsFromRaw(t *testing.T) {
	lsb := 10.0 / currentLSBDivisor

	// +1000 counts.
	raw := uint32(1000) << 4
	test.That(t, ampsFromRaw(raw, lsb), test.ShouldAlmostEqual, 1000*lsb, 1e-12)

	// -1000 counts in 20-bit two's complement, left-justified.
	neg := uint32((1<<20)-1000) << 4
	test.That(t, ampsFromRaw(neg, lsb), test.ShouldAlmostEqual, -1000*lsb, 1e-12)
}

func TestWattsFromRaw(t *testing.T) {
	lsb := 10.0 / currentLSBDivisor
	test.That(t, wattsFromRaw(500, lsb), test.ShouldAlmostEqual, 500*3.2*lsb, 1e-12)
}
