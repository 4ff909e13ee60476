package results

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/openrovlabs/thrustbench/bench"
)

func sampleResult() *bench.TestResult {
	start := time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)
	return &bench.TestResult{
		Config: bench.Config{
			ThrusterType:   "T200",
			ThrusterID:     "bench-1",
			MinPulseUs:     1100,
			MaxPulseUs:     1900,
			NeutralPulseUs: 1500,
			FrequencyHz:    50,
		},
		Points: []bench.TestPoint{
			{PulseUs: 1100, CurrentA: 4.1, VoltageV: 12.0, PowerW: 49.2, ThrustKg: -1.9, CapturedAt: start},
			{PulseUs: 1500, CurrentA: 0.2, VoltageV: 12.0, PowerW: 2.4, ThrustKg: 0.0, CapturedAt: start.Add(time.Minute)},
		},
		Deadband:  &bench.DeadbandResult{MinOffPulseUs: 1475, MaxOffPulseUs: 1525, MidpointUs: 1500, RangeUs: 50},
		StartedAt: start,
		EndedAt:   start.Add(2 * time.Minute),
		Notes:     "pool test",
	}
}

func TestJSONSinkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf)
	orig := sampleResult()
	test.That(t, sink.Consume(context.Background(), orig), test.ShouldBeNil)

	parsed, err := bench.ParseResult(buf.Bytes())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldResemble, orig)
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	orig := sampleResult()
	test.That(t, SaveFile(context.Background(), path, orig), test.ShouldBeNil)

	loaded, err := LoadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded, test.ShouldResemble, orig)
	test.That(t, loaded.Duration(), test.ShouldEqual, 2*time.Minute)
	test.That(t, loaded.MaxThrustKg(), test.ShouldAlmostEqual, 1.9, 1e-12)
	test.That(t, loaded.MaxPowerW(), test.ShouldAlmostEqual, 49.2, 1e-12)
	test.That(t, loaded.MaxCurrentA(), test.ShouldAlmostEqual, 4.1, 1e-12)
}
