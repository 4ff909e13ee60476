// Package runner drives a thruster characterization sweep: it arms the ESC,
// tares the load cell, walks the configured pulse width range collecting
// averaged measurements, and analyzes the deadband, while keeping the
// actuator safe on every exit path.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/openrovlabs/thrustbench/analysis"
	"github.com/openrovlabs/thrustbench/bench"
	"github.com/openrovlabs/thrustbench/esc"
	"github.com/openrovlabs/thrustbench/forcesensor"
	"github.com/openrovlabs/thrustbench/powersensor"
)

// ErrAlreadyRunning is returned by Start while a run is active on this
// runner's hardware.
var ErrAlreadyRunning = errors.New("a test is already running")

// Defaults for run pacing.
const (
	DefaultStepUs          = 25
	DefaultStabilization   = 500 * time.Millisecond
	DefaultSamplesPerPoint = 5
	DefaultTareSamples     = 15

	// neutralReturnTimeout bounds the post-run ramp back to neutral,
	// which runs on its own context because the run context may already
	// be cancelled.
	neutralReturnTimeout = 30 * time.Second
)

// Options tune a runner. Zero values select the defaults above; negative
// durations disable the corresponding wait.
type Options struct {
	// StepUs is the sweep stride.
	StepUs int
	// Stabilization is the settle time after each pulse width change
	// before sampling.
	Stabilization time.Duration
	// SamplesPerPoint is how many raw reads are averaged per point.
	SamplesPerPoint int
	// InterSampleDelay spaces the raw reads within a point.
	InterSampleDelay time.Duration
	// TareSamples is how many reads the tare uses.
	TareSamples int
	// RampStepUs and RampDelay pace the safety ramps to the sweep start
	// and back to neutral.
	RampStepUs int
	RampDelay  time.Duration
	// Clock is the time source, swappable in tests.
	Clock clock.Clock
	// Analysis tunes the deadband computation.
	Analysis analysis.Options
}

func (o Options) withDefaults() Options {
	if o.StepUs <= 0 {
		o.StepUs = DefaultStepUs
	}
	if o.Stabilization == 0 {
		o.Stabilization = DefaultStabilization
	}
	if o.SamplesPerPoint <= 0 {
		o.SamplesPerPoint = DefaultSamplesPerPoint
	}
	if o.InterSampleDelay == 0 {
		o.InterSampleDelay = DefaultInterSampleDelay
	}
	if o.TareSamples <= 0 {
		o.TareSamples = DefaultTareSamples
	}
	if o.RampStepUs <= 0 {
		o.RampStepUs = esc.DefaultRampStepUs
	}
	if o.RampDelay == 0 {
		o.RampDelay = esc.DefaultRampDelay
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// EventKind discriminates the events emitted during a run.
type EventKind int

// Event kinds. A run emits zero or more Point and Progress events followed
// by at most one Complete or Error event, never both.
const (
	EventPoint EventKind = iota + 1
	EventProgress
	EventComplete
	EventError
)

// Event is one entry in a run's event stream.
type Event struct {
	Kind EventKind
	// Point is set on EventPoint.
	Point *bench.TestPoint
	// ProgressPct is set on EventProgress, 0-100 and non-decreasing.
	ProgressPct float64
	// Result is set on EventComplete. A user stop with at least one
	// collected point still produces a (partial) result.
	Result *bench.TestResult
	// Err is set on EventError.
	Err error
}

// Runner owns the ESC and sensors for the duration of a run and executes
// sweeps on a background goroutine. All exported methods are safe for
// concurrent use; the internal status has a single writer, the run
// goroutine, and is only ever read out as a snapshot.
type Runner struct {
	esc     esc.ESC
	power   powersensor.PowerSensor
	force   forcesensor.ForceSensor
	sampler *Sampler
	opts    Options
	clock   clock.Clock
	logger  golog.Logger

	mu            sync.Mutex
	status        bench.Status
	running       bool
	stopRequested bool
	emergency     bool
	resumeCh      chan struct{}
	cancel        context.CancelFunc
	doneCh        chan struct{}
	result        *bench.TestResult

	activeBackgroundWorkers sync.WaitGroup
}

// New returns a runner for the given hardware. The runner assumes exclusive
// ownership of all three devices for the lifetime of each run.
func New(
	e esc.ESC,
	power powersensor.PowerSensor,
	force forcesensor.ForceSensor,
	logger golog.Logger,
	opts Options,
) *Runner {
	opts = opts.withDefaults()
	return &Runner{
		esc:     e,
		power:   power,
		force:   force,
		sampler: NewSampler(power, force, opts.Clock, opts.InterSampleDelay),
		opts:    opts,
		clock:   opts.Clock,
		logger:  logger,
		status:  bench.Status{State: bench.StateIdle},
	}
}

// Start validates the configuration and launches the sweep on a background
// goroutine, returning the run's event stream immediately. The stream is
// buffered for the whole run so a slow consumer never stalls the sweep, and
// is closed after the terminal event.
func (r *Runner) Start(ctx context.Context, cfg bench.Config) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, ErrAlreadyRunning
	}

	total := (cfg.MaxPulseUs-cfg.MinPulseUs)/r.opts.StepUs + 1
	events := make(chan Event, total*2+4)

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.doneCh = make(chan struct{})
	r.running = true
	r.stopRequested = false
	r.emergency = false
	r.resumeCh = nil
	r.result = nil
	r.status = bench.Status{
		Running:        true,
		State:          bench.StateIdle,
		CurrentPulseUs: cfg.NeutralPulseUs,
	}

	doneCh := r.doneCh
	r.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		r.run(runCtx, cfg, events)
	}, func() {
		close(doneCh)
		r.activeBackgroundWorkers.Done()
	})
	return events, nil
}

// Stop requests cooperative termination and waits for the run goroutine to
// acknowledge it, or for ctx to expire. On ctx expiry the run may still be
// active and the actuator must not be assumed neutral.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.stopRequested = true
	if r.cancel != nil {
		r.cancel()
	}
	done := r.doneCh
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "run did not terminate before the stop deadline")
	}
}

// Pause asks the sweep to hold before its next setpoint. It has no effect
// unless the run is sweeping or already paused.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	if s := r.status.State; s != bench.StateSweeping && s != bench.StatePaused {
		return
	}
	if r.resumeCh == nil {
		r.resumeCh = make(chan struct{})
		r.status.Paused = true
	}
}

// Resume releases a paused sweep.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resumeCh != nil {
		close(r.resumeCh)
		r.resumeCh = nil
		r.status.Paused = false
	}
}

// EmergencyStop forces the ESC to neutral and disarms it synchronously,
// bypassing the graceful ramp-down. Safe to call from any state, including
// before Start.
func (r *Runner) EmergencyStop() {
	r.mu.Lock()
	r.emergency = true
	r.stopRequested = true
	if r.cancel != nil {
		r.cancel()
	}
	if r.resumeCh != nil {
		close(r.resumeCh)
		r.resumeCh = nil
		r.status.Paused = false
	}
	r.mu.Unlock()

	r.esc.EmergencyStop()
}

// Status returns a snapshot of the run state.
func (r *Runner) Status() bench.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Result returns the most recent run's result, nil if no run produced one.
func (r *Runner) Result() *bench.TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Close stops any active run and waits for the background goroutine.
func (r *Runner) Close(ctx context.Context) error {
	err := r.Stop(ctx)
	r.activeBackgroundWorkers.Wait()
	return err
}

// run is the only writer of r.status while a test is active.
func (r *Runner) run(ctx context.Context, cfg bench.Config, events chan Event) {
	defer close(events)
	startedAt := r.clock.Now()

	total := (cfg.MaxPulseUs-cfg.MinPulseUs)/r.opts.StepUs + 1
	points := make([]bench.TestPoint, 0, total)

	type phase struct {
		state bench.State
		name  string
		fn    func(context.Context) error
	}
	setup := []phase{
		{bench.StateArming, "arming ESC", func(ctx context.Context) error {
			return r.esc.Arm(ctx, cfg.NeutralPulseUs)
		}},
		{bench.StateTaring, "taring load cell", func(ctx context.Context) error {
			return r.force.Tare(ctx, r.opts.TareSamples)
		}},
		{bench.StateRampingToStart, "ramping to sweep start", func(ctx context.Context) error {
			if err := r.esc.RampTo(ctx, cfg.MinPulseUs, r.opts.RampStepUs, r.opts.RampDelay); err != nil {
				return err
			}
			if !selectOrWait(ctx, r.clock, r.opts.Stabilization) {
				return ctx.Err()
			}
			return nil
		}},
	}
	for _, p := range setup {
		if r.stopRequestedNow() {
			r.finishStopped(cfg, points, startedAt, events)
			return
		}
		r.setState(p.state)
		r.logger.Debugf("%s", p.name)
		if err := p.fn(ctx); err != nil {
			if r.stopRequestedNow() {
				r.finishStopped(cfg, points, startedAt, events)
				return
			}
			r.fail(p.name, err, events)
			return
		}
	}

	r.setState(bench.StateSweeping)
	stepCount := 0
	for pulse := cfg.MinPulseUs; pulse <= cfg.MaxPulseUs; pulse += r.opts.StepUs {
		if r.stopRequestedNow() {
			break
		}
		if !r.waitWhilePaused(ctx) {
			break
		}
		if err := r.esc.SetPulseWidth(ctx, pulse); err != nil {
			if r.stopRequestedNow() {
				break
			}
			r.fail("commanding pulse width", err, events)
			return
		}
		r.setCurrentPulse(pulse)
		if !selectOrWait(ctx, r.clock, r.opts.Stabilization) {
			break
		}
		pt, err := r.sampler.Sample(ctx, pulse, r.opts.SamplesPerPoint)
		if err != nil {
			if r.stopRequestedNow() {
				break
			}
			r.fail("sampling", err, events)
			return
		}
		points = append(points, pt)
		stepCount++
		progress := float64(stepCount) / float64(total) * 100
		r.publishPoint(pt, progress)
		events <- Event{Kind: EventPoint, Point: &pt}
		events <- Event{Kind: EventProgress, ProgressPct: progress}
	}

	if r.stopRequestedNow() {
		r.finishStopped(cfg, points, startedAt, events)
		return
	}

	if err := r.returnToNeutral(cfg); err != nil {
		r.fail("returning to neutral", err, events)
		return
	}

	result := r.assembleResult(cfg, points, startedAt)
	r.setResult(result)
	r.setTerminal(bench.StateCompleted, "")
	r.logger.Infof("test complete: %d points in %v", len(points), result.Duration())
	events <- Event{Kind: EventComplete, Result: result}
}

// finishStopped handles both user stops and emergency stops. The ESC is
// always neutralized: gracefully unless the emergency path already forced
// it. Collected points are kept as a partial result.
func (r *Runner) finishStopped(cfg bench.Config, points []bench.TestPoint, startedAt time.Time, events chan Event) {
	if r.emergencyNow() {
		// Re-assert neutral in case a setpoint write raced the emergency
		// write; EmergencyStop is idempotent.
		r.esc.EmergencyStop()
	} else if err := r.returnToNeutral(cfg); err != nil {
		r.logger.Errorw("graceful neutral return failed, forcing neutral", "error", err)
		r.esc.EmergencyStop()
	}
	var result *bench.TestResult
	if len(points) > 0 {
		result = r.assembleResult(cfg, points, startedAt)
		r.setResult(result)
	}
	r.setTerminal(bench.StateStopped, "")
	r.logger.Infof("test stopped with %d points collected", len(points))
	if result != nil {
		events <- Event{Kind: EventComplete, Result: result}
	}
}

// fail converts a driver error into the terminal error state: the ESC is
// forced to neutral via the emergency path and a single error event is
// emitted. Faults are never retried.
func (r *Runner) fail(stage string, err error, events chan Event) {
	r.esc.EmergencyStop()
	wrapped := errors.Wrap(err, stage)
	r.logger.Errorw("test run failed", "stage", stage, "error", err)
	r.setTerminal(bench.StateError, wrapped.Error())
	events <- Event{Kind: EventError, Err: wrapped}
}

// returnToNeutral ramps back and disarms on a fresh context; the run
// context is typically already cancelled when a stop brought us here.
func (r *Runner) returnToNeutral(cfg bench.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), neutralReturnTimeout)
	defer cancel()
	r.setState(bench.StateReturningToNeutral)
	if err := r.esc.RampTo(ctx, cfg.NeutralPulseUs, r.opts.RampStepUs, r.opts.RampDelay); err != nil {
		return err
	}
	return r.esc.Disarm(ctx, cfg.NeutralPulseUs)
}

func (r *Runner) assembleResult(cfg bench.Config, points []bench.TestPoint, startedAt time.Time) *bench.TestResult {
	result := &bench.TestResult{
		Config:    cfg,
		Points:    points,
		StartedAt: startedAt,
		EndedAt:   r.clock.Now(),
	}
	if len(points) > 0 {
		db := analysis.Deadband(points, cfg.NeutralPulseUs, r.opts.Analysis)
		result.Deadband = &db
	}
	return result
}

// waitWhilePaused blocks while the sweep is paused. It returns false when
// the run context was cancelled, whether paused or not.
func (r *Runner) waitWhilePaused(ctx context.Context) bool {
	for {
		r.mu.Lock()
		ch := r.resumeCh
		r.mu.Unlock()
		if ch == nil {
			return ctx.Err() == nil
		}
		r.setState(bench.StatePaused)
		select {
		case <-ch:
			r.setState(bench.StateSweeping)
		case <-ctx.Done():
			return false
		}
	}
}

func (r *Runner) stopRequestedNow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopRequested
}

func (r *Runner) emergencyNow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emergency
}

func (r *Runner) setState(s bench.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = s
}

func (r *Runner) setCurrentPulse(pulseUs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.CurrentPulseUs = pulseUs
}

func (r *Runner) publishPoint(pt bench.TestPoint, progress float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ptCopy := pt
	r.status.LastPoint = &ptCopy
	r.status.ProgressPct = progress
}

func (r *Runner) setResult(result *bench.TestResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = result
}

func (r *Runner) setTerminal(s bench.State, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = s
	r.status.Running = false
	r.status.Paused = false
	r.status.ErrMsg = errMsg
	r.running = false
	if r.resumeCh != nil {
		close(r.resumeCh)
		r.resumeCh = nil
	}
}
