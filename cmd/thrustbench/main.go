// Command thrustbench characterizes a thruster by sweeping its ESC pulse
// width and recording electrical and mechanical response at each step.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/edaniels/golog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"periph.io/x/host/v3"

	"github.com/openrovlabs/thrustbench/analysis"
	"github.com/openrovlabs/thrustbench/bench"
	"github.com/openrovlabs/thrustbench/esc"
	escfake "github.com/openrovlabs/thrustbench/esc/fake"
	escgpio "github.com/openrovlabs/thrustbench/esc/gpio"
	"github.com/openrovlabs/thrustbench/forcesensor"
	forcefake "github.com/openrovlabs/thrustbench/forcesensor/fake"
	"github.com/openrovlabs/thrustbench/forcesensor/hx711"
	"github.com/openrovlabs/thrustbench/powersensor"
	powerfake "github.com/openrovlabs/thrustbench/powersensor/fake"
	"github.com/openrovlabs/thrustbench/powersensor/ina228"
	"github.com/openrovlabs/thrustbench/results"
	"github.com/openrovlabs/thrustbench/runner"
)

func main() {
	logger := golog.NewDevelopmentLogger("thrustbench")

	app := &cli.App{
		Name:  "thrustbench",
		Usage: "characterize a thruster's deadband and power curve",
		Commands: []*cli.Command{
			runCommand(logger),
			analyzeCommand(),
			presetsCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func runCommand(logger golog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run a characterization sweep",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "preset", Value: "T200", Usage: "thruster preset name"},
			&cli.StringFlag{Name: "presets-file", Usage: "JSON preset file overriding the built-ins"},
			&cli.StringFlag{Name: "id", Value: "bench", Usage: "identifier for the unit under test"},
			&cli.IntFlag{Name: "min", Usage: "override sweep minimum pulse width (us)"},
			&cli.IntFlag{Name: "max", Usage: "override sweep maximum pulse width (us)"},
			&cli.IntFlag{Name: "neutral", Usage: "override neutral pulse width (us)"},
			&cli.IntFlag{Name: "step", Value: runner.DefaultStepUs, Usage: "sweep stride (us)"},
			&cli.DurationFlag{Name: "stabilization", Value: runner.DefaultStabilization, Usage: "settle time per setpoint"},
			&cli.IntFlag{Name: "samples", Value: runner.DefaultSamplesPerPoint, Usage: "sensor reads per point"},
			&cli.StringFlag{Name: "notes", Usage: "free-text notes attached to the result"},
			&cli.StringFlag{Name: "output", Usage: "write the result JSON to this file"},
			&cli.BoolFlag{Name: "simulate", Aliases: []string{"s"}, Usage: "use simulated hardware"},
			&cli.StringFlag{Name: "pwm-pin", Value: "GPIO18", Usage: "ESC PWM pin"},
			&cli.StringFlag{Name: "hx711-data", Value: "GPIO5", Usage: "HX711 DOUT pin"},
			&cli.StringFlag{Name: "hx711-clock", Value: "GPIO6", Usage: "HX711 SCK pin"},
			&cli.Float64Flag{Name: "counts-per-kg", Value: 1, Usage: "load cell calibration slope"},
			&cli.StringFlag{Name: "i2c-bus", Usage: "INA228 I2C bus name (default: first available)"},
			&cli.IntFlag{Name: "ina228-addr", Value: ina228.DefaultAddr, Usage: "INA228 I2C address"},
		},
		Action: func(c *cli.Context) error {
			return runSweep(c, logger)
		},
	}
}

func resolveConfig(c *cli.Context) (bench.Config, error) {
	presets := bench.BuiltinPresets()
	if path := c.String("presets-file"); path != "" {
		loaded, err := bench.LoadPresets(path)
		if err != nil {
			return bench.Config{}, err
		}
		presets = loaded
	}
	cfg, ok := presets[c.String("preset")]
	if !ok {
		return bench.Config{}, errors.Errorf("unknown preset %q", c.String("preset"))
	}
	cfg.ThrusterID = c.String("id")
	if v := c.Int("min"); v != 0 {
		cfg.MinPulseUs = v
	}
	if v := c.Int("max"); v != 0 {
		cfg.MaxPulseUs = v
	}
	if v := c.Int("neutral"); v != 0 {
		cfg.NeutralPulseUs = v
	}
	return cfg, nil
}

func buildHardware(c *cli.Context, logger golog.Logger) (esc.ESC, powersensor.PowerSensor, forcesensor.ForceSensor, error) {
	if c.Bool("simulate") {
		logger.Info("running with simulated hardware")
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		e := &escfake.ESC{ArmDuration: time.Second}
		power := &powerfake.PowerSensor{Pulse: e.CurrentPulseWidth, Rand: rnd}
		force := &forcefake.ForceSensor{Pulse: e.CurrentPulseWidth, Rand: rnd}
		return e, power, force, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, nil, nil, errors.Wrap(err, "couldn't initialize periph host")
	}
	e, err := escgpio.New(escgpio.Config{Pin: c.String("pwm-pin")}, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	power, err := ina228.New(c.Context, ina228.Config{
		Bus:  c.String("i2c-bus"),
		Addr: uint16(c.Int("ina228-addr")),
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	force, err := hx711.New(c.Context, hx711.Config{
		DataPin:     c.String("hx711-data"),
		ClockPin:    c.String("hx711-clock"),
		CountsPerKg: c.Float64("counts-per-kg"),
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return e, power, force, nil
}

func runSweep(c *cli.Context, logger golog.Logger) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}
	e, power, force, err := buildHardware(c, logger)
	if err != nil {
		return err
	}

	r := runner.New(e, power, force, logger, runner.Options{
		StepUs:          c.Int("step"),
		Stabilization:   c.Duration("stabilization"),
		SamplesPerPoint: c.Int("samples"),
	})

	events, err := r.Start(c.Context, cfg)
	if err != nil {
		return err
	}
	logger.Infof("sweeping %s %s: %d-%dus step %dus",
		cfg.ThrusterType, cfg.ThrusterID, cfg.MinPulseUs, cfg.MaxPulseUs, c.Int("step"))

	// A first interrupt stops the sweep immediately and safely; a second
	// one kills the process.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		logger.Warn("interrupt: emergency stop")
		r.EmergencyStop()
	}()

	var result *bench.TestResult
	for ev := range events {
		switch ev.Kind {
		case runner.EventPoint:
			logger.Infof("%4dus  %6.2fV %6.2fA %7.2fW  %+7.3fkg",
				ev.Point.PulseUs, ev.Point.VoltageV, ev.Point.CurrentA, ev.Point.PowerW, ev.Point.ThrustKg)
		case runner.EventProgress:
			logger.Debugf("progress %.0f%%", ev.ProgressPct)
		case runner.EventComplete:
			result = ev.Result
		case runner.EventError:
			return ev.Err
		}
	}
	if result == nil {
		logger.Warn("run stopped before any point was collected")
		return nil
	}
	result.Notes = c.String("notes")

	printSummary(result)
	if out := c.String("output"); out != "" {
		if err := results.SaveFile(c.Context, out, result); err != nil {
			return err
		}
		logger.Infof("result written to %s", out)
	}
	return nil
}

func printSummary(result *bench.TestResult) {
	fwd, rev := analysis.ThrustOnset(result.Points, result.Config.NeutralPulseUs, 0)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("%s %s (%d points, %s)",
		result.Config.ThrusterType, result.Config.ThrusterID, len(result.Points),
		result.Duration().Round(time.Second)))
	t.AppendRows([]table.Row{
		{"deadband lower", fmt.Sprintf("%dus", result.Deadband.MinOffPulseUs)},
		{"deadband upper", fmt.Sprintf("%dus", result.Deadband.MaxOffPulseUs)},
		{"deadband midpoint", fmt.Sprintf("%.1fus", result.Deadband.MidpointUs)},
		{"deadband range", fmt.Sprintf("%dus", result.Deadband.RangeUs)},
		{"forward onset", fmt.Sprintf("%dus", fwd)},
		{"reverse onset", fmt.Sprintf("%dus", rev)},
		{"max thrust", fmt.Sprintf("%.3fkg", result.MaxThrustKg())},
		{"max power", fmt.Sprintf("%.1fW", result.MaxPowerW())},
		{"max current", fmt.Sprintf("%.2fA", result.MaxCurrentA())},
	})
	t.Render()
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "re-run deadband analysis on a saved result",
		ArgsUsage: "<result.json>",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "threshold", Value: analysis.DefaultThrustThresholdKg, Usage: "thrust noise threshold (kg)"},
			&cli.IntFlag{Name: "resolution", Value: analysis.DefaultResolutionUs, Usage: "deadband rounding grid (us)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one result file")
			}
			result, err := results.LoadFile(c.Args().First())
			if err != nil {
				return err
			}
			db := analysis.Deadband(result.Points, result.Config.NeutralPulseUs, analysis.Options{
				ThrustThresholdKg: c.Float64("threshold"),
				ResolutionUs:      c.Int("resolution"),
			})
			result.Deadband = &db
			printSummary(result)
			return nil
		},
	}
}

func presetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "presets",
		Usage: "list the built-in thruster presets",
		Action: func(c *cli.Context) error {
			presets := bench.BuiltinPresets()
			names := make([]string, 0, len(presets))
			for name := range presets {
				names = append(names, name)
			}
			sort.Strings(names)

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"preset", "min (us)", "max (us)", "neutral (us)", "freq (Hz)"})
			for _, name := range names {
				cfg := presets[name]
				t.AppendRow(table.Row{name, cfg.MinPulseUs, cfg.MaxPulseUs, cfg.NeutralPulseUs, cfg.FrequencyHz})
			}
			t.Render()
			return nil
		},
	}
}
