// Package bench contains the data model for thruster characterization:
// test configuration, measured points, deadband analysis results, and the
// status published while a test is running.
package bench

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Absolute pulse width limits a configuration may never exceed, regardless
// of what the ESC itself would accept.
const (
	MinAbsolutePulseUs = 500
	MaxAbsolutePulseUs = 2500
)

// Defaults applied by Config.Validate when fields are left zero.
const (
	DefaultNeutralPulseUs = 1500
	DefaultFrequencyHz    = 50
)

// Config describes the thruster under test and the pulse width range to
// sweep. It is immutable once a run starts.
type Config struct {
	// ThrusterType is the model label, e.g. "T200".
	ThrusterType string `json:"thruster_type"`
	// ThrusterID is a user-defined identifier for the physical unit.
	ThrusterID string `json:"thruster_id"`
	// MinPulseUs is the lowest pulse width commanded during the sweep.
	MinPulseUs int `json:"min_pulse_us"`
	// MaxPulseUs is the highest pulse width commanded during the sweep.
	MaxPulseUs int `json:"max_pulse_us"`
	// NeutralPulseUs is the zero-thrust pulse width (default 1500).
	NeutralPulseUs int `json:"neutral_pulse_us"`
	// FrequencyHz is the ESC signal frequency (default 50).
	FrequencyHz int `json:"frequency_hz"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (c *Config) Validate(path string) error {
	if c.NeutralPulseUs == 0 {
		c.NeutralPulseUs = DefaultNeutralPulseUs
	}
	if c.FrequencyHz == 0 {
		c.FrequencyHz = DefaultFrequencyHz
	}
	if c.MinPulseUs == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "min_pulse_us")
	}
	if c.MaxPulseUs == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "max_pulse_us")
	}
	if c.MinPulseUs < MinAbsolutePulseUs || c.MaxPulseUs > MaxAbsolutePulseUs {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("pulse widths must be within %d-%dus, have %d-%d",
				MinAbsolutePulseUs, MaxAbsolutePulseUs, c.MinPulseUs, c.MaxPulseUs))
	}
	if !(c.MinPulseUs < c.NeutralPulseUs && c.NeutralPulseUs < c.MaxPulseUs) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("min < neutral < max required, have %d/%d/%d",
				c.MinPulseUs, c.NeutralPulseUs, c.MaxPulseUs))
	}
	if c.FrequencyHz < 0 {
		return goutils.NewConfigValidationError(path, errors.New("frequency_hz cannot be negative"))
	}
	return nil
}

// BuiltinPresets returns the stock configurations for commonly tested
// thrusters. The map is freshly allocated on each call so callers may
// mutate their copy.
func BuiltinPresets() map[string]Config {
	return map[string]Config{
		"TD1.2": {
			ThrusterType:   "TD1.2",
			MinPulseUs:     1100,
			MaxPulseUs:     1900,
			NeutralPulseUs: 1500,
			FrequencyHz:    50,
		},
		"T100": {
			ThrusterType:   "T100",
			MinPulseUs:     1100,
			MaxPulseUs:     1900,
			NeutralPulseUs: 1500,
			FrequencyHz:    50,
		},
		"T200": {
			ThrusterType:   "T200",
			MinPulseUs:     1100,
			MaxPulseUs:     1900,
			NeutralPulseUs: 1500,
			FrequencyHz:    50,
		},
		"Custom": {
			ThrusterType:   "Custom",
			MinPulseUs:     1000,
			MaxPulseUs:     2000,
			NeutralPulseUs: 1500,
			FrequencyHz:    50,
		},
	}
}

// LoadPresets reads a preset file of the form {"presets": {"T200": {...}}}
// and merges it over the built-in presets.
func LoadPresets(path string) (map[string]Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read preset file")
	}
	var file struct {
		Presets map[string]Config `json:"presets"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "couldn't parse preset file %s", path)
	}
	presets := BuiltinPresets()
	for name, cfg := range file.Presets {
		if cfg.ThrusterType == "" {
			cfg.ThrusterType = name
		}
		presets[name] = cfg
	}
	return presets, nil
}
