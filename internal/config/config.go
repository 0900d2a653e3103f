// Package config holds the settings of all pipelines in one record. It is
// loaded once (defaults, then an optional YAML file, then command line
// overrides) and validated before any pipeline runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/carbocation/pfx"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration.
type Config struct {
	Reduce Reduce `yaml:"reduce"`
	Groups Groups `yaml:"groups"`
	ISTD   ISTD   `yaml:"istd"`
	Quant  Quant  `yaml:"quant"`
	MSFLO  MSFLO  `yaml:"msflo"`
}

// Reduce holds the feature reduction thresholds. A feature is kept when
// its fold change exceeds the fold threshold and its sample max (knowns)
// or sample average (unknowns) exceeds the floor.
type Reduce struct {
	Instrument           string  `yaml:"instrument"`
	KnownFold            float64 `yaml:"known_fold"`
	UnknownFold          float64 `yaml:"unknown_fold"`
	KnownSampleMax       float64 `yaml:"known_sample_max"`
	UnknownSampleAverage float64 `yaml:"unknown_sample_average"`
	RTWindow             string  `yaml:"rt_window"` // "lo:hi", empty for all
}

// Groups holds the substrings that assign sample columns to groups.
type Groups struct {
	Blank  string `yaml:"blank"`
	Biorec string `yaml:"biorec"`
	Pool   string `yaml:"pool"`
}

// ISTD holds the internal standard search settings.
type ISTD struct {
	Method      string  `yaml:"method"`
	Library     string  `yaml:"library"` // optional YAML library file
	RTTolerance float64 `yaml:"rt_tolerance"`
	MZTolerance float64 `yaml:"mz_tolerance"`
	Output      string  `yaml:"output"`
}

// Quant holds the column patterns of the single point quantification
// input sheet.
type Quant struct {
	MatchColumn   string `yaml:"match_column"`
	NameColumn    string `yaml:"name_column"`
	SamplePattern string `yaml:"sample_pattern"`
}

// MSFLO holds the settings of the external curation service.
type MSFLO struct {
	URL       string        `yaml:"url"`
	Downloads string        `yaml:"downloads"`
	Browser   string        `yaml:"browser"` // browser binary, empty to download one
	Headless  bool          `yaml:"headless"`
	Timeout   time.Duration `yaml:"timeout"`
	Steps     []Step        `yaml:"steps"`
}

// Step is one interaction with the curation service form.
type Step struct {
	Name   string `yaml:"name"`
	XPath  string `yaml:"xpath"`
	Action string `yaml:"action"` // click, input, upload or submit
	Value  string `yaml:"value"`
}

// Step actions
const (
	ActionClick  = "click"
	ActionInput  = "input"
	ActionUpload = "upload"
	ActionSubmit = "submit"
)

// Instrument presets
const (
	InstrumentQTOF   = "qtof" // Agilent QTOF or Sciex TTOF
	InstrumentQEHF   = "qehf" // Thermo QEHF
	InstrumentCustom = "custom"
)

var ErrInvalid = errors.New("invalid configuration")

// Preset returns the reduction thresholds used for an instrument.
func Preset(instrument string) (Reduce, error) {
	switch strings.ToLower(instrument) {
	case InstrumentQTOF:
		return Reduce{
			Instrument:           InstrumentQTOF,
			KnownFold:            5,
			UnknownFold:          5,
			KnownSampleMax:       1000,
			UnknownSampleAverage: 3000,
		}, nil
	case InstrumentQEHF:
		return Reduce{
			Instrument:           InstrumentQEHF,
			KnownFold:            5,
			UnknownFold:          5,
			KnownSampleMax:       10000,
			UnknownSampleAverage: 50000,
		}, nil
	}
	return Reduce{}, fmt.Errorf("%w: unknown instrument %q", ErrInvalid, instrument)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	r, _ := Preset(InstrumentQTOF)
	return Config{
		Reduce: r,
		Groups: Groups{
			Blank:  "MtdBlank",
			Biorec: "Biorec",
			Pool:   "PoolQC",
		},
		ISTD: ISTD{
			Method:      "hilic",
			RTTolerance: 0.05,
			MZTolerance: 0.005,
			Output:      "results.xlsx",
		},
		Quant: Quant{
			MatchColumn:   `number|istd type`,
			NameColumn:    `name`,
			SamplePattern: `[a-z0-9]+_[a-z0-9]+_[a-z]+`,
		},
		MSFLO: MSFLO{
			URL:      "https://msflo.fiehnlab.ucdavis.edu/#/submit",
			Headless: true,
			Timeout:  30 * time.Minute,
			Steps:    DefaultSteps(),
		},
	}
}

// DefaultSteps fills in the MS-FLO submission form for MS-Dial input with
// contaminant ion and adduct joining disabled.
func DefaultSteps() []Step {
	return []Step{
		{Name: "ms-dial input", XPath: "/html/body/div/div/form/div[2]/div/div[2]/label/input", Action: ActionClick},
		{Name: "file", XPath: "/html/body/div/div/form/div[3]/div/span/span/input", Action: ActionUpload},
		{Name: "contaminant ion removal", XPath: "/html/body/div/div/form/div[5]/div[2]/label/input", Action: ActionClick},
		{Name: "adduct joining", XPath: "/html/body/div/div/form/div[5]/div[15]/label/input", Action: ActionClick},
		{Name: "duplicate peak height", XPath: "/html/body/div/div/form/div[5]/div[8]/input", Action: ActionInput, Value: "500"},
		{Name: "duplicate rt tolerance", XPath: "/html/body/div/div/form/div[5]/div[7]/input", Action: ActionInput, Value: "0.05"},
		{Name: "duplicate m/z tolerance", XPath: "/html/body/div/div/form/div[5]/div[6]/input", Action: ActionInput, Value: "0.005"},
		{Name: "duplicate min peak match ratio", XPath: "/html/body/div/div/form/div[5]/div[9]/input", Action: ActionInput, Value: "0.7"},
		{Name: "isotope match", XPath: "/html/body/div/div/form/div[5]/div[13]/input", Action: ActionInput, Value: "0.7"},
		{Name: "submit", XPath: "/html/body/div/div/form/div[6]/input", Action: ActionSubmit},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the
// defaults. A file that names an instrument but no thresholds gets the
// thresholds of that instrument.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, pfx.Err(err)
	}

	var probe struct {
		Reduce map[string]interface{} `yaml:"reduce"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if inst, ok := probe.Reduce["instrument"].(string); ok && inst != InstrumentCustom {
		r, err := Preset(inst)
		if err != nil {
			return cfg, err
		}
		cfg.Reduce = r
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the whole record. It reports the first problem found.
func (c Config) Validate() error {
	r := c.Reduce
	for name, v := range map[string]float64{
		"known_fold":             r.KnownFold,
		"unknown_fold":           r.UnknownFold,
		"known_sample_max":       r.KnownSampleMax,
		"unknown_sample_average": r.UnknownSampleAverage,
	} {
		if v < 0 {
			return fmt.Errorf("%w: reduce.%s must be greater than or equal to 0", ErrInvalid, name)
		}
	}
	g := c.Groups
	if g.Blank == "" || g.Biorec == "" || g.Pool == "" {
		return fmt.Errorf("%w: group markers must not be empty", ErrInvalid)
	}
	if g.Blank == g.Biorec || g.Blank == g.Pool || g.Biorec == g.Pool {
		return fmt.Errorf("%w: group markers must differ", ErrInvalid)
	}
	if c.ISTD.RTTolerance <= 0 || c.ISTD.MZTolerance <= 0 {
		return fmt.Errorf("%w: istd tolerances must be positive", ErrInvalid)
	}
	for name, p := range map[string]string{
		"match_column":   c.Quant.MatchColumn,
		"name_column":    c.Quant.NameColumn,
		"sample_pattern": c.Quant.SamplePattern,
	} {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: quant.%s: %v", ErrInvalid, name, err)
		}
	}
	if c.MSFLO.Timeout <= 0 {
		return fmt.Errorf("%w: msflo.timeout must be positive", ErrInvalid)
	}
	uploads := 0
	for i, s := range c.MSFLO.Steps {
		if s.XPath == "" {
			return fmt.Errorf("%w: msflo step %d has no xpath", ErrInvalid, i+1)
		}
		switch s.Action {
		case ActionClick, ActionInput, ActionSubmit:
		case ActionUpload:
			uploads++
		default:
			return fmt.Errorf("%w: msflo step %d: unknown action %q", ErrInvalid, i+1, s.Action)
		}
	}
	if len(c.MSFLO.Steps) > 0 && uploads != 1 {
		return fmt.Errorf("%w: msflo steps need exactly one upload", ErrInvalid)
	}
	return nil
}
