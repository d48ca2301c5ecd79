package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/seistools/phasealign/internal/model"
)

// ConfigError reports a bad or unknown run-configuration entry. It is
// always fatal: the pipeline refuses to start on a partial configuration.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Config fixes every parameter of one alignment run. It is built once
// from defaults overlaid with a user file and is read-only thereafter.
type Config struct {
	Phase string
	Event string // calendar date YYYY-MM-DD of the event

	// Geometry cut, all bounds inclusive.
	MinGcarc, MaxGcarc float64
	MinDist, MaxDist   float64
	MinAz, MaxAz       float64
	MinBaz, MaxBaz     float64

	// Filter bank.
	BankMode   string // "constant" or "variable"
	BankLo     float64
	BankHi     float64
	BankWidth  float64
	BankOffset float64

	// SNR. Windows are relative to the predicted arrival. A zero SNRCut
	// disables the cut.
	NoiseWindow  model.Window
	SignalWindow model.Window
	SNRCut       float64

	// Windowing and tapering.
	Window      model.Window
	TaperFrac   float64
	Interactive bool

	// Correlation.
	NumPeaks int // 1, 3, 5 or 7
	AbsPeaks bool
	PadPow2  bool
	MaxLag   float64 // seconds; 0 means the full overlap
	Workers  int

	// Clustering.
	LinkageMethod string // "single", "average" or "complete"
	ClusterCutoff float64

	// Preen (alignment outlier rejection).
	PreenTol        float64
	PreenMinRecords int
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Phase: "P",
		Event: "1970-01-01",

		MinGcarc: 0, MaxGcarc: 180,
		MinDist: 0, MaxDist: 21000,
		MinAz: 0, MaxAz: 360,
		MinBaz: 0, MaxBaz: 360,

		BankMode:   "constant",
		BankLo:     0.01,
		BankHi:     0.1,
		BankWidth:  0.01,
		BankOffset: 0.01,

		NoiseWindow:  model.Window{Start: -60, End: -10},
		SignalWindow: model.Window{Start: -5, End: 45},
		SNRCut:       0,

		Window:      model.Window{Start: -10, End: 50},
		TaperFrac:   0.1,
		Interactive: false,

		NumPeaks: 3,
		AbsPeaks: false,
		PadPow2:  true,
		MaxLag:   0,
		Workers:  4,

		LinkageMethod: "average",
		ClusterCutoff: 0.2,

		PreenTol:        0.05,
		PreenMinRecords: 3,
	}
}

// Load returns the defaults overlaid with the KEY=VALUE file at path.
// An empty path returns the validated defaults. Unknown keys and
// malformed values fail with a ConfigError before any data I/O happens.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		kv, err := godotenv.Read(path)
		if err != nil {
			return nil, &ConfigError{Key: path, Reason: err.Error()}
		}
		if err := cfg.apply(kv); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(kv map[string]string) error {
	for key, val := range kv {
		if err := c.set(strings.ToUpper(key), val); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) set(key, val string) error {
	switch key {
	case "PHASE":
		c.Phase = val
	case "EVENT":
		c.Event = val
	case "MIN_GCARC":
		return setFloat(&c.MinGcarc, key, val)
	case "MAX_GCARC":
		return setFloat(&c.MaxGcarc, key, val)
	case "MIN_DIST":
		return setFloat(&c.MinDist, key, val)
	case "MAX_DIST":
		return setFloat(&c.MaxDist, key, val)
	case "MIN_AZ":
		return setFloat(&c.MinAz, key, val)
	case "MAX_AZ":
		return setFloat(&c.MaxAz, key, val)
	case "MIN_BAZ":
		return setFloat(&c.MinBaz, key, val)
	case "MAX_BAZ":
		return setFloat(&c.MaxBaz, key, val)
	case "BANK_MODE":
		c.BankMode = strings.ToLower(val)
	case "BANK_LO":
		return setFloat(&c.BankLo, key, val)
	case "BANK_HI":
		return setFloat(&c.BankHi, key, val)
	case "BANK_WIDTH":
		return setFloat(&c.BankWidth, key, val)
	case "BANK_OFFSET":
		return setFloat(&c.BankOffset, key, val)
	case "NOISE_START":
		return setFloat(&c.NoiseWindow.Start, key, val)
	case "NOISE_END":
		return setFloat(&c.NoiseWindow.End, key, val)
	case "SIGNAL_START":
		return setFloat(&c.SignalWindow.Start, key, val)
	case "SIGNAL_END":
		return setFloat(&c.SignalWindow.End, key, val)
	case "SNR_CUT":
		return setFloat(&c.SNRCut, key, val)
	case "WINDOW_START":
		return setFloat(&c.Window.Start, key, val)
	case "WINDOW_END":
		return setFloat(&c.Window.End, key, val)
	case "TAPER_FRAC":
		return setFloat(&c.TaperFrac, key, val)
	case "INTERACTIVE":
		return setBool(&c.Interactive, key, val)
	case "NUM_PEAKS":
		return setInt(&c.NumPeaks, key, val)
	case "ABS_PEAKS":
		return setBool(&c.AbsPeaks, key, val)
	case "PAD_POW2":
		return setBool(&c.PadPow2, key, val)
	case "MAX_LAG":
		return setFloat(&c.MaxLag, key, val)
	case "WORKERS":
		return setInt(&c.Workers, key, val)
	case "LINKAGE":
		c.LinkageMethod = strings.ToLower(val)
	case "CLUSTER_CUTOFF":
		return setFloat(&c.ClusterCutoff, key, val)
	case "PREEN_TOL":
		return setFloat(&c.PreenTol, key, val)
	case "PREEN_MIN_RECORDS":
		return setInt(&c.PreenMinRecords, key, val)
	default:
		return &ConfigError{Key: key, Reason: "unknown configuration key"}
	}
	return nil
}

func setFloat(dst *float64, key, val string) error {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return &ConfigError{Key: key, Reason: "not a number: " + val}
	}
	*dst = f
	return nil
}

func setInt(dst *int, key, val string) error {
	n, err := strconv.Atoi(val)
	if err != nil {
		return &ConfigError{Key: key, Reason: "not an integer: " + val}
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, val string) error {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return &ConfigError{Key: key, Reason: "not a boolean: " + val}
	}
	*dst = b
	return nil
}

// Validate checks cross-field consistency eagerly, before the pipeline
// touches any data.
func (c *Config) Validate() error {
	if c.Phase == "" {
		return &ConfigError{Key: "PHASE", Reason: "must not be empty"}
	}
	if c.BankMode != "constant" && c.BankMode != "variable" {
		return &ConfigError{Key: "BANK_MODE", Reason: "must be constant or variable"}
	}
	if c.BankLo <= 0 || c.BankHi <= 0 || c.BankLo >= c.BankHi {
		return &ConfigError{Key: "BANK_LO/BANK_HI", Reason: "need 0 < lo < hi"}
	}
	if c.BankWidth <= 0 || c.BankOffset <= 0 {
		return &ConfigError{Key: "BANK_WIDTH/BANK_OFFSET", Reason: "must be positive"}
	}
	switch c.NumPeaks {
	case 1, 3, 5, 7:
	default:
		return &ConfigError{Key: "NUM_PEAKS", Reason: "must be 1, 3, 5 or 7"}
	}
	if c.TaperFrac < 0 || c.TaperFrac > 0.5 {
		return &ConfigError{Key: "TAPER_FRAC", Reason: "must be in [0, 0.5]"}
	}
	if c.Window.End <= c.Window.Start {
		return &ConfigError{Key: "WINDOW_START/WINDOW_END", Reason: "window must have positive length"}
	}
	if c.NoiseWindow.End <= c.NoiseWindow.Start {
		return &ConfigError{Key: "NOISE_START/NOISE_END", Reason: "window must have positive length"}
	}
	if c.SignalWindow.End <= c.SignalWindow.Start {
		return &ConfigError{Key: "SIGNAL_START/SIGNAL_END", Reason: "window must have positive length"}
	}
	switch c.LinkageMethod {
	case "single", "average", "complete":
	default:
		return &ConfigError{Key: "LINKAGE", Reason: "must be single, average or complete"}
	}
	if c.ClusterCutoff < 0 || c.ClusterCutoff > 2 {
		return &ConfigError{Key: "CLUSTER_CUTOFF", Reason: "must be in [0, 2]"}
	}
	if c.Workers < 1 {
		return &ConfigError{Key: "WORKERS", Reason: "must be at least 1"}
	}
	if c.PreenMinRecords < 2 {
		return &ConfigError{Key: "PREEN_MIN_RECORDS", Reason: "must be at least 2"}
	}
	if c.PreenTol <= 0 {
		return &ConfigError{Key: "PREEN_TOL", Reason: "must be positive"}
	}
	return nil
}
