// Public domain.

// Package config holds the settings of a map making run.
//
// Settings come from built-in defaults, then an optional YAML file, then
// CRABPOL_* environment variables, each overriding the last.  New validates
// the result once; a *Config is never modified after that and may be shared.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/soniakeys/unit"
	"gopkg.in/yaml.v3"

	"github.com/vyoma-m/crabpol/internal/calib"
	"github.com/vyoma-m/crabpol/internal/healpix"
	"github.com/vyoma-m/crabpol/internal/sky"
)

// ErrConfiguration wraps every problem found validating a configuration.
// It is fatal; nothing is retried.
var ErrConfiguration = errors.New("configuration error")

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "CRABPOL"

// Subfolders of the data path.
const (
	TODDir   = "M1"
	CalibDir = "PR2-3"
)

// MissingPolicy says what to do when a detector's data file is absent.
type MissingPolicy string

const (
	// MissingAbort fails the frequency channel.
	MissingAbort MissingPolicy = "abort"
	// MissingSkip leaves the detector out, with a warning.
	MissingSkip MissingPolicy = "skip"
)

// Config is the set of per-run settings.
type Config struct {
	Instrument  string `yaml:"instrument" envconfig:"INSTRUMENT" validate:"required,oneof=LFI HFI"`
	Frequencies []int  `yaml:"frequencies" envconfig:"FREQUENCIES" validate:"dive,gt=0"`

	DataPath  string `yaml:"data_path" envconfig:"DATA_PATH" validate:"required"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	Catalog   string `yaml:"catalog" envconfig:"CATALOG"`

	// Coord is longitude, latitude in degrees.  Empty means Tau-A.
	Coord       []float64 `yaml:"coord" envconfig:"COORD" validate:"omitempty,len=2"`
	CoordSystem string    `yaml:"coord_system" envconfig:"COORD_SYSTEM" validate:"oneof=galactic equatorial"`

	Nside     int     `yaml:"nside" envconfig:"NSIDE" validate:"gt=0"`
	Npix      int     `yaml:"npix" envconfig:"NPIX" validate:"gt=0,lte=4096"`
	PixelSize float64 `yaml:"pixel_size" envconfig:"PIXEL_SIZE" validate:"gt=0"` // arcmin

	// Alpha is the spectral index selecting the color correction table.
	Alpha                 float64         `yaml:"alpha" envconfig:"ALPHA"`
	ColorCorrection       bool            `yaml:"color_correction" envconfig:"COLOR_CORRECTION"`
	BackgroundSubtraction bool            `yaml:"background_subtraction" envconfig:"BACKGROUND_SUBTRACTION"`
	Background            map[int]float64 `yaml:"background" envconfig:"BACKGROUND"`

	Split     string `yaml:"split" envconfig:"SPLIT" validate:"omitempty,alphanum"`
	OnMissing string `yaml:"on_missing" envconfig:"ON_MISSING" validate:"oneof=abort skip"`
	Workers   int    `yaml:"workers" envconfig:"WORKERS" validate:"gte=0"`
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	// derived by New
	inst       calib.Instrument
	system     sky.System
	lon, lat   unit.Angle
	background calib.BackgroundTable
	level      slog.Level
}

// Default returns the built-in defaults.  DataPath has none.
func Default() Config {
	return Config{
		Instrument:  string(calib.HFI),
		OutputDir:   "maps",
		CoordSystem: string(sky.Galactic),
		Nside:       2048,
		Npix:        80,
		PixelSize:   1.5,
		Alpha:       -0.28,
		OnMissing:   string(MissingAbort),
		LogLevel:    "info",
	}
}

// Load reads configuration from defaults, the YAML file fn if fn is not
// empty, and the environment, then validates it.
func Load(fn string) (*Config, error) {
	c, err := Read(fn)
	if err != nil {
		return nil, err
	}
	return New(c)
}

// Read is Load without validation, for callers that override fields
// before calling New.
func Read(fn string) (Config, error) {
	c := Default()
	if fn != "" {
		b, err := os.ReadFile(fn)
		if err != nil {
			return c, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrConfiguration, fn, err)
		}
	}
	// envconfig leaves fields untouched when their variable is unset
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return c, nil
}

var validate = validator.New()

// New validates c and returns the run configuration.
func New(c Config) (*Config, error) {
	c.Instrument = strings.ToUpper(strings.TrimSpace(c.Instrument))
	c.CoordSystem = strings.ToLower(strings.TrimSpace(c.CoordSystem))
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	var err error
	if c.inst, err = calib.ParseInstrument(c.Instrument); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if c.system, err = sky.ParseSystem(c.CoordSystem); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if len(c.Frequencies) == 0 {
		c.Frequencies = calib.Frequencies(c.inst)
	} else {
		c.Frequencies = append([]int(nil), c.Frequencies...)
	}
	for _, f := range c.Frequencies {
		if !calib.ValidFrequency(c.inst, f) {
			return nil, fmt.Errorf("%w: %d GHz is not a %s frequency (%v)",
				ErrConfiguration, f, c.inst, calib.Frequencies(c.inst))
		}
	}
	if err := healpix.CheckNside(c.Nside); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if len(c.Coord) == 2 {
		c.lon, c.lat = unit.AngleFromDeg(c.Coord[0]), unit.AngleFromDeg(c.Coord[1])
		if c.Coord[1] < -90 || c.Coord[1] > 90 {
			return nil, fmt.Errorf("%w: latitude %g out of range",
				ErrConfiguration, c.Coord[1])
		}
	} else {
		c.lon, c.lat = sky.TauA(c.system)
	}
	c.background = calib.DefaultBackground
	if len(c.Background) > 0 {
		c.background = c.background.Override(c.inst, c.Background)
	}
	if c.BackgroundSubtraction {
		for _, f := range c.Frequencies {
			if _, err := c.background.Flux(c.inst, f); err != nil {
				return nil, fmt.Errorf("%w: background subtraction: %v",
					ErrConfiguration, err)
			}
		}
	}
	if err := c.level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	fi, err := os.Stat(c.DataPath)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: data path: %v", ErrConfiguration, err)
	case !fi.IsDir():
		return nil, fmt.Errorf("%w: data path %s is not a directory",
			ErrConfiguration, c.DataPath)
	}
	return &c, nil
}

// Inst is the validated instrument.
func (c *Config) Inst() calib.Instrument { return c.inst }

// System is the validated coordinate system.
func (c *Config) System() sky.System { return c.system }

// Center is the map center in System.
func (c *Config) Center() (lon, lat unit.Angle) { return c.lon, c.lat }

// PixelAngle is the grid pixel size.
func (c *Config) PixelAngle() unit.Angle { return unit.AngleFromMin(c.PixelSize) }

// Policy is the missing detector policy.
func (c *Config) Policy() MissingPolicy { return MissingPolicy(c.OnMissing) }

// BackgroundFlux is the background to subtract for a frequency of the
// configured instrument.
func (c *Config) BackgroundFlux(freq int) (float64, error) {
	return c.background.Flux(c.inst, freq)
}

// Level is the configured log level.
func (c *Config) Level() slog.Level { return c.level }

// TODRoot is the directory holding a subdirectory of TOD per frequency.
func (c *Config) TODRoot() string { return filepath.Join(c.DataPath, TODDir) }

// TODPath is the directory holding per-detector TOD for a frequency.
func (c *Config) TODPath(freq int) string {
	return filepath.Join(c.TODRoot(), fmt.Sprintf("%dGHz", freq))
}

// ColorPath is the color correction table for the configured instrument
// and spectral index.
func (c *Config) ColorPath() string {
	return filepath.Join(c.DataPath, CalibDir, calib.ColorFileName(c.inst, c.Alpha))
}
