// Public domain.

package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyoma-m/crabpol/internal/calib"
	"github.com/vyoma-m/crabpol/internal/config"
	"github.com/vyoma-m/crabpol/internal/sky"
)

func valid(t *testing.T) config.Config {
	c := config.Default()
	c.DataPath = t.TempDir()
	return c
}

func TestDefaults(t *testing.T) {
	c, err := config.New(valid(t))
	require.NoError(t, err)
	assert.Equal(t, calib.HFI, c.Inst())
	assert.Equal(t, calib.Frequencies(calib.HFI), c.Frequencies)
	assert.Equal(t, sky.Galactic, c.System())
	assert.Equal(t, config.MissingAbort, c.Policy())
	assert.Equal(t, slog.LevelInfo, c.Level())
	assert.Greater(t, c.Workers, 0)
	assert.InDelta(t, 1.5, c.PixelAngle().Min(), 1e-12)

	lon, lat := c.Center()
	tl, tb := sky.TauA(sky.Galactic)
	assert.Equal(t, tl, lon)
	assert.Equal(t, tb, lat)
}

func TestCenterOverride(t *testing.T) {
	in := valid(t)
	in.Coord = []float64{83.6, 22}
	in.CoordSystem = "Equatorial"
	c, err := config.New(in)
	require.NoError(t, err)
	assert.Equal(t, sky.Equatorial, c.System())
	lon, lat := c.Center()
	assert.InDelta(t, 83.6, lon.Deg(), 1e-12)
	assert.InDelta(t, 22, lat.Deg(), 1e-12)
}

func TestInvalid(t *testing.T) {
	cases := map[string]func(*config.Config){
		"instrument":   func(c *config.Config) { c.Instrument = "XFI" },
		"frequency":    func(c *config.Config) { c.Frequencies = []int{100, 44} },
		"nside":        func(c *config.Config) { c.Nside = 1000 },
		"npix":         func(c *config.Config) { c.Npix = 0 },
		"pixel size":   func(c *config.Config) { c.PixelSize = -1 },
		"coord":        func(c *config.Config) { c.Coord = []float64{1} },
		"latitude":     func(c *config.Config) { c.Coord = []float64{0, 91} },
		"system":       func(c *config.Config) { c.CoordSystem = "ecliptic" },
		"policy":       func(c *config.Config) { c.OnMissing = "retry" },
		"split":        func(c *config.Config) { c.Split = "a/b" },
		"log level":    func(c *config.Config) { c.LogLevel = "loud" },
		"no data path": func(c *config.Config) { c.DataPath = "" },
		"missing path": func(c *config.Config) {
			c.DataPath = filepath.Join(c.DataPath, "absent")
		},
		"background 545": func(c *config.Config) {
			c.Frequencies = []int{545}
			c.BackgroundSubtraction = true
		},
	}
	for name, mod := range cases {
		c := valid(t)
		mod(&c)
		_, err := config.New(c)
		assert.ErrorIs(t, err, config.ErrConfiguration, name)
	}
}

func TestDataPathFile(t *testing.T) {
	c := valid(t)
	fn := filepath.Join(c.DataPath, "f")
	require.NoError(t, os.WriteFile(fn, nil, 0o644))
	c.DataPath = fn
	_, err := config.New(c)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestBackgroundOverride(t *testing.T) {
	in := valid(t)
	in.Frequencies = []int{545}
	in.BackgroundSubtraction = true
	in.Background = map[int]float64{545: .02}
	c, err := config.New(in)
	require.NoError(t, err)
	f, err := c.BackgroundFlux(545)
	require.NoError(t, err)
	assert.Equal(t, .02, f)
	f, err = c.BackgroundFlux(100)
	require.NoError(t, err)
	assert.Equal(t, 9.50687754e-5, f)
}

func TestBackgroundAllChannels(t *testing.T) {
	in := valid(t)
	in.Frequencies = nil
	in.BackgroundSubtraction = true
	_, err := config.New(in)
	assert.ErrorIs(t, err, config.ErrConfiguration)
	assert.ErrorContains(t, err, "545")

	in.Frequencies = []int{100}
	c, err := config.New(in)
	require.NoError(t, err)
	f, err := c.BackgroundFlux(100)
	require.NoError(t, err)
	assert.Equal(t, 9.50687754e-5, f)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "crabpol.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(`
instrument: lfi
frequencies: [30, 70]
data_path: `+dir+`
npix: 40
pixel_size: 3
on_missing: skip
split: hr1
`), 0o644))
	t.Setenv("CRABPOL_NPIX", "60")
	t.Setenv("CRABPOL_LOG_LEVEL", "debug")

	c, err := config.Load(fn)
	require.NoError(t, err)
	assert.Equal(t, calib.LFI, c.Inst())
	assert.Equal(t, []int{30, 70}, c.Frequencies)
	assert.Equal(t, 60, c.Npix) // environment wins over file
	assert.Equal(t, 3., c.PixelSize)
	assert.Equal(t, 2048, c.Nside) // default survives
	assert.Equal(t, config.MissingSkip, c.Policy())
	assert.Equal(t, "hr1", c.Split)
	assert.Equal(t, slog.LevelDebug, c.Level())
	assert.Equal(t, filepath.Join(dir, "M1", "30GHz"), c.TODPath(30))
	assert.Equal(t,
		filepath.Join(dir, "PR2-3", "LFI_UC_CC_RIMO-4_alpha-0.28.txt"),
		c.ColorPath())
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, config.ErrConfiguration)

	fn := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("nside: [\n"), 0o644))
	_, err = config.Load(fn)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	t.Setenv("CRABPOL_NSIDE", "many")
	_, err = config.Load("")
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
