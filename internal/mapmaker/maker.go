// Public domain.

package mapmaker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	sexa "github.com/soniakeys/sexagesimal"
	"github.com/soniakeys/unit"

	"github.com/vyoma-m/crabpol/internal/catalog"
	"github.com/vyoma-m/crabpol/internal/config"
	"github.com/vyoma-m/crabpol/internal/skymap"
	"github.com/vyoma-m/crabpol/internal/tod"
)

// Provider produces the TOD of a frequency channel.  *tod.Assembler is
// the usual implementation.
type Provider interface {
	Assemble(freq, nside int) (*tod.TOD, error)
	AssembleOnGrid(freq int, lon, lat unit.Angle, npix int, size unit.Angle) (*tod.GridTOD, error)
}

// Recorder records written map products.  *catalog.Catalog implements it.
type Recorder interface {
	Record(ctx context.Context, e catalog.Entry) error
}

// Maker makes and writes the maps of a configuration.
type Maker struct {
	cfg   *config.Config
	prov  Provider
	rec   Recorder
	log   *slog.Logger
	runID string
}

// Option configures a Maker.
type Option func(*Maker)

// WithLogger sets the logger.  The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(m *Maker) { m.log = l } }

// WithRecorder records each product written.
func WithRecorder(r Recorder) Option { return func(m *Maker) { m.rec = r } }

// WithRunID sets the run id written to headers and the catalog.  The
// default is a random UUID.
func WithRunID(id string) Option { return func(m *Maker) { m.runID = id } }

// New returns a Maker taking TOD from prov.
func New(cfg *config.Config, prov Provider, opts ...Option) *Maker {
	m := &Maker{cfg: cfg, prov: prov, log: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	if m.runID == "" {
		m.runID = uuid.NewString()
	}
	return m
}

// RunID identifies the maps of this Maker.
func (m *Maker) RunID() string { return m.runID }

// GridMap makes, writes, and records the grid map of a frequency channel
// around the configured center.
func (m *Maker) GridMap(ctx context.Context, freq int) (*GridResult, error) {
	c := m.cfg
	lon, lat := c.Center()
	m.log.Info("extracting tod", "freq", freq, "mode", skymap.ModeGrid,
		"lon", fmt.Sprintf("%.1s", sexa.FmtAngle(lon)),
		"lat", fmt.Sprintf("%.1s", sexa.FmtAngle(lat)),
		"system", c.System())
	g, err := m.prov.AssembleOnGrid(freq, lon, lat, c.Npix, c.PixelAngle())
	if err != nil {
		return nil, fmt.Errorf("%d GHz: %w", freq, err)
	}
	res, err := BinOnGrid(ctx, g, c.Workers)
	if err != nil {
		return nil, fmt.Errorf("%d GHz: %w", freq, err)
	}
	for _, w := range res.Warnings {
		m.log.Warn("cell zeroed", "freq", freq, "row", w.Row, "col", w.Col,
			"reason", w.Reason)
	}
	mp := res.Map
	mp.PixelSize = c.PixelAngle()
	mp.Lon, mp.Lat = lon, lat
	mp.System = c.System()
	mp.Freq = freq
	mp.RunID = m.runID

	res.Path, res.HitsPath, err = m.paths(freq, c.Npix, skymap.ModeGrid)
	if err != nil {
		return nil, err
	}
	if err := skymap.WriteGrid(res.Path, mp); err != nil {
		return nil, err
	}
	if err := skymap.WriteGridHits(res.HitsPath, mp); err != nil {
		return nil, err
	}
	m.log.Info("wrote map", "freq", freq, "path", res.Path,
		"samples", res.Samples, "zeroed", len(res.Warnings))
	if err := m.record(ctx, res.Path, res.HitsPath, skymap.ModeGrid,
		freq, c.Npix, res.Samples); err != nil {
		return nil, err
	}
	return res, nil
}

// HealpixResult is a binned HEALPix map.
type HealpixResult struct {
	Map     *skymap.Healpix
	Samples int // samples with a valid pixel

	Path, HitsPath string
}

// HealpixMap makes, writes, and records the HEALPix map of a frequency
// channel at the configured nside.
func (m *Maker) HealpixMap(ctx context.Context, freq int) (*HealpixResult, error) {
	c := m.cfg
	m.log.Info("extracting tod", "freq", freq, "mode", skymap.ModeHealpix,
		"nside", c.Nside)
	t, err := m.prov.Assemble(freq, c.Nside)
	if err != nil {
		return nil, fmt.Errorf("%d GHz: %w", freq, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mp, err := BinHealpix(t, c.Nside)
	if err != nil {
		return nil, fmt.Errorf("%d GHz: %w", freq, err)
	}
	mp.Freq = freq
	mp.RunID = m.runID
	res := &HealpixResult{Map: mp}
	for _, p := range t.Pixels {
		if p >= 0 {
			res.Samples++
		}
	}
	res.Path, res.HitsPath, err = m.paths(freq, c.Nside, skymap.ModeHealpix)
	if err != nil {
		return nil, err
	}
	if err := skymap.WriteHealpix(res.Path, mp); err != nil {
		return nil, err
	}
	if err := skymap.WriteHealpixHits(res.HitsPath, mp); err != nil {
		return nil, err
	}
	m.log.Info("wrote map", "freq", freq, "path", res.Path,
		"samples", res.Samples, "skipped", t.Len()-res.Samples)
	if err := m.record(ctx, res.Path, res.HitsPath, skymap.ModeHealpix,
		freq, c.Nside, res.Samples); err != nil {
		return nil, err
	}
	return res, nil
}

// Run makes maps of every configured frequency.  It stops at the first
// error.
func (m *Maker) Run(ctx context.Context, mode skymap.Mode) error {
	for _, f := range m.cfg.Frequencies {
		var err error
		switch mode {
		case skymap.ModeGrid:
			_, err = m.GridMap(ctx, f)
		case skymap.ModeHealpix:
			_, err = m.HealpixMap(ctx, f)
		default:
			err = fmt.Errorf("%w: unknown mode %q", config.ErrConfiguration, mode)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Maker) paths(freq, res int, mode skymap.Mode) (string, string, error) {
	dir := m.cfg.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return filepath.Join(dir, skymap.FileName(freq, res, mode, m.cfg.Split)),
		filepath.Join(dir, skymap.HitsName(freq, res, mode, m.cfg.Split)), nil
}

func (m *Maker) record(ctx context.Context, path, hits string, mode skymap.Mode, freq, res, n int) error {
	if m.rec == nil {
		return nil
	}
	return m.rec.Record(ctx, catalog.Entry{
		RunID:      m.runID,
		Path:       path,
		HitsPath:   hits,
		Mode:       string(mode),
		Freq:       freq,
		Resolution: res,
		Split:      m.cfg.Split,
		Samples:    n,
	})
}
