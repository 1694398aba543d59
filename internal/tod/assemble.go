// Public domain.

package tod

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/soniakeys/unit"

	"github.com/vyoma-m/crabpol/internal/calib"
	"github.com/vyoma-m/crabpol/internal/config"
	"github.com/vyoma-m/crabpol/internal/healpix"
	"github.com/vyoma-m/crabpol/internal/sky"
)

// Assembler builds TOD for the frequency channels of a configuration.
type Assembler struct {
	cfg *config.Config
	src Source
	log *slog.Logger

	colorOnce sync.Once
	colors    calib.ColorTable
	colorErr  error
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger.  The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.log = l }
}

// WithColorTable supplies the color correction table instead of reading it
// from the configured calibration directory.
func WithColorTable(t calib.ColorTable) Option {
	return func(a *Assembler) { a.colorOnce.Do(func() { a.colors = t }) }
}

// NewAssembler returns an Assembler reading samples from src.
func NewAssembler(cfg *config.Config, src Source, opts ...Option) *Assembler {
	a := &Assembler{cfg: cfg, src: src, log: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// NewFITSAssembler returns an Assembler reading the TOD tree of the
// configured data path.
func NewFITSAssembler(cfg *config.Config, opts ...Option) *Assembler {
	return NewAssembler(cfg, FITSSource{Root: cfg.TODRoot()}, opts...)
}

func (a *Assembler) colorTable() (calib.ColorTable, error) {
	a.colorOnce.Do(func() {
		fn := a.cfg.ColorPath()
		a.colors, a.colorErr = calib.ReadColorFile(fn)
		if a.colorErr != nil {
			a.colorErr = fmt.Errorf("%w: %v", calib.ErrCalibrationMissing, a.colorErr)
			return
		}
		a.log.Info("color correction", "table", fn, "alpha", a.cfg.Alpha)
	})
	return a.colors, a.colorErr
}

// Assemble returns the pixelized TOD of a frequency channel.  Signal is
// color corrected if the configuration says so, and background subtracted
// likewise.
func (a *Assembler) Assemble(freq, nside int) (*TOD, error) {
	return a.assemble(freq, nside, a.cfg.ColorCorrection)
}

// AssembleWithColorCorrection is Assemble with each detector's signal
// always scaled by its color correction factor.  A detector missing from
// the table is an error wrapping calib.ErrCalibrationMissing.
func (a *Assembler) AssembleWithColorCorrection(freq, nside int) (*TOD, error) {
	return a.assemble(freq, nside, true)
}

func (a *Assembler) assemble(freq, nside int, cc bool) (*TOD, error) {
	if err := healpix.CheckNside(nside); err != nil {
		return nil, err
	}
	t := &TOD{}
	err := a.each(freq, cc, func(s *Samples, sig []float64) {
		for i := range sig {
			t.Signal = append(t.Signal, sig[i])
			t.Pixels = append(t.Pixels,
				healpix.Ang2PixNest(nside, s.Theta[i], s.Phi[i]))
			t.Weights = append(t.Weights, [3]float64{1, s.QWeight[i], s.UWeight[i]})
		}
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("assembled tod", "freq", freq, "nside", nside, "samples", t.Len())
	return t, nil
}

// AssembleOnGrid returns the TOD of a frequency channel projected on the
// tangent plane at (lon, lat), in the configured coordinate system, for a
// grid of npix by npix bins of the given size.
//
// Samples farther from the center than the grid half diagonal are dropped.
func (a *Assembler) AssembleOnGrid(freq int, lon, lat unit.Angle, npix int, size unit.Angle) (*GridTOD, error) {
	if npix < 1 || !(size > 0) {
		return nil, fmt.Errorf("%w: grid of %d pixels of %g arcmin",
			config.ErrConfiguration, npix, size.Min())
	}
	sys := a.cfg.System()
	tp := sky.NewTangent(lon, lat)
	radius := size * unit.Angle(float64(npix)/2*math.Sqrt2)
	g := &GridTOD{
		XEdges: Edges(npix, size.Min()),
		YEdges: Edges(npix, size.Min()),
	}
	dropped := 0
	err := a.each(freq, a.cfg.ColorCorrection, func(s *Samples, sig []float64) {
		for i := range sig {
			l, b := sky.LonLat(sky.FromGalactic(sys, sky.Vec(s.Theta[i], s.Phi[i])))
			if !(sky.Sep(lon, lat, l, b) <= radius) {
				dropped++
				continue
			}
			x, y, ok := tp.Project(l, b)
			if !ok {
				dropped++
				continue
			}
			g.X = append(g.X, x.Min())
			g.Y = append(g.Y, y.Min())
			g.Signal = append(g.Signal, sig[i])
			g.Weights = append(g.Weights, [3]float64{1, s.QWeight[i], s.UWeight[i]})
		}
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("assembled grid tod", "freq", freq, "npix", npix,
		"samples", g.Len(), "outside", dropped)
	return g, nil
}

// each loads the samples of every detector of freq and calls f with the
// samples and the calibrated signal.
func (a *Assembler) each(freq int, cc bool, f func(s *Samples, sig []float64)) error {
	inst := a.cfg.Inst()
	dets, err := calib.Detectors(inst, freq)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	var colors calib.ColorTable
	if cc {
		if colors, err = a.colorTable(); err != nil {
			return err
		}
	}
	var bg float64
	if a.cfg.BackgroundSubtraction {
		if bg, err = a.cfg.BackgroundFlux(freq); err != nil {
			return err
		}
	}
	used := 0
	for _, det := range dets {
		s, err := a.src.DetectorSamples(freq, det, a.cfg.Split)
		if errors.Is(err, ErrDataNotFound) && a.cfg.Policy() == config.MissingSkip {
			a.log.Warn("skipping detector", "freq", freq, "detector", det, "err", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("%d GHz detector %s: %w", freq, det, err)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%d GHz detector %s: %w", freq, det, err)
		}
		k := 1.
		if cc {
			if k, err = colors.Factor(det); err != nil {
				return fmt.Errorf("%d GHz: %w", freq, err)
			}
		}
		sig := make([]float64, s.Len())
		for i, v := range s.Signal {
			sig[i] = (v - bg) * k
		}
		a.log.Debug("detector", "freq", freq, "detector", det,
			"samples", s.Len(), "factor", k)
		f(s, sig)
		used++
	}
	if used == 0 {
		a.log.Warn("no detector data", "freq", freq)
	}
	return nil
}
