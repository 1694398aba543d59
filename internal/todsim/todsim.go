// Public domain.

// Package todsim writes synthetic detector data.
//
// A data tree written by Generate has the layout the map maker reads:
// per-detector FITS sample tables under M1/<freq>GHz/ and a color
// correction table under PR2-3/.  The sky is a polarized Gaussian source on
// a zero background, observed by detectors with random polarization angles.
package todsim

import (
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/astrogo/fitsio"
	"github.com/soniakeys/unit"
	xrand "golang.org/x/exp/rand"

	"github.com/vyoma-m/crabpol/internal/calib"
	"github.com/vyoma-m/crabpol/internal/config"
	"github.com/vyoma-m/crabpol/internal/fitstab"
	"github.com/vyoma-m/crabpol/internal/sky"
	"github.com/vyoma-m/crabpol/internal/tod"
)

// Source is a polarized Gaussian source at a galactic position.
type Source struct {
	Lon, Lat unit.Angle
	I, Q, U  float64
	FWHM     unit.Angle
}

// Stokes returns the source I, Q, U at angular distance r from its center.
func (s *Source) Stokes(r unit.Angle) (i, q, u float64) {
	sig := s.FWHM.Rad() / (2 * math.Sqrt(2*math.Ln2))
	a := math.Exp(-r.Rad() * r.Rad() / (2 * sig * sig))
	return s.I * a, s.Q * a, s.U * a
}

// Options control a synthetic data set.
type Options struct {
	Inst        calib.Instrument
	Frequencies []int // all frequencies of Inst if empty
	Samples     int   // per detector
	Radius      unit.Angle
	Noise       float64 // standard deviation added to signal
	Alpha       float64 // spectral index naming the color table
	Split       string
	Seed        uint64
	Sky         Source
}

// DefaultOptions observe Tau-A with HFI.
func DefaultOptions() Options {
	lon, lat := sky.TauA(sky.Galactic)
	return Options{
		Inst:    calib.HFI,
		Samples: 20000,
		Radius:  unit.AngleFromMin(60),
		Noise:   1e-4,
		Alpha:   -0.28,
		Seed:    3,
		Sky: Source{
			Lon: lon, Lat: lat,
			I: 1, Q: .07, U: -.02,
			FWHM: unit.AngleFromMin(5),
		},
	}
}

// Detector returns samples of one detector scattered uniformly over a disk
// of radius o.Radius around the source.
func Detector(rnd *xrand.Rand, o *Options) *tod.Samples {
	n := o.Samples
	s := &tod.Samples{
		Theta:   make([]float64, n),
		Phi:     make([]float64, n),
		QWeight: make([]float64, n),
		UWeight: make([]float64, n),
		Signal:  make([]float64, n),
	}
	src := &o.Sky
	tp := sky.NewTangent(src.Lon, src.Lat)
	for k := 0; k < n; k++ {
		r := o.Radius.Rad() * math.Sqrt(rnd.Float64())
		pa := 2 * math.Pi * rnd.Float64()
		lon, lat := offset(tp, r*math.Cos(pa), r*math.Sin(pa))
		s.Theta[k] = math.Pi/2 - lat.Rad()
		s.Phi[k] = lon.Rad()

		psi := math.Pi * rnd.Float64()
		s.QWeight[k], s.UWeight[k] = math.Cos(2*psi), math.Sin(2*psi)
		i, q, u := src.Stokes(sky.Sep(src.Lon, src.Lat, lon, lat))
		s.Signal[k] = i + s.QWeight[k]*q + s.UWeight[k]*u + o.Noise*rnd.NormFloat64()
	}
	return s
}

// offset inverts the gnomonic projection of tp for plane offsets x, y in
// radians.
func offset(tp *sky.Tangent, x, y float64) (lon, lat unit.Angle) {
	sb0, cb0 := math.Sincos(tp.Lat0.Rad())
	d := cb0 - y*sb0
	lon = tp.Lon0 + unit.Angle(math.Atan2(x, d))
	lat = unit.Angle(math.Atan2(sb0+y*cb0, math.Hypot(x, d)))
	if lon < 0 {
		lon += 2 * math.Pi
	}
	return lon, lat
}

// ColorFactor is the synthetic color correction of a detector, a value
// near 1 that differs by detector.
func ColorFactor(det string) float64 {
	h := 0
	for _, c := range det {
		h = h*31 + int(c)
	}
	return 1 + float64(h%97)/1000
}

// Generate writes a synthetic data tree under dir and returns the number
// of detector files written.
func Generate(dir string, o Options) (int, error) {
	freqs := o.Frequencies
	if len(freqs) == 0 {
		freqs = calib.Frequencies(o.Inst)
	}
	rnd := xrand.New(&xrand.PCGSource{})
	rnd.Seed(o.Seed)
	src := tod.FITSSource{Root: filepath.Join(dir, config.TODDir)}
	colors := calib.ColorTable{}
	n := 0
	for _, f := range freqs {
		dets, err := calib.Detectors(o.Inst, f)
		if err != nil {
			return n, err
		}
		if err := os.MkdirAll(filepath.Dir(src.Path(f, "x", "")), 0o755); err != nil {
			return n, err
		}
		for _, det := range dets {
			if err := WriteSamples(src.Path(f, det, o.Split), Detector(rnd, &o)); err != nil {
				return n, err
			}
			colors[det] = ColorFactor(det)
			n++
		}
	}
	cdir := filepath.Join(dir, config.CalibDir)
	if err := os.MkdirAll(cdir, 0o755); err != nil {
		return n, err
	}
	return n, WriteColorTable(filepath.Join(cdir, calib.ColorFileName(o.Inst, o.Alpha)), colors)
}

// WriteSamples writes detector samples as a FITS binary table in
// extension 1.
func WriteSamples(fn string, s *tod.Samples) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return fitstab.Create(fn, func(f *fitsio.File) error {
		if err := fitstab.WriteEmptyPrimary(f); err != nil {
			return err
		}
		cols := []fitsio.Column{
			{Name: tod.ColTheta, Format: "D", Unit: "rad"},
			{Name: tod.ColPhi, Format: "D", Unit: "rad"},
			{Name: tod.ColQWeight, Format: "D"},
			{Name: tod.ColUWeight, Format: "D"},
			{Name: tod.ColSignal, Format: "D", Unit: "K_CMB"},
		}
		tbl, err := fitsio.NewTable("TOD", cols, fitsio.BINARY_TBL)
		if err != nil {
			return err
		}
		defer tbl.Close()
		for i := range s.Signal {
			if err := tbl.Write(&s.Theta[i], &s.Phi[i], &s.QWeight[i],
				&s.UWeight[i], &s.Signal[i]); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return f.Write(tbl)
	})
}

// WriteColorTable writes an ASCII color correction table in the layout
// calib.ParseColor reads.
func WriteColorTable(fn string, t calib.ColorTable) error {
	b := []byte("# synthetic unit conversion and color correction\n")
	b = append(b, "# "+calib.ColDetector+" "+calib.ColFactor+"\n"...)
	for _, det := range slices.Sorted(maps.Keys(t)) {
		b = append(b, det...)
		b = append(b, ' ')
		b = strconv.AppendFloat(b, t[det], 'g', -1, 64)
		b = append(b, '\n')
	}
	return os.WriteFile(fn, b, 0o644)
}
