// Public domain.

package skymap

import (
	"fmt"

	"github.com/astrogo/fitsio"
	"github.com/siravan/fits"
	"github.com/soniakeys/unit"

	"github.com/vyoma-m/crabpol/internal/fitstab"
	"github.com/vyoma-m/crabpol/internal/healpix"
	"github.com/vyoma-m/crabpol/internal/sky"
)

// HEALPix table columns
var stokesCols = [NPlanes]string{"I_STOKES", "Q_STOKES", "U_STOKES"}

func gridCards(g *Grid) []fitsio.Card {
	ctype := [2]string{"GLON-TAN", "GLAT-TAN"}
	if g.System == sky.Equatorial {
		ctype = [2]string{"RA---TAN", "DEC--TAN"}
	}
	ref := float64(g.Npix)/2 + .5
	return []fitsio.Card{
		{Name: "NPIX", Value: g.Npix, Comment: "pixels per side"},
		{Name: "PIXSIZE", Value: g.PixelSize.Min(), Comment: "pixel size, arcmin"},
		{Name: "FREQ", Value: g.Freq, Comment: "frequency channel, GHz"},
		{Name: "COORDSYS", Value: string(g.System), Comment: "coordinate system"},
		{Name: "CTYPE1", Value: ctype[0], Comment: "gnomonic projection"},
		{Name: "CTYPE2", Value: ctype[1], Comment: "gnomonic projection"},
		{Name: "CRPIX1", Value: ref, Comment: "reference pixel"},
		{Name: "CRPIX2", Value: ref, Comment: "reference pixel"},
		{Name: "CRVAL1", Value: g.Lon.Deg(), Comment: "center longitude, deg"},
		{Name: "CRVAL2", Value: g.Lat.Deg(), Comment: "center latitude, deg"},
		{Name: "CDELT1", Value: g.PixelSize.Deg(), Comment: "deg"},
		{Name: "CDELT2", Value: g.PixelSize.Deg(), Comment: "deg"},
		{Name: "STOKES", Value: "IQU", Comment: "planes along axis 3"},
		{Name: "RUNID", Value: g.RunID, Comment: "map making run"},
	}
}

// WriteGrid writes the Stokes planes of g as a primary image,
// NAXIS1 = NAXIS2 = Npix, NAXIS3 = 3.
func WriteGrid(fn string, g *Grid) error {
	return writeGrid(fn, g, -64, g.Data)
}

// WriteGridHits writes the hits of g in the layout of WriteGrid.
func WriteGridHits(fn string, g *Grid) error {
	h := make([]int32, len(g.Hits))
	for i, n := range g.Hits {
		h[i] = int32(n)
	}
	return writeGrid(fn, g, 32, h)
}

func writeGrid(fn string, g *Grid, bitpix int, data any) error {
	return fitstab.Create(fn, func(f *fitsio.File) error {
		img := fitsio.NewImage(bitpix, []int{g.Npix, g.Npix, NPlanes})
		defer img.Close()
		if err := img.Header().Append(gridCards(g)...); err != nil {
			return err
		}
		if err := img.Write(data); err != nil {
			return err
		}
		return f.Write(img)
	})
}

// ReadGrid reads a file written by WriteGrid or WriteGridHits.  Image values
// go to Data; Hits is left zero.
func ReadGrid(fn string) (*Grid, error) {
	units, err := fitstab.Open(fn)
	if err != nil {
		return nil, err
	}
	u, err := fitstab.Image(units, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if len(u.Naxis) != 3 || u.Naxis[0] != u.Naxis[1] || u.Naxis[2] != NPlanes {
		return nil, fmt.Errorf("%s: image axes %v", fn, u.Naxis)
	}
	g := NewGrid(u.Naxis[0])
	if g.Freq, err = fitstab.Int(u, "FREQ"); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	ps, err := fitstab.Float(u, "PIXSIZE")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	g.PixelSize = unit.AngleFromMin(ps)
	var lon, lat float64
	if lon, err = fitstab.Float(u, "CRVAL1"); err == nil {
		lat, err = fitstab.Float(u, "CRVAL2")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	g.Lon, g.Lat = unit.AngleFromDeg(lon), unit.AngleFromDeg(lat)
	if s, err := fitstab.String(u, "COORDSYS"); err == nil {
		g.System, _ = sky.ParseSystem(s)
	}
	g.RunID, _ = fitstab.String(u, "RUNID")
	for p := 0; p < NPlanes; p++ {
		for r := 0; r < g.Npix; r++ {
			for c := 0; c < g.Npix; c++ {
				g.Data[g.Index(p, r, c)] = u.FloatAt(c, r, p)
			}
		}
	}
	return g, nil
}

// ReadGridHits reads a hits file written by WriteGridHits.
func ReadGridHits(fn string) (*Grid, error) {
	g, err := ReadGrid(fn)
	if err != nil {
		return nil, err
	}
	for i, v := range g.Data {
		g.Hits[i] = int(v)
		g.Data[i] = 0
	}
	return g, nil
}

func healpixCards(m *Healpix) []fitsio.Card {
	return []fitsio.Card{
		{Name: "PIXTYPE", Value: "HEALPIX", Comment: "HEALPIX pixelisation"},
		{Name: "ORDERING", Value: "NESTED", Comment: "pixel ordering scheme"},
		{Name: "NSIDE", Value: m.Nside, Comment: "resolution parameter"},
		{Name: "FIRSTPIX", Value: 0, Comment: "first pixel # (0 based)"},
		{Name: "LASTPIX", Value: healpix.Npix(m.Nside) - 1, Comment: "last pixel # (0 based)"},
		{Name: "INDXSCHM", Value: "IMPLICIT", Comment: "indexing: IMPLICIT or EXPLICIT"},
		{Name: "OBJECT", Value: "FULLSKY", Comment: "sky coverage"},
		{Name: "COORDSYS", Value: "G", Comment: "galactic"},
		{Name: "FREQ", Value: m.Freq, Comment: "frequency channel, GHz"},
		{Name: "RUNID", Value: m.RunID, Comment: "map making run"},
	}
}

// WriteHealpix writes m as a binary table of I_STOKES, Q_STOKES, U_STOKES
// columns, one row per pixel, after an empty primary HDU.
func WriteHealpix(fn string, m *Healpix) error {
	return writeHealpix(fn, m, "D", func(p int) [NPlanes]any {
		d := &m.Data[p]
		return [NPlanes]any{&d[I], &d[Q], &d[U]}
	})
}

// WriteHealpixHits writes the hits of m in the layout of WriteHealpix,
// as 32 bit integers.
func WriteHealpixHits(fn string, m *Healpix) error {
	var row [NPlanes]int32
	return writeHealpix(fn, m, "J", func(p int) [NPlanes]any {
		for k, n := range m.Hits[p] {
			row[k] = int32(n)
		}
		return [NPlanes]any{&row[I], &row[Q], &row[U]}
	})
}

func writeHealpix(fn string, m *Healpix, format string, row func(p int) [NPlanes]any) error {
	return fitstab.Create(fn, func(f *fitsio.File) error {
		if err := fitstab.WriteEmptyPrimary(f); err != nil {
			return err
		}
		cols := make([]fitsio.Column, NPlanes)
		for k, name := range stokesCols {
			cols[k] = fitsio.Column{Name: name, Format: format}
		}
		tbl, err := fitsio.NewTable("BINNED", cols, fitsio.BINARY_TBL)
		if err != nil {
			return err
		}
		defer tbl.Close()
		if err := tbl.Header().Append(healpixCards(m)...); err != nil {
			return err
		}
		for p := range m.Data {
			r := row(p)
			if err := tbl.Write(r[:]...); err != nil {
				return fmt.Errorf("pixel %d: %w", p, err)
			}
		}
		return f.Write(tbl)
	})
}

// ReadHealpix reads a file written by WriteHealpix.
func ReadHealpix(fn string) (*Healpix, error) {
	m, u, err := readHealpix(fn)
	if err != nil {
		return nil, err
	}
	for k, name := range stokesCols {
		c, err := fitstab.Floats(u, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		for p, v := range c {
			m.Data[p][k] = v
		}
	}
	return m, nil
}

// ReadHealpixHits reads a file written by WriteHealpixHits.
func ReadHealpixHits(fn string) (*Healpix, error) {
	m, u, err := readHealpix(fn)
	if err != nil {
		return nil, err
	}
	for k, name := range stokesCols {
		c, err := fitstab.Ints(u, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		for p, v := range c {
			m.Hits[p][k] = v
		}
	}
	return m, nil
}

func readHealpix(fn string) (*Healpix, *fits.Unit, error) {
	units, err := fitstab.Open(fn)
	if err != nil {
		return nil, nil, err
	}
	u, err := fitstab.Table(units, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", fn, err)
	}
	if o, _ := fitstab.String(u, "ORDERING"); o != "NESTED" {
		return nil, nil, fmt.Errorf("%s: ordering %q, want NESTED", fn, o)
	}
	nside, err := fitstab.Int(u, "NSIDE")
	if err == nil {
		err = healpix.CheckNside(nside)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", fn, err)
	}
	if n := fitstab.Rows(u); n != healpix.Npix(nside) {
		return nil, nil, fmt.Errorf("%s: %d rows for nside %d", fn, n, nside)
	}
	m := NewHealpix(nside)
	m.Freq, _ = fitstab.Int(u, "FREQ")
	m.RunID, _ = fitstab.String(u, "RUNID")
	return m, u, nil
}
