// Public domain.

// Package skymap holds Stokes I, Q, U maps with their hits maps, and
// reads and writes them as FITS.
//
// A Grid is a flat npix by npix map on a tangent plane; a Healpix map covers
// the sphere in nested ordering.  Pixels hold either an estimate or zero.
package skymap

import (
	"fmt"

	"github.com/soniakeys/unit"

	"github.com/vyoma-m/crabpol/internal/healpix"
	"github.com/vyoma-m/crabpol/internal/sky"
)

// Stokes planes
const (
	I = iota
	Q
	U
	NPlanes
)

// Mode names a binning scheme as it appears in file names.
type Mode string

const (
	ModeGrid    Mode = "pix_grid"
	ModeHealpix Mode = "hpbinning"
)

// FileName is the conventional map file name, for example
// "143GHz_80pix_grid.fits" or "100GHz_2048hpbinning_hr1.fits".
// Resolution is npix for grid maps, nside for HEALPix maps.
func FileName(freq, resolution int, mode Mode, split string) string {
	fn := fmt.Sprintf("%dGHz_%d%s", freq, resolution, mode)
	if split != "" {
		fn += "_" + split
	}
	return fn + ".fits"
}

// HitsName is the file name of the hits map going with a map.
func HitsName(freq, resolution int, mode Mode, split string) string {
	return "hits_" + FileName(freq, resolution, mode, split)
}

// Grid is a map on a tangent plane grid.
//
// Data and Hits hold NPlanes planes of Npix rows of Npix columns, plane
// major.  Rows run along y, increasing latitude; columns along x,
// increasing longitude.
type Grid struct {
	Npix      int
	PixelSize unit.Angle
	Lon, Lat  unit.Angle // center
	System    sky.System
	Freq      int
	RunID     string

	Data []float64
	Hits []int
}

// NewGrid returns a zero map of npix by npix pixels.
func NewGrid(npix int) *Grid {
	n := NPlanes * npix * npix
	return &Grid{Npix: npix, Data: make([]float64, n), Hits: make([]int, n)}
}

// Index is the offset of a pixel in Data and Hits.
func (g *Grid) Index(plane, row, col int) int {
	return (plane*g.Npix+row)*g.Npix + col
}

// At returns the value of a pixel.
func (g *Grid) At(plane, row, col int) float64 {
	return g.Data[g.Index(plane, row, col)]
}

// Plane returns plane p of Data as a slice sharing storage with g.
func (g *Grid) Plane(p int) []float64 {
	n := g.Npix * g.Npix
	return g.Data[p*n : (p+1)*n]
}

// Stokes returns I, Q, U at a pixel.
func (g *Grid) Stokes(row, col int) (i, q, u float64) {
	return g.At(I, row, col), g.At(Q, row, col), g.At(U, row, col)
}

// SetStokes sets I, Q, U at a pixel, with the same hit count for each.
func (g *Grid) SetStokes(row, col int, iqu [3]float64, hits int) {
	for p, v := range iqu {
		x := g.Index(p, row, col)
		g.Data[x] = v
		g.Hits[x] = hits
	}
}

// Healpix is a full sky map in nested ordering.
type Healpix struct {
	Nside int
	Freq  int
	RunID string

	Data [][NPlanes]float64 // by pixel
	Hits [][NPlanes]int
}

// NewHealpix returns a zero map.
func NewHealpix(nside int) *Healpix {
	n := healpix.Npix(nside)
	return &Healpix{
		Nside: nside,
		Data:  make([][NPlanes]float64, n),
		Hits:  make([][NPlanes]int, n),
	}
}
