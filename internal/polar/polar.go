// Public domain.

// Package polar computes linear polarization quantities from Stokes maps.
package polar

import (
	"math"

	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/floats"

	"github.com/vyoma-m/crabpol/internal/skymap"
)

// NormalizedQU returns q = Q/I and u = U/I.  Where I is zero, Q and U are
// returned unchanged.
func NormalizedQU(i, q, u float64) (float64, float64) {
	if i == 0 {
		return q, u
	}
	return q / i, u / i
}

// Degree is the polarization fraction √(q²+u²) of normalized Stokes
// parameters.
func Degree(i, q, u float64) float64 {
	return math.Hypot(NormalizedQU(i, q, u))
}

// PositionAngle is ½·atan2(u, q).
func PositionAngle(q, u float64) unit.Angle {
	return unit.Angle(.5 * math.Atan2(u, q))
}

// Components resolves a polarization vector of length p at position angle
// pa into x and y.
func Components(p float64, pa unit.Angle) (x, y float64) {
	s, c := math.Sincos(pa.Rad())
	return p * c, p * s
}

// Vector is the polarization at a grid pixel.
type Vector struct {
	Row, Col int
	X, Y     unit.Angle // pixel center offset from the map center
	P        float64
	PA       unit.Angle
	DX, DY   float64
}

// Vectors returns polarization vectors of the pixels of g with intensity at
// least minI, in row major order.
func Vectors(g *skymap.Grid, minI float64) []Vector {
	var v []Vector
	c := float64(g.Npix-1) / 2
	for r := 0; r < g.Npix; r++ {
		for col := 0; col < g.Npix; col++ {
			i, q, u := g.Stokes(r, col)
			if i < minI {
				continue
			}
			nq, nu := NormalizedQU(i, q, u)
			x := Vector{
				Row: r, Col: col,
				X:  g.PixelSize * unit.Angle(float64(col)-c),
				Y:  g.PixelSize * unit.Angle(float64(r)-c),
				P:  math.Hypot(nq, nu),
				PA: PositionAngle(nq, nu),
			}
			x.DX, x.DY = Components(x.P, x.PA)
			v = append(v, x)
		}
	}
	return v
}

// IntegrateArea returns a copy of g with all planes zeroed outside radius
// pixels of the pixel at row, col.  Hits are copied unchanged.
func IntegrateArea(g *skymap.Grid, row, col, radius float64) *skymap.Grid {
	a := *g
	a.Data = append([]float64(nil), g.Data...)
	a.Hits = append([]int(nil), g.Hits...)
	for r := 0; r < g.Npix; r++ {
		for c := 0; c < g.Npix; c++ {
			if math.Hypot(float64(r)-row, float64(c)-col) <= radius {
				continue
			}
			for p := 0; p < skymap.NPlanes; p++ {
				a.Data[a.Index(p, r, c)] = 0
			}
		}
	}
	return &a
}

// SumArea sums Stokes parameters over the pixels of g with positive I and
// returns the polarization degree and position angle of the sum.
func SumArea(g *skymap.Grid) (p float64, pa unit.Angle) {
	var is, qs, us []float64
	for k, i := range g.Plane(skymap.I) {
		if i > 0 {
			is = append(is, i)
			qs = append(qs, g.Plane(skymap.Q)[k])
			us = append(us, g.Plane(skymap.U)[k])
		}
	}
	q, u := NormalizedQU(floats.Sum(is), floats.Sum(qs), floats.Sum(us))
	return math.Hypot(q, u), PositionAngle(q, u)
}
