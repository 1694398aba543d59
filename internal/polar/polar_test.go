// Public domain.

package polar_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/soniakeys/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyoma-m/crabpol/internal/polar"
	"github.com/vyoma-m/crabpol/internal/skymap"
)

func TestDegree(t *testing.T) {
	assert.InDelta(t, .05, polar.Degree(2, .06, .08), 1e-15)
	// zero intensity leaves Q and U unnormalized
	assert.InDelta(t, .5, polar.Degree(0, .3, .4), 1e-15)
	q, u := polar.NormalizedQU(0, .3, -.4)
	assert.Equal(t, .3, q)
	assert.Equal(t, -.4, u)
}

func TestPositionAngle(t *testing.T) {
	for _, c := range []struct{ q, u, deg float64 }{
		{1, 0, 0},
		{0, 1, 45},
		{-1, 0, 90},
		{0, -1, -45},
	} {
		assert.InDelta(t, c.deg, polar.PositionAngle(c.q, c.u).Deg(), 1e-12,
			"q %g u %g", c.q, c.u)
	}
	x, y := polar.Components(2, unit.AngleFromDeg(90))
	assert.InDelta(t, 0, x, 1e-15)
	assert.InDelta(t, 2, y, 1e-15)
}

func testGrid() *skymap.Grid {
	g := skymap.NewGrid(5)
	g.PixelSize = unit.AngleFromMin(1.5)
	for r := 0; r < 5; r++ {
		for c := 0; c < 5; c++ {
			i := 1 / (1 + math.Hypot(float64(r-2), float64(c-2)))
			g.SetStokes(r, c, [3]float64{i, .1 * i, 0}, 1)
		}
	}
	return g
}

func TestVectors(t *testing.T) {
	g := testGrid()
	v := polar.Vectors(g, .5) // center and its four neighbors
	require.Len(t, v, 5)
	assert.Equal(t, 1, v[0].Row)
	assert.Equal(t, 2, v[0].Col)
	assert.InDelta(t, 0, v[0].X.Min(), 1e-12)
	assert.InDelta(t, -1.5, v[0].Y.Min(), 1e-12)
	for _, x := range v {
		assert.InDelta(t, .1, x.P, 1e-12)
		assert.InDelta(t, 0, x.PA.Rad(), 1e-12)
		assert.InDelta(t, .1, x.DX, 1e-12)
		assert.InDelta(t, 0, x.DY, 1e-12)
	}
	assert.Len(t, polar.Vectors(g, 0), 25)
}

func TestIntegrateArea(t *testing.T) {
	g := testGrid()
	a := polar.IntegrateArea(g, 2, 2, 1)
	n := 0
	for _, i := range a.Plane(skymap.I) {
		if i != 0 {
			n++
		}
	}
	assert.Equal(t, 5, n)
	assert.Equal(t, 0., a.At(skymap.Q, 0, 0))
	assert.Equal(t, g.At(skymap.Q, 2, 3), a.At(skymap.Q, 2, 3))
	assert.Equal(t, g.Hits, a.Hits)
	// g is unchanged
	assert.NotEqual(t, 0., g.At(skymap.I, 0, 0))
}

func TestSumArea(t *testing.T) {
	g := skymap.NewGrid(2)
	g.SetStokes(0, 0, [3]float64{1, .1, 0}, 1)
	g.SetStokes(0, 1, [3]float64{3, 0, .3}, 1)
	g.SetStokes(1, 1, [3]float64{-1, 5, 5}, 1) // excluded
	p, pa := polar.SumArea(g)
	assert.InDelta(t, math.Hypot(.1, .3)/4, p, 1e-15)
	assert.InDelta(t, .5*math.Atan2(.3, .1), pa.Rad(), 1e-15)

	// nothing positive gives zero
	p, _ = polar.SumArea(skymap.NewGrid(3))
	assert.Equal(t, 0., p)
}

func ExampleSumArea() {
	g := skymap.NewGrid(1)
	g.SetStokes(0, 0, [3]float64{2, 0, .2}, 10)
	p, pa := polar.SumArea(g)
	fmt.Printf("p %.2f  pa %.1f°\n", p, pa.Deg())
	// Output:
	// p 0.10  pa 45.0°
}
