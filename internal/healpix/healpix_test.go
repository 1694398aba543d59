// Public domain.

package healpix_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyoma-m/crabpol/internal/healpix"
)

func ExampleNpix() {
	fmt.Println(healpix.Npix(1), healpix.Npix(8), healpix.Npix(2048))
	// Output:
	// 12 768 50331648
}

func TestCheckNside(t *testing.T) {
	for _, n := range []int{1, 2, 8, 2048} {
		assert.NoError(t, healpix.CheckNside(n), n)
	}
	for _, n := range []int{0, -8, 3, 100, 2 * healpix.MaxNside} {
		assert.ErrorIs(t, healpix.CheckNside(n), healpix.ErrNside, n)
	}
}

func TestAng2PixNestReference(t *testing.T) {
	cases := []struct {
		nside      int
		theta, phi float64
		pix        int
	}{
		{1, 0, 0, 0},                       // north pole
		{1, math.Pi, 0, 8},                 // south pole
		{1, math.Pi / 2, 0, 4},             // equator, phi 0
		{1, math.Pi / 2, math.Pi / 2, 5},   // equator, phi 90
		{1, math.Pi / 2, -math.Pi / 2, 7},  // equator, phi 270
		{1, math.Acos(2. / 3), math.Pi / 4, 0},
		{8, 0, 0, 63}, // pole corner of face 0
	}
	for _, c := range cases {
		assert.Equal(t, c.pix, healpix.Ang2PixNest(c.nside, c.theta, c.phi),
			"nside %d theta %g phi %g", c.nside, c.theta, c.phi)
	}
}

func TestAng2PixNestInvalid(t *testing.T) {
	assert.Equal(t, -1, healpix.Ang2PixNest(8, math.NaN(), 0))
	assert.Equal(t, -1, healpix.Ang2PixNest(8, -.1, 0))
	assert.Equal(t, -1, healpix.Ang2PixNest(8, 1, math.Inf(1)))
}

func TestRoundTrip(t *testing.T) {
	for _, nside := range []int{1, 2, 8, 32} {
		for p := 0; p < healpix.Npix(nside); p++ {
			th, ph := healpix.Pix2AngNest(nside, p)
			require.Equal(t, p, healpix.Ang2PixNest(nside, th, ph),
				"nside %d pix %d", nside, p)
		}
	}
}

func TestEqualArea(t *testing.T) {
	// uniform grid in z and phi fills pixels close to evenly
	const nside = 4
	hits := make([]int, healpix.Npix(nside))
	const nz, nphi = 1000, 1000
	for i := 0; i < nz; i++ {
		z := -1 + (float64(i)+.5)*2/nz
		for j := 0; j < nphi; j++ {
			phi := (float64(j) + .5) * 2 * math.Pi / nphi
			hits[healpix.Ang2PixNest(nside, math.Acos(z), phi)]++
		}
	}
	mean := float64(nz*nphi) / float64(len(hits))
	for p, h := range hits {
		assert.InEpsilon(t, mean, float64(h), .1, "pixel %d", p)
	}
}
