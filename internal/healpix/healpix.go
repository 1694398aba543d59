// Public domain.

// Package healpix implements the nested (hierarchical quad-tree) ordering of
// the HEALPix equal area sphere pixelization.
//
// Only what the map maker needs is here: pixel counts, angle to pixel and
// pixel center to angle.  Angles are colatitude theta in [0, π] and
// longitude phi, both in radians.
package healpix

import (
	"errors"
	"fmt"
	"math"
)

// ErrNside reports a resolution that is not a positive power of two.
var ErrNside = errors.New("nside must be a power of 2")

// MaxNside is the largest resolution supported with 64 bit pixel indexes.
const MaxNside = 1 << 29

// CheckNside returns a non-nil error if nside is not usable for nested
// ordering.
func CheckNside(nside int) error {
	if nside < 1 || nside > MaxNside || nside&(nside-1) != 0 {
		return fmt.Errorf("%w: %d", ErrNside, nside)
	}
	return nil
}

// Npix is the number of pixels on the sphere, 12·nside².
func Npix(nside int) int {
	return 12 * nside * nside
}

// order is log2(nside) for a valid nside.
func order(nside int) (o uint) {
	for ; nside > 1; nside >>= 1 {
		o++
	}
	return
}

// Ang2PixNest returns the nested pixel index containing direction
// (theta, phi).  Non-finite or out of range theta returns -1, which map
// makers treat as unseen sky.
func Ang2PixNest(nside int, theta, phi float64) int {
	if !(theta >= 0 && theta <= math.Pi) || math.IsInf(phi, 0) || math.IsNaN(phi) {
		return -1
	}
	z := math.Cos(theta)
	za := math.Abs(z)
	tt := math.Mod(phi, 2*math.Pi)
	if tt < 0 {
		tt += 2 * math.Pi
	}
	tt *= 2 / math.Pi // in [0,4)

	var face, ix, iy int
	if za <= 2./3 {
		// equatorial region
		t1 := float64(nside) * (.5 + tt)
		t2 := float64(nside) * z * .75
		jp := int(t1 - t2) // index of ascending edge line
		jm := int(t1 + t2) // index of descending edge line
		ifp := jp / nside
		ifm := jm / nside
		switch {
		case ifp == ifm:
			face = ifp | 4
		case ifp < ifm:
			face = ifp
		default:
			face = ifm + 8
		}
		ix = jm & (nside - 1)
		iy = nside - (jp & (nside - 1)) - 1
	} else {
		// polar caps
		ntt := int(tt)
		if ntt > 3 {
			ntt = 3
		}
		tp := tt - float64(ntt)
		tmp := float64(nside) * math.Sqrt(3*(1-za))
		jp := min(int(tp*tmp), nside-1)
		jm := min(int((1-tp)*tmp), nside-1)
		if z >= 0 {
			face = ntt
			ix = nside - jm - 1
			iy = nside - jp - 1
		} else {
			face = ntt + 8
			ix = jp
			iy = jm
		}
	}
	return xyf2nest(nside, ix, iy, face)
}

// ring and longitude offsets of the twelve base faces, in units of nside
var (
	jrll = [12]int{2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}
	jpll = [12]int{1, 3, 5, 7, 0, 2, 4, 6, 1, 3, 5, 7}
)

// Pix2AngNest returns the center of nested pixel pix.
func Pix2AngNest(nside, pix int) (theta, phi float64) {
	o := order(nside)
	npface := nside * nside
	face := pix >> (2 * o)
	ix, iy := nest2xy(pix & (npface - 1))

	fact2 := 4 / float64(Npix(nside))
	fact1 := float64(nside<<1) * fact2

	jr := jrll[face]*nside - ix - iy - 1
	var nr, kshift int
	var z float64
	switch {
	case jr < nside:
		nr = jr
		z = 1 - float64(nr*nr)*fact2
	case jr > 3*nside:
		nr = 4*nside - jr
		z = float64(nr*nr)*fact2 - 1
	default:
		nr = nside
		z = float64(2*nside-jr) * fact1
		kshift = (jr - nside) & 1
	}
	jp := (jpll[face]*nr + ix - iy + 1 + kshift) / 2
	if jp > 4*nside {
		jp -= 4 * nside
	}
	if jp < 1 {
		jp += 4 * nside
	}
	phi = (float64(jp) - float64(kshift+1)*.5) * (math.Pi / 2 / float64(nr))
	return math.Acos(z), phi
}

func xyf2nest(nside, ix, iy, face int) int {
	return face*nside*nside + spread(ix) + spread(iy)<<1
}

func nest2xy(ipf int) (ix, iy int) {
	return compress(ipf), compress(ipf >> 1)
}

// spread moves bit k of v to bit 2k.
func spread(v int) (r int) {
	for b := 0; v != 0; b++ {
		r |= (v & 1) << (2 * b)
		v >>= 1
	}
	return
}

// compress is the inverse of spread on the even bits of v.
func compress(v int) (r int) {
	for b := 0; v != 0; b++ {
		r |= (v & 1) << b
		v >>= 2
	}
	return
}
