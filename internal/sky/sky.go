// Public domain.

// Package sky, coordinate helpers for pointing samples.
//
// Pointing comes from the TOD as colatitude/longitude in galactic
// coordinates.  Maps may be made in galactic or equatorial (ICRS)
// coordinates around a target, using a gnomonic tangent plane.
package sky

import (
	"fmt"
	"math"
	"strings"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/unit"
)

// System is a celestial coordinate system.
type System string

const (
	Galactic   System = "galactic"
	Equatorial System = "equatorial"
)

// ParseSystem accepts a system name in either case.
func ParseSystem(s string) (System, error) {
	switch System(strings.ToLower(strings.TrimSpace(s))) {
	case Galactic:
		return Galactic, nil
	case Equatorial:
		return Equatorial, nil
	}
	return "", fmt.Errorf("unknown coordinate system %q", s)
}

// TauA returns the position of the Crab Nebula in the given system.
func TauA(s System) (lon, lat unit.Angle) {
	if s == Equatorial {
		return unit.AngleFromDeg(83.63304), unit.AngleFromDeg(22.01449)
	}
	return unit.AngleFromDeg(184.5574), unit.AngleFromDeg(-5.7843)
}

// Vec returns the unit vector for colatitude theta and longitude phi,
// in radians.
func Vec(theta, phi float64) coord.Cart {
	st, ct := math.Sincos(theta)
	sp, cp := math.Sincos(phi)
	return coord.Cart{X: st * cp, Y: st * sp, Z: ct}
}

// LonLatVec returns the unit vector for longitude and latitude.
func LonLatVec(lon, lat unit.Angle) coord.Cart {
	return Vec(math.Pi/2-lat.Rad(), lon.Rad())
}

// LonLat returns longitude in [0, 2π) and latitude of v, which need not be
// normalized.
func LonLat(v coord.Cart) (lon, lat unit.Angle) {
	lon = unit.Angle(math.Atan2(v.Y, v.X))
	if lon < 0 {
		lon += 2 * math.Pi
	}
	lat = unit.Angle(math.Atan2(v.Z, math.Hypot(v.X, v.Y)))
	return
}

// rows of the ICRS to galactic rotation
var icrsToGal = [3]coord.Cart{
	{X: -0.0548755604162154, Y: -0.8734370902348850, Z: -0.4838350155487132},
	{X: 0.4941094278755837, Y: -0.4448296299600112, Z: 0.7469822444972189},
	{X: -0.8676661490190047, Y: -0.1980763734312015, Z: 0.4559837761750669},
}

// EqToGal rotates an equatorial (ICRS) vector to galactic coordinates.
func EqToGal(v coord.Cart) coord.Cart {
	return coord.Cart{
		X: icrsToGal[0].Dot(&v),
		Y: icrsToGal[1].Dot(&v),
		Z: icrsToGal[2].Dot(&v),
	}
}

// GalToEq rotates a galactic vector to equatorial (ICRS) coordinates.
func GalToEq(v coord.Cart) coord.Cart {
	m := &icrsToGal
	return coord.Cart{
		X: m[0].X*v.X + m[1].X*v.Y + m[2].X*v.Z,
		Y: m[0].Y*v.X + m[1].Y*v.Y + m[2].Y*v.Z,
		Z: m[0].Z*v.X + m[1].Z*v.Y + m[2].Z*v.Z,
	}
}

// FromGalactic expresses a galactic vector in system s.
func FromGalactic(s System, v coord.Cart) coord.Cart {
	if s == Equatorial {
		return GalToEq(v)
	}
	return v
}

// Sep is the angular separation of two positions.
func Sep(lon1, lat1, lon2, lat2 unit.Angle) unit.Angle {
	return angle.Sep(lon1, lat1, lon2, lat2)
}

// Tangent is a gnomonic projection centered on a position.
type Tangent struct {
	Lon0, Lat0 unit.Angle
	sb0, cb0   float64
}

// NewTangent returns the projection centered on lon0, lat0.
func NewTangent(lon0, lat0 unit.Angle) *Tangent {
	t := &Tangent{Lon0: lon0, Lat0: lat0}
	t.sb0, t.cb0 = math.Sincos(lat0.Rad())
	return t
}

// Project returns tangent plane offsets of (lon, lat), x along increasing
// longitude and y along increasing latitude.  ok is false for positions 90°
// or more from the center, which have no projection.
func (t *Tangent) Project(lon, lat unit.Angle) (x, y unit.Angle, ok bool) {
	sb, cb := math.Sincos(lat.Rad())
	sdl, cdl := math.Sincos((lon - t.Lon0).Rad())
	cosc := t.sb0*sb + t.cb0*cb*cdl
	if !(cosc > 0) {
		return 0, 0, false
	}
	x = unit.Angle(cb * sdl / cosc)
	y = unit.Angle((t.cb0*sb - t.sb0*cb*cdl) / cosc)
	return x, y, true
}
