// Public domain.

// Package response looks up IXPE instrument response quantities.
//
// Three CalDB tables are used.  The redistribution matrix file (rmf) maps
// pulse invariant channels to energy bins, the ancillary response file
// (arf) tabulates effective area on energy bins, and the modulation factor
// file tabulates the modulation factor on the same kind of bins.  A bin is
// identified by its center, (lo+hi)/2 in keV, and lookups match bins
// exactly.  There is no interpolation.
//
// Lookups take and return slices.  Energy, Aeff, and Modf are scalar
// conveniences.
package response

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vyoma-m/crabpol/internal/fitstab"
)

var (
	ErrChannelNotFound = errors.New("channel not in response matrix")
	ErrEnergyNotFound  = errors.New("energy not in response table")
)

// LookupError lists every value of a lookup that a table does not hold.
type LookupError struct {
	Err     error  // ErrChannelNotFound or ErrEnergyNotFound
	Table   string // file or table name
	Missing []float64
}

func (e *LookupError) Error() string {
	s := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		s[i] = strconv.FormatFloat(m, 'g', -1, 64)
	}
	return fmt.Sprintf("%s: %v: %s", e.Table, e.Err, strings.Join(s, ", "))
}

func (e *LookupError) Unwrap() error { return e.Err }

// Key selects a set of CalDB files.
type Key struct {
	Detector string // d1, d2, or d3
	CalDB    string // CalDB version date
	Recon    string // event reconstruction version
}

// DefaultKey is detector unit 1 of the 20170101 CalDB.
func DefaultKey() Key {
	return Key{Detector: "d1", CalDB: "20170101", Recon: "alpha075_02"}
}

const cpfDir = "data/ixpe/gpd/cpf"

// RMFPath is the response matrix file of k under CalDB root directory root.
func (k Key) RMFPath(root string) string {
	return filepath.Join(root, cpfDir, "rmf",
		fmt.Sprintf("ixpe_%s_%s_%s.rmf", k.Detector, k.CalDB, k.Recon))
}

// ARFPath is the ancillary response file of k.
func (k Key) ARFPath(root string) string {
	return filepath.Join(root, cpfDir, "arf",
		fmt.Sprintf("ixpe_%s_%s_%s.arf", k.Detector, k.CalDB, k.Recon))
}

// ModfPath is the modulation factor file of k.
func (k Key) ModfPath(root string) string {
	return filepath.Join(root, cpfDir, "modfact",
		fmt.Sprintf("ixpe_%s_%s_mfact_%s.fits", k.Detector, k.CalDB, k.Recon))
}

// EBounds are the energy bounds of the channels of a response matrix, as in
// the EBOUNDS extension of an rmf.
type EBounds struct {
	Channel    []int
	EMin, EMax []float64 // keV
}

// Curve is a quantity tabulated on energy bins, as in the SPECRESP
// extension of an arf.
type Curve struct {
	Lo, Hi []float64 // keV
	Value  []float64
}

// Center is the midpoint of bin i.
func (c *Curve) Center(i int) float64 { return (c.Lo[i] + c.Hi[i]) / 2 }

// Response holds the lookup tables of one Key.
type Response struct {
	Key Key

	rmf, arf, modf string // names for errors
	energy         map[int]float64
	aeff           map[float64]float64
	modfact        map[float64]float64
}

// New indexes response tables.  Where a channel or bin center appears more
// than once, the first row is used.
func New(key Key, eb *EBounds, arf, modf *Curve) (*Response, error) {
	n := len(eb.Channel)
	if len(eb.EMin) != n || len(eb.EMax) != n {
		return nil, fmt.Errorf("ebounds: columns of %d, %d, %d",
			n, len(eb.EMin), len(eb.EMax))
	}
	r := &Response{
		Key:    key,
		rmf:    "rmf",
		arf:    "arf",
		modf:   "modfact",
		energy: make(map[int]float64, n),
	}
	for i, ch := range eb.Channel {
		if _, ok := r.energy[ch]; !ok {
			r.energy[ch] = (eb.EMin[i] + eb.EMax[i]) / 2
		}
	}
	var err error
	if r.aeff, err = index(arf); err != nil {
		return nil, fmt.Errorf("arf: %w", err)
	}
	if r.modfact, err = index(modf); err != nil {
		return nil, fmt.Errorf("modfact: %w", err)
	}
	return r, nil
}

func index(c *Curve) (map[float64]float64, error) {
	n := len(c.Value)
	if len(c.Lo) != n || len(c.Hi) != n {
		return nil, fmt.Errorf("columns of %d, %d, %d", len(c.Lo), len(c.Hi), n)
	}
	m := make(map[float64]float64, n)
	for i, v := range c.Value {
		if _, ok := m[c.Center(i)]; !ok {
			m[c.Center(i)] = v
		}
	}
	return m, nil
}

// Open reads the response files of key under CalDB root directory root.
func Open(root string, key Key) (*Response, error) {
	eb, err := ReadEBounds(key.RMFPath(root))
	if err != nil {
		return nil, err
	}
	arf, err := ReadCurve(key.ARFPath(root))
	if err != nil {
		return nil, err
	}
	modf, err := ReadCurve(key.ModfPath(root))
	if err != nil {
		return nil, err
	}
	r, err := New(key, eb, arf, modf)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", key.Detector, key.CalDB, key.Recon, err)
	}
	r.rmf = filepath.Base(key.RMFPath(root))
	r.arf = filepath.Base(key.ARFPath(root))
	r.modf = filepath.Base(key.ModfPath(root))
	return r, nil
}

// ReadEBounds reads columns CHANNEL, E_MIN, and E_MAX of extension 2 of a
// response matrix file.
func ReadEBounds(fn string) (*EBounds, error) {
	units, err := fitstab.Open(fn)
	if err != nil {
		return nil, err
	}
	t, err := fitstab.Table(units, 2)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	eb := &EBounds{}
	if eb.Channel, err = fitstab.Ints(t, "CHANNEL"); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if eb.EMin, err = fitstab.Floats(t, "E_MIN"); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if eb.EMax, err = fitstab.Floats(t, "E_MAX"); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return eb, nil
}

// ReadCurve reads columns ENERG_LO, ENERG_HI, and SPECRESP of extension 1,
// the layout of both the arf and the modulation factor file.
func ReadCurve(fn string) (*Curve, error) {
	units, err := fitstab.Open(fn)
	if err != nil {
		return nil, err
	}
	t, err := fitstab.Table(units, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	c := &Curve{}
	for _, col := range []struct {
		name string
		dst  *[]float64
	}{
		{"ENERG_LO", &c.Lo},
		{"ENERG_HI", &c.Hi},
		{"SPECRESP", &c.Value},
	} {
		if *col.dst, err = fitstab.Floats(t, col.name); err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
	}
	return c, nil
}

// ChannelToEnergy returns the energy bin center of each channel.
func (r *Response) ChannelToEnergy(channels []int) ([]float64, error) {
	e := make([]float64, len(channels))
	var miss []float64
	for i, ch := range channels {
		v, ok := r.energy[ch]
		if !ok {
			miss = append(miss, float64(ch))
		}
		e[i] = v
	}
	if miss != nil {
		return nil, &LookupError{ErrChannelNotFound, r.rmf, miss}
	}
	return e, nil
}

// EffectiveArea returns the effective area at each energy, which must be a
// bin center of the arf.
func (r *Response) EffectiveArea(energies []float64) ([]float64, error) {
	return lookup(r.aeff, r.arf, energies)
}

// ModulationFactor returns the modulation factor at each energy, which
// must be a bin center of the modulation factor file.
func (r *Response) ModulationFactor(energies []float64) ([]float64, error) {
	return lookup(r.modfact, r.modf, energies)
}

func lookup(m map[float64]float64, table string, energies []float64) ([]float64, error) {
	v := make([]float64, len(energies))
	var miss []float64
	for i, e := range energies {
		x, ok := m[e]
		if !ok {
			miss = append(miss, e)
		}
		v[i] = x
	}
	if miss != nil {
		return nil, &LookupError{ErrEnergyNotFound, table, miss}
	}
	return v, nil
}

// Energy is ChannelToEnergy for a single channel.
func (r *Response) Energy(channel int) (float64, error) {
	e, err := r.ChannelToEnergy([]int{channel})
	if err != nil {
		return 0, err
	}
	return e[0], nil
}

// Aeff is EffectiveArea at a single energy.
func (r *Response) Aeff(energy float64) (float64, error) {
	v, err := r.EffectiveArea([]float64{energy})
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// Modf is ModulationFactor at a single energy.
func (r *Response) Modf(energy float64) (float64, error) {
	v, err := r.ModulationFactor([]float64{energy})
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// Point is the response at one channel.
type Point struct {
	Channel int
	Energy  float64 // keV
	Aeff    float64 // cm²
	Modf    float64
}

// Resolve looks up energy, then effective area and modulation factor, for
// each channel.  If both energy tables miss values the error joins both
// lookup errors.
func (r *Response) Resolve(channels []int) ([]Point, error) {
	e, err := r.ChannelToEnergy(channels)
	if err != nil {
		return nil, err
	}
	a, aerr := r.EffectiveArea(e)
	m, merr := r.ModulationFactor(e)
	if err := errors.Join(aerr, merr); err != nil {
		return nil, err
	}
	p := make([]Point, len(channels))
	for i, ch := range channels {
		p[i] = Point{ch, e[i], a[i], m[i]}
	}
	return p, nil
}
