// Public domain.

package calib

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrCalibrationMissing means a detector or channel has no entry in a table
// that a run requires.  An uncorrected signal would bias the map, so this is
// always fatal.
var ErrCalibrationMissing = errors.New("calibration missing")

// Column headings of the unit conversion / color correction tables.
const (
	ColDetector = "Detector-name"
	ColFactor   = "UCxCC"
)

// ColorTable maps detector name to color-correction factor.
type ColorTable map[string]float64

// Factor returns the correction factor for det.
func (t ColorTable) Factor(det string) (float64, error) {
	k, ok := t[det]
	if !ok {
		return 0, fmt.Errorf("%w: no color correction for detector %s",
			ErrCalibrationMissing, det)
	}
	return k, nil
}

// ColorFileName is the name of the color correction table for a spectral
// index, as distributed under PR2-3/.
func ColorFileName(inst Instrument, alpha float64) string {
	return fmt.Sprintf("%s_UC_CC_RIMO-4_alpha%s.txt",
		inst, strconv.FormatFloat(alpha, 'f', -1, 64))
}

// ReadColorFile reads an ASCII color correction table.
func ReadColorFile(fn string) (ColorTable, error) {
	b, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	t, err := ParseColor(string(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return t, nil
}

// ParseColor parses the text of a color correction table.
//
// The table is whitespace (or comma) separated with a heading line naming
// at least ColDetector and ColFactor.  The heading may be commented with a
// leading #.  Other comment lines and blank lines are ignored.  Any data
// line after the heading that does not parse is an error.
func ParseColor(text string) (ColorTable, error) {
	detCol, facCol := -1, -1
	t := ColorTable{}
	for i, line := range strings.Split(text, "\n") {
		f := fields(line)
		if len(f) == 0 {
			continue
		}
		if detCol < 0 {
			if f[0] == "#" {
				f = f[1:]
			} else {
				f[0] = strings.TrimPrefix(f[0], "#")
			}
			for c, h := range f {
				switch h {
				case ColDetector:
					detCol = c
				case ColFactor:
					facCol = c
				}
			}
			if detCol < 0 || facCol < 0 {
				detCol, facCol = -1, -1 // not the heading, keep looking
			}
			continue
		}
		if strings.HasPrefix(f[0], "#") {
			continue
		}
		if len(f) <= detCol || len(f) <= facCol {
			return nil, fmt.Errorf("line %d: %d fields", i+1, len(f))
		}
		k, err := strconv.ParseFloat(f[facCol], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		t[f[detCol]] = k
	}
	if detCol < 0 {
		return nil, fmt.Errorf("no %s/%s heading", ColDetector, ColFactor)
	}
	return t, nil
}

func fields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '\r'
	})
}
