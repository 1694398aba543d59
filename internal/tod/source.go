// Public domain.

package tod

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/vyoma-m/crabpol/internal/fitstab"
)

// Column names of a detector sample table.
const (
	ColTheta   = "theta"
	ColPhi     = "phi"
	ColQWeight = "qweight"
	ColUWeight = "uweight"
	ColSignal  = "signal"
)

// Samples are the raw samples of one detector.  Theta and Phi are galactic
// colatitude and longitude in radians.
type Samples struct {
	Theta, Phi       []float64
	QWeight, UWeight []float64
	Signal           []float64
}

// Len is the number of samples.
func (s *Samples) Len() int { return len(s.Signal) }

// Validate checks that all columns have the same length.
func (s *Samples) Validate() error {
	n := len(s.Signal)
	if len(s.Theta) != n || len(s.Phi) != n ||
		len(s.QWeight) != n || len(s.UWeight) != n {
		return fmt.Errorf("samples: columns of %d, %d, %d, %d, %d",
			len(s.Theta), len(s.Phi), len(s.QWeight), len(s.UWeight), n)
	}
	return nil
}

// Source supplies raw detector samples.
//
// DetectorSamples returns an error wrapping ErrDataNotFound if the detector
// has no data.  Split selects a data split; empty is the full mission.
type Source interface {
	DetectorSamples(freq int, detector, split string) (*Samples, error)
}

// FITSSource reads detector tables from a directory tree
// <Root>/<freq>GHz/<detector>[_<split>].fits, columns in extension 1.
type FITSSource struct {
	Root string
}

// Path is the file holding a detector's samples.
func (s FITSSource) Path(freq int, detector, split string) string {
	fn := detector
	if split != "" {
		fn += "_" + split
	}
	return filepath.Join(s.Root, fmt.Sprintf("%dGHz", freq), fn+".fits")
}

// DetectorSamples implements Source.
func (s FITSSource) DetectorSamples(freq int, detector, split string) (*Samples, error) {
	fn := s.Path(freq, detector, split)
	units, err := fitstab.Open(fn)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDataNotFound, fn)
	}
	if err != nil {
		return nil, err
	}
	t, err := fitstab.Table(units, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	var smp Samples
	for _, c := range []struct {
		name string
		dst  *[]float64
	}{
		{ColTheta, &smp.Theta},
		{ColPhi, &smp.Phi},
		{ColQWeight, &smp.QWeight},
		{ColUWeight, &smp.UWeight},
		{ColSignal, &smp.Signal},
	} {
		if *c.dst, err = fitstab.Floats(t, c.name); err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
	}
	return &smp, nil
}
