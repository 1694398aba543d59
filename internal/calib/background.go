// Public domain.

package calib

import "fmt"

// BackgroundTable holds background flux, in K_CMB, by instrument and
// frequency.
type BackgroundTable map[Instrument]map[int]float64

// DefaultBackground is the background flux around Tau-A used when a run
// enables background subtraction without supplying its own values.
// HFI 545 and 857 GHz have no default.
var DefaultBackground = BackgroundTable{
	LFI: {
		30: 1.70065975e-03,
		44: 1.54363888e-03,
		70: 2.03856413e-04,
	},
	HFI: {
		100: 9.50687754e-5,
		143: 1.89320788e-4,
		217: 6.29073416e-4,
		353: 6.16040430e-3,
	},
}

// Flux returns the background flux for a channel.
func (t BackgroundTable) Flux(inst Instrument, freq int) (float64, error) {
	f, ok := t[inst][freq]
	if !ok {
		return 0, fmt.Errorf("%w: no background flux for %s %d GHz",
			ErrCalibrationMissing, inst, freq)
	}
	return f, nil
}

// Override returns a copy of t with the given fluxes replacing or adding
// entries for inst.  t is not modified.
func (t BackgroundTable) Override(inst Instrument, flux map[int]float64) BackgroundTable {
	c := make(BackgroundTable, len(t)+1)
	for i, m := range t {
		cm := make(map[int]float64, len(m))
		for f, v := range m {
			cm[f] = v
		}
		c[i] = cm
	}
	if c[inst] == nil {
		c[inst] = map[int]float64{}
	}
	for f, v := range flux {
		c[inst][f] = v
	}
	return c
}
