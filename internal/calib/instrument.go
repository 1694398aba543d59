// Public domain.

// Package calib holds the static lookups used while assembling TOD:
// instrument frequency sets, detector lists, color-correction factors and
// background fluxes.  Tables are built once and not modified afterward.
package calib

import (
	"errors"
	"fmt"
	"strings"
)

// Instrument identifies one of the two Planck focal plane instruments.
type Instrument string

const (
	LFI Instrument = "LFI"
	HFI Instrument = "HFI"
)

// ErrInstrument and ErrFrequency report selections outside the tables below.
var (
	ErrInstrument = errors.New("unknown instrument")
	ErrFrequency  = errors.New("frequency not valid for instrument")
)

// ParseInstrument accepts an instrument name in either case.
func ParseInstrument(s string) (Instrument, error) {
	switch Instrument(strings.ToUpper(strings.TrimSpace(s))) {
	case LFI:
		return LFI, nil
	case HFI:
		return HFI, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInstrument, s)
}

// frequency channels in GHz, in instrument order.
var frequencies = map[Instrument][]int{
	LFI: {30, 44, 70},
	HFI: {100, 143, 217, 353, 545, 857},
}

// Frequencies returns the frequency channels of inst, nil for an unknown
// instrument.
func Frequencies(inst Instrument) []int {
	return append([]int(nil), frequencies[inst]...)
}

// ValidFrequency reports whether freq is a channel of inst.
func ValidFrequency(inst Instrument, freq int) bool {
	for _, f := range frequencies[inst] {
		if f == freq {
			return true
		}
	}
	return false
}

// detectors by frequency.  Frequencies are distinct across instruments.
var detectors = map[int][]string{
	30:  {"LFI27M", "LFI27S", "LFI28M", "LFI28S"},
	44:  {"LFI24M", "LFI24S", "LFI25M", "LFI25S", "LFI26M", "LFI26S"},
	70:  {"LFI18M", "LFI18S", "LFI19M", "LFI19S", "LFI20M", "LFI20S", "LFI21M", "LFI21S", "LFI22M", "LFI22S", "LFI23M", "LFI23S"},
	100: {"100-1a", "100-1b", "100-2a", "100-2b", "100-3a", "100-3b", "100-4a", "100-4b"},
	143: {"143-1a", "143-1b", "143-2a", "143-2b", "143-3a", "143-3b", "143-4a", "143-4b", "143-5", "143-6", "143-7"},
	217: {"217-1", "217-2", "217-3", "217-4", "217-5a", "217-5b", "217-6a", "217-6b", "217-7a", "217-7b", "217-8a", "217-8b"},
	353: {"353-1", "353-2", "353-3a", "353-3b", "353-4a", "353-4b", "353-5a", "353-5b", "353-6a", "353-6b", "353-7", "353-8"},
	545: {"545-1", "545-2", "545-4"},
	857: {"857-1", "857-2", "857-3", "857-4"},
}

// Detectors returns the detector names of a frequency channel of inst.
func Detectors(inst Instrument, freq int) ([]string, error) {
	if _, ok := frequencies[inst]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInstrument, inst)
	}
	if !ValidFrequency(inst, freq) {
		return nil, fmt.Errorf("%w: %d GHz, %s", ErrFrequency, freq, inst)
	}
	return append([]string(nil), detectors[freq]...), nil
}
