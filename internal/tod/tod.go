// Public domain.

// Package tod assembles time-ordered data for a frequency channel.
//
// Raw samples are read per detector from a Source, calibrated, and either
// pixelized on the HEALPix sphere (TOD) or projected onto a flat grid around
// a target (GridTOD).  Both are created once per channel and read-only after.
package tod

import (
	"errors"
	"fmt"
)

// ErrDataNotFound means a detector's sample file is absent.
var ErrDataNotFound = errors.New("data not found")

// TOD is a pixelized sample stream.  Element i of each slice belongs to
// sample i.  Weights are the [1, q, u] projections of a sample on I, Q, U.
//
// Pixels are nested HEALPix indexes.  A negative pixel marks a sample with
// no valid sky position; it stays in the TOD and binners skip it.
type TOD struct {
	Signal  []float64
	Pixels  []int
	Weights [][3]float64
}

// Len is the number of samples.
func (t *TOD) Len() int { return len(t.Signal) }

// Validate checks that the slices are sample aligned.
func (t *TOD) Validate() error {
	if len(t.Pixels) != len(t.Signal) || len(t.Weights) != len(t.Signal) {
		return fmt.Errorf("tod: %d signal, %d pixels, %d weights",
			len(t.Signal), len(t.Pixels), len(t.Weights))
	}
	return nil
}

// GridTOD is a sample stream projected on a tangent plane.
//
// X, Y are offsets from the grid center in arcminutes, X along increasing
// longitude.  XEdges and YEdges hold npix+1 ascending bin edges, also in
// arcminutes.
type GridTOD struct {
	X, Y           []float64
	XEdges, YEdges []float64
	Signal         []float64
	Weights        [][3]float64
}

// Len is the number of samples.
func (g *GridTOD) Len() int { return len(g.Signal) }

// Npix is the number of bins along each axis.
func (g *GridTOD) Npix() int { return len(g.XEdges) - 1 }

// Validate checks sample alignment and the bin edges.
func (g *GridTOD) Validate() error {
	n := len(g.Signal)
	if len(g.X) != n || len(g.Y) != n || len(g.Weights) != n {
		return fmt.Errorf("grid tod: %d signal, %d x, %d y, %d weights",
			n, len(g.X), len(g.Y), len(g.Weights))
	}
	if len(g.XEdges) < 2 || len(g.XEdges) != len(g.YEdges) {
		return fmt.Errorf("grid tod: %d x edges, %d y edges",
			len(g.XEdges), len(g.YEdges))
	}
	for _, e := range [][]float64{g.XEdges, g.YEdges} {
		for i := 1; i < len(e); i++ {
			if !(e[i] > e[i-1]) {
				return fmt.Errorf("grid tod: edges not ascending at %d", i)
			}
		}
	}
	return nil
}

// Edges returns npix+1 edges of bins of width size, centered on zero.
func Edges(npix int, size float64) []float64 {
	e := make([]float64, npix+1)
	lo := -float64(npix) / 2 * size
	for i := range e {
		e[i] = lo + float64(i)*size
	}
	return e
}
