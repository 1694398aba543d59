// Public domain.

// Package mapmaker bins time-ordered data into Stokes I, Q, U maps.
//
// The grid binner solves a small weighted least squares problem per cell
// of a tangent plane grid.  The HEALPix binner accumulates weighted signal
// and hits per pixel without normalizing.
package mapmaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/vyoma-m/crabpol/internal/healpix"
	"github.com/vyoma-m/crabpol/internal/skymap"
	"github.com/vyoma-m/crabpol/internal/tod"
)

// ErrNumericInstability is wrapped by NumericError.
var ErrNumericInstability = errors.New("numeric instability")

// NumericError reports a grid cell whose solution could not be computed.
// Row is the y bin, Col the x bin.
type NumericError struct {
	Row, Col int
	Reason   string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("%v in cell row %d col %d: %s",
		ErrNumericInstability, e.Row, e.Col, e.Reason)
}

func (e *NumericError) Unwrap() error { return ErrNumericInstability }

// GridResult is a binned grid map.
//
// Cells listed in Warnings could not be solved and are zero in Map.
// Hits count the samples in each cell, solved or not.
type GridResult struct {
	Map      *skymap.Grid
	Warnings []*NumericError
	Samples  int // samples binned into some cell

	Path, HitsPath string // set when written
}

// bin returns the index of the half-open bin [e[i], e[i+1]) holding v,
// or -1.
func bin(e []float64, v float64) int {
	i := sort.Search(len(e), func(i int) bool { return e[i] > v }) - 1
	if i < 0 || i >= len(e)-1 {
		return -1
	}
	return i
}

// BinOnGrid solves for I, Q, U in each cell of the grid of g, using up to
// workers goroutines.  A cell holds the samples with x in [XEdges[col],
// XEdges[col+1]) and y in [YEdges[row], YEdges[row+1]).  Its estimate is
// pinv(W·Wᵀ)·W·s over its samples.  Empty cells are zero.
//
// Cells with non-finite data are zeroed and reported in the result's
// Warnings rather than failing the map.
func BinOnGrid(ctx context.Context, g *tod.GridTOD, workers int) (*GridResult, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	npix := g.Npix()
	cells := make([][]int, npix*npix) // sample indexes by row*npix+col
	res := &GridResult{Map: skymap.NewGrid(npix)}
	for k := range g.Signal {
		c, r := bin(g.XEdges, g.X[k]), bin(g.YEdges, g.Y[k])
		if c < 0 || r < 0 {
			continue
		}
		cells[r*npix+c] = append(cells[r*npix+c], k)
		res.Samples++
	}

	warn := make([][]*NumericError, npix) // by column
	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for col := 0; col < npix; col++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for row := 0; row < npix; row++ {
				idx := cells[row*npix+col]
				if len(idx) == 0 {
					continue
				}
				iqu, reason := solveCell(g, idx)
				if reason != "" {
					warn[col] = append(warn[col], &NumericError{row, col, reason})
					res.Map.SetStokes(row, col, [3]float64{}, len(idx))
					continue
				}
				res.Map.SetStokes(row, col, iqu, len(idx))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for _, w := range warn {
		res.Warnings = append(res.Warnings, w...)
	}
	return res, nil
}

// solveCell returns pinv(W·Wᵀ)·W·s for the samples idx, or a reason the
// solution is not usable.
func solveCell(g *tod.GridTOD, idx []int) (iqu [3]float64, reason string) {
	// W·Wᵀ and W·s accumulate sample by sample
	var a [9]float64
	var b [3]float64
	for _, k := range idx {
		w, s := &g.Weights[k], g.Signal[k]
		if !finite(s) || !finite(w[0]) || !finite(w[1]) || !finite(w[2]) {
			return iqu, fmt.Sprintf("non-finite sample %d", k)
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				a[i*3+j] += w[i] * w[j]
			}
			b[i] += w[i] * s
		}
	}
	for _, v := range a {
		if !finite(v) {
			return iqu, "normal matrix overflow"
		}
	}
	x, ok := pinvSolve(mat.NewDense(3, 3, a[:]), mat.NewVecDense(3, b[:]))
	if !ok {
		return iqu, "svd failed"
	}
	for i := range iqu {
		iqu[i] = x.AtVec(i)
		if !finite(iqu[i]) {
			return [3]float64{}, "non-finite solution"
		}
	}
	return iqu, ""
}

// pinvSolve returns pinv(a)·b with the pseudo-inverse from the SVD of a.
// Singular values below max(m, n)·ε·σmax are treated as zero.
func pinvSolve(a *mat.Dense, b *mat.VecDense) (*mat.VecDense, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, false
	}
	sv := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	m, n := a.Dims()
	tol := float64(max(m, n)) * eps * sv[0]

	var c mat.VecDense
	c.MulVec(u.T(), b)
	for i, s := range sv {
		if s > tol {
			c.SetVec(i, c.AtVec(i)/s)
		} else {
			c.SetVec(i, 0)
		}
	}
	var x mat.VecDense
	x.MulVec(&v, &c)
	return &x, true
}

// float64 machine epsilon
const eps = 0x1p-52

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// BinHealpix accumulates signal·weight and hits per nested pixel and
// plane.  Samples with negative pixel are skipped.  An empty TOD gives an
// all zero map.
func BinHealpix(t *tod.TOD, nside int) (*skymap.Healpix, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := healpix.CheckNside(nside); err != nil {
		return nil, err
	}
	m := skymap.NewHealpix(nside)
	npix := len(m.Data)
	for k, p := range t.Pixels {
		if p < 0 {
			continue
		}
		if p >= npix {
			return nil, fmt.Errorf("sample %d: pixel %d out of range for nside %d",
				k, p, nside)
		}
		s, w := t.Signal[k], &t.Weights[k]
		for i := range w {
			m.Data[p][i] += s * w[i]
			m.Hits[p][i]++
		}
	}
	return m, nil
}
