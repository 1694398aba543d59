// Public domain.

package mapmaker_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/soniakeys/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/vyoma-m/crabpol/internal/catalog"
	"github.com/vyoma-m/crabpol/internal/config"
	"github.com/vyoma-m/crabpol/internal/healpix"
	"github.com/vyoma-m/crabpol/internal/mapmaker"
	"github.com/vyoma-m/crabpol/internal/skymap"
	"github.com/vyoma-m/crabpol/internal/tod"
	"github.com/vyoma-m/crabpol/internal/todsim"
)

// sample adds a sample at (x, y) seeing stokes iqu through angle psi.
func sample(g *tod.GridTOD, x, y, psi float64, iqu [3]float64) {
	w := [3]float64{1, math.Cos(2 * psi), math.Sin(2 * psi)}
	g.X = append(g.X, x)
	g.Y = append(g.Y, y)
	g.Weights = append(g.Weights, w)
	g.Signal = append(g.Signal, iqu[0]+w[1]*iqu[1]+w[2]*iqu[2])
}

func grid(npix int) *tod.GridTOD {
	return &tod.GridTOD{
		XEdges: tod.Edges(npix, 1.5),
		YEdges: tod.Edges(npix, 1.5),
	}
}

func TestBinOnGridRecovers(t *testing.T) {
	g := grid(4) // edges -3 -1.5 0 1.5 3
	a := [3]float64{2, .3, -.1}
	b := [3]float64{-1, 0, .4}
	for k := 0; k < 8; k++ {
		psi := float64(k) * math.Pi / 8
		sample(g, .7, -2.2, psi, a) // row 0, col 2
		sample(g, -3, 0, psi, b)    // row 2, col 0, on lower edges
	}
	sample(g, 3, 0, 0, b) // on an upper edge, outside the grid

	res, err := mapmaker.BinOnGrid(context.Background(), g, 2)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 16, res.Samples)
	m := res.Map
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			i, q, u := m.Stokes(r, c)
			want := [3]float64{}
			hits := 0
			switch {
			case r == 0 && c == 2:
				want, hits = a, 8
			case r == 2 && c == 0:
				want, hits = b, 8
			}
			got := []float64{i, q, u}
			assert.True(t, floats.EqualApprox(want[:], got, 1e-12),
				"row %d col %d: %v", r, c, got)
			assert.Equal(t, hits, m.Hits[m.Index(skymap.I, r, c)])
		}
	}
}

func TestBinOnGridDegenerate(t *testing.T) {
	// one sample: minimum norm solution s·w/|w|²
	g := grid(2)
	sample(g, .1, .1, 0, [3]float64{1, 1, 0})
	res, err := mapmaker.BinOnGrid(context.Background(), g, 0)
	require.NoError(t, err)
	i, q, u := res.Map.Stokes(1, 1)
	assert.InDelta(t, 1, i, 1e-12)
	assert.InDelta(t, 1, q, 1e-12)
	assert.InDelta(t, 0, u, 1e-12)
}

func TestBinOnGridEmpty(t *testing.T) {
	res, err := mapmaker.BinOnGrid(context.Background(), grid(3), 4)
	require.NoError(t, err)
	assert.Zero(t, res.Samples)
	assert.Equal(t, 0., floats.Norm(res.Map.Data, 1))
	for _, h := range res.Map.Hits {
		require.Zero(t, h)
	}
}

func TestBinOnGridNumeric(t *testing.T) {
	g := grid(2)
	for k := 0; k < 4; k++ {
		sample(g, -1, -1, float64(k), [3]float64{1, 0, 0}) // row 0 col 0
		sample(g, 1, -1, float64(k), [3]float64{1, 0, 0})  // row 0 col 1
	}
	g.Signal[1] = math.Inf(1) // row 0 col 1
	res, err := mapmaker.BinOnGrid(context.Background(), g, 2)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	w := res.Warnings[0]
	assert.Equal(t, 0, w.Row)
	assert.Equal(t, 1, w.Col)
	assert.True(t, errors.Is(w, mapmaker.ErrNumericInstability))

	i, _, _ := res.Map.Stokes(0, 1)
	assert.Equal(t, 0., i)
	i, _, _ = res.Map.Stokes(0, 0)
	assert.InDelta(t, 1, i, 1e-12)
	for _, p := range []int{skymap.I, skymap.Q, skymap.U} {
		assert.Equal(t, 4, res.Map.Hits[res.Map.Index(p, 0, 1)])
		assert.Equal(t, 4, res.Map.Hits[res.Map.Index(p, 0, 0)])
	}
	assert.Equal(t, 0, res.Map.Hits[res.Map.Index(skymap.I, 1, 0)])
}

func TestBinOnGridLocality(t *testing.T) {
	g := grid(2)
	for k := 0; k < 4; k++ {
		sample(g, -1, -1, float64(k), [3]float64{1, .2, -.1}) // row 0 col 0
		sample(g, 1, -1, float64(k), [3]float64{2, .1, .3})   // row 0 col 1
	}
	before, err := mapmaker.BinOnGrid(context.Background(), g, 2)
	require.NoError(t, err)
	g.Signal[1] += 10
	after, err := mapmaker.BinOnGrid(context.Background(), g, 2)
	require.NoError(t, err)

	var changed []int
	for i := range before.Map.Data {
		if before.Map.Data[i] != after.Map.Data[i] {
			changed = append(changed, i)
		}
	}
	m := after.Map
	want := []int{m.Index(skymap.I, 0, 1), m.Index(skymap.Q, 0, 1), m.Index(skymap.U, 0, 1)}
	assert.Equal(t, want, changed)
	assert.Equal(t, before.Map.Hits, after.Map.Hits)
}

func TestBinOnGridInvalid(t *testing.T) {
	g := grid(2)
	g.X = []float64{0}
	_, err := mapmaker.BinOnGrid(context.Background(), g, 1)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mapmaker.BinOnGrid(ctx, grid(2), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBinOnGridOrderIndependent(t *testing.T) {
	g := grid(6)
	for k := 0; k < 2000; k++ {
		x := -4.5 + 9*float64(k%97)/97
		y := -4.5 + 9*float64(k%89)/89
		sample(g, x, y, float64(k), [3]float64{x, y, x * y})
	}
	r1, err := mapmaker.BinOnGrid(context.Background(), g, 1)
	require.NoError(t, err)
	r8, err := mapmaker.BinOnGrid(context.Background(), g, 8)
	require.NoError(t, err)
	assert.Equal(t, r1.Map.Data, r8.Map.Data)
	assert.Equal(t, r1.Map.Hits, r8.Map.Hits)
}

func TestBinHealpix(t *testing.T) {
	const nside = 8
	tt := &tod.TOD{
		Signal:  []float64{1, 2, 3, 4, 5},
		Pixels:  []int{3, 3, -1, 700, 3},
		Weights: [][3]float64{{1, .5, .2}, {1, .5, .2}, {1, .5, .2}, {1, -1, 0}, {1, 0, 1}},
	}
	m, err := mapmaker.BinHealpix(tt, nside)
	require.NoError(t, err)
	require.Len(t, m.Data, healpix.Npix(nside))
	assert.True(t, floats.EqualApprox([]float64{8, 1.5, 5.6}, m.Data[3][:], 1e-12))
	assert.Equal(t, [3]int{3, 3, 3}, m.Hits[3])
	assert.Equal(t, [3]float64{4, -4, 0}, m.Data[700])

	total := 0
	for _, h := range m.Hits {
		total += h[0] + h[1] + h[2]
	}
	assert.Equal(t, 3*4, total) // one sample skipped

	tt.Pixels[0] = healpix.Npix(nside)
	_, err = mapmaker.BinHealpix(tt, nside)
	assert.Error(t, err)
	_, err = mapmaker.BinHealpix(tt, 6)
	assert.ErrorIs(t, err, healpix.ErrNside)
	_, err = mapmaker.BinHealpix(&tod.TOD{Signal: []float64{1}}, nside)
	assert.Error(t, err)

	m, err = mapmaker.BinHealpix(&tod.TOD{}, 1)
	require.NoError(t, err)
	assert.Equal(t, make([][3]float64, 12), m.Data)
}

// fakeProvider returns fixed TOD.
type fakeProvider struct {
	tod  *tod.TOD
	grid *tod.GridTOD
}

func (p *fakeProvider) Assemble(freq, nside int) (*tod.TOD, error) { return p.tod, nil }

func (p *fakeProvider) AssembleOnGrid(freq int, lon, lat unit.Angle, npix int, size unit.Angle) (*tod.GridTOD, error) {
	return p.grid, nil
}

type recorder []catalog.Entry

func (r *recorder) Record(ctx context.Context, e catalog.Entry) error {
	*r = append(*r, e)
	return nil
}

func newConfig(t *testing.T, mod func(*config.Config)) *config.Config {
	c := config.Default()
	c.DataPath = t.TempDir()
	c.OutputDir = filepath.Join(t.TempDir(), "maps")
	if mod != nil {
		mod(&c)
	}
	cfg, err := config.New(c)
	require.NoError(t, err)
	return cfg
}

func TestMakerGrid(t *testing.T) {
	cfg := newConfig(t, func(c *config.Config) {
		c.Npix = 4
		c.Split = "hr2"
	})
	g := grid(4)
	for k := 0; k < 6; k++ {
		sample(g, .2, .2, float64(k), [3]float64{3, .1, .2})
	}
	var rec recorder
	var logged bytes.Buffer
	m := mapmaker.New(cfg, &fakeProvider{grid: g},
		mapmaker.WithRecorder(&rec), mapmaker.WithRunID("run-1"),
		mapmaker.WithLogger(slog.New(slog.NewTextHandler(&logged, nil))))
	res, err := m.GridMap(context.Background(), 143)
	require.NoError(t, err)
	assert.Regexp(t, `lon="?184°33′`, logged.String())
	assert.Regexp(t, `lat="?-5°47′`, logged.String())
	assert.Equal(t, filepath.Join(cfg.OutputDir, "143GHz_4pix_grid_hr2.fits"), res.Path)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "hits_143GHz_4pix_grid_hr2.fits"), res.HitsPath)

	got, err := skymap.ReadGrid(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 143, got.Freq)
	if d := cmp.Diff(res.Map.Data, got.Data); d != "" {
		t.Fatal(d)
	}
	hits, err := skymap.ReadGridHits(res.HitsPath)
	require.NoError(t, err)
	assert.Equal(t, res.Map.Hits, hits.Hits)
	i, _, _ := got.Stokes(2, 2)
	assert.InDelta(t, 3, i, 1e-12)

	require.Len(t, rec, 1)
	assert.Equal(t, catalog.Entry{
		RunID: "run-1", Path: res.Path, HitsPath: res.HitsPath,
		Mode: "pix_grid", Freq: 143, Resolution: 4, Split: "hr2", Samples: 6,
	}, rec[0])
}

func TestMakerHealpix(t *testing.T) {
	cfg := newConfig(t, func(c *config.Config) { c.Nside = 2 })
	tt := &tod.TOD{
		Signal:  []float64{1, 2, 4},
		Pixels:  []int{0, -1, 47},
		Weights: [][3]float64{{1, 1, 0}, {1, 0, 1}, {1, 0, -1}},
	}
	var rec recorder
	m := mapmaker.New(cfg, &fakeProvider{tod: tt}, mapmaker.WithRecorder(&rec))
	assert.NotEmpty(t, m.RunID())
	res, err := m.HealpixMap(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Samples)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "100GHz_2hpbinning.fits"), res.Path)

	got, err := skymap.ReadHealpix(res.Path)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{1, 1, 0}, got.Data[0])
	assert.Equal(t, [3]float64{4, 0, -4}, got.Data[47])
	assert.Equal(t, m.RunID(), got.RunID)
	hits, err := skymap.ReadHealpixHits(res.HitsPath)
	require.NoError(t, err)
	assert.Equal(t, res.Map.Hits, hits.Hits)

	require.Len(t, rec, 1)
	assert.Equal(t, "hpbinning", rec[0].Mode)
	assert.Equal(t, 2, rec[0].Resolution)
}

func TestMakerRun(t *testing.T) {
	cfg := newConfig(t, func(c *config.Config) {
		c.Nside = 1
		c.Frequencies = []int{100, 143}
	})
	var rec recorder
	m := mapmaker.New(cfg, &fakeProvider{tod: &tod.TOD{}}, mapmaker.WithRecorder(&rec))
	require.NoError(t, m.Run(context.Background(), skymap.ModeHealpix))
	require.Len(t, rec, 2)
	assert.Equal(t, 143, rec[1].Freq)
	for _, e := range rec {
		_, err := os.Stat(e.HitsPath)
		assert.NoError(t, err)
	}
	assert.ErrorIs(t, m.Run(context.Background(), "raster"), config.ErrConfiguration)
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	o := todsim.DefaultOptions()
	o.Frequencies = []int{100}
	o.Samples = 3000
	o.Radius = unit.AngleFromMin(10)
	_, err := todsim.Generate(dir, o)
	require.NoError(t, err)

	cfg := newConfig(t, func(c *config.Config) {
		c.DataPath = dir
		c.Frequencies = []int{100}
		c.Npix = 16
	})
	m := mapmaker.New(cfg, tod.NewFITSAssembler(cfg))
	res, err := m.GridMap(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	// brightest pixel is one of the four at the center
	mp := res.Map
	best := floats.MaxIdx(mp.Plane(skymap.I))
	r, c := best/mp.Npix, best%mp.Npix
	assert.Contains(t, []int{7, 8}, r)
	assert.Contains(t, []int{7, 8}, c)

	// polarization fraction over the map is that of the source
	i := floats.Sum(mp.Plane(skymap.I))
	assert.InDelta(t, o.Sky.Q/o.Sky.I, floats.Sum(mp.Plane(skymap.Q))/i, .015)
	assert.InDelta(t, o.Sky.U/o.Sky.I, floats.Sum(mp.Plane(skymap.U))/i, .015)
}
