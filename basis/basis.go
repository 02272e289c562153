// Package basis builds multi-resolution radial basis expansions over regular
// knot grids. Each resolution is a lattice of knots spanning the site bounding
// box plus a padding margin, with a compactly supported Wendland function
// centered on every knot. The per-resolution basis matrices are sparse: a site
// only loads on the knots inside the support radius.
package basis

import (
	"math"

	"github.com/james-bowman/sparse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Options controls the grid schedule shared by every resolution
type Options struct {
	Resolutions     int     // Number of resolutions (coarsest to finest)
	CoarseGrid      int     // Knots along the longest axis at the coarsest resolution
	MaxFineGrid     int     // Cap on knots along the longest axis at any resolution
	Padding         int     // Extra knots added past the bounding box on every side
	TargetNeighbors float64 // Expected active basis function count per site
}

// DefaultOptions returns the options used when a caller specifies nothing
func DefaultOptions() *Options {
	return &Options{
		Resolutions:     3,
		CoarseGrid:      10,
		MaxFineGrid:     64,
		Padding:         5,
		TargetNeighbors: 68.0,
	}
}

// Check returns an error if the options can not produce a usable basis
func (o *Options) Check() error {
	if o.Resolutions < 1 {
		return errors.Errorf("At least one resolution is required, not %d", o.Resolutions)
	}
	if o.CoarseGrid < 2 {
		return errors.Errorf("The coarse grid needs at least 2 knots per axis, not %d", o.CoarseGrid)
	}
	if o.MaxFineGrid < o.CoarseGrid {
		return errors.Errorf("Fine grid cap %d is below the coarse grid size %d", o.MaxFineGrid, o.CoarseGrid)
	}
	if o.Padding < 0 {
		return errors.Errorf("Grid padding %d may not be negative", o.Padding)
	}
	if o.TargetNeighbors < 1.0 {
		return errors.Errorf("Target neighbor count %f must be at least 1", o.TargetNeighbors)
	}
	return nil
}

// Resolution is one level of the expansion: its knot grid and the sparse
// basis matrix W (sites x knots) evaluated at the build locations.
type Resolution struct {
	Grid *Grid
	W    *sparse.CSR
}

// Set is the full multi-resolution basis, ordered coarsest first
type Set struct {
	Res []*Resolution
	N   int // Number of sites the basis was evaluated at
	Dim int // Spatial dimension (2 or 3)
}

// Build creates the multi-resolution basis for the given sites. The locs
// matrix is sites x axes with 2 or 3 axes. The grid schedule doubles the knot
// count along the longest axis at every resolution, starting from
// opts.CoarseGrid and capping at opts.MaxFineGrid.
func Build(locs *mat.Dense, opts *Options) (*Set, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}

	n, dim := locs.Dims()
	if n < 1 {
		return nil, errors.Errorf("At least one site is required to build a basis")
	}
	if dim != 2 && dim != 3 {
		return nil, errors.Errorf("Sites must have 2 or 3 axes, not %d", dim)
	}

	// Bounding box and the longest axis range
	min := make([]float64, dim)
	max := make([]float64, dim)
	for j := 0; j < dim; j++ {
		min[j] = locs.At(0, j)
		max[j] = locs.At(0, j)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			v := locs.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Errorf("Site %d has a non-finite coordinate", i)
			}
			if v < min[j] {
				min[j] = v
			}
			if v > max[j] {
				max[j] = v
			}
		}
	}

	longest := 0.0
	for j := 0; j < dim; j++ {
		if r := max[j] - min[j]; r > longest {
			longest = r
		}
	}
	if longest <= 0.0 {
		return nil, errors.Errorf("All %d sites share a single location", n)
	}

	set := &Set{N: n, Dim: dim}

	for m := 0; m < opts.Resolutions; m++ {
		along := opts.CoarseGrid << uint(m)
		if along > opts.MaxFineGrid {
			along = opts.MaxFineGrid
		}
		delta := longest / float64(along-1)

		g := &Grid{
			Shape:  make([]int, dim),
			Min:    make([]float64, dim),
			Delta:  delta,
			Radius: supportRadius(delta, opts.TargetNeighbors, dim),
		}
		for j := 0; j < dim; j++ {
			// The tiny nudge keeps an exact multiple of delta from
			// truncating down a knot
			interior := int(math.Floor((max[j]-min[j])/delta+1e-9)) + 1
			g.Shape[j] = interior + 2*opts.Padding
			g.Min[j] = min[j] - float64(opts.Padding)*delta
		}
		if err := g.Check(); err != nil {
			return nil, errors.Wrapf(err, "Resolution %d", m+1)
		}

		set.Res = append(set.Res, &Resolution{
			Grid: g,
			W:    buildW(locs, g),
		})
	}

	return set, nil
}

// supportRadius sizes the basis support so that a site in the grid interior
// sees about target knots inside the radius
func supportRadius(delta float64, target float64, dim int) float64 {
	if dim == 3 {
		return delta * math.Cbrt(3.0*target/(4.0*math.Pi))
	}
	return delta * math.Sqrt(target/math.Pi)
}

// buildW evaluates the basis at the given sites over one grid. Rows come out
// with ascending knot indexes because the lattice walk advances axis 0 first.
func buildW(locs *mat.Dense, g *Grid) *sparse.CSR {
	n, dim := locs.Dims()
	strides := g.Strides()

	ia := make([]int, 1, n+1)
	ja := []int{}
	data := []float64{}

	site := make([]float64, dim)
	lo := make([]int, dim)
	hi := make([]int, dim)
	curr := make([]int, dim)

	for i := 0; i < n; i++ {
		mat.Row(site, i, locs)

		// Clamp the candidate knot box to the grid. A site far outside
		// the padded box can have no candidates at all.
		empty := false
		for j := 0; j < dim; j++ {
			lo[j] = int(math.Ceil((site[j] - g.Radius - g.Min[j]) / g.Delta))
			hi[j] = int(math.Floor((site[j] + g.Radius - g.Min[j]) / g.Delta))
			if lo[j] < 0 {
				lo[j] = 0
			}
			if hi[j] > g.Shape[j]-1 {
				hi[j] = g.Shape[j] - 1
			}
			if lo[j] > hi[j] {
				empty = true
				break
			}
		}

		if !empty {
			it := newBoxIter(lo, hi)
			for {
				it.Val(curr)

				dist2 := 0.0
				flat := 0
				for j := 0; j < dim; j++ {
					diff := site[j] - (g.Min[j] + float64(curr[j])*g.Delta)
					dist2 += diff * diff
					flat += curr[j] * strides[j]
				}

				if w := Wendland(math.Sqrt(dist2) / g.Radius); w > 0.0 {
					ja = append(ja, flat)
					data = append(data, w)
				}

				if !it.Next() {
					break
				}
			}
		}

		ia = append(ia, len(ja))
	}

	return sparse.NewCSR(n, g.Len(), ia, ja, data)
}

// TotalKnots returns the knot count summed over every resolution
func (s *Set) TotalKnots() int {
	t := 0
	for _, r := range s.Res {
		t += r.Grid.Len()
	}
	return t
}

// Offsets returns the column offset of each resolution inside the combined
// basis matrix. The slice has one extra entry so that Offsets()[m+1] -
// Offsets()[m] is the knot count at resolution m.
func (s *Set) Offsets() []int {
	offs := make([]int, len(s.Res)+1)
	for m, r := range s.Res {
		offs[m+1] = offs[m] + r.Grid.Len()
	}
	return offs
}

// Shapes returns the per-axis knot counts of every resolution
func (s *Set) Shapes() [][]int {
	shapes := make([][]int, len(s.Res))
	for m, r := range s.Res {
		shapes[m] = r.Grid.Shape
	}
	return shapes
}

// Combined stacks the per-resolution matrices side by side into a single
// sites x TotalKnots sparse matrix, coarsest resolution in the leftmost
// columns.
func (s *Set) Combined() *sparse.CSR {
	offs := s.Offsets()

	nnz := 0
	for _, r := range s.Res {
		nnz += r.W.NNZ()
	}

	rowIdx := make([][][]int, len(s.Res))
	rowVal := make([][][]float64, len(s.Res))
	for m, r := range s.Res {
		rowIdx[m], rowVal[m] = Rows(r.W)
	}

	ia := make([]int, 1, s.N+1)
	ja := make([]int, 0, nnz)
	data := make([]float64, 0, nnz)

	for i := 0; i < s.N; i++ {
		for m := range s.Res {
			for k, j := range rowIdx[m][i] {
				ja = append(ja, offs[m]+j)
				data = append(data, rowVal[m][i][k])
			}
		}
		ia = append(ia, len(ja))
	}

	return sparse.NewCSR(s.N, offs[len(offs)-1], ia, ja, data)
}

// Constraints returns the sum-to-zero constraint system: one row per
// resolution with ones over that resolution's columns in the combined layout.
// Weights drawn under an intrinsic or near-intrinsic prior need these rows to
// pin each resolution's overall level, which is otherwise confounded with the
// regression intercept.
func (s *Set) Constraints() *mat.Dense {
	offs := s.Offsets()
	a := mat.NewDense(len(s.Res), offs[len(offs)-1], nil)
	for m := range s.Res {
		for j := offs[m]; j < offs[m+1]; j++ {
			a.Set(m, j, 1.0)
		}
	}
	return a
}

// Project evaluates the already-built basis at new locations. The grids and
// support radii are reused unchanged, so a location outside the padded
// bounding box simply loads on fewer knots (possibly none).
func (s *Set) Project(locs *mat.Dense) (*Set, error) {
	n, dim := locs.Dims()
	if n < 1 {
		return nil, errors.Errorf("At least one location is required")
	}
	if dim != s.Dim {
		return nil, errors.Errorf("Locations have %d axes but the basis was built with %d", dim, s.Dim)
	}

	ns := &Set{N: n, Dim: dim}
	for _, r := range s.Res {
		ns.Res = append(ns.Res, &Resolution{
			Grid: r.Grid,
			W:    buildW(locs, r.Grid),
		})
	}
	return ns, nil
}

// Rows explodes a sparse matrix into per-row column index and value slices.
// Row order and the ascending column order inside a row both follow the
// underlying storage, so repeated calls see the same layout.
func Rows(w *sparse.CSR) ([][]int, [][]float64) {
	r, _ := w.Dims()
	idx := make([][]int, r)
	val := make([][]float64, r)
	w.DoNonZero(func(i, j int, v float64) {
		idx[i] = append(idx[i], j)
		val[i] = append(val[i], v)
	})
	return idx, val
}

// MulVec computes dst = W * x and returns dst
func MulVec(w *sparse.CSR, x, dst []float64) []float64 {
	r, c := w.Dims()
	if len(x) != c || len(dst) != r {
		panic(mat.ErrShape)
	}
	for i := range dst {
		dst[i] = 0.0
	}
	w.DoNonZero(func(i, j int, v float64) {
		dst[i] += v * x[j]
	})
	return dst
}

// MulTransVec computes dst = Wᵀ * x and returns dst
func MulTransVec(w *sparse.CSR, x, dst []float64) []float64 {
	r, c := w.Dims()
	if len(x) != r || len(dst) != c {
		panic(mat.ErrShape)
	}
	for i := range dst {
		dst[i] = 0.0
	}
	w.DoNonZero(func(i, j int, v float64) {
		dst[j] += v * x[i]
	})
	return dst
}
