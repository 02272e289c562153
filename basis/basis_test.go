package basis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func testSites() *mat.Dense {
	return mat.NewDense(5, 2, []float64{
		0.00, 0.00,
		1.00, 0.50,
		0.25, 0.30,
		0.70, 0.10,
		0.50, 0.25,
	})
}

func testOptions() *Options {
	return &Options{
		Resolutions:     3,
		CoarseGrid:      4,
		MaxFineGrid:     8,
		Padding:         2,
		TargetNeighbors: 20.0,
	}
}

func TestWendland(t *testing.T) {
	assert := assert.New(t)

	assert.InDelta(1.0, Wendland(0.0), 1e-15)
	assert.Equal(0.0, Wendland(1.0))
	assert.Equal(0.0, Wendland(1.5))
	assert.InDelta(Wendland(0.4), Wendland(-0.4), 1e-15)

	// Strictly decreasing and positive inside the support
	prev := Wendland(0.0)
	for i := 1; i <= 100; i++ {
		curr := Wendland(float64(i) / 100.0)
		assert.True(curr < prev, "kernel must decrease, stalled at %d", i)
		assert.True(curr >= 0.0)
		prev = curr
	}
}

func TestOptionsCheck(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(DefaultOptions().Check())

	bad := []*Options{
		{Resolutions: 0, CoarseGrid: 10, MaxFineGrid: 64, Padding: 5, TargetNeighbors: 68},
		{Resolutions: 3, CoarseGrid: 1, MaxFineGrid: 64, Padding: 5, TargetNeighbors: 68},
		{Resolutions: 3, CoarseGrid: 10, MaxFineGrid: 8, Padding: 5, TargetNeighbors: 68},
		{Resolutions: 3, CoarseGrid: 10, MaxFineGrid: 64, Padding: -1, TargetNeighbors: 68},
		{Resolutions: 3, CoarseGrid: 10, MaxFineGrid: 64, Padding: 5, TargetNeighbors: 0},
	}
	for i, o := range bad {
		assert.Error(o.Check(), "options %d should fail", i)
	}
}

func TestBuildRejectsBadSites(t *testing.T) {
	assert := assert.New(t)

	// Wrong dimension
	one := mat.NewDense(2, 1, []float64{0.0, 1.0})
	_, err := Build(one, DefaultOptions())
	assert.Error(err)

	// Every site at the same spot
	same := mat.NewDense(3, 2, []float64{1.0, 2.0, 1.0, 2.0, 1.0, 2.0})
	_, err = Build(same, DefaultOptions())
	assert.Error(err)

	// Non-finite coordinates
	nan := mat.NewDense(3, 2, []float64{0.0, 0.0, 1.0, math.NaN(), 2.0, 2.0})
	_, err = Build(nan, DefaultOptions())
	assert.Error(err)

	inf := mat.NewDense(2, 2, []float64{0.0, 0.0, math.Inf(1), 1.0})
	_, err = Build(inf, DefaultOptions())
	assert.Error(err)
}

func TestGridSchedule(t *testing.T) {
	assert := assert.New(t)

	set, err := Build(testSites(), testOptions())
	assert.NoError(err)
	assert.Equal(3, len(set.Res))
	assert.Equal(5, set.N)
	assert.Equal(2, set.Dim)

	// Longest axis range is 1.0, so the knot counts along axis 0 double
	// from 4 and then hit the cap of 8.
	assert.Equal([]int{8, 6}, set.Res[0].Grid.Shape)
	assert.Equal([]int{12, 8}, set.Res[1].Grid.Shape)
	assert.Equal([]int{12, 8}, set.Res[2].Grid.Shape)

	assert.InDelta(1.0/3.0, set.Res[0].Grid.Delta, 1e-12)
	assert.InDelta(1.0/7.0, set.Res[1].Grid.Delta, 1e-12)

	// The grid starts Padding knots below the site bounding box
	for _, r := range set.Res {
		assert.InDelta(-2.0*r.Grid.Delta, r.Grid.Min[0], 1e-12)
		assert.InDelta(-2.0*r.Grid.Delta, r.Grid.Min[1], 1e-12)
		assert.InDelta(r.Grid.Delta*math.Sqrt(20.0/math.Pi), r.Grid.Radius, 1e-12)
	}

	assert.Equal([]int{0, 48, 144, 240}, set.Offsets())
	assert.Equal(240, set.TotalKnots())
	assert.Equal([][]int{{8, 6}, {12, 8}, {12, 8}}, set.Shapes())
}

func TestGridKnotOrdering(t *testing.T) {
	assert := assert.New(t)

	g := &Grid{
		Shape:  []int{3, 2},
		Min:    []float64{10.0, 20.0},
		Delta:  0.5,
		Radius: 1.0,
	}
	assert.NoError(g.Check())
	assert.Equal(6, g.Len())
	assert.Equal([]int{1, 3}, g.Strides())

	pt := make([]float64, 2)

	// Axis 0 varies fastest
	assert.Equal([]float64{10.0, 20.0}, g.Knot(0, pt))
	assert.Equal([]float64{10.5, 20.0}, g.Knot(1, pt))
	assert.Equal([]float64{11.0, 20.0}, g.Knot(2, pt))
	assert.Equal([]float64{10.0, 20.5}, g.Knot(3, pt))
	assert.Equal([]float64{11.0, 20.5}, g.Knot(5, pt))
}

func TestBoxIter(t *testing.T) {
	assert := assert.New(t)

	it := newBoxIter([]int{0, 0}, []int{1, 2})
	want := [][]int{
		{0, 0}, {1, 0},
		{0, 1}, {1, 1},
		{0, 2}, {1, 2},
	}

	curr := make([]int, 2)
	for i, w := range want {
		it.Val(curr)
		assert.Equal(w, curr, "point %d", i)
		assert.Equal(i < len(want)-1, it.Next())
	}
}

func TestBasisEntries(t *testing.T) {
	assert := assert.New(t)

	locs := testSites()
	set, err := Build(locs, testOptions())
	assert.NoError(err)

	site := make([]float64, 2)
	knot := make([]float64, 2)

	for _, r := range set.Res {
		rows, cols := r.W.Dims()
		assert.Equal(set.N, rows)
		assert.Equal(r.Grid.Len(), cols)
		assert.True(r.W.NNZ() > 0)

		seen := 0
		r.W.DoNonZero(func(i, j int, v float64) {
			seen++
			mat.Row(site, i, locs)
			r.Grid.Knot(j, knot)

			dist := math.Hypot(site[0]-knot[0], site[1]-knot[1])
			assert.True(dist < r.Grid.Radius, "entry (%d,%d) outside support", i, j)
			assert.InDelta(Wendland(dist/r.Grid.Radius), v, 1e-14)
			assert.True(v > 0.0)
		})
		assert.Equal(r.W.NNZ(), seen)

		// Every site loads on at least one knot at these settings
		idx, _ := Rows(r.W)
		for i, row := range idx {
			assert.True(len(row) > 0, "site %d has no basis support", i)
		}
	}
}

func TestCombined(t *testing.T) {
	assert := assert.New(t)

	set, err := Build(testSites(), testOptions())
	assert.NoError(err)

	comb := set.Combined()
	rows, cols := comb.Dims()
	assert.Equal(set.N, rows)
	assert.Equal(set.TotalKnots(), cols)

	offs := set.Offsets()
	nnz := 0
	for m, r := range set.Res {
		nnz += r.W.NNZ()
		r.W.DoNonZero(func(i, j int, v float64) {
			assert.Equal(v, comb.At(i, offs[m]+j))
		})
	}
	assert.Equal(nnz, comb.NNZ())
}

func TestConstraints(t *testing.T) {
	assert := assert.New(t)

	set, err := Build(testSites(), testOptions())
	assert.NoError(err)

	a := set.Constraints()
	r, c := a.Dims()
	assert.Equal(len(set.Res), r)
	assert.Equal(set.TotalKnots(), c)

	offs := set.Offsets()
	for m := 0; m < r; m++ {
		total := 0.0
		for j := 0; j < c; j++ {
			v := a.At(m, j)
			inBlock := j >= offs[m] && j < offs[m+1]
			if inBlock {
				assert.Equal(1.0, v)
			} else {
				assert.Equal(0.0, v)
			}
			total += v
		}
		assert.Equal(float64(offs[m+1]-offs[m]), total)
	}
}

func TestProjectMatchesBuild(t *testing.T) {
	assert := assert.New(t)

	locs := testSites()
	set, err := Build(locs, testOptions())
	assert.NoError(err)

	proj, err := set.Project(locs)
	assert.NoError(err)
	assert.Equal(len(set.Res), len(proj.Res))

	for m, r := range set.Res {
		assert.Equal(r.W.NNZ(), proj.Res[m].W.NNZ())
		r.W.DoNonZero(func(i, j int, v float64) {
			assert.Equal(v, proj.Res[m].W.At(i, j))
		})
	}

	// A location far outside the padded box gets an all-zero row
	far, err := set.Project(mat.NewDense(1, 2, []float64{50.0, 50.0}))
	assert.NoError(err)
	for _, r := range far.Res {
		assert.Equal(0, r.W.NNZ())
	}

	_, err = set.Project(mat.NewDense(1, 3, []float64{0.0, 0.0, 0.0}))
	assert.Error(err)
}

func TestMulVecAgainstDense(t *testing.T) {
	assert := assert.New(t)

	set, err := Build(testSites(), testOptions())
	assert.NoError(err)

	w := set.Res[0].W
	rows, cols := w.Dims()

	dense := mat.NewDense(rows, cols, nil)
	w.DoNonZero(func(i, j int, v float64) {
		dense.Set(i, j, v)
	})

	x := make([]float64, cols)
	for j := range x {
		x[j] = math.Sin(float64(j + 1))
	}
	y := make([]float64, rows)
	for i := range y {
		y[i] = math.Cos(float64(i + 1))
	}

	got := MulVec(w, x, make([]float64, rows))
	var want mat.VecDense
	want.MulVec(dense, mat.NewVecDense(cols, x))
	for i := 0; i < rows; i++ {
		assert.InDelta(want.AtVec(i), got[i], 1e-12)
	}

	gotT := MulTransVec(w, y, make([]float64, cols))
	var wantT mat.VecDense
	wantT.MulVec(dense.T(), mat.NewVecDense(rows, y))
	for j := 0; j < cols; j++ {
		assert.InDelta(wantT.AtVec(j), gotT[j], 1e-12)
	}
}

func TestBuild3D(t *testing.T) {
	assert := assert.New(t)

	locs := mat.NewDense(4, 3, []float64{
		0.0, 0.0, 0.0,
		1.0, 0.4, 0.2,
		0.5, 0.2, 0.1,
		0.3, 0.1, 0.3,
	})
	opts := &Options{
		Resolutions:     2,
		CoarseGrid:      4,
		MaxFineGrid:     8,
		Padding:         1,
		TargetNeighbors: 30.0,
	}

	set, err := Build(locs, opts)
	assert.NoError(err)
	assert.Equal(3, set.Dim)

	g := set.Res[0].Grid
	assert.Equal(3, g.Dim())
	assert.InDelta(g.Delta*math.Cbrt(3.0*30.0/(4.0*math.Pi)), g.Radius, 1e-12)

	for _, r := range set.Res {
		assert.True(r.W.NNZ() > 0)
	}
}
