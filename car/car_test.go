package car

import (
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/spample/spample/mvnorm"
)

func TestPrecisionStructure(t *testing.T) {
	assert := assert.New(t)

	q, err := Precision([]int{3, 3}, 0.5)
	assert.NoError(err)

	r, c := q.Dims()
	assert.Equal(9, r)
	assert.Equal(9, c)

	// 12 neighbor pairs on a 3x3 grid, each contributing two entries
	assert.Equal(9+24, q.NNZ())

	// Knot layout with axis 0 fastest:
	//   6 7 8
	//   3 4 5
	//   0 1 2
	assert.Equal(2.0, q.At(0, 0)) // corner
	assert.Equal(3.0, q.At(1, 1)) // edge
	assert.Equal(4.0, q.At(4, 4)) // center
	assert.Equal(-0.5, q.At(0, 1))
	assert.Equal(-0.5, q.At(0, 3))
	assert.Equal(-0.5, q.At(4, 1))
	assert.Equal(-0.5, q.At(4, 7))
	assert.Equal(0.0, q.At(0, 4)) // diagonal step is not a neighbor
	assert.Equal(0.0, q.At(0, 2))

	// Symmetry
	q.DoNonZero(func(i, j int, v float64) {
		assert.Equal(v, q.At(j, i))
	})
}

func TestPrecisionBadArgs(t *testing.T) {
	assert := assert.New(t)

	_, err := Precision([]int{}, 0.5)
	assert.Error(err)
	_, err = Precision([]int{3, 0}, 0.5)
	assert.Error(err)
	_, err = Precision([]int{3, 3}, 1.5)
	assert.Error(err)
	_, err = Precision([]int{3, 3}, -0.1)
	assert.Error(err)
}

func TestPrecisionNullSpace(t *testing.T) {
	assert := assert.New(t)

	// At rho = 1 the row sums vanish: the constant vector is in the null
	// space of the intrinsic autoregression
	q, err := Precision([]int{4, 3}, 1.0)
	assert.NoError(err)

	n, _ := q.Dims()
	rowSum := make([]float64, n)
	q.DoNonZero(func(i, j int, v float64) {
		rowSum[i] += v
	})
	for i := 0; i < n; i++ {
		assert.InDelta(0.0, rowSum[i], 1e-14)
	}
}

func TestPrecision3D(t *testing.T) {
	assert := assert.New(t)

	q, err := Precision([]int{3, 3, 3}, 0.9)
	assert.NoError(err)

	n, _ := q.Dims()
	assert.Equal(27, n)

	// The center knot (1,1,1) has flat index 1 + 3*(1 + 3*1) = 13 and six
	// neighbors
	assert.Equal(6.0, q.At(13, 13))
	assert.Equal(3.0, q.At(0, 0))
	assert.Equal(-0.9, q.At(13, 12))
	assert.Equal(-0.9, q.At(13, 14))
	assert.Equal(-0.9, q.At(13, 10))
	assert.Equal(-0.9, q.At(13, 16))
	assert.Equal(-0.9, q.At(13, 4))
	assert.Equal(-0.9, q.At(13, 22))
}

func TestLogDet(t *testing.T) {
	assert := assert.New(t)

	var scratch mat.SymDense

	q1, err := Precision([]int{4, 4}, 0.5)
	assert.NoError(err)
	ld1, err := LogDet(q1, &scratch)
	assert.NoError(err)

	q2, err := Precision([]int{4, 4}, 0.999)
	assert.NoError(err)
	ld2, err := LogDet(q2, &scratch)
	assert.NoError(err)

	// The determinant shrinks toward zero as rho approaches 1
	assert.True(ld2 < ld1, "log det %f should be below %f", ld2, ld1)

	// Cross-check a small case against a dense determinant
	q3, err := Precision([]int{2, 2}, 0.5)
	assert.NoError(err)
	dense := mat.NewDense(4, 4, nil)
	q3.DoNonZero(func(i, j int, v float64) {
		dense.Set(i, j, v)
	})
	want, sign := mat.LogDet(dense)
	assert.Equal(1.0, sign)
	var scratch4 mat.SymDense
	got, err := LogDet(q3, &scratch4)
	assert.NoError(err)
	assert.InDelta(want, got, 1e-10)
}

func TestLogDetNotPositiveDefinite(t *testing.T) {
	assert := assert.New(t)

	bad := sparse.NewCSR(2, 2,
		[]int{0, 1, 2},
		[]int{0, 1},
		[]float64{-1.0, -1.0},
	)
	var scratch mat.SymDense
	_, err := LogDet(bad, &scratch)
	assert.ErrorIs(err, mvnorm.ErrNotPositiveDefinite)
}

func TestQuadForm(t *testing.T) {
	assert := assert.New(t)

	q, err := Precision([]int{3, 2}, 0.8)
	assert.NoError(err)

	x := []float64{1.0, -2.0, 0.5, 0.0, 1.5, -1.0}

	n, _ := q.Dims()
	want := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want += x[i] * q.At(i, j) * x[j]
		}
	}
	assert.InDelta(want, QuadForm(q, x), 1e-12)

	// Positive for a nonzero vector when rho < 1
	assert.True(QuadForm(q, x) > 0.0)
}

func TestPrecisionSetAndBlocks(t *testing.T) {
	assert := assert.New(t)

	shapes := [][]int{{2, 2}, {3, 2}}
	qs, err := PrecisionSet(shapes, []float64{0.7, 0.9})
	assert.NoError(err)
	assert.Equal(2, len(qs))
	assert.Equal(-0.7, qs[0].At(0, 1))
	assert.Equal(-0.9, qs[1].At(0, 1))

	offs := []int{0, 4, 10}
	tau2 := []float64{2.0, 0.5}

	dst := mat.NewSymDense(10, nil)
	AddScaled(dst, qs, offs, tau2)

	for m, q := range qs {
		n, _ := q.Dims()
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				assert.InDelta(tau2[m]*q.At(i, j), dst.At(offs[m]+i, offs[m]+j), 1e-14)
			}
		}
	}
	// Nothing bleeds across blocks
	assert.Equal(0.0, dst.At(0, 5))
	assert.Equal(0.0, dst.At(3, 9))

	// Accumulation on top of existing content
	dst2 := mat.NewSymDense(10, nil)
	for i := 0; i < 10; i++ {
		dst2.SetSym(i, i, 1.0)
	}
	AddScaled(dst2, qs, offs, tau2)
	assert.InDelta(1.0+tau2[0]*qs[0].At(0, 0), dst2.At(0, 0), 1e-14)

	x := []float64{1.0, 0.5, -0.5, 2.0, 0.1, 0.2, 0.3, -0.1, -0.2, -0.3}
	forms := QuadForms(qs, offs, x)
	assert.Equal(2, len(forms))
	assert.InDelta(QuadForm(qs[0], x[0:4]), forms[0], 1e-14)
	assert.InDelta(QuadForm(qs[1], x[4:10]), forms[1], 1e-14)

	// The sparse block diagonal agrees with the dense scatter
	bd := ScaledBlockDiag(qs, tau2)
	r, c := bd.Dims()
	assert.Equal(10, r)
	assert.Equal(10, c)
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			assert.InDelta(dst.At(i, j), bd.At(i, j), 1e-14)
		}
	}
}

func TestPrecisionSetBad(t *testing.T) {
	assert := assert.New(t)

	_, err := PrecisionSet([][]int{{2, 2}, {0, 3}}, []float64{0.5, 0.5})
	assert.Error(err)
	_, err = PrecisionSet([][]int{{2, 2}}, []float64{0.5, 0.5})
	assert.Error(err)
}
