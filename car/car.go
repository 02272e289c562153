// Package car builds conditional autoregressive precision matrices over
// regular knot grids. Two knots are neighbors when they sit one step apart
// along a single axis, so the precision Q = D - ρA has the neighbor count on
// the diagonal and -ρ at each neighbor pair. For ρ < 1 the matrix is positive
// definite; at ρ = 1 it is the intrinsic autoregression and the constant
// vector is in its null space.
package car

import (
	"github.com/james-bowman/sparse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/spample/spample/mvnorm"
)

// Precision builds the sparse CAR precision for a grid with the given
// per-axis knot counts. Rows are emitted knot by knot with ascending column
// indexes.
func Precision(shape []int, rho float64) (*sparse.CSR, error) {
	if len(shape) < 1 {
		return nil, errors.Errorf("A grid needs at least one axis")
	}
	dim := len(shape)

	n := 1
	strides := make([]int, dim)
	for j, c := range shape {
		if c < 1 {
			return nil, errors.Errorf("Grid axis %d has %d knots", j, c)
		}
		strides[j] = n
		n *= c
	}
	if rho < 0.0 || rho > 1.0 {
		return nil, errors.Errorf("Spatial dependence %f must lie in [0, 1]", rho)
	}

	// Every interior knot has 2*dim neighbors
	ia := make([]int, 1, n+1)
	ja := make([]int, 0, n*(2*dim+1))
	data := make([]float64, 0, n*(2*dim+1))

	curr := make([]int, dim)
	for i := 0; i < n; i++ {
		// Lower neighbors in ascending column order, so largest
		// stride first
		for j := dim - 1; j >= 0; j-- {
			if curr[j] > 0 {
				ja = append(ja, i-strides[j])
				data = append(data, -rho)
			}
		}

		degree := 0
		for j := 0; j < dim; j++ {
			if curr[j] > 0 {
				degree++
			}
			if curr[j] < shape[j]-1 {
				degree++
			}
		}
		ja = append(ja, i)
		data = append(data, float64(degree))

		for j := 0; j < dim; j++ {
			if curr[j] < shape[j]-1 {
				ja = append(ja, i+strides[j])
				data = append(data, -rho)
			}
		}

		ia = append(ia, len(ja))

		for j := 0; j < dim; j++ {
			curr[j]++
			if curr[j] < shape[j] {
				break
			}
			curr[j] = 0
		}
	}

	return sparse.NewCSR(n, n, ia, ja, data), nil
}

// PrecisionSet builds one CAR precision per knot grid, each with its own
// dependence parameter
func PrecisionSet(shapes [][]int, rhos []float64) ([]*sparse.CSR, error) {
	if len(rhos) != len(shapes) {
		return nil, errors.Errorf("Have %d grids but %d dependence parameters", len(shapes), len(rhos))
	}

	qs := make([]*sparse.CSR, len(shapes))
	for m, shape := range shapes {
		q, err := Precision(shape, rhos[m])
		if err != nil {
			return nil, errors.Wrapf(err, "Resolution %d", m+1)
		}
		qs[m] = q
	}
	return qs, nil
}

// QuadForm computes xᵀQx
func QuadForm(q *sparse.CSR, x []float64) float64 {
	r, c := q.Dims()
	if r != c || len(x) != c {
		panic(mat.ErrShape)
	}
	total := 0.0
	q.DoNonZero(func(i, j int, v float64) {
		total += v * x[i] * x[j]
	})
	return total
}

// LogDet computes the log determinant of a symmetric positive definite sparse
// matrix through a dense Cholesky factorization. The scratch matrix is resized
// as needed and may be reused across calls to avoid reallocating.
func LogDet(q *sparse.CSR, scratch *mat.SymDense) (float64, error) {
	n, c := q.Dims()
	if n != c {
		panic(mat.ErrShape)
	}

	if scratch.IsEmpty() {
		scratch.ReuseAsSym(n)
	} else if scratch.SymmetricDim() != n {
		panic(mat.ErrShape)
	} else {
		scratch.Zero()
	}

	q.DoNonZero(func(i, j int, v float64) {
		if j >= i {
			scratch.SetSym(i, j, v)
		}
	})

	var chol mat.Cholesky
	if !chol.Factorize(scratch) {
		return 0.0, errors.Wrapf(mvnorm.ErrNotPositiveDefinite, "CAR precision of order %d", n)
	}
	return chol.LogDet(), nil
}
