package car

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// ScaledBlockDiag places the scaled precisions tau2[m]*Q_m on the diagonal of
// a single sparse matrix. The inputs are only read: scaling happens while the
// cached entries are copied into place, so the per-resolution precisions
// never need rebuilding when the scale parameters move.
func ScaledBlockDiag(qs []*sparse.CSR, tau2 []float64) *sparse.CSR {
	if len(tau2) != len(qs) {
		panic(mat.ErrShape)
	}

	n := 0
	nnz := 0
	for _, q := range qs {
		r, c := q.Dims()
		if r != c {
			panic(mat.ErrShape)
		}
		n += r
		nnz += q.NNZ()
	}

	ia := make([]int, 1, n+1)
	ja := make([]int, 0, nnz)
	data := make([]float64, 0, nnz)

	off := 0
	for m, q := range qs {
		r, _ := q.Dims()
		rowIdx := make([][]int, r)
		rowVal := make([][]float64, r)
		q.DoNonZero(func(i, j int, v float64) {
			rowIdx[i] = append(rowIdx[i], j)
			rowVal[i] = append(rowVal[i], v)
		})

		for i := 0; i < r; i++ {
			for k, j := range rowIdx[i] {
				ja = append(ja, off+j)
				data = append(data, tau2[m]*rowVal[i][k])
			}
			ia = append(ia, len(ja))
		}
		off += r
	}

	return sparse.NewCSR(n, n, ia, ja, data)
}

// AddScaled accumulates tau2[m] times each block precision into dst, with
// block m starting at row and column offs[m]. The destination keeps whatever
// it already holds outside the added entries, so a caller can prefill it with
// a data-driven term and layer the prior blocks on top.
func AddScaled(dst *mat.SymDense, qs []*sparse.CSR, offs []int, tau2 []float64) {
	if len(tau2) != len(qs) || len(offs) < len(qs)+1 || dst.SymmetricDim() < offs[len(qs)] {
		panic(mat.ErrShape)
	}

	for m, q := range qs {
		r, c := q.Dims()
		if r != c || offs[m]+r > offs[m+1] {
			panic(mat.ErrShape)
		}

		off := offs[m]
		scale := tau2[m]
		q.DoNonZero(func(i, j int, v float64) {
			if j >= i {
				dst.SetSym(off+i, off+j, dst.At(off+i, off+j)+scale*v)
			}
		})
	}
}

// QuadForms computes the per-block quadratic forms x_mᵀ Q_m x_m, where x_m is
// the slice of x between offs[m] and offs[m+1]
func QuadForms(qs []*sparse.CSR, offs []int, x []float64) []float64 {
	if len(offs) < len(qs)+1 || len(x) < offs[len(qs)] {
		panic(mat.ErrShape)
	}

	forms := make([]float64, len(qs))
	for m, q := range qs {
		forms[m] = QuadForm(q, x[offs[m]:offs[m+1]])
	}
	return forms
}
