// Package mvnorm draws from multivariate Gaussian distributions given in
// canonical form, where the distribution is specified by a precision matrix Q
// and a shift b so that the mean is Q⁻¹b and the covariance is Q⁻¹. Draws can
// also be conditioned on hard linear equality constraints by projection.
package mvnorm

import (
	randv2 "math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrNotPositiveDefinite means a Cholesky factorization failed. For a
	// precision matrix built from model parameters this is a numerical
	// problem with the current state, not a usage error.
	ErrNotPositiveDefinite = errors.New("Matrix is not positive definite")

	// ErrConstraintRank means the constraint system could not be solved
	// because the constraint rows are linearly dependent. This is a
	// configuration problem: the caller asked for redundant constraints.
	ErrConstraintRank = errors.New("Constraint matrix is rank deficient")
)

// Canonical draws x ~ N(Q⁻¹b, Q⁻¹). The shift b is not modified and the
// returned slice is freshly allocated.
func Canonical(q mat.Symmetric, b []float64, src randv2.Source) ([]float64, error) {
	if q.SymmetricDim() != len(b) {
		panic(mat.ErrShape)
	}

	var chol mat.Cholesky
	if !chol.Factorize(q) {
		return nil, errors.Wrapf(ErrNotPositiveDefinite, "Precision of order %d", len(b))
	}

	return drawCanonical(&chol, b, src)
}

// CanonicalConstrained draws x ~ N(Q⁻¹b, Q⁻¹) conditioned on Ax = rhs, where
// A is constraints x dimension. The unconstrained draw x₀ is corrected by
// conditioning by kriging:
//
//	x = x₀ - Q⁻¹Aᵀ (A Q⁻¹ Aᵀ)⁻¹ (A x₀ - rhs)
//
// which leaves the draw exactly on the constraint surface with the correct
// conditional distribution.
func CanonicalConstrained(q mat.Symmetric, b []float64, a mat.Matrix, rhs []float64, src randv2.Source) ([]float64, error) {
	n := len(b)
	k, an := a.Dims()
	if q.SymmetricDim() != n || an != n || len(rhs) != k || k < 1 {
		panic(mat.ErrShape)
	}

	var chol mat.Cholesky
	if !chol.Factorize(q) {
		return nil, errors.Wrapf(ErrNotPositiveDefinite, "Precision of order %d", n)
	}

	x0, err := drawCanonical(&chol, b, src)
	if err != nil {
		return nil, err
	}

	// V = Q⁻¹Aᵀ and the small inner system S = AV
	v := mat.NewDense(n, k, nil)
	if err := chol.SolveTo(v, a.T()); err != nil {
		return nil, errors.Wrapf(ErrNotPositiveDefinite, "Constraint solve against precision of order %d", n)
	}

	var av mat.Dense
	av.Mul(a, v)
	s := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			s.SetSym(i, j, av.At(i, j))
		}
	}

	var sChol mat.Cholesky
	if !sChol.Factorize(s) {
		return nil, errors.Wrapf(ErrConstraintRank, "%d constraint rows on %d dimensions", k, n)
	}

	// delta = S⁻¹(Ax₀ - rhs)
	resid := mat.NewVecDense(k, nil)
	resid.MulVec(a, mat.NewVecDense(n, x0))
	for i := 0; i < k; i++ {
		resid.SetVec(i, resid.AtVec(i)-rhs[i])
	}
	delta := mat.NewVecDense(k, nil)
	if err := sChol.SolveVecTo(delta, resid); err != nil {
		return nil, errors.Wrapf(ErrConstraintRank, "%d constraint rows on %d dimensions", k, n)
	}

	adj := mat.NewVecDense(n, nil)
	adj.MulVec(v, delta)
	for i := 0; i < n; i++ {
		x0[i] -= adj.AtVec(i)
	}

	return x0, nil
}

// drawCanonical samples using an already-factorized precision Q = UᵀU: the
// mean is the solve Q⁻¹b and the noise is U⁻¹z for standard normal z.
func drawCanonical(chol *mat.Cholesky, b []float64, src randv2.Source) ([]float64, error) {
	n := len(b)

	mean := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(mean, mat.NewVecDense(n, b)); err != nil {
		return nil, errors.Wrapf(ErrNotPositiveDefinite, "Mean solve of order %d", n)
	}

	stdNorm := distuv.Normal{Mu: 0.0, Sigma: 1.0, Src: src}
	z := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		z.SetVec(i, stdNorm.Rand())
	}

	var u mat.TriDense
	chol.UTo(&u)
	w := mat.NewVecDense(n, nil)
	if err := w.SolveVec(&u, z); err != nil {
		return nil, errors.Wrapf(ErrNotPositiveDefinite, "Noise solve of order %d", n)
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = mean.AtVec(i) + w.AtVec(i)
	}
	return x, nil
}
