package model

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/spample/spample/basis"
)

// Samples holds the posterior draws recorded by one chain. Matrices are
// draws x parameter, one row per kept iteration.
type Samples struct {
	Beta   *mat.Dense // regression coefficients
	Alpha  *mat.Dense // basis weights in the combined layout
	Tau2   *mat.Dense // per-resolution precision scales on the weight priors
	Sigma2 []float64  // noise variance
	Rho    *mat.Dense // per-resolution dependence (constant columns when fixed)
}

// NewSamples allocates an empty sample block with the given shapes
func NewSamples(nKeep int, p int, nAlpha int, nRes int) (*Samples, error) {
	if nKeep < 1 || p < 1 || nAlpha < 1 || nRes < 1 {
		return nil, errors.Errorf("Invalid sample block shape %d x (%d, %d, %d)", nKeep, p, nAlpha, nRes)
	}

	return &Samples{
		Beta:   mat.NewDense(nKeep, p, nil),
		Alpha:  mat.NewDense(nKeep, nAlpha, nil),
		Tau2:   mat.NewDense(nKeep, nRes, nil),
		Sigma2: make([]float64, nKeep),
		Rho:    mat.NewDense(nKeep, nRes, nil),
	}, nil
}

// Draws returns the kept draw count
func (s *Samples) Draws() int {
	n, _ := s.Beta.Dims()
	return n
}

// SetRow records one kept draw across every parameter block
func (s *Samples) SetRow(k int, beta, alpha, tau2 []float64, sigma2 float64, rho []float64) {
	s.Beta.SetRow(k, beta)
	s.Alpha.SetRow(k, alpha)
	s.Tau2.SetRow(k, tau2)
	s.Sigma2[k] = sigma2
	s.Rho.SetRow(k, rho)
}

// MergeSamples stacks the draws from multiple chains into a single pooled
// block suitable for summary calculations
func MergeSamples(chains []*Samples) (*Samples, error) {
	if len(chains) < 1 {
		return nil, errors.Errorf("Can not merge 0 sample blocks")
	}
	if len(chains) == 1 {
		return chains[0], nil
	}

	_, p := chains[0].Beta.Dims()
	_, nAlpha := chains[0].Alpha.Dims()
	_, nRes := chains[0].Tau2.Dims()

	total := 0
	for _, c := range chains {
		cn, cp := c.Beta.Dims()
		_, ca := c.Alpha.Dims()
		_, cm := c.Tau2.Dims()
		if cp != p || ca != nAlpha || cm != nRes {
			return nil, errors.Errorf("Cannot merge sample blocks with mismatched parameter shapes")
		}
		total += cn
	}

	merged, err := NewSamples(total, p, nAlpha, nRes)
	if err != nil {
		return nil, err
	}

	at := 0
	for _, c := range chains {
		cn, _ := c.Beta.Dims()
		for k := 0; k < cn; k++ {
			merged.Beta.SetRow(at, mat.Row(nil, k, c.Beta))
			merged.Alpha.SetRow(at, mat.Row(nil, k, c.Alpha))
			merged.Tau2.SetRow(at, mat.Row(nil, k, c.Tau2))
			merged.Sigma2[at] = c.Sigma2[k]
			merged.Rho.SetRow(at, mat.Row(nil, k, c.Rho))
			at++
		}
	}

	return merged, nil
}

// ChainFailure records a chain that died before finishing
type ChainFailure struct {
	Chain int
	Err   error
}

// Results is the complete output of a fit
type Results struct {
	Chains []*Samples     // sample blocks from chains that finished
	Failed []ChainFailure // chains that died, with their errors
	Basis  *basis.Set     // basis shared by every chain
	Config *Config
}

// Merged returns the pooled sample block across surviving chains
func (r *Results) Merged() (*Samples, error) {
	if len(r.Chains) < 1 {
		return nil, errors.Errorf("No surviving chains to summarize")
	}
	return MergeSamples(r.Chains)
}

// Summaries returns pooled posterior summaries for the scalar parameters:
// every regression coefficient, the per-resolution variance scales, the noise
// variance, and the dependence parameters when they were sampled
func (r *Results) Summaries() ([]*Summary, error) {
	merged, err := r.Merged()
	if err != nil {
		return nil, err
	}

	var out []*Summary
	col := make([]float64, merged.Draws())

	add := func(name string, draws []float64) error {
		s, err := Summarize(name, draws)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	}

	_, p := merged.Beta.Dims()
	for j := 0; j < p; j++ {
		mat.Col(col, j, merged.Beta)
		if err := add(fmt.Sprintf("beta[%d]", j), col); err != nil {
			return nil, err
		}
	}

	_, nRes := merged.Tau2.Dims()
	for m := 0; m < nRes; m++ {
		mat.Col(col, m, merged.Tau2)
		if err := add(fmt.Sprintf("tau2[%d]", m+1), col); err != nil {
			return nil, err
		}
	}

	if err := add("sigma2", merged.Sigma2); err != nil {
		return nil, err
	}

	if r.Config != nil && r.Config.EstimateRho {
		for m := 0; m < nRes; m++ {
			mat.Col(col, m, merged.Rho)
			if err := add(fmt.Sprintf("rho[%d]", m+1), col); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

// FittedSurface returns the pooled posterior mean of the spatial surface at
// the fitted sites
func (r *Results) FittedSurface() ([]float64, error) {
	if r.Basis == nil {
		return nil, errors.Errorf("Results carry no basis to project with")
	}

	merged, err := r.Merged()
	if err != nil {
		return nil, err
	}

	alpha := colMeans(merged.Alpha)
	return basis.MulVec(r.Basis.Combined(), alpha, make([]float64, r.Basis.N)), nil
}

// Predict evaluates the posterior mean surface at new locations: the pooled
// mean coefficients through the new covariates plus the pooled mean basis
// weights through the projected basis
func (r *Results) Predict(locs *mat.Dense, x *mat.Dense) ([]float64, error) {
	merged, w, err := r.projection(locs, x)
	if err != nil {
		return nil, err
	}

	n, _ := locs.Dims()
	_, p := x.Dims()

	pred := basis.MulVec(w, colMeans(merged.Alpha), make([]float64, n))

	xb := mat.NewVecDense(n, nil)
	xb.MulVec(x, mat.NewVecDense(p, colMeans(merged.Beta)))
	for i := range pred {
		pred[i] += xb.AtVec(i)
	}

	return pred, nil
}

// PredictDraws evaluates the surface at new locations separately for every
// kept draw, returning a draws x locations matrix. Row quantiles give
// pointwise credible bands.
func (r *Results) PredictDraws(locs *mat.Dense, x *mat.Dense) (*mat.Dense, error) {
	merged, w, err := r.projection(locs, x)
	if err != nil {
		return nil, err
	}

	n, _ := locs.Dims()
	_, p := x.Dims()
	_, nAlpha := merged.Alpha.Dims()

	out := mat.NewDense(merged.Draws(), n, nil)
	alpha := make([]float64, nAlpha)
	beta := make([]float64, p)
	wa := make([]float64, n)
	xb := mat.NewVecDense(n, nil)

	for k := 0; k < merged.Draws(); k++ {
		mat.Row(alpha, k, merged.Alpha)
		mat.Row(beta, k, merged.Beta)

		basis.MulVec(w, alpha, wa)
		xb.MulVec(x, mat.NewVecDense(p, beta))

		for i := 0; i < n; i++ {
			out.Set(k, i, wa[i]+xb.AtVec(i))
		}
	}

	return out, nil
}

// projection validates prediction inputs and builds the basis at the new
// locations
func (r *Results) projection(locs *mat.Dense, x *mat.Dense) (*Samples, *sparse.CSR, error) {
	if r.Basis == nil {
		return nil, nil, errors.Errorf("Results carry no basis to project with")
	}

	merged, err := r.Merged()
	if err != nil {
		return nil, nil, err
	}

	n, _ := locs.Dims()
	xn, xp := x.Dims()
	_, p := merged.Beta.Dims()
	if xn != n || xp != p {
		return nil, nil, errors.Errorf("New covariates are %dx%d, want %dx%d", xn, xp, n, p)
	}

	proj, err := r.Basis.Project(locs)
	if err != nil {
		return nil, nil, err
	}

	return merged, proj.Combined(), nil
}

func colMeans(m *mat.Dense) []float64 {
	n, c := m.Dims()
	out := make([]float64, c)
	col := make([]float64, n)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		out[j] = stat.Mean(col, nil)
	}
	return out
}
