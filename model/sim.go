package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/spample/spample/basis"
	"github.com/spample/spample/car"
	"github.com/spample/spample/mvnorm"
	"github.com/spample/spample/rand"
)

// SimTruth fixes the generating parameters for a synthetic data set
type SimTruth struct {
	Beta   []float64 // regression coefficients
	Tau2   []float64 // per-resolution precision scales on the basis weights
	Sigma2 float64   // noise variance
	Rho    []float64 // per-resolution dependence
}

// Check returns an error if there is a problem with the generating truth
func (t *SimTruth) Check() error {
	if len(t.Beta) < 1 {
		return errors.Errorf("At least one coefficient is required")
	}
	if len(t.Tau2) != len(t.Rho) {
		return errors.Errorf("Have %d precision scales but %d dependence parameters", len(t.Tau2), len(t.Rho))
	}
	for m, tau2 := range t.Tau2 {
		if tau2 <= 0.0 {
			return errors.Errorf("Precision scale %d is %f, must be positive", m+1, tau2)
		}
		if t.Rho[m] <= 0.0 || t.Rho[m] >= 1.0 {
			return errors.Errorf("Dependence parameter %d is %f, must be inside (0, 1)", m+1, t.Rho[m])
		}
	}
	if t.Sigma2 <= 0.0 {
		return errors.Errorf("Noise variance %f must be positive", t.Sigma2)
	}
	return nil
}

// SimData is a complete synthetic data set along with everything used to
// generate it
type SimData struct {
	Data    *SpatialData
	Truth   *SimTruth
	Basis   *basis.Set
	Alpha   []float64 // drawn basis weights, combined layout
	Surface []float64 // spatial surface at the sites
}

// Simulate draws a synthetic data set from the model itself: basis weights
// from the constrained autoregressive prior and independent Gaussian noise on
// top of the linear predictor. The truth must carry one variance scale and
// one dependence parameter per configured resolution.
func Simulate(locs *mat.Dense, x *mat.Dense, truth *SimTruth, opts *basis.Options, gen *rand.Generator) (*SimData, error) {
	if err := truth.Check(); err != nil {
		return nil, err
	}
	if len(truth.Tau2) != opts.Resolutions {
		return nil, errors.Errorf("Truth has %d resolutions but the basis wants %d", len(truth.Tau2), opts.Resolutions)
	}

	n, _ := locs.Dims()
	xn, p := x.Dims()
	if xn != n || p != len(truth.Beta) {
		return nil, errors.Errorf("Covariates are %dx%d, want %dx%d", xn, p, n, len(truth.Beta))
	}

	set, err := basis.Build(locs, opts)
	if err != nil {
		return nil, err
	}

	qs, err := car.PrecisionSet(set.Shapes(), truth.Rho)
	if err != nil {
		return nil, err
	}

	// The weight precision is the scaled block diagonal tau2_m * Q_m, and
	// the weights must sum to zero within each resolution
	nAlpha := set.TotalKnots()
	prior := car.ScaledBlockDiag(qs, truth.Tau2)
	sym := mat.NewSymDense(nAlpha, nil)
	prior.DoNonZero(func(i, j int, v float64) {
		if j >= i {
			sym.SetSym(i, j, v)
		}
	})

	nRes := len(set.Res)
	alpha, err := mvnorm.CanonicalConstrained(sym, make([]float64, nAlpha), set.Constraints(), make([]float64, nRes), gen)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not draw basis weights")
	}

	surface := basis.MulVec(set.Combined(), alpha, make([]float64, n))

	xb := mat.NewVecDense(n, nil)
	xb.MulVec(x, mat.NewVecDense(p, truth.Beta))

	noise := distuv.Normal{Mu: 0.0, Sigma: math.Sqrt(truth.Sigma2), Src: gen}
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		y[i] = xb.AtVec(i) + surface[i] + noise.Rand()
	}

	data, err := NewSpatialData(locs, y, x)
	if err != nil {
		return nil, err
	}

	return &SimData{
		Data:    data,
		Truth:   truth,
		Basis:   set,
		Alpha:   alpha,
		Surface: surface,
	}, nil
}

// GridLocs lays out an nx by ny lattice of sites on the unit square, axis 0
// sweeping fastest
func GridLocs(nx int, ny int) (*mat.Dense, error) {
	if nx < 2 || ny < 2 {
		return nil, errors.Errorf("Site lattice %dx%d needs at least 2 sites per axis", nx, ny)
	}

	locs := mat.NewDense(nx*ny, 2, nil)
	i := 0
	for yi := 0; yi < ny; yi++ {
		for xi := 0; xi < nx; xi++ {
			locs.Set(i, 0, float64(xi)/float64(nx-1))
			locs.Set(i, 1, float64(yi)/float64(ny-1))
			i++
		}
	}
	return locs, nil
}

// Intercept returns an n x 1 covariate matrix of ones
func Intercept(n int) *mat.Dense {
	x := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1.0)
	}
	return x
}
