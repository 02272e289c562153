package sampler

import (
	"math"

	"github.com/james-bowman/sparse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/spample/spample/basis"
	"github.com/spample/spample/car"
	"github.com/spample/spample/model"
	"github.com/spample/spample/mvnorm"
	"github.com/spample/spample/rand"
)

// State is the complete parameter state of one chain. A scan mutates it in
// place, so anything recorded from it must be copied out.
type State struct {
	Beta   []float64 // regression coefficients
	Alpha  []float64 // basis weights in the combined layout
	Tau2   []float64 // per-resolution precision scales on the weight priors
	Sigma2 float64   // noise variance
	Rho    []float64 // per-resolution spatial dependence
}

// Gibbs draws each parameter block from its full conditional. The design
// structures (basis rows, cross products, CAR precisions, constraint rows)
// are built once here; a scan only reassembles the weight-block precision
// from the cached pieces.
type Gibbs struct {
	data   *model.SpatialData
	cfg    *model.Config
	priors *model.Priors
	set    *basis.Set
	gen    *rand.Generator

	// Static structures
	wIdx      [][]int
	wVal      [][]float64
	offs      []int
	wtw       *mat.SymDense
	xtx       *mat.SymDense
	qs        []*sparse.CSR
	con       *mat.Dense
	conRHS    []float64
	betaPrec  *mat.SymDense
	betaShift []float64

	state State
	iter  int

	// Scratch reused every scan
	fitX   []float64
	fitW   []float64
	resid  []float64
	bBeta  []float64
	bAlpha []float64
	qBeta  *mat.SymDense
	qAlpha *mat.SymDense

	// Dependence estimation, empty when Rho is fixed
	tuners  []*RhoTuner
	logDets []float64
	ldWork  []mat.SymDense
}

// NewGibbs builds a sampler around a data set and an already-built basis. All
// validation happens here so that the scan loop never starts from a bad
// setup.
func NewGibbs(data *model.SpatialData, set *basis.Set, cfg *model.Config, priors *model.Priors, gen *rand.Generator) (*Gibbs, error) {
	if data == nil || set == nil || cfg == nil || priors == nil || gen == nil {
		return nil, errors.Errorf("Data, basis, config, priors, and a generator are all required")
	}
	if err := data.Check(); err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if err := priors.Check(); err != nil {
		return nil, err
	}

	n := data.N()
	p := data.P()
	if len(priors.BetaMean) != p {
		return nil, errors.Errorf("Priors cover %d coefficients but the data has %d covariates", len(priors.BetaMean), p)
	}
	if len(set.Res) != cfg.Resolutions {
		return nil, errors.Errorf("Basis has %d resolutions but the config wants %d", len(set.Res), cfg.Resolutions)
	}
	if set.N != n {
		return nil, errors.Errorf("Basis was built over %d sites but the data has %d", set.N, n)
	}

	nAlpha := set.TotalKnots()
	nRes := len(set.Res)

	wIdx, wVal := basis.Rows(set.Combined())

	qs, err := car.PrecisionSet(set.Shapes(), cfg.RhoSlice())
	if err != nil {
		return nil, err
	}

	// Precision form of the coefficient prior
	var bChol mat.Cholesky
	if !bChol.Factorize(priors.BetaCov) {
		return nil, errors.Wrap(mvnorm.ErrNotPositiveDefinite, "Coefficient prior covariance")
	}
	betaPrec := mat.NewSymDense(p, nil)
	if err := bChol.InverseTo(betaPrec); err != nil {
		return nil, errors.Wrap(err, "Could not invert the coefficient prior covariance")
	}
	shift := mat.NewVecDense(p, nil)
	shift.MulVec(betaPrec, mat.NewVecDense(p, priors.BetaMean))
	betaShift := make([]float64, p)
	for i := range betaShift {
		betaShift[i] = shift.AtVec(i)
	}

	xtx := mat.NewSymDense(p, nil)
	xtx.SymOuterK(1.0, data.X.T())

	// The response variance is a reasonable starting noise level. It is
	// NaN for a single site and zero for a constant response.
	sigma2 := stat.Variance(data.Y, nil)
	if math.IsNaN(sigma2) || sigma2 <= 0.0 {
		sigma2 = 1.0
	}

	beta := make([]float64, p)
	copy(beta, priors.BetaMean)

	g := &Gibbs{
		data:      data,
		cfg:       cfg,
		priors:    priors,
		set:       set,
		gen:       gen,
		wIdx:      wIdx,
		wVal:      wVal,
		offs:      set.Offsets(),
		wtw:       crossProduct(wIdx, wVal, nAlpha),
		xtx:       xtx,
		qs:        qs,
		con:       set.Constraints(),
		conRHS:    make([]float64, nRes),
		betaPrec:  betaPrec,
		betaShift: betaShift,
		state: State{
			Beta:   beta,
			Alpha:  make([]float64, nAlpha),
			Tau2:   ones(nRes),
			Sigma2: sigma2,
			Rho:    cfg.RhoSlice(),
		},
		fitX:   make([]float64, n),
		fitW:   make([]float64, n),
		resid:  make([]float64, n),
		bBeta:  make([]float64, p),
		bAlpha: make([]float64, nAlpha),
		qBeta:  mat.NewSymDense(p, nil),
		qAlpha: mat.NewSymDense(nAlpha, nil),
	}

	if cfg.EstimateRho {
		g.tuners = make([]*RhoTuner, nRes)
		g.logDets = make([]float64, nRes)
		g.ldWork = make([]mat.SymDense, nRes)
		for m := range g.tuners {
			g.tuners[m], err = NewRhoTuner(RhoWindow, rhoInitStep)
			if err != nil {
				return nil, err
			}
			g.logDets[m], err = car.LogDet(qs[m], &g.ldWork[m])
			if err != nil {
				return nil, errors.Wrapf(err, "Starting dependence at resolution %d", m+1)
			}
		}
	}

	return g, nil
}

// Step advances every parameter block once in the fixed scan order: the
// regression coefficients, the basis weights, the per-resolution precision
// scales, the noise variance, and the dependence parameters when they are
// being estimated. Implements FullSampler.
func (g *Gibbs) Step() error {
	g.iter++

	if err := g.updateBeta(); err != nil {
		return errors.Wrapf(err, "Iteration %d, beta block", g.iter)
	}
	if err := g.updateAlpha(); err != nil {
		return errors.Wrapf(err, "Iteration %d, alpha block", g.iter)
	}
	g.updateTau2()
	g.updateSigma2()
	if g.cfg.EstimateRho {
		if err := g.updateRho(); err != nil {
			return errors.Wrapf(err, "Iteration %d, rho proposal", g.iter)
		}
	}

	return nil
}

// Record writes the current state into row k of a sample block. Implements
// FullSampler.
func (g *Gibbs) Record(row int, s *model.Samples) {
	s.SetRow(row, g.state.Beta, g.state.Alpha, g.state.Tau2, g.state.Sigma2, g.state.Rho)
}

// State exposes the live chain state, which Step mutates in place.
// Implements FullSampler.
func (g *Gibbs) State() *State {
	return &g.state
}

// updateBeta draws the regression coefficients from their Gaussian full
// conditional: prior precision plus the scaled data cross product.
func (g *Gibbs) updateBeta() error {
	p := g.data.P()
	inv := 1.0 / g.state.Sigma2

	g.spatialFit(g.fitW)
	for i, y := range g.data.Y {
		g.resid[i] = y - g.fitW[i]
	}

	for i := 0; i < p; i++ {
		g.bBeta[i] = g.betaShift[i]
		for j := i; j < p; j++ {
			g.qBeta.SetSym(i, j, g.betaPrec.At(i, j)+inv*g.xtx.At(i, j))
		}
	}
	for i, r := range g.resid {
		scaled := inv * r
		for j := 0; j < p; j++ {
			g.bBeta[j] += scaled * g.data.X.At(i, j)
		}
	}

	draw, err := mvnorm.Canonical(g.qBeta, g.bBeta, g.gen)
	if err != nil {
		return err
	}
	copy(g.state.Beta, draw)
	return nil
}

// updateAlpha draws the basis weights from their constrained Gaussian full
// conditional. The precision layers the scaled prior blocks over the data
// cross product; the constraint rows keep each resolution summing to zero.
func (g *Gibbs) updateAlpha() error {
	inv := 1.0 / g.state.Sigma2

	g.linearFit(g.fitX)
	for i, y := range g.data.Y {
		g.resid[i] = y - g.fitX[i]
	}

	g.qAlpha.ScaleSym(inv, g.wtw)
	car.AddScaled(g.qAlpha, g.qs, g.offs, g.state.Tau2)

	for j := range g.bAlpha {
		g.bAlpha[j] = 0.0
	}
	for i, r := range g.resid {
		scaled := inv * r
		for k, j := range g.wIdx[i] {
			g.bAlpha[j] += scaled * g.wVal[i][k]
		}
	}

	draw, err := mvnorm.CanonicalConstrained(g.qAlpha, g.bAlpha, g.con, g.conRHS, g.gen)
	if err != nil {
		return err
	}
	copy(g.state.Alpha, draw)
	return nil
}

// updateTau2 draws each resolution's precision scale. The conjugate update is
// inverse-gamma on the variance scale with shape prior + n_m/2 and rate
// prior + alpha_m' Q_m alpha_m / 2, so the precision scale is its reciprocal.
func (g *Gibbs) updateTau2() {
	forms := car.QuadForms(g.qs, g.offs, g.state.Alpha)
	for m := range g.qs {
		nm := float64(g.offs[m+1] - g.offs[m])
		ig := distuv.InverseGamma{
			Alpha: g.priors.TauShape + nm/2.0,
			Beta:  g.priors.TauRate + forms[m]/2.0,
			Src:   g.gen,
		}
		g.state.Tau2[m] = 1.0 / ig.Rand()
	}
}

// updateSigma2 draws the noise variance from its conjugate inverse-gamma full
// conditional around the current residual sum of squares
func (g *Gibbs) updateSigma2() {
	g.linearFit(g.fitX)
	g.spatialFit(g.fitW)

	rss := 0.0
	for i, y := range g.data.Y {
		r := y - g.fitX[i] - g.fitW[i]
		rss += r * r
	}

	ig := distuv.InverseGamma{
		Alpha: g.priors.SigmaShape + float64(g.data.N())/2.0,
		Beta:  g.priors.SigmaRate + rss/2.0,
		Src:   g.gen,
	}
	g.state.Sigma2 = ig.Rand()
}

// updateRho proposes a new dependence parameter for each resolution on the
// logit scale and accepts by the Metropolis ratio of the weight prior
// densities. An accepted proposal swaps in the freshly built precision block
// and its log determinant.
func (g *Gibbs) updateRho() error {
	for m, tun := range g.tuners {
		cur := g.state.Rho[m]
		prop := expit(logit(cur) + distuv.Normal{Mu: 0.0, Sigma: tun.Step(), Src: g.gen}.Rand())

		weights := g.state.Alpha[g.offs[m]:g.offs[m+1]]

		qProp, err := car.Precision(g.set.Res[m].Grid.Shape, prop)
		if err != nil {
			return errors.Wrapf(err, "Resolution %d proposal %f", m+1, prop)
		}
		ldProp, err := car.LogDet(qProp, &g.ldWork[m])
		if err != nil {
			return errors.Wrapf(err, "Resolution %d proposal %f", m+1, prop)
		}

		// Log acceptance ratio: determinant and quadratic form of the
		// weight prior, plus the Jacobian of the logit transform under
		// the flat prior on the dependence
		logAcc := 0.5*(ldProp-g.logDets[m]) -
			0.5*g.state.Tau2[m]*(car.QuadForm(qProp, weights)-car.QuadForm(g.qs[m], weights)) +
			math.Log(prop*(1.0-prop)) - math.Log(cur*(1.0-cur))

		accept := math.Log(g.gen.Float64()) < logAcc
		if accept {
			g.qs[m] = qProp
			g.logDets[m] = ldProp
			g.state.Rho[m] = prop
		}

		tun.Observe(accept)
		if g.iter <= g.cfg.NAdapt {
			tun.Adapt()
		}
	}
	return nil
}

// linearFit fills dst with the fixed-effect fit X beta at the current state
func (g *Gibbs) linearFit(dst []float64) {
	p := g.data.P()
	for i := range dst {
		s := 0.0
		for j := 0; j < p; j++ {
			s += g.data.X.At(i, j) * g.state.Beta[j]
		}
		dst[i] = s
	}
}

// spatialFit fills dst with the basis fit W alpha at the current state
func (g *Gibbs) spatialFit(dst []float64) {
	for i := range dst {
		s := 0.0
		for k, j := range g.wIdx[i] {
			s += g.wVal[i][k] * g.state.Alpha[j]
		}
		dst[i] = s
	}
}

// crossProduct forms the dense symmetric cross product of a sparse design
// held as per-row indexes and values
func crossProduct(rowIdx [][]int, rowVal [][]float64, n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := range rowIdx {
		idx := rowIdx[i]
		val := rowVal[i]
		for a := 0; a < len(idx); a++ {
			for b := a; b < len(idx); b++ {
				s.SetSym(idx[a], idx[b], s.At(idx[a], idx[b])+val[a]*val[b])
			}
		}
	}
	return s
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1.0
	}
	return v
}
