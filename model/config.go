package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/spample/spample/basis"
)

// Config controls basis construction and the MCMC schedule
type Config struct {
	// Basis layout
	Resolutions     int     // Number of resolutions
	CoarseGrid      int     // Knots along the longest axis at the coarsest resolution
	MaxFineGrid     int     // Cap on knots along the longest axis
	Padding         int     // Extra knots past the bounding box on every side
	TargetNeighbors float64 // Expected active basis count per site

	// Spatial dependence of the basis weight priors. One entry is
	// broadcast to every resolution.
	Rho         []float64
	EstimateRho bool // Sample Rho by Metropolis instead of fixing it

	// Chain schedule
	NAdapt   int   // Warm-up iterations (discarded, proposal tuning allowed)
	NMCMC    int   // Post-warm-up iterations
	NThin    int   // Keep every NThin-th post-warm-up draw
	NMessage int   // Progress message cadence in iterations (0 silences)
	NChains  int   // Independent chains to run
	Seed     int64 // Base RNG seed; chain c derives seed Seed+c
}

// DefaultConfig returns the config used when a caller specifies nothing
func DefaultConfig() *Config {
	return &Config{
		Resolutions:     3,
		CoarseGrid:      10,
		MaxFineGrid:     64,
		Padding:         5,
		TargetNeighbors: 68.0,
		Rho:             []float64{0.999},
		EstimateRho:     false,
		NAdapt:          500,
		NMCMC:           1000,
		NThin:           1,
		NMessage:        500,
		NChains:         1,
		Seed:            1,
	}
}

// BasisOptions returns the basis construction settings embedded in the config
func (c *Config) BasisOptions() *basis.Options {
	return &basis.Options{
		Resolutions:     c.Resolutions,
		CoarseGrid:      c.CoarseGrid,
		MaxFineGrid:     c.MaxFineGrid,
		Padding:         c.Padding,
		TargetNeighbors: c.TargetNeighbors,
	}
}

// RhoSlice returns the per-resolution dependence parameters, broadcasting a
// single configured value across every resolution
func (c *Config) RhoSlice() []float64 {
	rhos := make([]float64, c.Resolutions)
	for m := range rhos {
		if len(c.Rho) == 1 {
			rhos[m] = c.Rho[0]
		} else {
			rhos[m] = c.Rho[m]
		}
	}
	return rhos
}

// Check returns an error if there is a problem with the config
func (c *Config) Check() error {
	if err := c.BasisOptions().Check(); err != nil {
		return err
	}

	if len(c.Rho) != 1 && len(c.Rho) != c.Resolutions {
		return errors.Errorf("Need 1 or %d dependence parameters, have %d", c.Resolutions, len(c.Rho))
	}
	for m, rho := range c.Rho {
		if rho <= 0.0 || rho >= 1.0 {
			return errors.Errorf("Dependence parameter %d is %f, must be inside (0, 1)", m, rho)
		}
	}

	if c.NAdapt < 0 {
		return errors.Errorf("Warm-up count %d may not be negative", c.NAdapt)
	}
	if c.NMCMC < 1 {
		return errors.Errorf("At least one sampling iteration is required, not %d", c.NMCMC)
	}
	if c.NThin < 1 {
		return errors.Errorf("Thinning interval %d must be at least 1", c.NThin)
	}
	if c.NThin > c.NMCMC {
		return errors.Errorf("Thinning interval %d would keep none of the %d sampling iterations", c.NThin, c.NMCMC)
	}
	if c.NMessage < 0 {
		return errors.Errorf("Message cadence %d may not be negative", c.NMessage)
	}
	if c.NChains < 1 {
		return errors.Errorf("At least one chain is required, not %d", c.NChains)
	}

	return nil
}

// NKeep returns how many draws each chain records under this schedule
func (c *Config) NKeep() int {
	return c.NMCMC / c.NThin
}

// Priors holds the hyperparameters of the conjugate model
type Priors struct {
	TauShape   float64 // Inverse-gamma shape on each resolution variance
	TauRate    float64 // Inverse-gamma rate on each resolution variance
	SigmaShape float64 // Inverse-gamma shape on the noise variance
	SigmaRate  float64 // Inverse-gamma rate on the noise variance

	BetaMean []float64     // Gaussian prior mean of the regression coefficients
	BetaCov  *mat.SymDense // Gaussian prior covariance of the coefficients
}

// DefaultPriors returns weakly informative priors for p covariates
func DefaultPriors(p int) *Priors {
	cov := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		cov.SetSym(i, i, 100.0)
	}

	return &Priors{
		TauShape:   0.01,
		TauRate:    0.01,
		SigmaShape: 0.01,
		SigmaRate:  0.01,
		BetaMean:   make([]float64, p),
		BetaCov:    cov,
	}
}

// Check returns an error if there is a problem with the priors
func (p *Priors) Check() error {
	if p.TauShape <= 0.0 || p.TauRate <= 0.0 {
		return errors.Errorf("Resolution variance prior (%f, %f) must be positive", p.TauShape, p.TauRate)
	}
	if p.SigmaShape <= 0.0 || p.SigmaRate <= 0.0 {
		return errors.Errorf("Noise variance prior (%f, %f) must be positive", p.SigmaShape, p.SigmaRate)
	}

	if len(p.BetaMean) < 1 {
		return errors.Errorf("Coefficient prior mean is empty")
	}
	if p.BetaCov == nil || p.BetaCov.SymmetricDim() != len(p.BetaMean) {
		return errors.Errorf("Coefficient prior covariance does not match %d coefficients", len(p.BetaMean))
	}

	for i, v := range p.BetaMean {
		if bad(v) {
			return errors.Errorf("Coefficient prior mean %d is not finite", i)
		}
		if p.BetaCov.At(i, i) <= 0.0 {
			return errors.Errorf("Coefficient prior variance %d is not positive", i)
		}
	}

	return nil
}
