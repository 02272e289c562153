package cmd

import (
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/spample/spample/model"
	"github.com/spample/spample/rand"
)

// simulateCmd runs the full loop against a known truth
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a synthetic surface, fit it, and score the recovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := newStartupParams()
		if err != nil {
			return err
		}
		defer sp.Close()
		return SimulateRecovery(sp)
	},
}

// SimulateRecovery draws a synthetic data set from the model itself, fits it
// with the configured schedule, and reports how well the posterior recovers
// the generating truth.
func SimulateRecovery(sp *startupParams) error {
	cfg := sp.config()
	if err := cfg.Check(); err != nil {
		return err
	}

	locs, err := model.GridLocs(sp.simGrid, sp.simGrid)
	if err != nil {
		return err
	}
	n := sp.simGrid * sp.simGrid

	// Chains seed from cfg.Seed upward, so the truth draw takes the stream
	// just below them
	gen, err := rand.NewGenerator(sp.randomSeed - 1)
	if err != nil {
		return err
	}

	// Intercept plus one standardized covariate
	x := mat.NewDense(n, 2, nil)
	covariate := distuv.Normal{Mu: 0.0, Sigma: 1.0, Src: gen}
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1.0)
		x.Set(i, 1, covariate.Rand())
	}

	tau2 := make([]float64, cfg.Resolutions)
	for m := range tau2 {
		tau2[m] = math.Pow(2.0, float64(m))
	}

	truth := &model.SimTruth{
		Beta:   []float64{2.0, 0.5},
		Tau2:   tau2,
		Sigma2: sp.simNoise,
		Rho:    cfg.RhoSlice(),
	}

	sp.out.Printf("Simulating %d sites on a %dx%d lattice\n", n, sp.simGrid, sp.simGrid)
	sp.out.Printf("Truth: beta %v, tau2 %v, sigma2 %.4f, rho %v\n",
		truth.Beta, truth.Tau2, truth.Sigma2, truth.Rho)

	sim, err := model.Simulate(locs, x, truth, cfg.BasisOptions(), gen)
	if err != nil {
		return err
	}

	if len(sp.simOut) > 0 {
		if err := writeSimulated(sp, sim); err != nil {
			return err
		}
	}

	res, err := runChains(sp, sim.Data)
	if err != nil {
		return err
	}

	truthMap := map[string]float64{"sigma2": truth.Sigma2}
	for j, b := range truth.Beta {
		truthMap[fmt.Sprintf("beta[%d]", j)] = b
	}
	for m := range truth.Tau2 {
		truthMap[fmt.Sprintf("tau2[%d]", m+1)] = truth.Tau2[m]
		truthMap[fmt.Sprintf("rho[%d]", m+1)] = truth.Rho[m]
	}

	sums, err := report(sp, res, truthMap)
	if err != nil {
		return err
	}

	sp.out.Printf("--------------------------------------------------\n")

	oneRecoveryLog := func(name string, est []float64, want []float64) error {
		score, err := model.NewRecoverySuite(est, want)
		if err != nil {
			return err
		}
		sp.out.Printf("%-8s | MeanAE:%7.3f MaxAE:%7.3f RMSE:%7.3f Corr:%7.3f\n",
			name, score.MeanAbsError, score.MaxAbsError, score.RootMSE, score.Correlation)
		return nil
	}

	// Summaries order the coefficients first
	est := make([]float64, len(truth.Beta))
	for j := range est {
		est[j] = sums[j].Mean
	}
	if err := oneRecoveryLog("Beta", est, truth.Beta); err != nil {
		return err
	}

	surf, err := res.FittedSurface()
	if err != nil {
		return err
	}
	return oneRecoveryLog("Surface", surf, sim.Surface)
}

// writeSimulated dumps the simulated sites in the format the fit command reads
func writeSimulated(sp *startupParams, sim *model.SimData) error {
	fd, err := os.Create(sp.simOut)
	if err != nil {
		return errors.Wrapf(err, "Could not create site file %s", sp.simOut)
	}

	werr := model.WriteSites(fd, sim.Data)
	cerr := fd.Close()
	if werr != nil {
		return errors.Wrapf(werr, "Could not write sites to %s", sp.simOut)
	}
	if cerr != nil {
		return errors.Wrapf(cerr, "Could not close site file %s", sp.simOut)
	}

	sp.out.Printf("Wrote simulated sites to %s\n", sp.simOut)
	return nil
}
