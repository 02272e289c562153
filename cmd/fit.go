package cmd

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/spample/spample/basis"
	"github.com/spample/spample/model"
	"github.com/spample/spample/sampler"
)

// fitCmd fits the model to an on-disk site file
var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit the spatial model to a site file",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := newStartupParams()
		if err != nil {
			return err
		}
		defer sp.Close()
		return FitSites(sp)
	},
}

// FitSites reads a site file, runs the configured chains over it, and writes
// posterior summaries and drift checks.
func FitSites(sp *startupParams) error {
	if len(sp.sitesFile) == 0 {
		return errors.Errorf("A site file is required (--sites)")
	}

	sp.out.Printf("Reading sites from %s\n", sp.sitesFile)
	data, err := model.ReadSitesFile(sp.sitesFile)
	if err != nil {
		return err
	}
	sp.out.Printf("Data has %d sites (%d-D) and %d covariates\n", data.N(), data.Dim(), data.P())

	if sp.verbose {
		min, max := data.Bounds()
		sp.out.Printf("Bounding box: %v to %v\n", min, max)
	}

	res, err := runChains(sp, data)
	if err != nil {
		return err
	}

	_, err = report(sp, res, nil)
	return err
}

// runChains validates the flag-built config and executes the full schedule
// over the given data, wiring progress to the logger and to the optional
// HTTP monitor
func runChains(sp *startupParams, data *model.SpatialData) (*model.Results, error) {
	cfg := sp.config()
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	sp.out.Printf("Running %d chains of %d+%d iterations (thin %d, keeping %d)\n",
		cfg.NChains, cfg.NAdapt, cfg.NMCMC, cfg.NThin, cfg.NKeep())

	mon := &monitor{}
	if len(sp.httpAddr) > 0 {
		if err := mon.Start(sp.httpAddr, cfg.NChains); err != nil {
			return nil, err
		}
		defer mon.Stop()
		mon.Describe(data, cfg)
	}

	progress := func(chain int, iter int, total int) {
		sp.out.Printf("Chain %d: iteration %6d / %d\n", chain, iter, total)
		mon.Update(chain, iter)
	}

	startTime := time.Now()
	res, err := sampler.Fit(data, cfg, nil, progress)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(startTime)

	sp.out.Printf("Sampling finished in %v\n", elapsed.Round(time.Millisecond))
	sp.out.Printf("Basis has %d knots over %d resolutions\n", res.Basis.TotalKnots(), len(res.Basis.Res))
	mon.Finish(res.Basis.TotalKnots(), elapsed.Seconds())

	for _, f := range res.Failed {
		sp.out.Printf("FAILED chain %d: %v\n", f.Chain, f.Err)
	}
	if len(res.Failed) > 0 {
		sp.out.Printf("Continuing with %d surviving chains\n", len(res.Chains))
	}

	return res, nil
}

// report writes the posterior summary table, the per-chain drift checks, and
// the trace file when one was requested. When a truth map is given, summary
// rows gain the generating value and whether the credible interval covers it.
// The computed summaries are returned for further scoring.
func report(sp *startupParams, res *model.Results, truth map[string]float64) ([]*model.Summary, error) {
	if sp.verbose {
		basisReport(sp, res.Basis)
	}

	sums, err := res.Summaries()
	if err != nil {
		return nil, err
	}

	sp.out.Printf("--------------------------------------------------\n")
	sp.out.Printf("%-10s %10s %10s %10s %10s %10s\n", "Param", "Mean", "SD", "2.5%", "Median", "97.5%")
	for _, s := range sums {
		line := fmt.Sprintf("%-10s %10.4f %10.4f %10.4f %10.4f %10.4f",
			s.Name, s.Mean, s.SD, s.Lower, s.Median, s.Upper)
		if truth != nil {
			if tv, ok := truth[s.Name]; ok {
				mark := "MISSED"
				if s.Covers(tv) {
					mark = "ok"
				}
				line += fmt.Sprintf("   truth %8.4f %s", tv, mark)
			}
		}
		sp.out.Printf("%s\n", line)
	}

	driftReport(sp, res)
	writeTrace(sp, res)

	return sums, nil
}

// basisReport writes the per-resolution grid layout
func basisReport(sp *startupParams, set *basis.Set) {
	sp.out.Printf("--------------------------------------------------\n")
	sp.out.Printf("Basis: %d knots over %d resolutions\n", set.TotalKnots(), len(set.Res))
	for m, r := range set.Res {
		sp.out.Printf("  res %d: shape %v, spacing %.4f, radius %.4f, knots %d\n",
			m+1, r.Grid.Shape, r.Grid.Delta, r.Grid.Radius, r.Grid.Len())
	}
}

// driftReport scores each surviving chain's noise variance trace by the
// split-half z statistic
func driftReport(sp *startupParams, res *model.Results) {
	sp.out.Printf("--------------------------------------------------\n")
	for i, c := range res.Chains {
		z, err := sampler.TraceZ(c.Sigma2)
		if err != nil {
			sp.out.Printf("Chain %d noise drift: %v\n", i, err)
			continue
		}

		flag := ""
		if math.Abs(z) > 2.0 {
			flag = " MORE WARM-UP SUGGESTED"
		}
		sp.out.Printf("Chain %d noise drift z:%7.3f%s\n", i, z, flag)
	}
}

// writeTrace dumps every kept scalar draw to the trace file, one
// whitespace-delimited row per draw with a leading header row
func writeTrace(sp *startupParams, res *model.Results) {
	if len(sp.traceFile) == 0 || len(res.Chains) < 1 {
		return
	}

	sp.out.Printf("Writing kept scalar draws to trace file %s\n", sp.traceFile)

	_, p := res.Chains[0].Beta.Dims()
	_, nRes := res.Chains[0].Tau2.Dims()

	var sb strings.Builder
	sb.WriteString("chain draw")
	for j := 0; j < p; j++ {
		fmt.Fprintf(&sb, " beta[%d]", j)
	}
	for m := 1; m <= nRes; m++ {
		fmt.Fprintf(&sb, " tau2[%d]", m)
	}
	sb.WriteString(" sigma2")
	for m := 1; m <= nRes; m++ {
		fmt.Fprintf(&sb, " rho[%d]", m)
	}
	sp.trace.Printf("%s\n", sb.String())

	for ci, c := range res.Chains {
		for k := 0; k < c.Draws(); k++ {
			sb.Reset()
			fmt.Fprintf(&sb, "%d %d", ci, k)
			for j := 0; j < p; j++ {
				fmt.Fprintf(&sb, " %.17g", c.Beta.At(k, j))
			}
			for m := 0; m < nRes; m++ {
				fmt.Fprintf(&sb, " %.17g", c.Tau2.At(k, m))
			}
			fmt.Fprintf(&sb, " %.17g", c.Sigma2[k])
			for m := 0; m < nRes; m++ {
				fmt.Fprintf(&sb, " %.17g", c.Rho.At(k, m))
			}
			sp.trace.Printf("%s\n", sb.String())
		}
	}
}
