package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/spample/spample/model"
)

var verbose bool
var sitesFile string
var traceFile string
var httpAddr string
var randomSeed int64
var numChains int
var numAdapt int
var numSamples int
var numThin int
var numMessage int
var numRes int
var coarseGrid int
var fineGrid int
var rhoFixed float64
var estimateRho bool
var simGrid int
var simNoise float64
var simOut string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spample",
	Short: "Multi-resolution spatial regression by Gibbs sampling",
	Long: `spample fits a Bayesian spatial regression model by MCMC.
Among other features:

  - A compactly supported multi-resolution basis for the spatial surface
  - Autoregressive lattice priors on the basis weights
  - Reproducible parallel chains with posterior summaries and drift checks
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("spample\n")
		fmt.Printf("Verbose:  %v\n", verbose)
		fmt.Printf("Sites:    %s\n", sitesFile)
		fmt.Printf("Chains:   %d\n", numChains)
		fmt.Printf("Schedule: %d warm-up + %d samples, thin %d\n", numAdapt, numSamples, numThin)
		fmt.Printf("Basis:    %d resolutions, grid %d to %d\n", numRes, coarseGrid, fineGrid)
		fmt.Printf("Rho:      %.4f (estimated: %v)\n", rhoFixed, estimateRho)
		fmt.Printf("Rnd Seed: %d\n", randomSeed)
	},
}

// startupParams is the state necessary for our commands to execute: the
// parsed flag values plus the loggers everything writes through
type startupParams struct {
	verbose     bool
	sitesFile   string
	traceFile   string
	httpAddr    string
	randomSeed  int64
	numChains   int
	numAdapt    int
	numSamples  int
	numThin     int
	numMessage  int
	numRes      int
	coarseGrid  int
	fineGrid    int
	rhoFixed    float64
	estimateRho bool
	simGrid     int
	simNoise    float64
	simOut      string

	out     *log.Logger
	trace   *log.Logger
	traceFd *os.File
}

// newStartupParams snapshots the flags and opens the trace file when one was
// requested. Callers own the result and should defer Close.
func newStartupParams() (*startupParams, error) {
	sp := &startupParams{
		verbose:     verbose,
		sitesFile:   sitesFile,
		traceFile:   traceFile,
		httpAddr:    httpAddr,
		randomSeed:  randomSeed,
		numChains:   numChains,
		numAdapt:    numAdapt,
		numSamples:  numSamples,
		numThin:     numThin,
		numMessage:  numMessage,
		numRes:      numRes,
		coarseGrid:  coarseGrid,
		fineGrid:    fineGrid,
		rhoFixed:    rhoFixed,
		estimateRho: estimateRho,
		simGrid:     simGrid,
		simNoise:    simNoise,
		simOut:      simOut,

		out:   log.New(os.Stdout, "", 0),
		trace: log.New(io.Discard, "", 0),
	}

	if len(sp.traceFile) > 0 {
		fd, err := os.Create(sp.traceFile)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not create trace file %s", sp.traceFile)
		}
		sp.traceFd = fd
		sp.trace = log.New(fd, "", 0)
	}

	return sp, nil
}

// Close releases anything newStartupParams opened
func (sp *startupParams) Close() error {
	if sp.traceFd != nil {
		return sp.traceFd.Close()
	}
	return nil
}

// config assembles the sampling configuration from the parsed flags
func (sp *startupParams) config() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Resolutions = sp.numRes
	cfg.CoarseGrid = sp.coarseGrid
	cfg.MaxFineGrid = sp.fineGrid
	cfg.Rho = []float64{sp.rhoFixed}
	cfg.EstimateRho = sp.estimateRho
	cfg.NAdapt = sp.numAdapt
	cfg.NMCMC = sp.numSamples
	cfg.NThin = sp.numThin
	cfg.NMessage = sp.numMessage
	cfg.NChains = sp.numChains
	cfg.Seed = sp.randomSeed
	return cfg
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	def := model.DefaultConfig()

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	rootCmd.PersistentFlags().StringVarP(&sitesFile, "sites", "s", "", "Site file to read (header N dim p, then coordinates, response, covariates per site)")
	rootCmd.PersistentFlags().StringVarP(&traceFile, "trace", "t", "", "File for writing the kept scalar draws")
	rootCmd.PersistentFlags().StringVar(&httpAddr, "http", "", "Serve expvar progress at this address (e.g. :8000)")
	rootCmd.PersistentFlags().Int64VarP(&randomSeed, "seed", "r", def.Seed, "Random seed; chain c seeds with seed+c")

	rootCmd.PersistentFlags().IntVar(&numChains, "chains", def.NChains, "Independent chains to run")
	rootCmd.PersistentFlags().IntVar(&numAdapt, "adapt", def.NAdapt, "Warm-up iterations to discard")
	rootCmd.PersistentFlags().IntVar(&numSamples, "samples", def.NMCMC, "Sampling iterations per chain")
	rootCmd.PersistentFlags().IntVar(&numThin, "thin", def.NThin, "Keep every thin-th sampling iteration")
	rootCmd.PersistentFlags().IntVar(&numMessage, "message", def.NMessage, "Progress message cadence in iterations (0 silences)")

	rootCmd.PersistentFlags().IntVar(&numRes, "res", def.Resolutions, "Basis resolutions")
	rootCmd.PersistentFlags().IntVar(&coarseGrid, "coarse", def.CoarseGrid, "Knots along the longest axis at the coarsest resolution")
	rootCmd.PersistentFlags().IntVar(&fineGrid, "fine", def.MaxFineGrid, "Cap on knots along the longest axis")
	rootCmd.PersistentFlags().Float64Var(&rhoFixed, "rho", def.Rho[0], "Spatial dependence of the weight priors, inside (0,1)")
	rootCmd.PersistentFlags().BoolVar(&estimateRho, "estimate-rho", def.EstimateRho, "Sample the dependence parameters instead of fixing them")

	simulateCmd.Flags().IntVar(&simGrid, "grid", 40, "Sites per axis of the simulated lattice")
	simulateCmd.Flags().Float64Var(&simNoise, "noise", 0.25, "Noise variance of the simulated responses")
	simulateCmd.Flags().StringVar(&simOut, "out", "", "Also write the simulated sites to this file")

	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(simulateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
