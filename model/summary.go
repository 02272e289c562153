package model

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the posterior summary for one named scalar parameter
type Summary struct {
	Name   string
	Mean   float64
	SD     float64
	Lower  float64 // 2.5% quantile
	Median float64
	Upper  float64 // 97.5% quantile
}

// Summarize computes the posterior summary of a recorded parameter trace
func Summarize(name string, draws []float64) (*Summary, error) {
	if len(draws) < 2 {
		return nil, errors.Errorf("Need at least 2 draws to summarize %s, have %d", name, len(draws))
	}

	sorted := make([]float64, len(draws))
	copy(sorted, draws)
	sort.Float64s(sorted)

	return &Summary{
		Name:   name,
		Mean:   stat.Mean(draws, nil),
		SD:     math.Sqrt(stat.Variance(draws, nil)),
		Lower:  stat.Quantile(0.025, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Upper:  stat.Quantile(0.975, stat.Empirical, sorted, nil),
	}, nil
}

// Covers reports whether the central credible interval contains the value
func (s *Summary) Covers(v float64) bool {
	return v >= s.Lower && v <= s.Upper
}

// RecoverySuite represents the agreement metrics we use to judge how well an
// estimate recovers a known truth. Mean and Max prefixes are over the
// compared entries, so MaxAbsError is the worst single-entry miss while
// MeanAbsError averages the misses.
type RecoverySuite struct {
	MeanAbsError float64
	MaxAbsError  float64
	RootMSE      float64
	Correlation  float64
}

// NewRecoverySuite returns a RecoverySuite with all calculated agreement
// metrics
func NewRecoverySuite(est []float64, truth []float64) (*RecoverySuite, error) {
	if len(est) != len(truth) {
		return nil, errors.Errorf("Estimate length mismatch %d != %d", len(est), len(truth))
	}
	if len(est) < 2 {
		return nil, errors.Errorf("Not enough values to score")
	}

	rs := RecoverySuite{}

	for i, e := range est {
		d := math.Abs(e - truth[i])
		rs.MeanAbsError += d
		rs.MaxAbsError = math.Max(d, rs.MaxAbsError)
		rs.RootMSE += d * d
	}

	fc := float64(len(est))
	rs.MeanAbsError /= fc
	rs.RootMSE = math.Sqrt(rs.RootMSE / fc)
	rs.Correlation = stat.Correlation(est, truth, nil)

	return &rs, nil
}
