// Package model holds the spatial regression domain: observed sites with
// responses and covariates, the sampler configuration and priors, synthetic
// data generation, and the posterior output containers.
package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SpatialData is one observed data set: site locations, the response at each
// site, and the fixed-effect covariates. Callers treat it as immutable once
// Check passes.
type SpatialData struct {
	Locs *mat.Dense // sites x axes (2 or 3)
	Y    []float64  // response per site
	X    *mat.Dense // sites x covariates, including any intercept column
}

// NewSpatialData wires up a data set and validates it
func NewSpatialData(locs *mat.Dense, y []float64, x *mat.Dense) (*SpatialData, error) {
	d := &SpatialData{
		Locs: locs,
		Y:    y,
		X:    x,
	}

	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

// N returns the site count
func (d *SpatialData) N() int {
	n, _ := d.Locs.Dims()
	return n
}

// Dim returns the spatial dimension
func (d *SpatialData) Dim() int {
	_, dim := d.Locs.Dims()
	return dim
}

// P returns the covariate count
func (d *SpatialData) P() int {
	_, p := d.X.Dims()
	return p
}

// Check returns an error if there is a problem with the data
func (d *SpatialData) Check() error {
	if d.Locs == nil || d.X == nil {
		return errors.Errorf("Both site locations and covariates are required")
	}

	n, dim := d.Locs.Dims()
	if n < 1 {
		return errors.Errorf("At least one site is required")
	}
	if dim != 2 && dim != 3 {
		return errors.Errorf("Sites must have 2 or 3 axes, not %d", dim)
	}

	if len(d.Y) != n {
		return errors.Errorf("Have %d sites but %d responses", n, len(d.Y))
	}

	xn, p := d.X.Dims()
	if xn != n {
		return errors.Errorf("Have %d sites but %d covariate rows", n, xn)
	}
	if p < 1 {
		return errors.Errorf("At least one covariate column is required")
	}

	for i := 0; i < n; i++ {
		if bad(d.Y[i]) {
			return errors.Errorf("Response at site %d is not finite", i)
		}
		for j := 0; j < dim; j++ {
			if bad(d.Locs.At(i, j)) {
				return errors.Errorf("Coordinate %d at site %d is not finite", j, i)
			}
		}
		for j := 0; j < p; j++ {
			if bad(d.X.At(i, j)) {
				return errors.Errorf("Covariate %d at site %d is not finite", j, i)
			}
		}
	}

	return nil
}

// Bounds returns the per-axis minimum and maximum over the site locations
func (d *SpatialData) Bounds() ([]float64, []float64) {
	n, dim := d.Locs.Dims()

	min := make([]float64, dim)
	max := make([]float64, dim)
	for j := 0; j < dim; j++ {
		min[j] = d.Locs.At(0, j)
		max[j] = d.Locs.At(0, j)
	}

	for i := 1; i < n; i++ {
		for j := 0; j < dim; j++ {
			v := d.Locs.At(i, j)
			if v < min[j] {
				min[j] = v
			}
			if v > max[j] {
				max[j] = v
			}
		}
	}

	return min, max
}

func bad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
