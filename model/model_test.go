package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func testData() *SpatialData {
	locs := mat.NewDense(4, 2, []float64{
		0.0, 0.0,
		1.0, 0.0,
		0.0, 0.5,
		1.0, 0.5,
	})
	y := []float64{1.0, 2.0, 3.0, 4.0}
	x := Intercept(4)

	d, err := NewSpatialData(locs, y, x)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSpatialData(t *testing.T) {
	assert := assert.New(t)

	d := testData()
	assert.Equal(4, d.N())
	assert.Equal(2, d.Dim())
	assert.Equal(1, d.P())

	min, max := d.Bounds()
	assert.Equal([]float64{0.0, 0.0}, min)
	assert.Equal([]float64{1.0, 0.5}, max)
}

func TestSpatialDataCheck(t *testing.T) {
	assert := assert.New(t)

	locs := mat.NewDense(2, 2, []float64{0.0, 0.0, 1.0, 1.0})
	y := []float64{1.0, 2.0}

	// Response count mismatch
	_, err := NewSpatialData(locs, []float64{1.0}, Intercept(2))
	assert.Error(err)

	// Covariate row mismatch
	_, err = NewSpatialData(locs, y, Intercept(3))
	assert.Error(err)

	// One spatial axis is not enough
	_, err = NewSpatialData(mat.NewDense(2, 1, []float64{0.0, 1.0}), y, Intercept(2))
	assert.Error(err)

	// Non-finite values anywhere fail
	_, err = NewSpatialData(locs, []float64{1.0, math.NaN()}, Intercept(2))
	assert.Error(err)

	badLocs := mat.NewDense(2, 2, []float64{0.0, 0.0, math.Inf(1), 1.0})
	_, err = NewSpatialData(badLocs, y, Intercept(2))
	assert.Error(err)

	badX := mat.NewDense(2, 1, []float64{1.0, math.NaN()})
	_, err = NewSpatialData(locs, y, badX)
	assert.Error(err)

	// And the happy path still works
	d, err := NewSpatialData(locs, y, Intercept(2))
	assert.NoError(err)
	assert.NoError(d.Check())
}
