package basis

import (
	"github.com/pkg/errors"
)

// Grid is the knot lattice for one resolution: a regular grid with the same
// spacing on every axis, extended past the site bounding box by a padding
// margin so that basis support is not truncated at the edges. Knots are
// numbered with axis 0 varying fastest.
type Grid struct {
	Shape  []int     // Knot count per axis
	Min    []float64 // Lower corner (already includes the padding margin)
	Delta  float64   // Knot spacing (same on every axis)
	Radius float64   // Basis support radius
}

// Dim returns the spatial dimension of the grid
func (g *Grid) Dim() int {
	return len(g.Shape)
}

// Len returns the total knot count
func (g *Grid) Len() int {
	n := 1
	for _, s := range g.Shape {
		n *= s
	}
	return n
}

// Strides returns the flat-index stride per axis (axis 0 fastest)
func (g *Grid) Strides() []int {
	strides := make([]int, len(g.Shape))
	s := 1
	for j, c := range g.Shape {
		strides[j] = s
		s *= c
	}
	return strides
}

// Knot writes the coordinates of knot idx into dst and returns dst. The dst
// buffer must have length Dim.
func (g *Grid) Knot(idx int, dst []float64) []float64 {
	for j, c := range g.Shape {
		dst[j] = g.Min[j] + float64(idx%c)*g.Delta
		idx /= c
	}
	return dst
}

// Check returns an error if the grid is degenerate
func (g *Grid) Check() error {
	if len(g.Shape) != len(g.Min) {
		return errors.Errorf("Grid shape has %d axes but min corner has %d", len(g.Shape), len(g.Min))
	}
	for j, c := range g.Shape {
		if c < 1 {
			return errors.Errorf("Grid has %d knots on axis %d", c, j)
		}
	}
	if g.Len() < 1 {
		return errors.Errorf("Grid has zero knots")
	}
	if g.Delta <= 0 {
		return errors.Errorf("Grid spacing %f must be positive", g.Delta)
	}
	if g.Radius <= 0 {
		return errors.Errorf("Grid support radius %f must be positive", g.Radius)
	}
	return nil
}

// boxIter is an iterator over the integer lattice box [lo, hi] (inclusive on
// both ends), advancing axis 0 fastest so flat knot indexes come out in
// ascending order. Usage is Val-then-Next:
//
//	for { it.Val(idx); ...; if !it.Next() { break } }
type boxIter struct {
	lo, hi  []int
	lastVal []int
}

// newBoxIter returns an iterator positioned on lo. The box must be non-empty
// (lo[j] <= hi[j] for every axis); callers check before constructing.
func newBoxIter(lo, hi []int) *boxIter {
	b := &boxIter{
		lo:      lo,
		hi:      hi,
		lastVal: make([]int, len(lo)),
	}
	copy(b.lastVal, lo)
	return b
}

// Val populates curr with the current lattice point
func (b *boxIter) Val(curr []int) {
	copy(curr, b.lastVal)
}

// Next advances to the next point and returns True if there are still points to see
func (b *boxIter) Next() bool {
	for j := 0; j < len(b.lastVal); j++ {
		prop := b.lastVal[j] + 1

		if prop <= b.hi[j] {
			// All done
			b.lastVal[j] = prop
			return true
		}

		b.lastVal[j] = b.lo[j] // Overflow: continue to next axis
	}

	// If we're still here then we reset every axis and wrapped around
	return false
}
