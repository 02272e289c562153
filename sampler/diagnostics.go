package sampler

import (
	"math"

	"github.com/pkg/errors"

	"github.com/spample/spample/buffer"
)

// SplitHalf scores drift in a recorded trace by comparing the first and
// second halves of the buffer: the difference of the half means over the
// pooled standard error. Magnitudes above about two flag a chain whose early
// and late draws disagree, usually meaning warm-up was too short.
func SplitHalf(buf *buffer.CircularFloat) (float64, error) {
	if buf == nil || !buf.Full() {
		return 0.0, errors.Errorf("Drift scores need a full trace buffer")
	}

	m1, v1, n1 := halfMoments(buf.FirstHalf())
	m2, v2, n2 := halfMoments(buf.SecondHalf())
	if n1 < 2 || n2 < 2 {
		return 0.0, errors.Errorf("Drift scores need at least 2 values per half, have %d and %d", n1, n2)
	}

	se := math.Sqrt(v1/float64(n1) + v2/float64(n2))
	if se == 0.0 {
		// A constant trace has no drift
		return 0.0, nil
	}

	return (m2 - m1) / se, nil
}

// TraceZ is SplitHalf over a plain slice. An odd-length trace drops its
// oldest entry to keep the halves even.
func TraceZ(trace []float64) (float64, error) {
	if len(trace) < 4 {
		return 0.0, errors.Errorf("Drift scores need at least 4 samples, have %d", len(trace))
	}

	buf := buffer.NewCircularFloat(len(trace))
	for _, v := range trace {
		buf.Add(v)
	}
	return SplitHalf(buf)
}

// halfMoments consumes one half iterator, accumulating the mean and variance
// in a single Welford pass
func halfMoments(it *buffer.CircularFloatIterator) (float64, float64, int) {
	n := 0
	mean := 0.0
	m2 := 0.0
	for it.Next() {
		v := it.Value()
		n++
		d := v - mean
		mean += d / float64(n)
		m2 += d * (v - mean)
	}

	if n < 2 {
		return mean, 0.0, n
	}
	return mean, m2 / float64(n-1), n
}
