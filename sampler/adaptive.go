package sampler

import (
	"math"

	"github.com/pkg/errors"

	"github.com/spample/spample/buffer"
)

// RhoWindow is the number of accept/reject outcomes pooled into one tuning
// decision. RhoTarget is the acceptance rate the tuner drives toward, the
// usual optimum for a scalar random-walk proposal.
const (
	RhoWindow = 50
	RhoTarget = 0.44
)

// rhoInitStep is the starting proposal standard deviation on the logit scale
const rhoInitStep = 1.0

// RhoTuner adapts the Metropolis step size for one resolution's dependence
// parameter. Accept/reject outcomes stream into a fixed window; each time the
// window refills during warm-up the step moves on the log scale toward the
// target acceptance rate, by less and less as the batch count grows.
type RhoTuner struct {
	window   *buffer.CircularFloat
	step     float64
	batch    int
	accepted int64
}

// NewRhoTuner creates a tuner with the given outcome window and starting step
func NewRhoTuner(window int, step float64) (*RhoTuner, error) {
	if window < 2 {
		return nil, errors.Errorf("Tuning window %d must be at least 2", window)
	}
	if step <= 0.0 {
		return nil, errors.Errorf("Starting step %f must be positive", step)
	}

	return &RhoTuner{
		window: buffer.NewCircularFloat(window),
		step:   step,
	}, nil
}

// Step returns the current proposal standard deviation
func (t *RhoTuner) Step() float64 {
	return t.step
}

// Observe records one accept/reject outcome
func (t *RhoTuner) Observe(accepted bool) {
	v := 0.0
	if accepted {
		v = 1.0
		t.accepted++
	}
	t.window.Add(v)
}

// Adapt nudges the step when a full batch of fresh outcomes has accumulated,
// and otherwise does nothing. Callers stop calling it after warm-up so the
// proposal freezes. The nudge is min(0.1, 1/sqrt(batch)) on the log scale.
func (t *RhoTuner) Adapt() {
	if !t.window.Full() || t.window.TotalSeen%int64(t.window.BufSize) != 0 {
		return
	}

	t.batch++
	delta := math.Min(0.1, 1.0/math.Sqrt(float64(t.batch)))
	if t.window.Mean() < RhoTarget {
		delta = -delta
	}
	t.step *= math.Exp(delta)
}

// Rate returns the lifetime acceptance rate
func (t *RhoTuner) Rate() float64 {
	if t.window.TotalSeen < 1 {
		return 0.0
	}
	return float64(t.accepted) / float64(t.window.TotalSeen)
}

func logit(p float64) float64 {
	return math.Log(p / (1.0 - p))
}

func expit(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
