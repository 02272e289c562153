// Package sampler fits the spatial regression model by Markov chain Monte
// Carlo. A Gibbs scan draws each parameter block from its full conditional in
// a fixed order, so one iteration leaves the chain with a complete new state.
// Independent chains run in parallel over private state and pool their
// retained draws when all of them finish.
package sampler

import (
	"github.com/spample/spample/model"
)

// A FullSampler advances the complete model state one scan at a time
type FullSampler interface {
	Step() error
	Record(row int, s *model.Samples)
	State() *State
}
