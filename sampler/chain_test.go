package sampler

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/spample/spample/buffer"
	"github.com/spample/spample/model"
)

// countingSampler is a FullSampler stub that records its own iteration
// number, so tests can see exactly which iterations were kept
type countingSampler struct {
	iter   int
	failAt int
	state  State
}

func (c *countingSampler) Step() error {
	c.iter++
	if c.failAt > 0 && c.iter >= c.failAt {
		return errors.Errorf("Boom at iteration %d", c.iter)
	}
	c.state.Sigma2 = float64(c.iter)
	return nil
}

func (c *countingSampler) Record(row int, s *model.Samples) {
	v := float64(c.iter)
	s.SetRow(row, []float64{v}, []float64{v}, []float64{v}, v, []float64{v})
}

func (c *countingSampler) State() *State {
	return &c.state
}

// stubChain wires a countingSampler into a chain with the given schedule
func stubChain(t *testing.T, idx int, cfg *model.Config, failAt int) *Chain {
	t.Helper()

	samples, err := model.NewSamples(cfg.NKeep(), 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	return &Chain{
		Index:   idx,
		Sampler: &countingSampler{failAt: failAt},
		Config:  cfg,
		Samples: samples,
		History: buffer.NewCircularFloat(cfg.NKeep()),
	}
}

func TestChainRecordCadence(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	cfg.NAdapt = 4
	cfg.NMCMC = 10
	cfg.NThin = 2

	ch := stubChain(t, 3, cfg, 0)
	assert.NoError(ch.Run())

	// With warm-up 4 and thin 2, the kept iterations are 6, 8, ... 14
	kept := make([]float64, cfg.NKeep())
	mat.Col(kept, 0, ch.Samples.Beta)
	assert.Equal([]float64{6.0, 8.0, 10.0, 12.0, 14.0}, kept)
	assert.Equal(int64(5), ch.History.TotalSeen)
}

func TestChainProgress(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	cfg.NAdapt = 4
	cfg.NMCMC = 6
	cfg.NMessage = 5

	var calls [][3]int
	ch := stubChain(t, 3, cfg, 0)
	ch.Progress = func(chain, iter, total int) {
		calls = append(calls, [3]int{chain, iter, total})
	}

	assert.NoError(ch.Run())
	assert.Equal([][3]int{{3, 5, 10}, {3, 10, 10}}, calls)
}

func TestChainErrorTagging(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	cfg.NAdapt = 1
	cfg.NMCMC = 5

	ch := stubChain(t, 7, cfg, 3)
	err := ch.Run()
	assert.Error(err)
	assert.Contains(err.Error(), "Chain 7")
	assert.Contains(err.Error(), "Boom")
}

func TestAdvanceCollectsErrors(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	cfg.NAdapt = 1
	cfg.NMCMC = 5

	good := stubChain(t, 0, cfg, 0)
	bad := stubChain(t, 1, cfg, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	good.Advance(&wg, &errs[0])
	bad.Advance(&wg, &errs[1])
	wg.Wait()

	assert.NoError(errs[0])
	assert.Error(errs[1])
	assert.Contains(errs[1].Error(), "Chain 1")
}

func TestNewChainSeeds(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	cfg.NAdapt = 5
	cfg.NMCMC = 10
	sim := testSim(t, 42)

	ch0, err := NewChain(sim.Data, sim.Basis, cfg, model.DefaultPriors(1), 0)
	assert.NoError(err)
	ch1, err := NewChain(sim.Data, sim.Basis, cfg, model.DefaultPriors(1), 1)
	assert.NoError(err)

	assert.NoError(ch0.Run())
	assert.NoError(ch1.Run())

	// Different derived seeds mean different draws
	assert.False(mat.Equal(ch0.Samples.Beta, ch1.Samples.Beta))

	// Setup problems surface from NewChain, before any iteration runs
	badCfg := testConfig()
	badCfg.Resolutions = 1
	_, err = NewChain(sim.Data, sim.Basis, badCfg, model.DefaultPriors(1), 0)
	assert.Error(err)
	assert.Contains(err.Error(), "Chain 0 setup")
}

func TestFitChains(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	cfg.NAdapt = 10
	cfg.NMCMC = 20
	cfg.NChains = 2
	sim := testSim(t, 42)

	res1, err := Fit(sim.Data, cfg, nil, nil)
	assert.NoError(err)
	assert.Len(res1.Chains, 2)
	assert.Empty(res1.Failed)

	// Chains are distinct runs
	assert.False(mat.Equal(res1.Chains[0].Beta, res1.Chains[1].Beta))

	// A second fit with the same seed reproduces every retained draw, and
	// progress reporting must not disturb the stream
	var mu sync.Mutex
	calls := 0
	withProgress := testConfig()
	withProgress.NAdapt = 10
	withProgress.NMCMC = 20
	withProgress.NChains = 2
	withProgress.NMessage = 7

	res2, err := Fit(sim.Data, withProgress, nil, func(chain, iter, total int) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	assert.NoError(err)
	assert.True(calls > 0)

	m1, err := res1.Merged()
	assert.NoError(err)
	m2, err := res2.Merged()
	assert.NoError(err)

	assert.True(mat.Equal(m1.Beta, m2.Beta))
	assert.True(mat.Equal(m1.Alpha, m2.Alpha))
	assert.True(mat.Equal(m1.Tau2, m2.Tau2))
	assert.True(mat.Equal(m1.Rho, m2.Rho))
	assert.Equal(m1.Sigma2, m2.Sigma2)
}

func TestFitValidates(t *testing.T) {
	assert := assert.New(t)

	sim := testSim(t, 42)

	_, err := Fit(nil, testConfig(), nil, nil)
	assert.Error(err)

	bad := testConfig()
	bad.NThin = 1000
	_, err = Fit(sim.Data, bad, nil, nil)
	assert.Error(err)
}
