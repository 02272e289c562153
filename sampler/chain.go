package sampler

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/spample/spample/basis"
	"github.com/spample/spample/buffer"
	"github.com/spample/spample/model"
	"github.com/spample/spample/rand"
)

// ProgressFunc is called at the configured message cadence with the chain
// index, the just-finished iteration, and the total iteration count. Calls
// happen on the chain's goroutine and must never touch the random stream.
type ProgressFunc func(chain int, iter int, total int)

// Chain is a single MCMC run: one sampler over one seeded generator, with one
// block of retained draws.
type Chain struct {
	Index    int
	Sampler  FullSampler
	Config   *model.Config
	Samples  *model.Samples
	History  *buffer.CircularFloat // noise variance trace for drift checks
	Progress ProgressFunc
}

// NewChain builds the sampler for chain idx. The chain seeds its generator
// with cfg.Seed + idx, so runs are reproducible and chains are distinct.
func NewChain(data *model.SpatialData, set *basis.Set, cfg *model.Config, priors *model.Priors, idx int) (*Chain, error) {
	gen, err := rand.NewGenerator(cfg.Seed + int64(idx))
	if err != nil {
		return nil, errors.Wrapf(err, "Chain %d generator", idx)
	}

	gibbs, err := NewGibbs(data, set, cfg, priors, gen)
	if err != nil {
		return nil, errors.Wrapf(err, "Chain %d setup", idx)
	}

	samples, err := model.NewSamples(cfg.NKeep(), data.P(), set.TotalKnots(), len(set.Res))
	if err != nil {
		return nil, errors.Wrapf(err, "Chain %d sample block", idx)
	}

	histSize := cfg.NKeep()
	if histSize < 2 {
		histSize = 2
	}

	return &Chain{
		Index:   idx,
		Sampler: gibbs,
		Config:  cfg,
		Samples: samples,
		History: buffer.NewCircularFloat(histSize),
	}, nil
}

// Run executes the full warm-up plus sampling schedule, recording every
// NThin-th post-warm-up state into the sample block
func (c *Chain) Run() error {
	total := c.Config.NAdapt + c.Config.NMCMC
	kept := 0

	for iter := 1; iter <= total; iter++ {
		if err := c.Sampler.Step(); err != nil {
			return errors.Wrapf(err, "Chain %d", c.Index)
		}

		if iter > c.Config.NAdapt && (iter-c.Config.NAdapt)%c.Config.NThin == 0 {
			c.Sampler.Record(kept, c.Samples)
			c.History.Add(c.Sampler.State().Sigma2)
			kept++
		}

		if c.Progress != nil && c.Config.NMessage > 0 && iter%c.Config.NMessage == 0 {
			c.Progress(c.Index, iter, total)
		}
	}

	return nil
}

// Advance runs the chain in the background, storing the terminal error at
// errOut when the goroutine finishes
func (c *Chain) Advance(wg *sync.WaitGroup, errOut *error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		*errOut = c.Run()
	}()
}

// Fit builds the basis once and runs the configured chain count in parallel,
// pooling the retained draws into Results. A chain that dies lands in
// Results.Failed without sinking the survivors; Fit itself errors only when
// setup fails or no chain finishes.
func Fit(data *model.SpatialData, cfg *model.Config, priors *model.Priors, progress ProgressFunc) (*model.Results, error) {
	if data == nil || cfg == nil {
		return nil, errors.Errorf("Both data and a config are required")
	}
	if err := data.Check(); err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if priors == nil {
		priors = model.DefaultPriors(data.P())
	}

	set, err := basis.Build(data.Locs, cfg.BasisOptions())
	if err != nil {
		return nil, err
	}

	chains := make([]*Chain, cfg.NChains)
	for i := range chains {
		ch, err := NewChain(data, set, cfg, priors, i)
		if err != nil {
			return nil, err
		}
		ch.Progress = progress
		chains[i] = ch
	}

	var wg sync.WaitGroup
	errs := make([]error, len(chains))
	for i, ch := range chains {
		ch.Advance(&wg, &errs[i])
	}
	wg.Wait()

	res := &model.Results{
		Basis:  set,
		Config: cfg,
	}
	for i, ch := range chains {
		if errs[i] != nil {
			res.Failed = append(res.Failed, model.ChainFailure{Chain: i, Err: errs[i]})
			continue
		}
		res.Chains = append(res.Chains, ch.Samples)
	}

	if len(res.Chains) < 1 {
		return nil, errors.Wrapf(res.Failed[0].Err, "All %d chains failed, first error", cfg.NChains)
	}

	return res, nil
}
