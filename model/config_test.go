package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	assert.NoError(cfg.Check())
	assert.Equal(3, cfg.Resolutions)
	assert.Equal(1000, cfg.NKeep())

	opts := cfg.BasisOptions()
	assert.NoError(opts.Check())
	assert.Equal(cfg.CoarseGrid, opts.CoarseGrid)
	assert.Equal(cfg.TargetNeighbors, opts.TargetNeighbors)
}

func TestConfigRhoSlice(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	assert.Equal([]float64{0.999, 0.999, 0.999}, cfg.RhoSlice())

	cfg.Rho = []float64{0.9, 0.95, 0.99}
	assert.NoError(cfg.Check())
	assert.Equal([]float64{0.9, 0.95, 0.99}, cfg.RhoSlice())
}

func TestConfigCheck(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"resolutions", func(c *Config) { c.Resolutions = 0 }},
		{"rho count", func(c *Config) { c.Rho = []float64{0.9, 0.9} }},
		{"rho range", func(c *Config) { c.Rho = []float64{1.0} }},
		{"rho zero", func(c *Config) { c.Rho = []float64{0.0} }},
		{"warmup", func(c *Config) { c.NAdapt = -1 }},
		{"iters", func(c *Config) { c.NMCMC = 0 }},
		{"thin", func(c *Config) { c.NThin = 0 }},
		{"message", func(c *Config) { c.NMessage = -1 }},
		{"chains", func(c *Config) { c.NChains = 0 }},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		assert.Error(cfg.Check(), "case %s should fail", tc.name)
	}
}

func TestConfigThinning(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.NMCMC = 10
	cfg.NThin = 3
	assert.Equal(3, cfg.NKeep())
}

func TestPriors(t *testing.T) {
	assert := assert.New(t)

	p := DefaultPriors(2)
	assert.NoError(p.Check())
	assert.Equal([]float64{0.0, 0.0}, p.BetaMean)
	assert.Equal(100.0, p.BetaCov.At(0, 0))
	assert.Equal(0.0, p.BetaCov.At(0, 1))

	bad := DefaultPriors(2)
	bad.TauShape = 0.0
	assert.Error(bad.Check())

	bad = DefaultPriors(2)
	bad.SigmaRate = -1.0
	assert.Error(bad.Check())

	bad = DefaultPriors(2)
	bad.BetaMean = []float64{0.0}
	assert.Error(bad.Check())

	bad = DefaultPriors(2)
	bad.BetaCov.SetSym(1, 1, 0.0)
	assert.Error(bad.Check())
}
