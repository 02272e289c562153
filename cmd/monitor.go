package cmd

import (
	"expvar"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/spample/spample/model"
)

// monitor publishes run progress over HTTP via the expvar package. Every
// method other than Start is a no-op until Start succeeds, so callers can
// hold one unconditionally.
type monitor struct {
	info    *expvar.Map
	stopped chan struct{}
	server  *http.Server

	Sites       *expvar.Int
	Covariates  *expvar.Int
	Resolutions *expvar.Int
	Knots       *expvar.Int
	ChainCount  *expvar.Int
	WarmUp      *expvar.Int
	Samples     *expvar.Int
	TotalIters  *expvar.Int
	RunTime     *expvar.Float

	ChainIter []*expvar.Int
}

// Start begins the monitor with one iteration counter per chain
func (m *monitor) Start(addr string, chains int) error {
	if m.info != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}

	m.info = expvar.NewMap("spample-progress")
	m.stopped = make(chan struct{})
	m.server = &http.Server{
		Addr: addr,
	}

	// Help the user and redirect to the only thing currently available:
	// the handler from the expvar package
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/debug/vars", http.StatusTemporaryRedirect)
	})

	m.Sites = expvar.NewInt("Site-Count")
	m.Covariates = expvar.NewInt("Covariate-Count")
	m.Resolutions = expvar.NewInt("Resolution-Count")
	m.Knots = expvar.NewInt("Basis-Knot-Count")
	m.ChainCount = expvar.NewInt("Chain-Count")
	m.WarmUp = expvar.NewInt("Warm-Up")
	m.Samples = expvar.NewInt("Samples-Per-Chain")
	m.TotalIters = expvar.NewInt("Total-Iterations")
	m.RunTime = expvar.NewFloat("Run-Time")

	m.ChainIter = make([]*expvar.Int, chains)
	for i := range m.ChainIter {
		m.ChainIter[i] = expvar.NewInt(fmt.Sprintf("Chain-%d-Iteration", i))
	}

	// The server itself closes the stopped channel on exit
	started := make(chan struct{})
	go func() {
		defer close(m.stopped)
		fmt.Fprintf(os.Stderr, "HTTP now available at %v (see debug/vars/)\n", m.server.Addr)
		close(started)
		m.server.ListenAndServe()
	}()

	<-started
	return nil
}

// Describe publishes the static shape of the run
func (m *monitor) Describe(data *model.SpatialData, cfg *model.Config) {
	if m.info == nil {
		return
	}

	m.Sites.Set(int64(data.N()))
	m.Covariates.Set(int64(data.P()))
	m.Resolutions.Set(int64(cfg.Resolutions))
	m.ChainCount.Set(int64(cfg.NChains))
	m.WarmUp.Set(int64(cfg.NAdapt))
	m.Samples.Set(int64(cfg.NMCMC))
	m.TotalIters.Set(int64(cfg.NAdapt + cfg.NMCMC))
}

// Update publishes the latest finished iteration for one chain. Safe to call
// from the chain goroutines, since expvar handles its own synchronization.
func (m *monitor) Update(chain int, iter int) {
	if m.info == nil || chain < 0 || chain >= len(m.ChainIter) {
		return
	}
	m.ChainIter[chain].Set(int64(iter))
}

// Finish publishes the end-of-run totals
func (m *monitor) Finish(knots int, seconds float64) {
	if m.info == nil {
		return
	}
	m.Knots.Set(int64(knots))
	m.RunTime.Set(seconds)
}

func (m *monitor) Stop() {
	if m.info == nil {
		return
	}

	m.server.Close()

	select {
	case <-m.stopped:
		fmt.Fprintf(os.Stderr, "HTTP Info Stopped\n")
	case <-time.After(2 * time.Second):
		fmt.Fprintf(os.Stderr, "HTTP would NOT stop: just continuing on\n")
	}
}
