package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/experiment"
	"github.com/san-kum/seaice/internal/integrators"
	"github.com/san-kum/seaice/internal/logging"
)

// MonteCarloConfig samples initial states uniformly within Perturbation of
// BaseState and relaxes each one at a fixed parameter.
type MonteCarloConfig struct {
	Model        string                   `yaml:"model"`
	Constants    map[string]float64       `yaml:"constants"`
	Param        float64                  `yaml:"param"`
	BaseState    []float64                `yaml:"base_state"`
	Perturbation float64                  `yaml:"perturbation"`
	NumTrials    int                      `yaml:"num_trials"`
	Seed         int64                    `yaml:"seed"`
	Workers      int                      `yaml:"workers"`
	Relax        integrators.RelaxOptions `yaml:"relax"`
}

type MonteCarloResult struct {
	TrialID    int
	InitState  dynamo.State
	FinalState dynamo.State
	Settled    bool
	Escaped    bool
}

// Basin is an attractor reached by Count of the trials.
type Basin struct {
	State dynamo.State
	Count int
}

// RunMonteCarlo runs the trials on a bounded worker pool. Initial states are
// drawn before any trial starts, so a fixed seed gives the same trials for
// any number of workers.
func RunMonteCarlo(ctx context.Context, cfg MonteCarloConfig, registry *experiment.Registry, logger *slog.Logger) ([]MonteCarloResult, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.NumTrials <= 0 {
		return nil, fmt.Errorf("%w: num_trials must be positive, got %d", dynamo.ErrInvalidConfig, cfg.NumTrials)
	}
	if len(cfg.BaseState) == 0 {
		return nil, fmt.Errorf("%w: monte carlo needs a base state", dynamo.ErrInvalidConfig)
	}
	if err := cfg.Relax.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	inits := make([]dynamo.State, cfg.NumTrials)
	for t := range inits {
		inits[t] = make(dynamo.State, len(cfg.BaseState))
		for i, v := range cfg.BaseState {
			inits[t][i] = v + (rng.Float64()-0.5)*2*cfg.Perturbation
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	results := make([]MonteCarloResult, cfg.NumTrials)
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for t := range inits {
		g.Go(func() error {
			exp, err := setup(experiment.Config{Model: cfg.Model, Constants: cfg.Constants}, registry, logger)
			if err != nil {
				return err
			}
			rel, err := integrators.Relax(gctx, exp.System(), inits[t], cfg.Param, cfg.Relax)
			if err != nil {
				return fmt.Errorf("trial %d: %w", t, err)
			}
			results[t] = MonteCarloResult{
				TrialID:    t,
				InitState:  inits[t],
				FinalState: rel.State,
				Settled:    rel.Settled,
				Escaped:    rel.Escaped,
			}
			if n := done.Add(1); n%10 == 0 {
				logger.Debug("monte carlo", "done", n, "of", cfg.NumTrials)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MonteCarloStats groups settled trials into basins whose final states lie
// within tol of each other in every component. Basins are ordered by their
// first state component; unsettled counts the trials left out.
func MonteCarloStats(results []MonteCarloResult, tol float64) (basins []Basin, unsettled int) {
	for _, r := range results {
		if !r.Settled {
			unsettled++
			continue
		}
		found := false
		for i := range basins {
			if near(basins[i].State, r.FinalState, tol) {
				basins[i].Count++
				found = true
				break
			}
		}
		if !found {
			basins = append(basins, Basin{State: r.FinalState.Clone(), Count: 1})
		}
	}
	sort.Slice(basins, func(i, j int) bool { return basins[i].State[0] < basins[j].State[0] })
	return basins, unsettled
}

func near(a, b dynamo.State, tol float64) bool {
	for i := range a {
		if d := a[i] - b[i]; d > tol || d < -tol {
			return false
		}
	}
	return true
}
