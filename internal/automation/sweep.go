package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/experiment"
	"github.com/san-kum/seaice/internal/integrators"
	"github.com/san-kum/seaice/internal/logging"
)

const (
	Up   = "up"
	Down = "down"
)

// ParameterSweep ramps the parameter quasi-statically: at each grid value
// the state relaxes from wherever the previous value left it, first from
// ParamMin to ParamMax and then back. The two passes disagree inside a
// hysteresis loop.
type ParameterSweep struct {
	Model     string                   `yaml:"model"`
	Constants map[string]float64       `yaml:"constants"`
	ParamMin  float64                  `yaml:"param_min"`
	ParamMax  float64                  `yaml:"param_max"`
	NumSteps  int                      `yaml:"num_steps"`
	InitState []float64                `yaml:"init_state"`
	Relax     integrators.RelaxOptions `yaml:"relax"`
}

type SweepResult struct {
	Param     float64
	Direction string
	State     dynamo.State
	Settled   bool
}

// Jump is a discontinuity of the ramp between two neighbouring parameter
// values.
type Jump struct {
	Direction string
	From, To  float64
	Before    float64
	After     float64
}

func (s ParameterSweep) validate() error {
	switch {
	case s.NumSteps < 2:
		return fmt.Errorf("%w: sweep needs at least 2 steps, got %d", dynamo.ErrInvalidConfig, s.NumSteps)
	case !(s.ParamMin < s.ParamMax):
		return fmt.Errorf("%w: param_min %g must be below param_max %g", dynamo.ErrInvalidConfig, s.ParamMin, s.ParamMax)
	case len(s.InitState) == 0:
		return fmt.Errorf("%w: sweep needs an initial state", dynamo.ErrInvalidConfig)
	}
	return s.Relax.Validate()
}

// RunSweep performs the up and down passes. A trajectory that escapes means
// there is no equilibrium left to follow and fails the sweep.
func RunSweep(ctx context.Context, sweep ParameterSweep, registry *experiment.Registry, logger *slog.Logger) ([]SweepResult, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := sweep.validate(); err != nil {
		return nil, err
	}
	exp, err := setup(experiment.Config{Model: sweep.Model, Constants: sweep.Constants}, registry, logger)
	if err != nil {
		return nil, err
	}
	sys := exp.System()

	grid := make([]float64, sweep.NumSteps)
	dp := (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	for i := range grid {
		grid[i] = sweep.ParamMin + float64(i)*dp
	}
	grid[len(grid)-1] = sweep.ParamMax

	results := make([]SweepResult, 0, 2*len(grid))
	state := dynamo.State(sweep.InitState).Clone()

	pass := func(direction string, params func(i int) float64) error {
		for i := range grid {
			p := params(i)
			rel, err := integrators.Relax(ctx, sys, state, p, sweep.Relax)
			if err != nil {
				return err
			}
			if rel.Escaped {
				return &dynamo.SolveError{Param: p, State: state, Wrapped: fmt.Errorf("%w: trajectory escaped", dynamo.ErrNoConvergence)}
			}
			if !rel.Settled {
				logger.Warn("sweep point did not settle", "direction", direction, "param", p, "time", rel.Time)
			}
			state = rel.State
			results = append(results, SweepResult{Param: p, Direction: direction, State: state.Clone(), Settled: rel.Settled})
		}
		return nil
	}

	logger.Info("sweep", "model", sweep.Model, "range", fmt.Sprintf("[%g, %g]", sweep.ParamMin, sweep.ParamMax), "steps", sweep.NumSteps)
	if err := pass(Up, func(i int) float64 { return grid[i] }); err != nil {
		return results, err
	}
	if err := pass(Down, func(i int) float64 { return grid[len(grid)-1-i] }); err != nil {
		return results, err
	}
	return results, nil
}

// Jumps finds neighbouring points of the same pass whose first state
// component differs by more than threshold.
func Jumps(results []SweepResult, threshold float64) []Jump {
	var jumps []Jump
	for i := 1; i < len(results); i++ {
		a, b := results[i-1], results[i]
		if a.Direction != b.Direction {
			continue
		}
		if math.Abs(b.State[0]-a.State[0]) > threshold {
			jumps = append(jumps, Jump{
				Direction: b.Direction,
				From:      a.Param,
				To:        b.Param,
				Before:    a.State[0],
				After:     b.State[0],
			})
		}
	}
	return jumps
}
