package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/seaice/internal/analysis"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/logging"
)

type Config struct {
	Model     string
	Constants map[string]float64
	Solver    dynamo.Config
	Seeds     []dynamo.Equilibrium
}

type Experiment struct {
	cfg    Config
	sys    dynamo.System
	logger *slog.Logger
}

// Run is a finished diagram together with what produced it.
type Run struct {
	Model     string
	ParamName string
	Constants map[string]float64
	Started   time.Time
	Elapsed   time.Duration
	Result    *analysis.Result
}

func New(cfg Config, logger *slog.Logger) *Experiment {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Experiment{cfg: cfg, logger: logger}
}

// Setup binds the model and applies the configured constants to it.
func (e *Experiment) Setup(sys dynamo.System) error {
	if len(e.cfg.Constants) > 0 {
		tunable, ok := sys.(dynamo.Configurable)
		if !ok {
			return fmt.Errorf("%w: model %s has no configurable constants", dynamo.ErrInvalidConfig, e.cfg.Model)
		}
		for name, v := range e.cfg.Constants {
			if err := tunable.SetParam(name, v); err != nil {
				return err
			}
		}
	}
	e.sys = sys
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*Run, error) {
	if e.sys == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	run := &Run{
		Model:     e.cfg.Model,
		ParamName: ParamName(e.sys),
		Started:   time.Now(),
	}
	if c, ok := e.sys.(dynamo.Configurable); ok {
		run.Constants = c.GetParams()
	}

	e.logger.Info("tracing", "model", e.cfg.Model, "method", e.cfg.Solver.Method,
		"range", fmt.Sprintf("[%g, %g]", e.cfg.Solver.ParamMin, e.cfg.Solver.ParamMax), "step", e.cfg.Solver.ParamStep)

	res, err := analysis.Diagram(ctx, e.sys, e.cfg.Solver, e.cfg.Seeds, e.logger)
	if err != nil {
		return nil, err
	}
	run.Result = res
	run.Elapsed = time.Since(run.Started)
	return run, nil
}

func (e *Experiment) System() dynamo.System { return e.sys }
