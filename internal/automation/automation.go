// Package automation runs batches of experiments: YAML scenarios of
// diagram runs, quasi-static parameter ramps and Monte Carlo sampling of
// basins of attraction.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/seaice/internal/config"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/experiment"
	"github.com/san-kum/seaice/internal/logging"
)

// Scenario defines a scripted sequence of diagram runs
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset, the model's default preset when none
// is named, and overrides what it sets.
type ScenarioStep struct {
	Name      string              `yaml:"name"`
	Model     string              `yaml:"model"`
	Preset    string              `yaml:"preset"`
	Method    string              `yaml:"method"`
	Constants map[string]float64  `yaml:"constants"`
	Sweep     *config.SweepConfig `yaml:"sweep"`
	Seeds     [][]float64         `yaml:"seeds"`
}

type StepResult struct {
	Name string
	Run  *experiment.Run
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%w: scenario %q has no steps", dynamo.ErrInvalidConfig, scenario.Name)
	}
	return &scenario, nil
}

func (s ScenarioStep) Config() (*config.Config, error) {
	if s.Model == "" {
		return nil, fmt.Errorf("%w: scenario step needs a model", dynamo.ErrInvalidConfig)
	}
	cfg := config.ForModel(s.Model)
	if s.Preset != "" {
		cfg = config.GetPreset(s.Model, s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %s for %s", dynamo.ErrInvalidConfig, s.Preset, s.Model)
		}
	}
	if s.Method != "" {
		cfg.Method = s.Method
	}
	if s.Sweep != nil {
		cfg.Sweep = *s.Sweep
	}
	if s.Seeds != nil {
		cfg.Seeds = s.Seeds
	}
	if len(s.Constants) > 0 && cfg.Constants == nil {
		cfg.Constants = make(map[string]float64, len(s.Constants))
	}
	for k, v := range s.Constants {
		cfg.Constants[k] = v
	}
	return cfg, cfg.Validate()
}

func (s ScenarioStep) label(i int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%d-%s", i+1, s.Model)
}

// RunScenario executes all steps in order. It stops at the first failing
// step and returns the results so far.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, logger *slog.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		logger.Info("scenario step", "step", i+1, "of", len(scenario.Steps), "model", step.Model)

		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		seeds, err := cfg.SeedEquilibria()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		exp, err := setup(experiment.Config{
			Model:     cfg.Model,
			Constants: cfg.Constants,
			Solver:    cfg.Solver(),
			Seeds:     seeds,
		}, registry, logger)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		run, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}
		results = append(results, StepResult{Name: step.label(i), Run: run})
	}

	return results, nil
}

// setup resolves a model from the registry and applies constants to it.
func setup(cfg experiment.Config, registry *experiment.Registry, logger *slog.Logger) (*experiment.Experiment, error) {
	sys, err := registry.GetModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	exp := experiment.New(cfg, logger)
	if err := exp.Setup(sys); err != nil {
		return nil, err
	}
	return exp, nil
}
