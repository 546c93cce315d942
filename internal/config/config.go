package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/seaice/internal/dynamo"
)

const (
	DefaultModel    = "seaice"
	DefaultWorkers  = 4
	DefaultLogLevel = "info"
)

// Config is the on-disk description of a run. Sweep holds the solver
// options; everything else has a default.
type Config struct {
	Model     string             `yaml:"model"`
	Constants map[string]float64 `yaml:"constants,omitempty"`
	Sweep     SweepConfig        `yaml:"sweep"`
	Method    string             `yaml:"method"`
	Scan      ScanConfig         `yaml:"scan"`
	Seeds     [][]float64        `yaml:"seeds,omitempty"`
	Workers   int                `yaml:"workers"`
	LogLevel  string             `yaml:"log_level"`
}

type SweepConfig struct {
	ParamMin      float64 `yaml:"param_min"`
	ParamMax      float64 `yaml:"param_max"`
	ParamStep     float64 `yaml:"param_step"`
	MinStep       float64 `yaml:"min_step"`
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	FDStep        float64 `yaml:"fd_step,omitempty"`
	MaxPoints     int     `yaml:"max_points,omitempty"`
}

// ScanConfig is the state window searched for equilibria of
// one-dimensional models.
type ScanConfig struct {
	StateMin float64 `yaml:"state_min"`
	StateMax float64 `yaml:"state_max"`
	Samples  int     `yaml:"samples"`
}

func DefaultConfig() *Config {
	d := dynamo.DefaultConfig()
	return &Config{
		Model: DefaultModel,
		Sweep: SweepConfig{
			ParamMin:      -30,
			ParamMax:      30,
			ParamStep:     0.5,
			MinStep:       d.MinStep,
			Tolerance:     d.Tolerance,
			MaxIterations: d.MaxIterations,
		},
		Method: d.Method,
		Scan: ScanConfig{
			StateMin: 200,
			StateMax: 370,
			Samples:  1701,
		},
		Workers:  DefaultWorkers,
		LogLevel: DefaultLogLevel,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Solver converts the file options into the solver configuration. Unset
// tuning options take the solver defaults.
func (c *Config) Solver() dynamo.Config {
	d := dynamo.DefaultConfig()
	sc := dynamo.Config{
		ParamMin:      c.Sweep.ParamMin,
		ParamMax:      c.Sweep.ParamMax,
		ParamStep:     c.Sweep.ParamStep,
		MinStep:       c.Sweep.MinStep,
		Tolerance:     c.Sweep.Tolerance,
		MaxIterations: c.Sweep.MaxIterations,
		Method:        c.Method,
		FDStep:        c.Sweep.FDStep,
		MaxPoints:     c.Sweep.MaxPoints,
		StateMin:      c.Scan.StateMin,
		StateMax:      c.Scan.StateMax,
		StateSamples:  c.Scan.Samples,
		Workers:       c.Workers,
	}
	if sc.Method == "" {
		sc.Method = d.Method
	}
	if sc.FDStep == 0 {
		sc.FDStep = d.FDStep
	}
	if sc.MaxPoints == 0 {
		sc.MaxPoints = d.MaxPoints
	}
	if sc.Workers <= 0 {
		sc.Workers = d.Workers
	}
	return sc
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", dynamo.ErrInvalidConfig)
	}
	if err := c.Solver().Validate(); err != nil {
		return err
	}
	_, err := c.SeedEquilibria()
	return err
}

// SeedEquilibria decodes Seeds, each written as [param, x1, x2, ...].
func (c *Config) SeedEquilibria() ([]dynamo.Equilibrium, error) {
	seeds := make([]dynamo.Equilibrium, 0, len(c.Seeds))
	for i, s := range c.Seeds {
		if len(s) < 2 {
			return nil, fmt.Errorf("%w: seed %d needs a parameter and a state, got %v", dynamo.ErrInvalidConfig, i, s)
		}
		seeds = append(seeds, dynamo.Equilibrium{Param: s[0], State: dynamo.State(s[1:]).Clone()})
	}
	return seeds, nil
}

// Clone returns a deep copy, so presets can be overridden safely.
func (c *Config) Clone() *Config {
	out := *c
	if c.Constants != nil {
		out.Constants = make(map[string]float64, len(c.Constants))
		for k, v := range c.Constants {
			out.Constants[k] = v
		}
	}
	if c.Seeds != nil {
		out.Seeds = make([][]float64, len(c.Seeds))
		for i, s := range c.Seeds {
			out.Seeds[i] = append([]float64(nil), s...)
		}
	}
	return &out
}
