package automation

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/experiment"
	"github.com/san-kum/seaice/internal/integrators"
)

const scenarioYAML = `name: normal forms
description: fold and a stiffened hysteresis loop
steps:
  - model: fold
    method: natural
    sweep:
      param_min: 0.01
      param_max: 1
      param_step: 0.01
      min_step: 0.00001
      tolerance: 0.0000000001
      max_iterations: 50
    seeds:
      - [1, 1]
  - name: stiff
    model: hysteresis
    constants:
      a: 2
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)

	assert.Equal(t, "normal forms", sc.Name)
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, "natural", sc.Steps[0].Method)
	require.NotNil(t, sc.Steps[0].Sweep)
	assert.Equal(t, 0.01, sc.Steps[0].Sweep.ParamStep)
	assert.Equal(t, 2.0, sc.Steps[1].Constants["a"])
}

func TestLoadScenarioEmpty(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, "name: nothing\n"))
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestStepConfig(t *testing.T) {
	cfg, err := ScenarioStep{Model: "hysteresis", Constants: map[string]float64{"a": 2}}.Config()
	require.NoError(t, err)
	assert.Equal(t, "arclength", cfg.Method)
	assert.Equal(t, -1.0, cfg.Sweep.ParamMin)
	assert.Equal(t, 2.0, cfg.Constants["a"])

	_, err = ScenarioStep{Model: "seaice", Preset: "missing"}.Config()
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	_, err = ScenarioStep{}.Config()
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)

	results, err := RunScenario(context.Background(), sc, experiment.NewRegistry(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "1-fold", results[0].Name)
	assert.Equal(t, "stiff", results[1].Name)
	assert.Equal(t, 2.0, results[1].Run.Constants["a"])

	want := 2 / (3 * math.Sqrt(6))
	folds := results[1].Run.Result.Folds()
	require.Len(t, folds, 2)
	for _, f := range folds {
		assert.InDelta(t, want, math.Abs(f.Param), 1e-2)
	}
}

func TestRunScenarioStopsAtFailure(t *testing.T) {
	sc := &Scenario{Steps: []ScenarioStep{
		{Model: "fold"},
		{Model: "nonexistent"},
		{Model: "pitchfork"},
	}}
	results, err := RunScenario(context.Background(), sc, experiment.NewRegistry(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 2")
	assert.Len(t, results, 1)
}

func seaIceSweep() ParameterSweep {
	return ParameterSweep{
		Model:     "seaice",
		ParamMin:  -30,
		ParamMax:  30,
		NumSteps:  121,
		InitState: []float64{250},
		Relax:     integrators.DefaultRelaxOptions(),
	}
}

func TestRunSweepHysteresis(t *testing.T) {
	results, err := RunSweep(context.Background(), seaIceSweep(), experiment.NewRegistry(), nil)
	require.NoError(t, err)
	require.Len(t, results, 242)

	assert.Equal(t, Up, results[0].Direction)
	assert.Equal(t, -30.0, results[0].Param)
	assert.Equal(t, 30.0, results[120].Param)
	assert.Equal(t, Down, results[121].Direction)
	assert.Equal(t, -30.0, results[241].Param)

	// the two passes sit on different branches inside the loop
	var up, down SweepResult
	for _, r := range results {
		if r.Param != 0 {
			continue
		}
		if r.Direction == Up {
			up = r
		} else {
			down = r
		}
	}
	assert.InDelta(t, 257.7, up.State[0], 0.2)
	assert.InDelta(t, 287.8, down.State[0], 0.2)

	jumps := Jumps(results, 10)
	require.Len(t, jumps, 2)
	assert.Equal(t, Up, jumps[0].Direction)
	assert.Greater(t, jumps[0].To, 18.0)
	assert.Less(t, jumps[0].From, 25.0)
	assert.Greater(t, jumps[0].After, jumps[0].Before)

	assert.Equal(t, Down, jumps[1].Direction)
	assert.Less(t, jumps[1].To, -22.0)
	assert.Greater(t, jumps[1].From, -28.0)
	assert.Less(t, jumps[1].After, jumps[1].Before)
}

func TestRunSweepEscapes(t *testing.T) {
	sweep := ParameterSweep{
		Model:     "fold",
		ParamMin:  -1,
		ParamMax:  1,
		NumSteps:  5,
		InitState: []float64{1},
		Relax:     integrators.DefaultRelaxOptions(),
	}
	_, err := RunSweep(context.Background(), sweep, experiment.NewRegistry(), nil)
	assert.ErrorIs(t, err, dynamo.ErrNoConvergence)
}

func TestRunSweepInvalid(t *testing.T) {
	sweep := seaIceSweep()
	sweep.NumSteps = 1
	_, err := RunSweep(context.Background(), sweep, experiment.NewRegistry(), nil)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	sweep = seaIceSweep()
	sweep.ParamMax = sweep.ParamMin
	_, err = RunSweep(context.Background(), sweep, experiment.NewRegistry(), nil)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestJumps(t *testing.T) {
	results := []SweepResult{
		{Param: 0, Direction: Up, State: dynamo.State{0}},
		{Param: 1, Direction: Up, State: dynamo.State{0.5}},
		{Param: 2, Direction: Up, State: dynamo.State{5}},
		{Param: 2, Direction: Down, State: dynamo.State{-5}},
		{Param: 1, Direction: Down, State: dynamo.State{-5.2}},
	}
	jumps := Jumps(results, 1)
	require.Len(t, jumps, 1)
	assert.Equal(t, Jump{Direction: Up, From: 1, To: 2, Before: 0.5, After: 5}, jumps[0])
}

func seaIceBasins(workers int) MonteCarloConfig {
	return MonteCarloConfig{
		Model:        "seaice",
		Param:        0,
		BaseState:    []float64{273},
		Perturbation: 30,
		NumTrials:    40,
		Seed:         1,
		Workers:      workers,
		Relax:        integrators.DefaultRelaxOptions(),
	}
}

func TestRunMonteCarloBasins(t *testing.T) {
	results, err := RunMonteCarlo(context.Background(), seaIceBasins(4), experiment.NewRegistry(), nil)
	require.NoError(t, err)
	require.Len(t, results, 40)

	for i, r := range results {
		assert.Equal(t, i, r.TrialID)
		assert.InDelta(t, 273, r.InitState[0], 30)
	}

	basins, unsettled := MonteCarloStats(results, 0.5)
	assert.Zero(t, unsettled)
	require.Len(t, basins, 2)
	assert.InDelta(t, 257.7, basins[0].State[0], 0.2)
	assert.InDelta(t, 287.8, basins[1].State[0], 0.2)
	assert.Equal(t, 40, basins[0].Count+basins[1].Count)
}

func TestRunMonteCarloDeterministic(t *testing.T) {
	a, err := RunMonteCarlo(context.Background(), seaIceBasins(1), experiment.NewRegistry(), nil)
	require.NoError(t, err)
	b, err := RunMonteCarlo(context.Background(), seaIceBasins(8), experiment.NewRegistry(), nil)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].InitState, b[i].InitState)
		assert.Equal(t, a[i].FinalState, b[i].FinalState)
	}
}

func TestRunMonteCarloInvalid(t *testing.T) {
	cfg := seaIceBasins(1)
	cfg.NumTrials = 0
	_, err := RunMonteCarlo(context.Background(), cfg, experiment.NewRegistry(), nil)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	cfg = seaIceBasins(1)
	cfg.BaseState = []float64{1, 2}
	_, err = RunMonteCarlo(context.Background(), cfg, experiment.NewRegistry(), nil)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)
}

func TestMonteCarloStatsUnsettled(t *testing.T) {
	results := []MonteCarloResult{
		{FinalState: dynamo.State{1}, Settled: true},
		{FinalState: dynamo.State{1.01}, Settled: true},
		{FinalState: dynamo.State{-1}, Settled: true},
		{FinalState: dynamo.State{40}, Escaped: true},
	}
	basins, unsettled := MonteCarloStats(results, 0.1)
	assert.Equal(t, 1, unsettled)
	assert.Equal(t, []Basin{{State: dynamo.State{-1}, Count: 1}, {State: dynamo.State{1}, Count: 2}}, basins)
}
