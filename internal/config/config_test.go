package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/seaice/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "seaice", cfg.Model)
	assert.Equal(t, dynamo.MethodArclength, cfg.Method)
	assert.Positive(t, cfg.Sweep.ParamStep)
	require.NoError(t, cfg.Validate())
}

func TestLoad_RecognisedOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	doc := `
model: fold
constants:
  a: 2
sweep:
  param_min: -2
  param_max: 3
  param_step: 0.25
  min_step: 0.001
  tolerance: 1e-10
  max_iterations: 30
seeds:
  - [1, 0.7]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	sc := cfg.Solver()
	assert.Equal(t, -2.0, sc.ParamMin)
	assert.Equal(t, 3.0, sc.ParamMax)
	assert.Equal(t, 0.25, sc.ParamStep)
	assert.Equal(t, 0.001, sc.MinStep)
	assert.Equal(t, 1e-10, sc.Tolerance)
	assert.Equal(t, 30, sc.MaxIterations)
	assert.Equal(t, 2.0, cfg.Constants["a"])

	// options left out keep their defaults
	assert.Equal(t, dynamo.MethodArclength, sc.Method)
	assert.Equal(t, DefaultWorkers, sc.Workers)
	assert.Equal(t, dynamo.DefaultConfig().FDStep, sc.FDStep)

	seeds, err := cfg.SeedEquilibria()
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, 1.0, seeds[0].Param)
	assert.Equal(t, dynamo.State{0.7}, seeds[0].State)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sweep: [1, 2"), 0644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := GetPreset("doublewell", "default")
	require.NotNil(t, cfg)

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no model", func(c *Config) { c.Model = "" }},
		{"inverted range", func(c *Config) { c.Sweep.ParamMin, c.Sweep.ParamMax = 1, -1 }},
		{"zero step", func(c *Config) { c.Sweep.ParamStep = 0 }},
		{"min step above step", func(c *Config) { c.Sweep.MinStep = 1 }},
		{"negative tolerance", func(c *Config) { c.Sweep.Tolerance = -1 }},
		{"no iterations", func(c *Config) { c.Sweep.MaxIterations = 0 }},
		{"unknown method", func(c *Config) { c.Method = "shooting" }},
		{"short seed", func(c *Config) { c.Seeds = [][]float64{{0}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), dynamo.ErrInvalidConfig)
		})
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("seaice", "fine")
	require.NotNil(t, cfg)
	assert.Equal(t, 0.1, cfg.Sweep.ParamStep)

	// presets are copies
	cfg.Sweep.ParamStep = 5
	cfg.Seeds = append(cfg.Seeds, []float64{0, 250})
	again := GetPreset("seaice", "fine")
	assert.Equal(t, 0.1, again.Sweep.ParamStep)
	assert.Empty(t, again.Seeds)

	bright := GetPreset("seaice", "bright-ice")
	bright.Constants["ice_albedo"] = 0.9
	assert.Equal(t, 0.6, GetPreset("seaice", "bright-ice").Constants["ice_albedo"])
}

func TestGetPreset_NotFound(t *testing.T) {
	assert.Nil(t, GetPreset("seaice", "nonexistent"))
	assert.Nil(t, GetPreset("nonexistent", "default"))
}

func TestListPresets(t *testing.T) {
	names := ListPresets("seaice")
	require.NotEmpty(t, names)
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "default")
	assert.Nil(t, ListPresets("nonexistent"))
}

func TestPresetsAreValid(t *testing.T) {
	for model, presets := range Presets {
		for name := range presets {
			cfg := GetPreset(model, name)
			assert.Equal(t, model, cfg.Model, "%s/%s", model, name)
			assert.NoError(t, cfg.Validate(), "%s/%s", model, name)
		}
	}
}

func TestForModel(t *testing.T) {
	assert.Equal(t, GetPreset("doublewell", "default"), ForModel("doublewell"))
	assert.Equal(t, GetPreset("vanderpol", "hopf"), ForModel("vanderpol"))

	cfg := ForModel("custom")
	assert.Equal(t, "custom", cfg.Model)
	assert.Equal(t, DefaultConfig().Sweep, cfg.Sweep)
}
