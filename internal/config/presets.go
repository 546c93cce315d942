package config

import "sort"

var defaultSweep = DefaultConfig().Sweep

func sweep(lo, hi, step float64) SweepConfig {
	s := defaultSweep
	s.ParamMin, s.ParamMax, s.ParamStep = lo, hi, step
	return s
}

func unit(model string) *Config {
	return &Config{
		Model: model, Method: "arclength", Workers: DefaultWorkers, LogLevel: DefaultLogLevel,
		Sweep: sweep(-1, 1, 0.01),
		Scan:  ScanConfig{StateMin: -2, StateMax: 2, Samples: 401},
	}
}

var Presets = map[string]map[string]*Config{
	"seaice": {
		"default": DefaultConfig(),
		"fine": {
			Model: "seaice", Method: "arclength", Workers: DefaultWorkers, LogLevel: DefaultLogLevel,
			Sweep: sweep(-30, 30, 0.1),
			Scan:  ScanConfig{StateMin: 200, StateMax: 370, Samples: 3401},
		},
		"natural": {
			Model: "seaice", Method: "natural", Workers: DefaultWorkers, LogLevel: DefaultLogLevel,
			Sweep: sweep(-30, 30, 0.5),
			Scan:  ScanConfig{StateMin: 200, StateMax: 370, Samples: 1701},
		},
		"bright-ice": {
			Model: "seaice", Method: "arclength", Workers: DefaultWorkers, LogLevel: DefaultLogLevel,
			Constants: map[string]float64{"ice_albedo": 0.6},
			Sweep:     sweep(-30, 50, 0.5),
			Scan:      ScanConfig{StateMin: 200, StateMax: 370, Samples: 1701},
		},
	},
	"fold":          {"default": unit("fold")},
	"transcritical": {"default": unit("transcritical")},
	"pitchfork":     {"default": unit("pitchfork")},
	"hysteresis":    {"default": unit("hysteresis")},
	"doublewell": {
		"default": {
			Model: "doublewell", Method: "arclength", Workers: DefaultWorkers, LogLevel: DefaultLogLevel,
			Sweep: sweep(-2, 2, 0.05),
			Seeds: [][]float64{{0, 1, 0}, {0, -1, 0}},
		},
	},
	"vanderpol": {
		"hopf": {
			Model: "vanderpol", Method: "arclength", Workers: DefaultWorkers, LogLevel: DefaultLogLevel,
			Sweep: sweep(-1, 1, 0.02),
			Seeds: [][]float64{{-1, 0, 0}},
		},
	},
	"lorenz": {
		"default": {
			Model: "lorenz", Method: "arclength", Workers: DefaultWorkers, LogLevel: DefaultLogLevel,
			Sweep: sweep(0.5, 30, 0.1),
			Seeds: [][]float64{{0.5, 0, 0, 0}, {5, 3.265986323710904, 3.265986323710904, 4}},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForModel returns the model's "default" preset, its first preset when it
// has no default, or the global defaults relabelled for the model.
func ForModel(model string) *Config {
	if cfg := GetPreset(model, "default"); cfg != nil {
		return cfg
	}
	if names := ListPresets(model); len(names) > 0 {
		return GetPreset(model, names[0])
	}
	cfg := DefaultConfig()
	cfg.Model = model
	return cfg
}
