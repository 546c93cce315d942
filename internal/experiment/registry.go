package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/physics"
)

type Registry struct {
	models map[string]func() dynamo.System
}

func NewRegistry() *Registry {
	r := &Registry{
		models: make(map[string]func() dynamo.System),
	}

	r.models["seaice"] = func() dynamo.System { return physics.NewSeaIce() }
	r.models["fold"] = func() dynamo.System { return physics.NewFold() }
	r.models["transcritical"] = func() dynamo.System { return physics.NewTranscritical() }
	r.models["pitchfork"] = func() dynamo.System { return physics.NewPitchfork() }
	r.models["hysteresis"] = func() dynamo.System { return physics.NewHysteresis() }
	r.models["doublewell"] = func() dynamo.System { return physics.NewDoubleWell() }
	r.models["vanderpol"] = func() dynamo.System { return physics.NewVanDerPol() }
	r.models["lorenz"] = func() dynamo.System { return physics.NewLorenz() }

	return r
}

// Register adds or replaces a model constructor.
func (r *Registry) Register(name string, fn func() dynamo.System) {
	r.models[name] = fn
}

func (r *Registry) GetModel(name string) (dynamo.System, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamName is the name of the swept parameter of sys, "p" if it has none.
func ParamName(sys dynamo.System) string {
	if n, ok := sys.(dynamo.Named); ok {
		return n.ParamName()
	}
	return "p"
}
