// Package integrators advances a system in time at a fixed parameter. It is
// used to relax a state onto the stable equilibrium it is attracted to,
// which cross-checks the stability reported by continuation.
package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/seaice/internal/dynamo"
)

// Integrator takes one step of dx/dt = f(x; p) of size dt.
type Integrator interface {
	Step(sys dynamo.System, x dynamo.State, p, dt float64) (dynamo.State, error)
}

var registry = map[string]func() Integrator{
	"euler": func() Integrator { return NewEuler() },
	"rk4":   func() Integrator { return NewRK4() },
	"rk45":  func() Integrator { return NewRK45() },
}

func Get(name string) (Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown integrator %q", dynamo.ErrInvalidConfig, name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
