package physics

import "github.com/san-kum/seaice/internal/dynamo"

// VanDerPol is the Van der Pol oscillator swept in its damping μ.
// State: [x, y] where y = dx/dt
// Equations:
//
//	dx/dt = y
//	dy/dt = μ(1 - x²)y - x
//
// The origin is the only equilibrium. It loses stability in a Hopf
// bifurcation at μ = 0, seen as a stability change with no fold.
type VanDerPol struct{}

func NewVanDerPol() *VanDerPol { return &VanDerPol{} }

func (v *VanDerPol) Name() string      { return "vanderpol" }
func (v *VanDerPol) ParamName() string { return "mu" }
func (v *VanDerPol) StateDim() int     { return 2 }

func (v *VanDerPol) Rate(state dynamo.State, mu float64) dynamo.State {
	x, y := state[0], state[1]
	return dynamo.State{y, mu*(1-x*x)*y - x}
}

func (v *VanDerPol) Jacobian(state dynamo.State, mu float64) [][]float64 {
	x, y := state[0], state[1]
	return [][]float64{
		{0, 1},
		{-2*mu*x*y - 1, mu * (1 - x*x)},
	}
}

func (v *VanDerPol) ParamDerivative(state dynamo.State, _ float64) dynamo.State {
	x, y := state[0], state[1]
	return dynamo.State{0, (1 - x*x) * y}
}
