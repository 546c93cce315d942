package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/seaice/internal/dynamo"
)

// DoubleWell is a damped particle in the potential A(x² - B)² pushed by a
// constant force p. State is (x, v). For small |p| there are three
// equilibria; the outer wells vanish in folds at p = ±8A B^{3/2}/(3√3).
type DoubleWell struct {
	A, B, Mass, Damping float64
}

func NewDoubleWell() *DoubleWell {
	return &DoubleWell{1.0, 1.0, 1.0, 0.1}
}

func (d *DoubleWell) Name() string      { return "doublewell" }
func (d *DoubleWell) ParamName() string { return "force" }
func (d *DoubleWell) StateDim() int     { return 2 }

func (d *DoubleWell) Rate(s dynamo.State, p float64) dynamo.State {
	if len(s) < 2 {
		return make(dynamo.State, 2)
	}
	x, v := s[0], s[1]
	return dynamo.State{v, (-4*d.A*x*(x*x-d.B) - d.Damping*v + p) / d.Mass}
}

func (d *DoubleWell) Jacobian(s dynamo.State, _ float64) [][]float64 {
	x := s[0]
	return [][]float64{
		{0, 1},
		{-4 * d.A * (3*x*x - d.B) / d.Mass, -d.Damping / d.Mass},
	}
}

func (d *DoubleWell) ParamDerivative(_ dynamo.State, _ float64) dynamo.State {
	return dynamo.State{0, 1 / d.Mass}
}

// FoldForce is the force at which the outer wells disappear.
func (d *DoubleWell) FoldForce() float64 {
	return 8 * d.A * math.Pow(d.B, 1.5) / (3 * math.Sqrt(3))
}

func (d *DoubleWell) Energy(s dynamo.State) float64 {
	if len(s) < 2 {
		return 0
	}
	x, v := s[0], s[1]
	return 0.5*d.Mass*v*v + d.A*math.Pow(x*x-d.B, 2)
}

func (d *DoubleWell) GetParams() map[string]float64 {
	return map[string]float64{"A": d.A, "B": d.B, "mass": d.Mass, "damping": d.Damping}
}

func (d *DoubleWell) SetParam(n string, v float64) error {
	switch n {
	case "A":
		d.A = v
	case "B":
		d.B = v
	case "mass":
		if v <= 0 {
			return fmt.Errorf("%w: mass must be positive, got %g", dynamo.ErrInvalidConfig, v)
		}
		d.Mass = v
	case "damping":
		d.Damping = v
	default:
		return unknownParam(d.Name(), n)
	}
	return nil
}
