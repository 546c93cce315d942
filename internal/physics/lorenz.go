package physics

import "github.com/san-kum/seaice/internal/dynamo"

// Lorenz is swept in rho. The origin is stable below rho = 1, where the
// pair C± = (±sqrt(beta(rho-1)), ±sqrt(beta(rho-1)), rho-1) branches off.
// No Jacobian is supplied; solvers fall back to finite differences.
type Lorenz struct{ Sigma, Beta float64 }

func NewLorenz() *Lorenz { return &Lorenz{10.0, 8.0 / 3.0} }

func (l *Lorenz) Name() string      { return "lorenz" }
func (l *Lorenz) ParamName() string { return "rho" }
func (l *Lorenz) StateDim() int     { return 3 }

func (l *Lorenz) Rate(s dynamo.State, rho float64) dynamo.State {
	return dynamo.State{l.Sigma * (s[1] - s[0]), s[0]*(rho-s[2]) - s[1], s[0]*s[1] - l.Beta*s[2]}
}

func (l *Lorenz) GetParams() map[string]float64 {
	return map[string]float64{"sigma": l.Sigma, "beta": l.Beta}
}

func (l *Lorenz) SetParam(n string, v float64) error {
	switch n {
	case "sigma":
		l.Sigma = v
	case "beta":
		l.Beta = v
	default:
		return unknownParam(l.Name(), n)
	}
	return nil
}
