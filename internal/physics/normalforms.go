package physics

import (
	"fmt"

	"github.com/san-kum/seaice/internal/dynamo"
)

// Fold is the saddle-node normal form dx/dt = p - a x². For a > 0 two
// equilibria ±sqrt(p/a) exist for p > 0 and none for p < 0.
type Fold struct{ A float64 }

func NewFold() *Fold { return &Fold{A: 1} }

func (m *Fold) Name() string      { return "fold" }
func (m *Fold) ParamName() string { return "p" }
func (m *Fold) StateDim() int     { return 1 }

func (m *Fold) Rate(x dynamo.State, p float64) dynamo.State {
	return dynamo.State{p - m.A*x[0]*x[0]}
}

func (m *Fold) Jacobian(x dynamo.State, _ float64) [][]float64 {
	return [][]float64{{-2 * m.A * x[0]}}
}

func (m *Fold) ParamDerivative(_ dynamo.State, _ float64) dynamo.State {
	return dynamo.State{1}
}

func (m *Fold) GetParams() map[string]float64 { return map[string]float64{"a": m.A} }

func (m *Fold) SetParam(n string, v float64) error {
	if n != "a" {
		return unknownParam(m.Name(), n)
	}
	m.A = v
	return nil
}

// Transcritical is dx/dt = p x - a x²; the branches x = 0 and x = p/a
// cross at p = 0 and exchange stability.
type Transcritical struct{ A float64 }

func NewTranscritical() *Transcritical { return &Transcritical{A: 1} }

func (m *Transcritical) Name() string      { return "transcritical" }
func (m *Transcritical) ParamName() string { return "p" }
func (m *Transcritical) StateDim() int     { return 1 }

func (m *Transcritical) Rate(x dynamo.State, p float64) dynamo.State {
	return dynamo.State{p*x[0] - m.A*x[0]*x[0]}
}

func (m *Transcritical) Jacobian(x dynamo.State, p float64) [][]float64 {
	return [][]float64{{p - 2*m.A*x[0]}}
}

func (m *Transcritical) ParamDerivative(x dynamo.State, _ float64) dynamo.State {
	return dynamo.State{x[0]}
}

func (m *Transcritical) GetParams() map[string]float64 { return map[string]float64{"a": m.A} }

func (m *Transcritical) SetParam(n string, v float64) error {
	if n != "a" {
		return unknownParam(m.Name(), n)
	}
	m.A = v
	return nil
}

// Pitchfork is the supercritical normal form dx/dt = p x - a x³.
type Pitchfork struct{ A float64 }

func NewPitchfork() *Pitchfork { return &Pitchfork{A: 1} }

func (m *Pitchfork) Name() string      { return "pitchfork" }
func (m *Pitchfork) ParamName() string { return "p" }
func (m *Pitchfork) StateDim() int     { return 1 }

func (m *Pitchfork) Rate(x dynamo.State, p float64) dynamo.State {
	return dynamo.State{p*x[0] - m.A*x[0]*x[0]*x[0]}
}

func (m *Pitchfork) Jacobian(x dynamo.State, p float64) [][]float64 {
	return [][]float64{{p - 3*m.A*x[0]*x[0]}}
}

func (m *Pitchfork) ParamDerivative(x dynamo.State, _ float64) dynamo.State {
	return dynamo.State{x[0]}
}

func (m *Pitchfork) GetParams() map[string]float64 { return map[string]float64{"a": m.A} }

func (m *Pitchfork) SetParam(n string, v float64) error {
	if n != "a" {
		return unknownParam(m.Name(), n)
	}
	m.A = v
	return nil
}

// Hysteresis is dx/dt = p + x - a x³, an S-shaped branch with two folds at
// p = ±2/(3 sqrt(3a)) when a = 1.
type Hysteresis struct{ A float64 }

func NewHysteresis() *Hysteresis { return &Hysteresis{A: 1} }

func (m *Hysteresis) Name() string      { return "hysteresis" }
func (m *Hysteresis) ParamName() string { return "p" }
func (m *Hysteresis) StateDim() int     { return 1 }

func (m *Hysteresis) Rate(x dynamo.State, p float64) dynamo.State {
	return dynamo.State{p + x[0] - m.A*x[0]*x[0]*x[0]}
}

func (m *Hysteresis) Jacobian(x dynamo.State, _ float64) [][]float64 {
	return [][]float64{{1 - 3*m.A*x[0]*x[0]}}
}

func (m *Hysteresis) ParamDerivative(_ dynamo.State, _ float64) dynamo.State {
	return dynamo.State{1}
}

func (m *Hysteresis) GetParams() map[string]float64 { return map[string]float64{"a": m.A} }

func (m *Hysteresis) SetParam(n string, v float64) error {
	if n != "a" {
		return unknownParam(m.Name(), n)
	}
	m.A = v
	return nil
}

func unknownParam(model, name string) error {
	return fmt.Errorf("%w: %s has no constant %q", dynamo.ErrInvalidConfig, model, name)
}
