package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/seaice/internal/dynamo"
)

// SeaIce is a zero-dimensional energy balance model of Arctic surface
// temperature T (kelvin), forced by an extra radiative flux ΔF (W/m²):
//
//	C dT/dt = S(1 - α(T))/4 - εσT⁴ + ΔF
//
// The albedo α falls smoothly from IceAlbedo below MeltPoint-Transition to
// WaterAlbedo above MeltPoint+Transition. The transition uses a smooth
// non-analytic step, so the model is C∞ but flat at both ends of the ramp.
type SeaIce struct {
	Solar        float64
	IceAlbedo    float64
	WaterAlbedo  float64
	MeltPoint    float64
	Transition   float64
	Emissivity   float64
	Boltzmann    float64
	HeatCapacity float64
}

func NewSeaIce() *SeaIce {
	return &SeaIce{
		Solar:        1360.8,
		IceAlbedo:    0.55,
		WaterAlbedo:  0.3,
		MeltPoint:    273.15,
		Transition:   10,
		Emissivity:   0.612,
		Boltzmann:    5.670374419e-8,
		HeatCapacity: 1,
	}
}

func (m *SeaIce) Name() string      { return "seaice" }
func (m *SeaIce) ParamName() string { return "deltaF" }
func (m *SeaIce) StateDim() int     { return 1 }

func (m *SeaIce) Rate(x dynamo.State, p float64) dynamo.State {
	if len(x) < 1 {
		return make(dynamo.State, 1)
	}
	t := x[0]
	in := m.Solar * (1 - m.Albedo(t)) / 4
	out := m.Emissivity * m.Boltzmann * t * t * t * t
	return dynamo.State{(in - out + p) / m.HeatCapacity}
}

func (m *SeaIce) Jacobian(x dynamo.State, _ float64) [][]float64 {
	t := x[0]
	d := -m.Solar*m.AlbedoSlope(t)/4 - 4*m.Emissivity*m.Boltzmann*t*t*t
	return [][]float64{{d / m.HeatCapacity}}
}

func (m *SeaIce) ParamDerivative(_ dynamo.State, _ float64) dynamo.State {
	return dynamo.State{1 / m.HeatCapacity}
}

// Albedo returns the surface reflectivity at temperature t.
func (m *SeaIce) Albedo(t float64) float64 {
	return (m.WaterAlbedo-m.IceAlbedo)*smoothStep(m.ramp(t)) + m.IceAlbedo
}

// AlbedoSlope is dα/dT.
func (m *SeaIce) AlbedoSlope(t float64) float64 {
	return (m.WaterAlbedo - m.IceAlbedo) * smoothStepSlope(m.ramp(t)) / (2 * m.Transition)
}

// ramp maps the transition band onto [0, 1].
func (m *SeaIce) ramp(t float64) float64 {
	return (t - (m.MeltPoint - m.Transition)) / (2 * m.Transition)
}

// DefaultWindow is the temperature range scanned for equilibria.
func (m *SeaIce) DefaultWindow() (float64, float64) { return 200, 370 }

func (m *SeaIce) GetParams() map[string]float64 {
	return map[string]float64{
		"solar":         m.Solar,
		"ice_albedo":    m.IceAlbedo,
		"water_albedo":  m.WaterAlbedo,
		"melt_point":    m.MeltPoint,
		"transition":    m.Transition,
		"emissivity":    m.Emissivity,
		"boltzmann":     m.Boltzmann,
		"heat_capacity": m.HeatCapacity,
	}
}

func (m *SeaIce) SetParam(n string, v float64) error {
	switch n {
	case "solar":
		m.Solar = v
	case "ice_albedo":
		m.IceAlbedo = v
	case "water_albedo":
		m.WaterAlbedo = v
	case "melt_point":
		m.MeltPoint = v
	case "transition":
		if v <= 0 {
			return fmt.Errorf("%w: transition width must be positive, got %g", dynamo.ErrInvalidConfig, v)
		}
		m.Transition = v
	case "emissivity":
		m.Emissivity = v
	case "boltzmann":
		m.Boltzmann = v
	case "heat_capacity":
		if v <= 0 {
			return fmt.Errorf("%w: heat capacity must be positive, got %g", dynamo.ErrInvalidConfig, v)
		}
		m.HeatCapacity = v
	default:
		return unknownParam(m.Name(), n)
	}
	return nil
}

// flat is exp(-1/t) for t > 0 and 0 otherwise.
func flat(t float64) float64 {
	if t <= 0 {
		return 0
	}
	return math.Exp(-1 / t)
}

func flatSlope(t float64) float64 {
	e := flat(t)
	if e == 0 {
		return 0
	}
	return e / (t * t)
}

// smoothStep rises from 0 at t <= 0 to 1 at t >= 1.
func smoothStep(t float64) float64 {
	a, b := flat(t), flat(1-t)
	return a / (a + b)
}

func smoothStepSlope(t float64) float64 {
	a, b := flat(t), flat(1-t)
	if a == 0 || b == 0 {
		return 0
	}
	s := a + b
	return (flatSlope(t)*b + a*flatSlope(1-t)) / (s * s)
}
