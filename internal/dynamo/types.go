package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// MaxAbs is the infinity norm, used for residuals.
func (s State) MaxAbs() float64 {
	m := 0.0
	for _, v := range s {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// System is an autonomous ODE dx/dt = f(x; p) with a scalar bifurcation
// parameter p. Physical constants live on the implementing type.
type System interface {
	Rate(x State, p float64) State
	StateDim() int
}

// Jacobian is implemented by systems that supply df/dx analytically.
// The result is row-major: J[i][j] = d f_i / d x_j.
type Jacobian interface {
	Jacobian(x State, p float64) [][]float64
}

// ParamSensitivity is implemented by systems that supply df/dp analytically.
type ParamSensitivity interface {
	ParamDerivative(x State, p float64) State
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Named systems report a registry name and the parameter they are swept in.
type Named interface {
	Name() string
	ParamName() string
}

// Equilibrium is a steady state of a System at a fixed parameter value.
type Equilibrium struct {
	Param       float64
	State       State
	Stable      bool
	Residual    float64
	Eigenvalues []complex128
}

func (e Equilibrium) String() string {
	tag := "unstable"
	if e.Stable {
		tag = "stable"
	}
	return fmt.Sprintf("p=%.6g x=%v (%s, |f|=%.2e)", e.Param, []float64(e.State), tag, e.Residual)
}

type EventKind int

const (
	Fold EventKind = iota
	StabilityChange
	CountChange
)

func (k EventKind) String() string {
	switch k {
	case Fold:
		return "fold"
	case StabilityChange:
		return "stability-change"
	case CountChange:
		return "count-change"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event marks a parameter value where the equilibrium structure changes.
// Branch is -1 for events derived from a grid scan rather than a branch.
type Event struct {
	Kind   EventKind
	Param  float64
	State  State
	Branch int
	Before int
	After  int
}

// Branch is an ordered run of equilibria connected by continuation.
// Err records why tracing stopped early, nil when the range was covered.
type Branch struct {
	ID     int
	Points []Equilibrium
	Events []Event
	Err    error
}

func (b Branch) Len() int { return len(b.Points) }

// WithID returns a copy of b, and of its events, labelled with id.
func (b Branch) WithID(id int) Branch {
	b.ID = id
	events := make([]Event, len(b.Events))
	for i, e := range b.Events {
		e.Branch = id
		events[i] = e
	}
	b.Events = events
	return b
}

// ParamRange returns the smallest and largest parameter on the branch.
func (b Branch) ParamRange() (float64, float64) {
	if len(b.Points) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi := b.Points[0].Param, b.Points[0].Param
	for _, pt := range b.Points[1:] {
		lo = math.Min(lo, pt.Param)
		hi = math.Max(hi, pt.Param)
	}
	return lo, hi
}

const (
	MethodNatural   = "natural"
	MethodArclength = "arclength"
)

type Config struct {
	ParamMin      float64
	ParamMax      float64
	ParamStep     float64
	MinStep       float64
	Tolerance     float64
	MaxIterations int

	Method       string
	FDStep       float64
	MaxPoints    int
	StateMin     float64
	StateMax     float64
	StateSamples int
	Workers      int
}

func DefaultConfig() Config {
	return Config{
		ParamMin:      -1.0,
		ParamMax:      1.0,
		ParamStep:     0.01,
		MinStep:       1e-6,
		Tolerance:     1e-9,
		MaxIterations: 50,
		Method:        MethodArclength,
		FDStep:        1e-6,
		MaxPoints:     20000,
		StateMin:      -2.0,
		StateMax:      2.0,
		StateSamples:  401,
		Workers:       4,
	}
}

func (c Config) Validate() error {
	switch {
	case !(c.ParamMin < c.ParamMax):
		return fmt.Errorf("%w: param_min %g must be below param_max %g", ErrInvalidConfig, c.ParamMin, c.ParamMax)
	case c.ParamStep <= 0:
		return fmt.Errorf("%w: param_step must be positive, got %g", ErrInvalidConfig, c.ParamStep)
	case c.MinStep <= 0:
		return fmt.Errorf("%w: min_step must be positive, got %g", ErrInvalidConfig, c.MinStep)
	case c.MinStep > c.ParamStep:
		return fmt.Errorf("%w: min_step %g exceeds param_step %g", ErrInvalidConfig, c.MinStep, c.ParamStep)
	case c.Tolerance <= 0:
		return fmt.Errorf("%w: tolerance must be positive, got %g", ErrInvalidConfig, c.Tolerance)
	case c.MaxIterations <= 0:
		return fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalidConfig, c.MaxIterations)
	case c.Method != MethodNatural && c.Method != MethodArclength:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, c.Method)
	case c.FDStep <= 0:
		return fmt.Errorf("%w: fd_step must be positive, got %g", ErrInvalidConfig, c.FDStep)
	}
	return nil
}

// ValidateScan checks the state window used for grid scans.
func (c Config) ValidateScan() error {
	if !(c.StateMin < c.StateMax) {
		return fmt.Errorf("%w: state_min %g must be below state_max %g", ErrInvalidConfig, c.StateMin, c.StateMax)
	}
	if c.StateSamples < 2 {
		return fmt.Errorf("%w: scan needs at least 2 samples, got %d", ErrInvalidConfig, c.StateSamples)
	}
	return nil
}

// ParamGrid returns the parameter values of a uniform sweep. The last value
// is clipped to ParamMax.
func (c Config) ParamGrid() []float64 {
	n := int(math.Floor((c.ParamMax-c.ParamMin)/c.ParamStep + 1e-9))
	grid := make([]float64, 0, n+2)
	for i := 0; i <= n; i++ {
		grid = append(grid, math.Min(c.ParamMin+float64(i)*c.ParamStep, c.ParamMax))
	}
	if last := grid[len(grid)-1]; c.ParamMax-last > c.ParamStep*1e-9 {
		grid = append(grid, c.ParamMax)
	}
	return grid
}

// InRange reports whether p lies in [ParamMin, ParamMax] up to rounding.
func (c Config) InRange(p float64) bool {
	slack := c.MinStep * 1e-3
	return p >= c.ParamMin-slack && p <= c.ParamMax+slack
}
