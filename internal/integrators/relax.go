package integrators

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/seaice/internal/dynamo"
)

type RelaxOptions struct {
	Method    string  `yaml:"method"`
	Dt        float64 `yaml:"dt"`
	Duration  float64 `yaml:"duration"`
	Tolerance float64 `yaml:"tolerance"`
	ErrTol    float64 `yaml:"err_tol"`
	MaxSteps  int     `yaml:"max_steps"`
	Bound     float64 `yaml:"bound"`
	Record    bool    `yaml:"-"`
}

func DefaultRelaxOptions() RelaxOptions {
	return RelaxOptions{
		Method:    "rk45",
		Dt:        0.01,
		Duration:  1e4,
		Tolerance: 1e-7,
		ErrTol:    1e-12,
		MaxSteps:  200000,
		Bound:     1e8,
	}
}

func (o RelaxOptions) Validate() error {
	switch {
	case o.Dt <= 0:
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInvalidConfig, o.Dt)
	case o.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive, got %g", dynamo.ErrInvalidConfig, o.Duration)
	case o.Tolerance <= 0 || o.ErrTol <= 0:
		return fmt.Errorf("%w: tolerances must be positive", dynamo.ErrInvalidConfig)
	case o.MaxSteps <= 0:
		return fmt.Errorf("%w: max_steps must be positive, got %d", dynamo.ErrInvalidConfig, o.MaxSteps)
	case o.Bound <= 0:
		return fmt.Errorf("%w: bound must be positive, got %g", dynamo.ErrInvalidConfig, o.Bound)
	}
	_, err := Get(o.Method)
	return err
}

// Relaxation is the outcome of integrating until the rate vanishes.
// Settled means |f| fell below the tolerance; Escaped means the state left
// the bound, as it does when no equilibrium attracts it.
type Relaxation struct {
	State   dynamo.State
	Time    float64
	Steps   int
	Settled bool
	Escaped bool

	Times  []float64
	States []dynamo.State
}

// Relax integrates from x0 at fixed p until the state settles, escapes, or
// the time or step budget runs out. Running out of budget is not an error.
func Relax(ctx context.Context, sys dynamo.System, x0 dynamo.State, p float64, opts RelaxOptions) (*Relaxation, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(x0) != sys.StateDim() {
		return nil, fmt.Errorf("%w: initial state has %d components, system expects %d", dynamo.ErrDimensionMismatch, len(x0), sys.StateDim())
	}
	integ, _ := Get(opts.Method)
	adaptive, _ := integ.(*RK45)

	res := &Relaxation{State: x0.Clone()}
	record := func() {
		if opts.Record {
			res.Times = append(res.Times, res.Time)
			res.States = append(res.States, res.State.Clone())
		}
	}
	record()

	dt := opts.Dt
	for tries := 0; tries < 4*opts.MaxSteps && res.Steps < opts.MaxSteps && res.Time < opts.Duration; tries++ {
		if tries%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		f, err := dynamo.Evaluate(sys, res.State, p)
		if err != nil {
			return nil, err
		}
		if f.MaxAbs() < opts.Tolerance {
			res.Settled = true
			return res, nil
		}

		var next dynamo.State
		if adaptive != nil {
			var ok bool
			var dtNew float64
			next, dtNew, ok, err = adaptive.StepAdaptive(sys, res.State, p, dt, opts.ErrTol)
			if err != nil {
				return nil, err
			}
			if !ok {
				dt = dtNew
				continue
			}
			res.Time += dt
			dt = math.Min(dtNew, opts.Duration)
		} else {
			next, err = integ.Step(sys, res.State, p, dt)
			if err != nil {
				return nil, err
			}
			res.Time += dt
		}

		res.State = next
		res.Steps++
		record()

		if res.State.MaxAbs() > opts.Bound {
			res.Escaped = true
			return res, nil
		}
	}

	// the budget may run out on the step that settles
	f, err := dynamo.Evaluate(sys, res.State, p)
	if err != nil {
		return nil, err
	}
	res.Settled = f.MaxAbs() < opts.Tolerance
	return res, nil
}
