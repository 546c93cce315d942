package dynamo

import (
	"fmt"
	"math"
)

// Evaluate computes f(x; p) and rejects non-finite output.
func Evaluate(sys System, x State, p float64) (State, error) {
	if len(x) != sys.StateDim() {
		return nil, fmt.Errorf("%w: state has %d components, system expects %d", ErrDimensionMismatch, len(x), sys.StateDim())
	}
	f := sys.Rate(x, p)
	if len(f) != len(x) {
		return nil, fmt.Errorf("%w: rate has %d components, state has %d", ErrDimensionMismatch, len(f), len(x))
	}
	if !f.IsValid() || math.IsNaN(p) || math.IsInf(p, 0) {
		return nil, &SolveError{Param: p, State: x.Clone(), Wrapped: ErrInvalidModel}
	}
	return f, nil
}

// JacobianAt returns df/dx at (x, p). Systems implementing Jacobian are
// used directly, others are differenced centrally with a step of
// h*max(1, |x_j|).
func JacobianAt(sys System, x State, p, h float64) ([][]float64, error) {
	n := len(x)
	if jac, ok := sys.(Jacobian); ok {
		j := jac.Jacobian(x, p)
		if len(j) != n {
			return nil, fmt.Errorf("%w: jacobian has %d rows, state has %d", ErrDimensionMismatch, len(j), n)
		}
		for _, row := range j {
			if len(row) != n {
				return nil, fmt.Errorf("%w: jacobian row has %d columns, state has %d", ErrDimensionMismatch, len(row), n)
			}
			if !State(row).IsValid() {
				return nil, &SolveError{Param: p, State: x.Clone(), Wrapped: ErrInvalidModel}
			}
		}
		return j, nil
	}

	j := make([][]float64, n)
	for i := range j {
		j[i] = make([]float64, n)
	}
	xp := x.Clone()
	xm := x.Clone()
	for col := 0; col < n; col++ {
		hj := h * math.Max(1, math.Abs(x[col]))
		xp[col] = x[col] + hj
		xm[col] = x[col] - hj
		fp, err := Evaluate(sys, xp, p)
		if err != nil {
			return nil, err
		}
		fm, err := Evaluate(sys, xm, p)
		if err != nil {
			return nil, err
		}
		for row := 0; row < n; row++ {
			j[row][col] = (fp[row] - fm[row]) / (2 * hj)
		}
		xp[col] = x[col]
		xm[col] = x[col]
	}
	return j, nil
}

// ParamDerivativeAt returns df/dp at (x, p).
func ParamDerivativeAt(sys System, x State, p, h float64) (State, error) {
	if ps, ok := sys.(ParamSensitivity); ok {
		d := ps.ParamDerivative(x, p)
		if len(d) != len(x) {
			return nil, fmt.Errorf("%w: parameter derivative has %d components, state has %d", ErrDimensionMismatch, len(d), len(x))
		}
		if !d.IsValid() {
			return nil, &SolveError{Param: p, State: x.Clone(), Wrapped: ErrInvalidModel}
		}
		return d, nil
	}

	hp := h * math.Max(1, math.Abs(p))
	fp, err := Evaluate(sys, x, p+hp)
	if err != nil {
		return nil, err
	}
	fm, err := Evaluate(sys, x, p-hp)
	if err != nil {
		return nil, err
	}
	d := make(State, len(x))
	for i := range d {
		d[i] = (fp[i] - fm[i]) / (2 * hp)
	}
	return d, nil
}
