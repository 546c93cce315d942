package rootfind

import (
	"math"

	"github.com/san-kum/seaice/internal/dynamo"
)

const (
	// flatSlope is the relative derivative size below which a Newton step
	// is not trusted.
	flatSlope = 1e-14
	// maxGrowth is how many consecutive residual increases count as divergence.
	maxGrowth = 3
	// lineSearchSteps bounds the backtracking in damped Newton.
	lineSearchSteps = 20
)

// Solver finds x with f(x; p) = 0 at a fixed parameter.
type Solver struct {
	Tolerance            float64
	MaxIterations        int
	FDStep               float64
	MaxBracketExpansions int
}

func NewSolver(cfg dynamo.Config) *Solver {
	return &Solver{
		Tolerance:            cfg.Tolerance,
		MaxIterations:        cfg.MaxIterations,
		FDStep:               cfg.FDStep,
		MaxBracketExpansions: 40,
	}
}

// Solve refines x0 to an equilibrium at parameter p. It returns the root,
// the number of iterations used and an error wrapping ErrNoConvergence or
// ErrInvalidModel on failure.
func (s *Solver) Solve(sys dynamo.System, x0 dynamo.State, p float64) (dynamo.State, int, error) {
	if sys.StateDim() == 1 && len(x0) == 1 {
		return s.solveScalar(sys, x0[0], p)
	}
	return s.solveNewton(sys, x0, p)
}

func (s *Solver) fail(p float64, x dynamo.State, iters int, err error) (dynamo.State, int, error) {
	return nil, iters, &dynamo.SolveError{Param: p, State: x.Clone(), Iterations: iters, Wrapped: err}
}

// solveScalar runs Newton-Raphson and drops to a safeguarded bisection when
// the slope vanishes or the residual keeps growing.
func (s *Solver) solveScalar(sys dynamo.System, x0, p float64) (dynamo.State, int, error) {
	f := scalarRate(sys, p)

	x := x0
	fx, err := f(x)
	if err != nil {
		return nil, 0, err
	}
	if math.Abs(fx) < s.Tolerance {
		return dynamo.State{x}, 0, nil
	}

	best, fbest := x, fx
	growth := 0
	iters := 0
	for iters < s.MaxIterations {
		iters++
		d, err := s.slope(sys, x, p)
		if err != nil {
			return nil, iters, err
		}
		if math.Abs(d) < flatSlope*(1+math.Abs(fx)) {
			break
		}

		xn := x - fx/d
		fn, err := f(xn)
		if err != nil {
			return nil, iters, err
		}
		if math.Abs(fn) >= math.Abs(fx) {
			growth++
		} else {
			growth = 0
		}
		x, fx = xn, fn
		if math.Abs(fx) < math.Abs(fbest) {
			best, fbest = x, fx
		}
		if math.Abs(fx) < s.Tolerance {
			return dynamo.State{x}, iters, nil
		}
		if growth >= maxGrowth {
			break
		}
	}

	lo, hi, err := s.bracketAround(f, best, fbest)
	if err != nil {
		if dynamo.IsFatal(err) {
			return nil, iters, err
		}
		return s.fail(p, dynamo.State{best}, iters, dynamo.ErrNoConvergence)
	}

	root, used, err := s.safeguarded(sys, f, lo, hi, p, s.MaxIterations-iters)
	iters += used
	if err != nil {
		if dynamo.IsFatal(err) {
			return nil, iters, err
		}
		return s.fail(p, dynamo.State{best}, iters, dynamo.ErrNoConvergence)
	}
	return dynamo.State{root}, iters, nil
}

func (s *Solver) slope(sys dynamo.System, x, p float64) (float64, error) {
	j, err := dynamo.JacobianAt(sys, dynamo.State{x}, p, s.FDStep)
	if err != nil {
		return 0, err
	}
	return j[0][0], nil
}

// bracketAround widens a symmetric window around x until one side shows a
// sign change. The lower side wins ties.
func (s *Solver) bracketAround(f func(float64) (float64, error), x, fx float64) (float64, float64, error) {
	delta := 1e-3 * math.Max(1, math.Abs(x))
	for i := 0; i < s.MaxBracketExpansions; i++ {
		lo, hi := x-delta, x+delta
		flo, err := f(lo)
		if err != nil {
			return 0, 0, err
		}
		if flo == 0 || math.Signbit(flo) != math.Signbit(fx) {
			return lo, x, nil
		}
		fhi, err := f(hi)
		if err != nil {
			return 0, 0, err
		}
		if fhi == 0 || math.Signbit(fhi) != math.Signbit(fx) {
			return x, hi, nil
		}
		delta *= 2
	}
	return 0, 0, dynamo.ErrNoBracket
}

// safeguarded combines Newton steps with bisection inside [lo, hi], using at
// most budget iterations.
func (s *Solver) safeguarded(sys dynamo.System, f func(float64) (float64, error), lo, hi, p float64, budget int) (float64, int, error) {
	flo, err := f(lo)
	if err != nil {
		return 0, 0, err
	}
	if math.Abs(flo) < s.Tolerance {
		return lo, 0, nil
	}
	fhi, err := f(hi)
	if err != nil {
		return 0, 0, err
	}
	if math.Abs(fhi) < s.Tolerance {
		return hi, 0, nil
	}
	// orient so that f(lo) < 0
	if flo > 0 {
		lo, hi = hi, lo
	}

	x := 0.5 * (lo + hi)
	dxOld := math.Abs(hi - lo)
	dx := dxOld
	fx, err := f(x)
	if err != nil {
		return 0, 0, err
	}

	for it := 1; it <= budget; it++ {
		if math.Abs(fx) < s.Tolerance {
			return x, it - 1, nil
		}
		d, err := s.slope(sys, x, p)
		if err != nil {
			return 0, it, err
		}

		newtonOut := ((x-hi)*d-fx)*((x-lo)*d-fx) > 0
		slow := math.Abs(2*fx) > math.Abs(dxOld*d)
		if d == 0 || newtonOut || slow {
			dxOld = dx
			dx = 0.5 * (hi - lo)
			x = lo + dx
		} else {
			dxOld = dx
			dx = fx / d
			x -= dx
		}

		fx, err = f(x)
		if err != nil {
			return 0, it, err
		}
		if fx < 0 {
			lo = x
		} else {
			hi = x
		}
		if math.Abs(hi-lo) <= 4*math.SmallestNonzeroFloat64+1e-16*math.Abs(x) {
			if math.Abs(fx) < s.Tolerance {
				return x, it, nil
			}
			return 0, it, dynamo.ErrNoConvergence
		}
	}
	budget = max(budget, 0)
	if math.Abs(fx) < s.Tolerance {
		return x, budget, nil
	}
	return 0, budget, dynamo.ErrNoConvergence
}

// solveNewton is damped Newton for systems of dimension > 1.
func (s *Solver) solveNewton(sys dynamo.System, x0 dynamo.State, p float64) (dynamo.State, int, error) {
	x := x0.Clone()
	fx, err := dynamo.Evaluate(sys, x, p)
	if err != nil {
		return nil, 0, err
	}

	for it := 0; it < s.MaxIterations; it++ {
		if fx.MaxAbs() < s.Tolerance {
			return x, it, nil
		}

		j, err := dynamo.JacobianAt(sys, x, p, s.FDStep)
		if err != nil {
			return nil, it, err
		}
		dx, err := LinearSolve(j, fx.Scale(-1))
		if err != nil {
			return s.fail(p, x, it, dynamo.ErrNoConvergence)
		}

		norm0 := fx.Norm()
		lambda := 1.0
		var xt, ft dynamo.State
		for k := 0; k < lineSearchSteps; k++ {
			xt = x.Add(dynamo.State(dx).Scale(lambda))
			ft, err = dynamo.Evaluate(sys, xt, p)
			if err != nil {
				return nil, it, err
			}
			if ft.Norm() < (1-1e-4*lambda)*norm0 {
				break
			}
			lambda *= 0.5
		}
		x, fx = xt, ft
	}

	if fx.MaxAbs() < s.Tolerance {
		return x, s.MaxIterations, nil
	}
	return s.fail(p, x, s.MaxIterations, dynamo.ErrNoConvergence)
}

func scalarRate(sys dynamo.System, p float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		r, err := dynamo.Evaluate(sys, dynamo.State{x}, p)
		if err != nil {
			return 0, err
		}
		return r[0], nil
	}
}
