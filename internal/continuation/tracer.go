package continuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/logging"
	"github.com/san-kum/seaice/internal/rootfind"
	"github.com/san-kum/seaice/internal/stability"
)

// Tracer follows equilibria of a system through the parameter range of its
// Config. A Tracer holds no per-branch state and may be shared by goroutines.
type Tracer struct {
	cfg    dynamo.Config
	solver *rootfind.Solver
	logger *slog.Logger
}

type Option func(*Tracer)

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracer) {
		if l != nil {
			t.logger = l
		}
	}
}

func New(cfg dynamo.Config, opts ...Option) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = dynamo.DefaultConfig().MaxPoints
	}
	t := &Tracer{
		cfg:    cfg,
		solver: rootfind.NewSolver(cfg),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Tracer) Config() dynamo.Config { return t.cfg }

// trace is one direction of a branch. tp holds the parameter component of
// the unit tangent at each point and ds the arclength from the previous point.
type trace struct {
	points []dynamo.Equilibrium
	tp     []float64
	ds     []float64
	err    error
}

// Trace follows the branch through start in parameter direction dir (+1 or
// -1). The start state only needs to be close to an equilibrium; it is
// corrected first. Convergence failures end the branch and are recorded in
// Branch.Err; a non-nil error is only returned for fatal model errors,
// configuration errors and context cancellation.
func (t *Tracer) Trace(ctx context.Context, sys dynamo.System, start dynamo.Equilibrium, dir int) (dynamo.Branch, error) {
	first, err := t.correctStart(sys, start)
	if err != nil {
		if dynamo.IsFatal(err) || errors.Is(err, dynamo.ErrInvalidConfig) {
			return dynamo.Branch{}, err
		}
		return dynamo.Branch{Err: err}, nil
	}

	tr, err := t.run(ctx, sys, first, sign(dir))
	if err != nil {
		return dynamo.Branch{}, err
	}
	b := dynamo.Branch{Points: tr.points, Err: tr.err}
	b.Events = detectEvents(tr, 0)
	return b, nil
}

// TraceBoth traces from start in both parameter directions and joins the
// halves into one branch ordered from the decreasing side to the increasing side.
func (t *Tracer) TraceBoth(ctx context.Context, sys dynamo.System, start dynamo.Equilibrium) (dynamo.Branch, error) {
	first, err := t.correctStart(sys, start)
	if err != nil {
		if dynamo.IsFatal(err) || errors.Is(err, dynamo.ErrInvalidConfig) {
			return dynamo.Branch{}, err
		}
		return dynamo.Branch{Err: err}, nil
	}

	back, err := t.run(ctx, sys, first, -1)
	if err != nil {
		return dynamo.Branch{}, err
	}
	fwd, err := t.run(ctx, sys, first, +1)
	if err != nil {
		return dynamo.Branch{}, err
	}

	joined := join(back, fwd)
	b := dynamo.Branch{
		Points: joined.points,
		Err:    errors.Join(back.err, fwd.err),
	}
	b.Events = detectEvents(joined, 0)
	return b, nil
}

func (t *Tracer) correctStart(sys dynamo.System, start dynamo.Equilibrium) (dynamo.Equilibrium, error) {
	if !t.cfg.InRange(start.Param) {
		return dynamo.Equilibrium{}, fmt.Errorf("%w: start parameter %g outside [%g, %g]", dynamo.ErrInvalidConfig, start.Param, t.cfg.ParamMin, t.cfg.ParamMax)
	}
	x, _, err := t.solver.Solve(sys, start.State, start.Param)
	if err != nil {
		return dynamo.Equilibrium{}, err
	}
	return stability.Point(sys, x, start.Param, t.cfg.FDStep)
}

func (t *Tracer) run(ctx context.Context, sys dynamo.System, first dynamo.Equilibrium, dir int) (trace, error) {
	if t.cfg.Method == dynamo.MethodNatural {
		return t.natural(ctx, sys, first, dir)
	}
	return t.arclength(ctx, sys, first, dir)
}

func (t *Tracer) bound(dir int) float64 {
	if dir > 0 {
		return t.cfg.ParamMax
	}
	return t.cfg.ParamMin
}

func (t *Tracer) atBound(p float64, dir int) bool {
	return math.Abs(t.bound(dir)-p) <= t.cfg.MinStep*1e-3
}

func (t *Tracer) stalled(p float64, err error) error {
	t.logger.Debug("continuation stalled", "param", p, "min_step", t.cfg.MinStep, "err", err)
	return &dynamo.SolveError{Param: p, Wrapped: fmt.Errorf("%w: %w", dynamo.ErrContinuationStalled, err)}
}

// natural steps the parameter and corrects the state at each fixed value,
// using the previous state as the predictor.
func (t *Tracer) natural(ctx context.Context, sys dynamo.System, first dynamo.Equilibrium, dir int) (trace, error) {
	tr := trace{
		points: []dynamo.Equilibrium{first},
		tp:     []float64{float64(dir)},
		ds:     []float64{0},
	}
	h := t.cfg.ParamStep
	cur := first

	for len(tr.points) < t.cfg.MaxPoints && !t.atBound(cur.Param, dir) {
		if err := ctx.Err(); err != nil {
			return tr, err
		}

		step := math.Min(h, math.Abs(t.bound(dir)-cur.Param))
		p := cur.Param + float64(dir)*step
		if t.atBound(p, dir) {
			p = t.bound(dir)
		}

		x, _, err := t.solver.Solve(sys, cur.State, p)
		if err != nil {
			if dynamo.IsFatal(err) {
				return tr, err
			}
			if step <= t.cfg.MinStep {
				tr.err = t.stalled(cur.Param, err)
				return tr, nil
			}
			h = math.Max(step/2, t.cfg.MinStep)
			continue
		}

		eq, err := stability.Point(sys, x, p, t.cfg.FDStep)
		if err != nil {
			return tr, err
		}
		tr.points = append(tr.points, eq)
		tr.tp = append(tr.tp, float64(dir))
		tr.ds = append(tr.ds, distance(cur, eq))
		t.logger.Log(ctx, logging.LevelTrace, "step accepted", "param", eq.Param, "h", step, "stable", eq.Stable)
		cur = eq
		h = math.Min(2*h, t.cfg.ParamStep)
	}
	return tr, nil
}

// arclength runs pseudo-arclength continuation in (x, p), which follows
// the branch around folds.
func (t *Tracer) arclength(ctx context.Context, sys dynamo.System, first dynamo.Equilibrium, dir int) (trace, error) {
	n := len(first.State)
	ref := make([]float64, n+1)
	ref[n] = float64(dir)

	tan, err := t.tangent(sys, first, ref)
	if err != nil {
		return trace{}, err
	}

	tr := trace{
		points: []dynamo.Equilibrium{first},
		tp:     []float64{tan[n]},
		ds:     []float64{0},
	}
	if t.atBound(first.Param, dir) && tan[n]*float64(dir) > 0 {
		return tr, nil
	}

	h := t.cfg.ParamStep
	cur := first
	for len(tr.points) < t.cfg.MaxPoints {
		if err := ctx.Err(); err != nil {
			return tr, err
		}

		pred := make([]float64, n+1)
		for i := 0; i < n; i++ {
			pred[i] = cur.State[i] + h*tan[i]
		}
		pred[n] = cur.Param + h*tan[n]

		y, err := t.correct(sys, pred, tan)
		if err == nil {
			dp := math.Abs(y[n] - cur.Param)
			dist := math.Hypot(dynamo.State(y[:n]).Sub(cur.State).Norm(), dp)
			switch {
			case dp > t.cfg.ParamStep*(1+1e-12) && dist <= 2*h && h > t.cfg.MinStep:
				// the corrector drifted past the parameter step; shrink
				// the arc so the next prediction lands inside it
				h = math.Max(0.9*h*t.cfg.ParamStep/dp, t.cfg.MinStep)
				continue
			case dp > t.cfg.ParamStep*(1+1e-12) || dist > 2*h:
				err = fmt.Errorf("%w: step of %.3g overshot", dynamo.ErrNoConvergence, dist)
			}
		}
		if err != nil {
			if dynamo.IsFatal(err) {
				return tr, err
			}
			if h <= t.cfg.MinStep {
				tr.err = t.stalled(cur.Param, err)
				return tr, nil
			}
			h = math.Max(h/2, t.cfg.MinStep)
			continue
		}

		if !t.cfg.InRange(y[n]) {
			end, ok, err := t.land(sys, cur, y)
			if err != nil {
				return tr, err
			}
			if ok {
				tr.points = append(tr.points, end)
				tr.tp = append(tr.tp, tan[n])
				tr.ds = append(tr.ds, distance(cur, end))
			}
			return tr, nil
		}

		eq, err := stability.Point(sys, dynamo.State(y[:n]), y[n], t.cfg.FDStep)
		if err != nil {
			return tr, err
		}
		next, err := t.tangent(sys, eq, tan)
		if err != nil {
			if dynamo.IsFatal(err) {
				return tr, err
			}
			tr.err = t.stalled(eq.Param, err)
			return tr, nil
		}

		tr.points = append(tr.points, eq)
		tr.tp = append(tr.tp, next[n])
		tr.ds = append(tr.ds, distance(cur, eq))
		t.logger.Log(ctx, logging.LevelTrace, "step accepted", "param", eq.Param, "h", h, "stable", eq.Stable)
		cur, tan = eq, next
		h = math.Min(2*h, t.cfg.ParamStep)
	}
	return tr, nil
}

// tangent solves [J f_p; ref] t = e_{n+1}, normalises t and orients it
// along ref.
func (t *Tracer) tangent(sys dynamo.System, eq dynamo.Equilibrium, ref []float64) ([]float64, error) {
	n := len(eq.State)
	a, err := t.augmented(sys, eq.State, eq.Param, ref)
	if err != nil {
		return nil, err
	}
	rhs := make([]float64, n+1)
	rhs[n] = 1

	tan, err := rootfind.LinearSolve(a, rhs)
	if err != nil {
		// ref is orthogonal to the branch, as when starting exactly on a
		// fold; take the kernel of [J f_p] directly
		tan, err = rootfind.NullVector(a[:n])
		if err != nil {
			return nil, fmt.Errorf("%w: tangent at p=%g: %w", dynamo.ErrNoConvergence, eq.Param, err)
		}
	}
	norm := dynamo.State(tan).Norm()
	dot, lead, sum := 0.0, 0, 0.0
	for i := range tan {
		tan[i] /= norm
		dot += tan[i] * ref[i]
		sum += ref[i]
		if math.Abs(tan[i]) > math.Abs(tan[lead]) {
			lead = i
		}
	}
	if math.Abs(dot) < 1e-12 {
		dot = tan[lead] * sum
	}
	if dot < 0 {
		for i := range tan {
			tan[i] = -tan[i]
		}
	}
	return tan, nil
}

// correct runs Newton on {f(x, p) = 0, tan·(y - pred) = 0}.
func (t *Tracer) correct(sys dynamo.System, pred, tan []float64) ([]float64, error) {
	n := len(pred) - 1
	y := append([]float64(nil), pred...)

	for it := 0; it <= t.cfg.MaxIterations; it++ {
		f, err := dynamo.Evaluate(sys, dynamo.State(y[:n]), y[n])
		if err != nil {
			return nil, err
		}
		if f.MaxAbs() < t.cfg.Tolerance {
			return y, nil
		}
		if it == t.cfg.MaxIterations {
			break
		}

		a, err := t.augmented(sys, dynamo.State(y[:n]), y[n], tan)
		if err != nil {
			return nil, err
		}
		rhs := make([]float64, n+1)
		for i := 0; i < n; i++ {
			rhs[i] = -f[i]
		}
		for i := range y {
			rhs[n] -= tan[i] * (y[i] - pred[i])
		}

		dy, err := rootfind.LinearSolve(a, rhs)
		if err != nil {
			return nil, &dynamo.SolveError{Param: y[n], State: dynamo.State(y[:n]).Clone(), Iterations: it, Wrapped: dynamo.ErrNoConvergence}
		}
		for i := range y {
			y[i] += dy[i]
		}
	}
	return nil, &dynamo.SolveError{Param: y[n], State: dynamo.State(y[:n]).Clone(), Iterations: t.cfg.MaxIterations, Wrapped: dynamo.ErrNoConvergence}
}

func (t *Tracer) augmented(sys dynamo.System, x dynamo.State, p float64, last []float64) ([][]float64, error) {
	n := len(x)
	j, err := dynamo.JacobianAt(sys, x, p, t.cfg.FDStep)
	if err != nil {
		return nil, err
	}
	fp, err := dynamo.ParamDerivativeAt(sys, x, p, t.cfg.FDStep)
	if err != nil {
		return nil, err
	}
	a := make([][]float64, n+1)
	for i := 0; i < n; i++ {
		a[i] = make([]float64, n+1)
		copy(a[i], j[i])
		a[i][n] = fp[i]
	}
	a[n] = append([]float64(nil), last...)
	return a, nil
}

// land closes a branch that left the parameter range by solving at the
// boundary from an interpolated guess.
func (t *Tracer) land(sys dynamo.System, cur dynamo.Equilibrium, y []float64) (dynamo.Equilibrium, bool, error) {
	n := len(cur.State)
	pb := t.cfg.ParamMax
	if y[n] < t.cfg.ParamMin {
		pb = t.cfg.ParamMin
	}
	if math.Abs(pb-cur.Param) <= t.cfg.MinStep*1e-3 {
		return dynamo.Equilibrium{}, false, nil
	}

	alpha := (pb - cur.Param) / (y[n] - cur.Param)
	guess := make(dynamo.State, n)
	for i := range guess {
		guess[i] = cur.State[i] + alpha*(y[i]-cur.State[i])
	}

	x, _, err := t.solver.Solve(sys, guess, pb)
	if err != nil {
		if dynamo.IsFatal(err) {
			return dynamo.Equilibrium{}, false, err
		}
		t.logger.Debug("could not land on range boundary", "param", pb, "err", err)
		return dynamo.Equilibrium{}, false, nil
	}
	eq, err := stability.Point(sys, x, pb, t.cfg.FDStep)
	if err != nil {
		return dynamo.Equilibrium{}, false, err
	}
	return eq, true, nil
}

func join(back, fwd trace) trace {
	out := trace{err: errors.Join(back.err, fwd.err)}
	for i := len(back.points) - 1; i >= 1; i-- {
		out.points = append(out.points, back.points[i])
		out.tp = append(out.tp, -back.tp[i])
	}
	// distances are stored against the previous point, so shift them when
	// reversing the backward half
	for i := len(back.points) - 1; i >= 1; i-- {
		if i == len(back.points)-1 {
			out.ds = append(out.ds, 0)
			continue
		}
		out.ds = append(out.ds, back.ds[i+1])
	}
	out.points = append(out.points, fwd.points...)
	out.tp = append(out.tp, fwd.tp...)
	if len(back.points) > 1 {
		out.ds = append(out.ds, back.ds[1])
	} else {
		out.ds = append(out.ds, 0)
	}
	out.ds = append(out.ds, fwd.ds[1:]...)
	return out
}

func distance(a, b dynamo.Equilibrium) float64 {
	return math.Hypot(b.State.Sub(a.State).Norm(), b.Param-a.Param)
}

func sign(dir int) int {
	if dir < 0 {
		return -1
	}
	return 1
}
