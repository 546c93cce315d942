package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/seaice/internal/continuation"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/logging"
)

// Result is a bifurcation diagram: the distinct branches through the
// parameter range, their events and, for one-dimensional systems, the
// grid scan used to seed them.
type Result struct {
	Config   dynamo.Config
	Slices   []Slice
	Branches []dynamo.Branch
	Events   []dynamo.Event
}

// Folds returns the fold events of all branches.
func (r *Result) Folds() []dynamo.Event {
	var out []dynamo.Event
	for _, e := range r.Events {
		if e.Kind == dynamo.Fold {
			out = append(out, e)
		}
	}
	return out
}

// Points is the total number of equilibria over all branches.
func (r *Result) Points() int {
	n := 0
	for _, b := range r.Branches {
		n += b.Len()
	}
	return n
}

// Crossings returns the points where the branches pass through parameter
// p, interpolated linearly between neighbouring equilibria. Each crossing
// takes the stability of the nearer neighbour.
func (r *Result) Crossings(p float64) []dynamo.Equilibrium {
	var out []dynamo.Equilibrium
	for _, b := range r.Branches {
		for k := 1; k < len(b.Points); k++ {
			a, c := b.Points[k-1], b.Points[k]
			lo, hi := math.Min(a.Param, c.Param), math.Max(a.Param, c.Param)
			if p < lo || p > hi || (p == c.Param && k < len(b.Points)-1) {
				continue
			}
			t := 0.0
			if hi > lo {
				t = (p - a.Param) / (c.Param - a.Param)
			}
			near := a
			if t > 0.5 {
				near = c
			}
			state := make(dynamo.State, len(a.State))
			for i := range state {
				state[i] = a.State[i] + t*(c.State[i]-a.State[i])
			}
			out = append(out, dynamo.Equilibrium{
				Param:       p,
				State:       state,
				Stable:      near.Stable,
				Eigenvalues: near.Eigenvalues,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].State[0] < out[j].State[0] })
	return out
}

// Diagram traces a branch through every seed and keeps the distinct ones.
// Without explicit seeds a one-dimensional system is scanned and seeded
// from the scan. Seeds are traced concurrently, at most cfg.Workers at a
// time; branch ids and ordering follow the seed order, so the result does
// not depend on scheduling.
func Diagram(ctx context.Context, sys dynamo.System, cfg dynamo.Config, seeds []dynamo.Equilibrium, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	tracer, err := continuation.New(cfg, continuation.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	res := &Result{Config: tracer.Config()}
	if sys.StateDim() == 1 {
		res.Slices, err = Scan(sys, cfg)
		if err != nil {
			return nil, err
		}
		if len(seeds) == 0 {
			seeds = SeedsFromScan(res.Slices)
		}
		logger.Debug("scan complete", "slices", len(res.Slices), "seeds", len(seeds))
	} else if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: a %d-dimensional system needs explicit seeds", dynamo.ErrInvalidConfig, sys.StateDim())
	}
	for i, s := range seeds {
		if len(s.State) != sys.StateDim() {
			return nil, fmt.Errorf("%w: seed %d has %d components, want %d", dynamo.ErrDimensionMismatch, i, len(s.State), sys.StateDim())
		}
	}

	traced := make([]dynamo.Branch, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, seed := range seeds {
		g.Go(func() error {
			b, err := tracer.TraceBoth(gctx, sys, seed)
			if err != nil {
				return fmt.Errorf("seed %d at p=%g: %w", i, seed.Param, err)
			}
			traced[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	gap := cfg.ParamStep
	for i, b := range traced {
		if b.Len() == 0 {
			logger.Debug("seed did not converge", "seed", i, "param", seeds[i].Param, "err", b.Err)
			continue
		}
		if duplicate(res.Branches, b, gap) {
			logger.Debug("seed lies on a known branch", "seed", i, "param", seeds[i].Param)
			continue
		}
		b = b.WithID(len(res.Branches))
		res.Branches = append(res.Branches, b)
		res.Events = append(res.Events, b.Events...)
		logger.Debug("branch traced", "branch", b.ID, "points", b.Len(), "events", len(b.Events), "err", b.Err)
	}
	res.Events = append(res.Events, CountEvents(res.Slices)...)

	logger.Info("diagram complete", "branches", len(res.Branches), "points", res.Points(), "events", len(res.Events))
	return res, nil
}

// duplicate reports whether the ends and the middle of b all lie on one of
// the accepted branches.
func duplicate(accepted []dynamo.Branch, b dynamo.Branch, gap float64) bool {
	probes := []dynamo.Equilibrium{b.Points[0], b.Points[b.Len()/2], b.Points[b.Len()-1]}
	for _, a := range accepted {
		on := true
		for _, q := range probes {
			if distanceToBranch(a, q) > gap {
				on = false
				break
			}
		}
		if on {
			return true
		}
	}
	return false
}

// distanceToBranch is the distance in (x, p) from q to the polyline of b.
func distanceToBranch(b dynamo.Branch, q dynamo.Equilibrium) float64 {
	best := math.Inf(1)
	if b.Len() == 1 {
		return pointDistance(b.Points[0], q)
	}
	for i := 1; i < b.Len(); i++ {
		best = math.Min(best, segmentDistance(b.Points[i-1], b.Points[i], q))
	}
	return best
}

func segmentDistance(a, b, q dynamo.Equilibrium) float64 {
	ab := append(b.State.Sub(a.State), b.Param-a.Param)
	aq := append(q.State.Sub(a.State), q.Param-a.Param)
	den := dot(ab, ab)
	t := 0.0
	if den > 0 {
		t = math.Max(0, math.Min(1, dot(aq, ab)/den))
	}
	d := 0.0
	for i := range ab {
		r := aq[i] - t*ab[i]
		d += r * r
	}
	return math.Sqrt(d)
}

func pointDistance(a, q dynamo.Equilibrium) float64 {
	return math.Hypot(q.State.Sub(a.State).Norm(), q.Param-a.Param)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
