package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/rootfind"
	"github.com/san-kum/seaice/internal/stability"
)

// Slice holds every equilibrium found at one parameter value, ordered by
// state.
type Slice struct {
	Param      float64
	Equilibria []dynamo.Equilibrium
}

// Scan finds all equilibria of a one-dimensional system inside
// [StateMin, StateMax] at each value of the parameter grid. Each slice
// samples the rate, brackets sign changes and refines every bracket.
func Scan(sys dynamo.System, cfg dynamo.Config) ([]Slice, error) {
	if sys.StateDim() != 1 {
		return nil, fmt.Errorf("%w: scan needs a one-dimensional system, got %d", dynamo.ErrDimensionMismatch, sys.StateDim())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateScan(); err != nil {
		return nil, err
	}

	grid := cfg.ParamGrid()
	slices := make([]Slice, len(grid))
	errs := make([]error, len(grid))

	dynamo.ParallelFor(len(grid), 8, func(start, end int) {
		for i := start; i < end; i++ {
			slices[i], errs[i] = scanSlice(sys, cfg, grid[i])
		}
	})

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return slices, nil
}

// SliceAt finds the equilibria of a one-dimensional system at a single
// parameter value.
func SliceAt(sys dynamo.System, cfg dynamo.Config, p float64) (Slice, error) {
	if sys.StateDim() != 1 {
		return Slice{}, fmt.Errorf("%w: scan needs a one-dimensional system, got %d", dynamo.ErrDimensionMismatch, sys.StateDim())
	}
	if err := cfg.ValidateScan(); err != nil {
		return Slice{}, err
	}
	return scanSlice(sys, cfg, p)
}

func scanSlice(sys dynamo.System, cfg dynamo.Config, p float64) (Slice, error) {
	n := cfg.StateSamples
	dx := (cfg.StateMax - cfg.StateMin) / float64(n-1)
	xs := make([]float64, n)
	values := make([]float64, n)
	for k := range xs {
		xs[k] = cfg.StateMin + float64(k)*dx
		f, err := dynamo.Evaluate(sys, dynamo.State{xs[k]}, p)
		if err != nil {
			return Slice{}, err
		}
		values[k] = f[0]
	}

	slice := Slice{Param: p}
	for _, br := range rootfind.Brackets(values) {
		x, err := refine(sys, cfg, p, xs[br[0]], xs[br[1]])
		if err != nil {
			if dynamo.IsFatal(err) {
				return Slice{}, err
			}
			continue
		}
		eq, err := stability.Point(sys, dynamo.State{x}, p, cfg.FDStep)
		if err != nil {
			return Slice{}, err
		}
		slice.Equilibria = append(slice.Equilibria, eq)
	}
	return slice, nil
}

// refine polishes a bracketed root with the secant method and falls back
// to bisection if the secant iterate leaves the bracket.
func refine(sys dynamo.System, cfg dynamo.Config, p, lo, hi float64) (float64, error) {
	if lo == hi {
		return lo, nil
	}
	f := func(x float64) float64 { return sys.Rate(dynamo.State{x}, p)[0] }

	x, err := rootfind.Secant(f, lo, hi, cfg.Tolerance, cfg.MaxIterations)
	if err == nil && x >= lo && x <= hi {
		return x, nil
	}
	if errors.Is(err, dynamo.ErrInvalidModel) {
		return 0, &dynamo.SolveError{Param: p, State: dynamo.State{0.5 * (lo + hi)}, Wrapped: err}
	}

	// bisection halves the bracket every step, so cap it by float resolution
	iters := cfg.MaxIterations + int(math.Log2((hi-lo)/cfg.Tolerance)+1)
	x, err = rootfind.Bisect(f, lo, hi, cfg.Tolerance, max(iters, 64))
	if err != nil {
		return 0, &dynamo.SolveError{Param: p, State: dynamo.State{0.5 * (lo + hi)}, Wrapped: err}
	}
	return x, nil
}

// CountEvents reports a CountChange wherever consecutive slices hold a
// different number of equilibria, placed midway between them.
func CountEvents(slices []Slice) []dynamo.Event {
	var events []dynamo.Event
	for i := 1; i < len(slices); i++ {
		before, after := len(slices[i-1].Equilibria), len(slices[i].Equilibria)
		if before == after {
			continue
		}
		events = append(events, dynamo.Event{
			Kind:   dynamo.CountChange,
			Param:  0.5 * (slices[i-1].Param + slices[i].Param),
			Branch: -1,
			Before: before,
			After:  after,
		})
	}
	return events
}

// SeedsFromScan picks continuation seeds from a scan: every equilibrium of
// the first slice and of each slice where the count goes up.
func SeedsFromScan(slices []Slice) []dynamo.Equilibrium {
	var seeds []dynamo.Equilibrium
	prev := 0
	for i, s := range slices {
		if i == 0 || len(s.Equilibria) > prev {
			seeds = append(seeds, s.Equilibria...)
		}
		prev = len(s.Equilibria)
	}
	return seeds
}
