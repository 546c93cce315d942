// Package optim searches model constants for the diagram that scores best,
// for example the widest hysteresis loop.
package optim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/experiment"
)

// Score rates a finished run. Higher is better unless the search minimises.
type Score func(run *experiment.Run) float64

// Scores are the named objectives the command line offers.
var Scores = map[string]Score{
	"hysteresis-width": HysteresisWidth,
	"folds":            FoldCount,
	"stable-fraction":  StableFraction,
}

// HysteresisWidth is the distance between the outermost fold parameters,
// zero with fewer than two folds.
func HysteresisWidth(run *experiment.Run) float64 {
	folds := run.Result.Folds()
	if len(folds) < 2 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, f := range folds {
		lo = math.Min(lo, f.Param)
		hi = math.Max(hi, f.Param)
	}
	return hi - lo
}

func FoldCount(run *experiment.Run) float64 {
	return float64(len(run.Result.Folds()))
}

// StableFraction is the share of traced points that are stable.
func StableFraction(run *experiment.Run) float64 {
	total, stable := 0, 0
	for _, b := range run.Result.Branches {
		for _, pt := range b.Points {
			total++
			if pt.Stable {
				stable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(stable) / float64(total)
}

// ScoreNames lists Scores in a stable order.
func ScoreNames() []string {
	names := make([]string, 0, len(Scores))
	for name := range Scores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cell is one point of the grid. Err is set when the run failed; such
// cells never win.
type Cell struct {
	Params map[string]float64
	Score  float64
	Run    *experiment.Run
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	Minimize   bool
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search runs one experiment per grid cell, in row-major order of the
// parameters. It returns every cell and the best scoring one.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	score Score,
) ([]Cell, Cell, error) {
	if len(g.paramNames) == 0 || len(g.paramNames) != len(g.ranges) {
		return nil, Cell{}, fmt.Errorf("%w: %d parameter names for %d ranges", dynamo.ErrInvalidConfig, len(g.paramNames), len(g.ranges))
	}
	for i, r := range g.ranges {
		if len(r) == 0 {
			return nil, Cell{}, fmt.Errorf("%w: no values for %s", dynamo.ErrInvalidConfig, g.paramNames[i])
		}
	}

	var cells []Cell
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), buildExperiment, score, &cells); err != nil {
		return cells, Cell{}, err
	}

	best := -1
	for i, c := range cells {
		if c.Err != nil {
			continue
		}
		if best < 0 || g.better(c.Score, cells[best].Score) {
			best = i
		}
	}
	if best < 0 {
		return cells, Cell{}, fmt.Errorf("all %d grid cells failed: %w", len(cells), cells[0].Err)
	}
	return cells, cells[best], nil
}

func (g *GridSearch) better(a, b float64) bool {
	if g.Minimize {
		return a < b
	}
	return a > b
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	score Score,
	cells *[]Cell,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		cell := Cell{Params: current}
		exp, err := buildExperiment(current)
		if err != nil {
			cell.Err = err
			*cells = append(*cells, cell)
			return nil
		}

		run, err := exp.Run(ctx)
		if err != nil {
			cell.Err = err
			*cells = append(*cells, cell)
			return nil
		}
		cell.Run = run
		cell.Score = score(run)
		*cells = append(*cells, cell)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, buildExperiment, score, cells); err != nil {
			return err
		}
	}
	return nil
}
