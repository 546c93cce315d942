package viz

import (
	"math"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/seaice/internal/analysis"
	"github.com/san-kum/seaice/internal/dynamo"
)

// run is a stretch of a branch on which the parameter is monotone and the
// stability does not change, so it is a function of p.
type run struct {
	points []dynamo.Equilibrium
	stable bool
}

func splitRuns(pts []dynamo.Equilibrium) []run {
	if len(pts) == 0 {
		return nil
	}
	var runs []run
	start, stable, dir := 0, pts[0].Stable, 0.0
	for k := 1; k < len(pts); k++ {
		d := pts[k].Param - pts[k-1].Param
		if (dir != 0 && d*dir < 0) || pts[k].Stable != stable {
			runs = append(runs, run{pts[start:k], stable})
			start, dir = k-1, 0
			stable = pts[k].Stable
		}
		if d != 0 {
			dir = d
		}
	}
	return append(runs, run{pts[start:], stable})
}

// resample interpolates x0 of a monotone run onto n parameter columns
// spanning [lo, hi]. Columns outside the run are NaN. It returns nil when
// no column is covered.
func resample(pts []dynamo.Equilibrium, lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	col := func(p float64) float64 { return (p - lo) / (hi - lo) * float64(n-1) }

	covered := false
	if len(pts) == 1 {
		c := int(math.Round(col(pts[0].Param)))
		if c >= 0 && c < n {
			out[c] = pts[0].State[0]
			covered = true
		}
	}
	for j := 1; j < len(pts); j++ {
		a, b := pts[j-1], pts[j]
		ca, cb := col(a.Param), col(b.Param)
		if ca > cb {
			ca, cb = cb, ca
			a, b = b, a
		}
		for c := int(math.Ceil(ca)); float64(c) <= cb; c++ {
			if c < 0 || c >= n {
				continue
			}
			t := 0.0
			if cb > ca {
				t = (float64(c) - ca) / (cb - ca)
			}
			out[c] = a.State[0] + t*(b.State[0]-a.State[0])
			covered = true
		}
	}
	if !covered {
		return nil
	}
	return out
}

// Preview plots x0 of every branch against the parameter, width columns
// wide. Stable runs are drawn green, unstable runs red.
func Preview(res *analysis.Result, width, height int, caption string) string {
	if res == nil || width < 2 {
		return ""
	}
	lo, hi := res.Config.ParamMin, res.Config.ParamMax

	var series [][]float64
	var colors []asciigraph.AnsiColor
	for _, b := range res.Branches {
		if b.Len() == 0 || len(b.Points[0].State) == 0 {
			continue
		}
		for _, r := range splitRuns(b.Points) {
			s := resample(r.points, lo, hi, width)
			if s == nil {
				continue
			}
			series = append(series, s)
			if r.stable {
				colors = append(colors, asciigraph.Green)
			} else {
				colors = append(colors, asciigraph.Red)
			}
		}
	}
	if len(series) == 0 {
		return ""
	}

	return asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colors...),
	)
}
