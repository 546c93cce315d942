package analysis

import (
	"math"
	"strings"

	"github.com/san-kum/seaice/internal/dynamo"
)

const (
	stableMark   = '•'
	unstableMark = '·'
	eventMark    = '×'
)

// RenderASCII draws the first state component of every branch against the
// parameter. Stable equilibria are drawn solid, unstable ones dotted, and
// fold and stability events are marked on top.
func RenderASCII(res *Result, width, height int) string {
	if res == nil || len(res.Branches) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	// Find value range - need at least one valid value
	var minVal, maxVal float64
	foundFirst := false
	for _, b := range res.Branches {
		for _, pt := range b.Points {
			v := pt.State[0]
			if !foundFirst {
				minVal, maxVal = v, v
				foundFirst = true
				continue
			}
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if !foundFirst {
		return ""
	}
	if maxVal == minVal {
		maxVal = minVal + 1
	}
	pMin, pMax := res.Config.ParamMin, res.Config.ParamMax

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	cell := func(p, v float64) (int, int, bool) {
		col := int((p - pMin) / (pMax - pMin) * float64(width-1))
		row := height - 1 - int((v-minVal)/(maxVal-minVal)*float64(height-1))
		return row, col, row >= 0 && row < height && col >= 0 && col < width
	}

	for _, b := range res.Branches {
		for _, pt := range b.Points {
			row, col, ok := cell(pt.Param, pt.State[0])
			if !ok {
				continue
			}
			// a stable point wins a shared cell
			if pt.Stable || canvas[row][col] != stableMark {
				canvas[row][col] = mark(pt)
			}
		}
	}
	for _, e := range res.Events {
		if e.Kind == dynamo.CountChange || len(e.State) == 0 {
			continue
		}
		if row, col, ok := cell(e.Param, e.State[0]); ok {
			canvas[row][col] = eventMark
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

func mark(e dynamo.Equilibrium) rune {
	if e.Stable {
		return stableMark
	}
	return unstableMark
}
