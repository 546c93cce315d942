package viz

import (
	"math"
	"strings"

	"github.com/san-kum/seaice/internal/analysis"
)

const brailleBlank = 0x2800

// Braille dot bits, indexed [row][col] inside one 2x4 cell.
var dotBits = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a grid of Braille cells. Pixel coordinates run from (0, 0) at
// the top left to (2*Width-1, 4*Height-1).
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
}

func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return
	}
	c.Grid[y/4][x/2] |= dotBits[y%4][x%2]
}

func (c *Canvas) IsSet(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.Grid[y/4][x/2]&dotBits[y%4][x%2] != 0
}

// Line draws a segment with Bresenham's algorithm.
func (c *Canvas) Line(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := 1, 1
	if x1 < x0 {
		sx = -1
	}
	if y1 < y0 {
		sy = -1
	}
	e := dx - dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 > -dy {
			e -= dy
			x0 += sx
		}
		if e2 < dx {
			e += dx
			y0 += sy
		}
	}
}

// VLine marks a full-height column, used for the parameter cursor.
func (c *Canvas) VLine(x int) {
	for y := 0; y < 4*c.Height; y += 2 {
		c.Set(x, y)
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// Viewport maps data coordinates onto canvas pixels.
type Viewport struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Project returns the pixel for (x, y). Y grows upwards in data space.
func (c *Canvas) Project(v Viewport, x, y float64) (int, int) {
	pw, ph := float64(2*c.Width-1), float64(4*c.Height-1)
	px := (x - v.XMin) / (v.XMax - v.XMin) * pw
	py := (v.YMax - y) / (v.YMax - v.YMin) * ph
	return int(math.Round(px)), int(math.Round(py))
}

// DiagramViewport spans the parameter range of the run and the first state
// component of all branch points, padded by five percent.
func DiagramViewport(res *analysis.Result) Viewport {
	v := Viewport{XMin: res.Config.ParamMin, XMax: res.Config.ParamMax, YMin: math.Inf(1), YMax: math.Inf(-1)}
	for _, b := range res.Branches {
		for _, pt := range b.Points {
			if len(pt.State) == 0 {
				continue
			}
			v.YMin = math.Min(v.YMin, pt.State[0])
			v.YMax = math.Max(v.YMax, pt.State[0])
		}
	}
	if math.IsInf(v.YMin, 0) {
		v.YMin, v.YMax = -1, 1
	}
	pad := 0.05 * (v.YMax - v.YMin)
	if pad == 0 {
		pad = 1
	}
	v.YMin -= pad
	v.YMax += pad
	return v
}

// DrawDiagram draws every branch of res as a polyline in (p, x0).
func DrawDiagram(c *Canvas, v Viewport, res *analysis.Result) {
	for _, b := range res.Branches {
		for k, pt := range b.Points {
			if len(pt.State) == 0 {
				continue
			}
			x, y := c.Project(v, pt.Param, pt.State[0])
			if k == 0 || len(b.Points[k-1].State) == 0 {
				c.Set(x, y)
				continue
			}
			px, py := c.Project(v, b.Points[k-1].Param, b.Points[k-1].State[0])
			c.Line(px, py, x, y)
		}
	}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
