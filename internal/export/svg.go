// Package export renders diagrams and trajectories as standalone SVG.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/seaice/internal/analysis"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/viz"
)

const background = "#0a0a0a"

func header(sb *strings.Builder, width, height int) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)
}

// CanvasToSVG converts a Braille canvas to SVG format
func CanvasToSVG(canvas *viz.Canvas, scale float64, theme viz.Theme) string {
	if canvas == nil {
		return ""
	}

	width := int(float64(canvas.Width) * scale * 2)   // 2 sub-pixels per char
	height := int(float64(canvas.Height) * scale * 4) // 4 sub-pixels per char

	var sb strings.Builder
	header(&sb, width, height)
	fmt.Fprintf(&sb, "<g fill=\"%s\">\n", theme.Primary)

	dotRadius := scale * 0.4
	for py := 0; py < canvas.Height*4; py++ {
		for px := 0; px < canvas.Width*2; px++ {
			if !canvas.IsSet(px, py) {
				continue
			}
			cx := float64(px)*scale + scale/2
			cy := float64(py)*scale + scale/2
			fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, dotRadius)
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// brailleScale is the size in pixels of one Braille dot cell.
const brailleScale = 4

// DiagramToBrailleSVG renders the diagram the way the terminal explorer
// draws it, one dot per Braille pixel, sized to fit width x height.
func DiagramToBrailleSVG(res *analysis.Result, width, height int, theme viz.Theme) string {
	if res == nil {
		return ""
	}
	cols, rows := width/(2*brailleScale), height/(4*brailleScale)
	if cols <= 0 || rows <= 0 {
		return ""
	}
	c := viz.NewCanvas(cols, rows)
	viz.DrawDiagram(c, viz.DiagramViewport(res), res)
	return CanvasToSVG(c, brailleScale, theme)
}

// frame maps data coordinates into an SVG area with a margin for labels.
type frame struct {
	v             viz.Viewport
	width, height float64
	margin        float64
}

func (f frame) point(x, y float64) (float64, float64) {
	w, h := f.width-2*f.margin, f.height-2*f.margin
	px := f.margin + (x-f.v.XMin)/(f.v.XMax-f.v.XMin)*w
	py := f.margin + (f.v.YMax-y)/(f.v.YMax-f.v.YMin)*h
	return px, py
}

func (f frame) axes(sb *strings.Builder, theme viz.Theme, xLabel, yLabel string) {
	fmt.Fprintf(sb, "<rect x=\"%.1f\" y=\"%.1f\" width=\"%.1f\" height=\"%.1f\" fill=\"none\" stroke=\"%s\"/>\n",
		f.margin, f.margin, f.width-2*f.margin, f.height-2*f.margin, theme.Border)
	fmt.Fprintf(sb, "<g fill=\"%s\" font-family=\"monospace\" font-size=\"11\">\n", theme.Muted)
	bottom := f.height - f.margin + 14
	fmt.Fprintf(sb, "<text x=\"%.1f\" y=\"%.1f\">%.4g</text>\n", f.margin, bottom, f.v.XMin)
	fmt.Fprintf(sb, "<text x=\"%.1f\" y=\"%.1f\" text-anchor=\"end\">%.4g</text>\n", f.width-f.margin, bottom, f.v.XMax)
	fmt.Fprintf(sb, "<text x=\"%.1f\" y=\"%.1f\" text-anchor=\"middle\">%s</text>\n", f.width/2, bottom, xLabel)
	fmt.Fprintf(sb, "<text x=\"4\" y=\"%.1f\">%.4g</text>\n", f.margin-4, f.v.YMax)
	fmt.Fprintf(sb, "<text x=\"4\" y=\"%.1f\">%.4g</text>\n", f.height-f.margin-4, f.v.YMin)
	fmt.Fprintf(sb, "<text x=\"4\" y=\"%.1f\">%s</text>\n", f.height/2, yLabel)
	sb.WriteString("</g>\n")
}

func (f frame) path(sb *strings.Builder, pts []dynamo.Equilibrium, stroke string, dashed bool) {
	if len(pts) < 2 {
		return
	}
	dash := ""
	if dashed {
		dash = ` stroke-dasharray="6,4"`
	}
	fmt.Fprintf(sb, "<path fill=\"none\" stroke=\"%s\" stroke-width=\"1.5\"%s d=\"", stroke, dash)
	for i, pt := range pts {
		x, y := f.point(pt.Param, pt.State[0])
		if i == 0 {
			fmt.Fprintf(sb, "M%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")
}

// DiagramToSVG draws every branch in the (parameter, first state) plane.
// Stable stretches are solid, unstable ones dashed, and folds are marked
// with a dot.
func DiagramToSVG(res *analysis.Result, paramName string, width, height int, theme viz.Theme) string {
	if res == nil || width <= 0 || height <= 0 {
		return ""
	}
	f := frame{v: viz.DiagramViewport(res), width: float64(width), height: float64(height), margin: 32}

	var sb strings.Builder
	header(&sb, width, height)
	f.axes(&sb, theme, paramName, "x")

	for _, b := range res.Branches {
		start := 0
		for k := 1; k <= len(b.Points); k++ {
			if k < len(b.Points) && b.Points[k].Stable == b.Points[start].Stable {
				continue
			}
			// share the boundary point so the curve stays connected
			end := min(k+1, len(b.Points))
			seg := b.Points[start:end]
			if b.Points[start].Stable {
				f.path(&sb, seg, string(theme.Stable), false)
			} else {
				f.path(&sb, seg, string(theme.Unstable), true)
			}
			start = k
		}
	}

	fmt.Fprintf(&sb, "<g fill=\"%s\">\n", theme.Event)
	for _, e := range res.Folds() {
		if len(e.State) == 0 {
			continue
		}
		x, y := f.point(e.Param, e.State[0])
		fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"3\"/>\n", x, y)
	}
	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// TrajectoryToSVG plots the first state component of a recorded
// relaxation against time.
func TrajectoryToSVG(times []float64, states []dynamo.State, width, height int, theme viz.Theme) string {
	if len(times) < 2 || len(times) != len(states) {
		return ""
	}

	v := viz.Viewport{XMin: times[0], XMax: times[len(times)-1], YMin: math.Inf(1), YMax: math.Inf(-1)}
	for _, s := range states {
		v.YMin = math.Min(v.YMin, s[0])
		v.YMax = math.Max(v.YMax, s[0])
	}
	pad := 0.1 * (v.YMax - v.YMin)
	if pad == 0 {
		pad = 1
	}
	v.YMin -= pad
	v.YMax += pad
	if v.XMax == v.XMin {
		v.XMax = v.XMin + 1
	}
	f := frame{v: v, width: float64(width), height: float64(height), margin: 32}

	pts := make([]dynamo.Equilibrium, len(times))
	for i := range times {
		pts[i] = dynamo.Equilibrium{Param: times[i], State: states[i]}
	}

	var sb strings.Builder
	header(&sb, width, height)
	f.axes(&sb, theme, "t", "x")
	f.path(&sb, pts, string(theme.Primary), false)
	sb.WriteString("</svg>")
	return sb.String()
}
