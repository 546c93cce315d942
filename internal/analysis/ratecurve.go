package analysis

import (
	"fmt"
	"strings"

	"github.com/san-kum/seaice/internal/dynamo"
)

// RateCurve holds samples of the rate f(x; p) of a one-dimensional system
// at a fixed parameter. Its zero crossings are the equilibria.
type RateCurve struct {
	Param  float64
	Points []struct{ X, Y float64 }
}

// Windowed is implemented by models that know the state range their
// equilibria lie in.
type Windowed interface {
	DefaultWindow() (lo, hi float64)
}

// StateWindow returns the model's own window when it has one, otherwise the
// scan window of cfg.
func StateWindow(sys dynamo.System, cfg dynamo.Config) (float64, float64) {
	if w, ok := sys.(Windowed); ok {
		if lo, hi := w.DefaultWindow(); lo < hi {
			return lo, hi
		}
	}
	return cfg.StateMin, cfg.StateMax
}

// SampleRate evaluates the rate at n evenly spaced states in [lo, hi].
func SampleRate(sys dynamo.System, p, lo, hi float64, n int) (*RateCurve, error) {
	if sys.StateDim() != 1 {
		return nil, fmt.Errorf("%w: rate curve needs a one-dimensional system, got %d", dynamo.ErrDimensionMismatch, sys.StateDim())
	}
	if n < 2 || !(lo < hi) {
		return nil, fmt.Errorf("%w: need n >= 2 samples on a non-empty interval", dynamo.ErrInvalidConfig)
	}

	curve := &RateCurve{
		Param:  p,
		Points: make([]struct{ X, Y float64 }, 0, n),
	}
	dx := (hi - lo) / float64(n-1)
	for k := 0; k < n; k++ {
		x := lo + float64(k)*dx
		f, err := dynamo.Evaluate(sys, dynamo.State{x}, p)
		if err != nil {
			return nil, err
		}
		curve.Points = append(curve.Points, struct{ X, Y float64 }{X: x, Y: f[0]})
	}
	return curve, nil
}

// Values returns the sampled rates in order.
func (c *RateCurve) Values() []float64 {
	ys := make([]float64, len(c.Points))
	for i, pt := range c.Points {
		ys[i] = pt.Y
	}
	return ys
}

// Extrema returns index pairs (i, i+1) where the sampled rate turns from
// rising to falling or back. Equilibria appear or vanish in pairs when the
// parameter lifts an extremum through zero.
func (c *RateCurve) Extrema() [][2]int {
	if len(c.Points) < 3 {
		return nil
	}
	var res [][2]int
	rising := c.Points[1].Y-c.Points[0].Y >= 0
	for i := 1; i < len(c.Points)-1; i++ {
		d := c.Points[i+1].Y - c.Points[i].Y
		if (rising && d < 0) || (!rising && d > 0) {
			res = append(res, [2]int{i, i + 1})
			rising = !rising
		}
	}
	return res
}

// RateCurveToASCII plots the curve with the f = 0 axis drawn through it.
func RateCurveToASCII(c *RateCurve, width, height int) string {
	if c == nil || len(c.Points) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	minX, maxX := c.Points[0].X, c.Points[0].X
	minY, maxY := c.Points[0].Y, c.Points[0].Y
	for _, p := range c.Points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			canvas[row][col] = '─'
		}
	}

	for _, p := range c.Points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = stableMark
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
