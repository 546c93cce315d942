package integrators

import (
	"math"

	"github.com/san-kum/seaice/internal/dynamo"
)

// Dormand-Prince coefficients (RK45)
var (
	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64
	tol      float64
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
		tol:      1e-6,
	}
}

func (r *RK45) Step(sys dynamo.System, x dynamo.State, p, dt float64) (dynamo.State, error) {
	newX, _, _, err := r.StepAdaptive(sys, x, p, dt, r.tol)
	return newX, err
}

// combine returns x + dt*sum(w[i]*k[i]).
func combine(x dynamo.State, dt float64, w []float64, k []dynamo.State) dynamo.State {
	out := make(dynamo.State, len(x))
	for i := range x {
		s := 0.0
		for j, wj := range w {
			s += wj * k[j][i]
		}
		out[i] = x[i] + dt*s
	}
	return out
}

// StepAdaptive takes one Dormand-Prince step and proposes the next step
// size. ok is false when the local error estimate exceeds tol; the caller
// should then retry from x with the proposed step.
func (r *RK45) StepAdaptive(sys dynamo.System, x dynamo.State, p, dt, tol float64) (dynamo.State, float64, bool, error) {
	n := len(x)
	rows := [][]float64{
		{b21},
		{b31, b32},
		{b41, b42, b43},
		{b51, b52, b53, b54},
		{b61, b62, b63, b64, b65},
	}

	k := make([]dynamo.State, 7)
	var err error
	if k[0], err = dynamo.Evaluate(sys, x, p); err != nil {
		return nil, dt, false, err
	}
	for s, w := range rows {
		if k[s+1], err = dynamo.Evaluate(sys, combine(x, dt, w, k[:s+1]), p); err != nil {
			return nil, dt, false, err
		}
	}

	xNew := combine(x, dt, []float64{c1, 0, c3, c4, c5, c6}, k[:6])
	if k[6], err = dynamo.Evaluate(sys, xNew, p); err != nil {
		return nil, dt, false, err
	}

	errMax := 0.0
	for i := 0; i < n; i++ {
		errEst := dt * (dc1*k[0][i] + dc3*k[2][i] + dc4*k[3][i] + dc5*k[4][i] + dc6*k[5][i] + dc7*k[6][i])
		scale := math.Abs(x[i]) + math.Abs(dt*k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(errEst)/scale)
	}

	errRatio := errMax / tol

	var dtNew float64
	switch {
	case errRatio > 1:
		dtNew = dt * math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
	case errRatio > 0:
		dtNew = dt * math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
	default:
		dtNew = dt * r.maxScale
	}

	return xNew, dtNew, errRatio <= 1, nil
}
