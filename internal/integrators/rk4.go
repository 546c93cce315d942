package integrators

import "github.com/san-kum/seaice/internal/dynamo"

// RK4 is the classic fourth-order Runge-Kutta method. It keeps its stage
// buffers between steps, so one value must not be shared between
// goroutines.
type RK4 struct {
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

// stage evaluates f at x + h*k into dst.
func (r *RK4) stage(sys dynamo.System, dst, x, k dynamo.State, p, h float64) error {
	for i := range x {
		r.scratch[i] = x[i] + h*k[i]
	}
	f, err := dynamo.Evaluate(sys, r.scratch, p)
	if err != nil {
		return err
	}
	copy(dst, f)
	return nil
}

func (r *RK4) Step(sys dynamo.System, x dynamo.State, p, dt float64) (dynamo.State, error) {
	n := len(x)
	r.ensureScratch(n)

	k1, err := dynamo.Evaluate(sys, x, p)
	if err != nil {
		return nil, err
	}
	copy(r.k1, k1)
	if err := r.stage(sys, r.k2, x, r.k1, p, dt*0.5); err != nil {
		return nil, err
	}
	if err := r.stage(sys, r.k3, x, r.k2, p, dt*0.5); err != nil {
		return nil, err
	}
	if err := r.stage(sys, r.k4, x, r.k3, p, dt); err != nil {
		return nil, err
	}

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return result, nil
}
