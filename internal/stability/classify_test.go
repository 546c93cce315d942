package stability

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/seaice/internal/dynamo"
)

type fold struct{}

func (fold) StateDim() int                              { return 1 }
func (fold) Rate(x dynamo.State, p float64) dynamo.State { return dynamo.State{p - x[0]*x[0]} }

// damped oscillator around x = p: complex eigenvalues -c/2 ± i...
type oscillator struct{ c float64 }

func (oscillator) StateDim() int { return 2 }
func (o oscillator) Rate(x dynamo.State, p float64) dynamo.State {
	return dynamo.State{x[1], -(x[0] - p) - o.c*x[1]}
}

type saddle struct{}

func (saddle) StateDim() int { return 2 }
func (saddle) Rate(x dynamo.State, p float64) dynamo.State {
	return dynamo.State{x[0], -x[1]}
}

type nanJacobian struct{ fold }

func (nanJacobian) Jacobian(x dynamo.State, p float64) [][]float64 {
	return [][]float64{{math.NaN()}}
}

func TestClassify_Scalar(t *testing.T) {
	tests := []struct {
		name   string
		x      float64
		stable bool
	}{
		{"upper branch", 1, true},
		{"lower branch", -1, false},
		{"fold point", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stable, eig, err := Classify(fold{}, dynamo.State{tt.x}, tt.x*tt.x, 1e-6)
			if err != nil {
				t.Fatalf("classify failed: %v", err)
			}
			if stable != tt.stable {
				t.Errorf("stable = %v, want %v", stable, tt.stable)
			}
			if len(eig) != 1 || math.Abs(real(eig[0])+2*tt.x) > 1e-6 {
				t.Errorf("eigenvalues = %v, want [%v]", eig, -2*tt.x)
			}
		})
	}
}

func TestClassify_Planar(t *testing.T) {
	stable, eig, err := Classify(oscillator{c: 0.2}, dynamo.State{0.5, 0}, 0.5, 1e-6)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if !stable {
		t.Error("damped oscillator should be stable")
	}
	if len(eig) != 2 || math.Abs(real(eig[0])+0.1) > 1e-6 || imag(eig[0]) <= 0 {
		t.Errorf("unexpected eigenvalues %v", eig)
	}

	stable, _, err = Classify(oscillator{c: -0.2}, dynamo.State{0, 0}, 0, 1e-6)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if stable {
		t.Error("anti-damped oscillator should be unstable")
	}

	stable, eig, err = Classify(saddle{}, dynamo.State{0, 0}, 0, 1e-6)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if stable {
		t.Error("saddle should be unstable")
	}
	if real(eig[0]) < real(eig[1]) {
		t.Errorf("eigenvalues not sorted: %v", eig)
	}
}

func TestClassify_InvalidJacobian(t *testing.T) {
	_, _, err := Classify(nanJacobian{}, dynamo.State{1}, 1, 1e-6)
	if !errors.Is(err, dynamo.ErrInvalidModel) {
		t.Errorf("expected ErrInvalidModel, got %v", err)
	}
}

func TestPoint(t *testing.T) {
	e, err := Point(fold{}, dynamo.State{2}, 4, 1e-6)
	if err != nil {
		t.Fatalf("point failed: %v", err)
	}
	if !e.Stable || e.Residual != 0 || e.Param != 4 {
		t.Errorf("unexpected equilibrium %+v", e)
	}
	if Leading(e) >= 0 {
		t.Errorf("leading eigenvalue %v should be negative", Leading(e))
	}
}
