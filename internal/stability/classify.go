// Package stability classifies equilibria by the eigenvalues of the
// Jacobian df/dx: stable when every real part is negative.
package stability

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/seaice/internal/dynamo"
)

var errEigen = errors.New("stability: eigen decomposition failed")

// Classify returns the stability of x at parameter p and the Jacobian
// eigenvalues sorted by descending real part.
func Classify(sys dynamo.System, x dynamo.State, p, fdStep float64) (bool, []complex128, error) {
	j, err := dynamo.JacobianAt(sys, x, p, fdStep)
	if err != nil {
		return false, nil, err
	}

	eig, err := Eigenvalues(j)
	if err != nil {
		return false, nil, err
	}
	return IsStable(eig), eig, nil
}

// Eigenvalues of a square row-major matrix, sorted by descending real part.
func Eigenvalues(j [][]float64) ([]complex128, error) {
	n := len(j)
	if n == 1 {
		return []complex128{complex(j[0][0], 0)}, nil
	}

	flat := make([]float64, 0, n*n)
	for _, row := range j {
		flat = append(flat, row...)
	}

	var e mat.Eigen
	if ok := e.Factorize(mat.NewDense(n, n, flat), mat.EigenNone); !ok {
		return nil, errEigen
	}
	vals := e.Values(nil)
	sort.SliceStable(vals, func(a, b int) bool {
		if real(vals[a]) != real(vals[b]) {
			return real(vals[a]) > real(vals[b])
		}
		return imag(vals[a]) > imag(vals[b])
	})
	return vals, nil
}

// IsStable reports whether every eigenvalue has a negative real part.
func IsStable(eig []complex128) bool {
	if len(eig) == 0 {
		return false
	}
	for _, v := range eig {
		if real(v) >= 0 {
			return false
		}
	}
	return true
}

// Point builds a fully classified equilibrium at (x, p).
func Point(sys dynamo.System, x dynamo.State, p, fdStep float64) (dynamo.Equilibrium, error) {
	f, err := dynamo.Evaluate(sys, x, p)
	if err != nil {
		return dynamo.Equilibrium{}, err
	}
	stable, eig, err := Classify(sys, x, p, fdStep)
	if err != nil {
		return dynamo.Equilibrium{}, err
	}
	return dynamo.Equilibrium{
		Param:       p,
		State:       x.Clone(),
		Stable:      stable,
		Residual:    f.MaxAbs(),
		Eigenvalues: eig,
	}, nil
}

// Leading returns the real part of the rightmost eigenvalue.
func Leading(e dynamo.Equilibrium) float64 {
	if len(e.Eigenvalues) == 0 {
		return 0
	}
	return real(e.Eigenvalues[0])
}
