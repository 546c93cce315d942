package rootfind

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a linear system has no unique solution.
var ErrSingular = errors.New("rootfind: singular matrix")

// LinearSolve solves a x = b for square a given row-major. Ill-conditioned
// systems still return gonum's best solution.
func LinearSolve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	if len(a) != n {
		return nil, fmt.Errorf("rootfind: matrix has %d rows, rhs has %d", len(a), n)
	}
	if n == 1 {
		if a[0][0] == 0 {
			return nil, ErrSingular
		}
		return []float64{b[0] / a[0][0]}, nil
	}

	flat := make([]float64, 0, n*n)
	for _, row := range a {
		if len(row) != n {
			return nil, fmt.Errorf("rootfind: row has %d columns, want %d", len(row), n)
		}
		flat = append(flat, row...)
	}

	var x mat.VecDense
	err := x.SolveVec(mat.NewDense(n, n, flat), mat.NewVecDense(n, append([]float64(nil), b...)))
	if err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, ErrSingular
		}
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = x.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, ErrSingular
		}
	}
	return out, nil
}

// NullVector returns a unit vector spanning the null space of the m×(m+1)
// matrix a, the right singular vector of its smallest singular value.
func NullVector(a [][]float64) ([]float64, error) {
	m := len(a)
	if m == 0 {
		return nil, fmt.Errorf("rootfind: empty matrix")
	}
	n := m + 1
	flat := make([]float64, 0, m*n)
	for _, row := range a {
		if len(row) != n {
			return nil, fmt.Errorf("rootfind: row has %d columns, want %d", len(row), n)
		}
		flat = append(flat, row...)
	}

	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(m, n, flat), mat.SVDFull) {
		return nil, ErrSingular
	}
	var v mat.Dense
	svd.VTo(&v)

	out := make([]float64, n)
	for i := range out {
		out[i] = v.At(i, n-1)
	}
	return out, nil
}
