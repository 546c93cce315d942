package rootfind

import (
	"math"

	"github.com/san-kum/seaice/internal/dynamo"
)

// Bisect finds a root of f in [lo, hi], which must bracket a sign change.
func Bisect(f func(float64) float64, lo, hi, tol float64, maxIter int) (float64, error) {
	flo, fhi := f(lo), f(hi)
	if math.IsNaN(flo) || math.IsNaN(fhi) {
		return 0, dynamo.ErrInvalidModel
	}
	if math.Abs(flo) < tol {
		return lo, nil
	}
	if math.Abs(fhi) < tol {
		return hi, nil
	}
	if math.Signbit(flo) == math.Signbit(fhi) {
		return 0, dynamo.ErrNoBracket
	}

	for i := 0; i < maxIter; i++ {
		mid := 0.5 * (lo + hi)
		fm := f(mid)
		if math.IsNaN(fm) || math.IsInf(fm, 0) {
			return 0, dynamo.ErrInvalidModel
		}
		if math.Abs(fm) < tol {
			return mid, nil
		}
		if math.Signbit(fm) == math.Signbit(flo) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	return 0, dynamo.ErrNoConvergence
}

// Secant runs the secant method from the two starting points x0 and x1.
func Secant(f func(float64) float64, x0, x1, tol float64, maxIter int) (float64, error) {
	prev, cur := x0, x1
	fprev, fcur := f(prev), f(cur)
	if math.Abs(fcur) < tol {
		return cur, nil
	}

	for i := 0; i < maxIter; i++ {
		denom := fcur - fprev
		if denom == 0 {
			return 0, dynamo.ErrNoConvergence
		}
		next := cur - fcur*(cur-prev)/denom
		prev, fprev = cur, fcur
		cur, fcur = next, f(next)
		if math.IsNaN(fcur) || math.IsInf(fcur, 0) {
			return 0, dynamo.ErrInvalidModel
		}
		if math.Abs(fcur) < tol {
			return cur, nil
		}
	}
	return 0, dynamo.ErrNoConvergence
}

// Brackets returns index pairs (i, i+1) where consecutive samples change
// sign. A sample that is exactly zero is reported once, as (i, i).
func Brackets(values []float64) [][2]int {
	var res [][2]int
	for i := 0; i < len(values); i++ {
		if values[i] == 0 {
			res = append(res, [2]int{i, i})
			continue
		}
		if i+1 < len(values) && values[i+1] != 0 && values[i]*values[i+1] < 0 {
			res = append(res, [2]int{i, i + 1})
		}
	}
	return res
}
