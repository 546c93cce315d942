// Package rootfind locates equilibria of a [dynamo.System] at a fixed
// parameter value.
//
// [Solver.Solve] uses Newton-Raphson. For scalar systems it falls back to a
// bracketing search plus safeguarded bisection when the slope vanishes or
// the iterates diverge; larger systems use damped Newton with a
// backtracking line search. [Brackets], [Bisect] and [Secant] are the
// scalar building blocks used by grid scans.
package rootfind
