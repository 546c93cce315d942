// Package continuation tracks equilibria as the bifurcation parameter varies.
//
// Two methods are available through [dynamo.Config.Method]:
//
//   - natural: step the parameter, correct the state with the root finder
//     using the previous state as predictor. Cannot pass a fold; it stalls
//     there.
//   - arclength: pseudo-arclength continuation in (x, p). Follows a branch
//     around folds and reports them as [dynamo.Fold] events.
//
// Both halve the step on a failed correction down to Config.MinStep and end
// the branch with [dynamo.ErrContinuationStalled] when the minimum step also
// fails.
//
//	tr, _ := continuation.New(cfg)
//	branch, err := tr.TraceBoth(ctx, sys, dynamo.Equilibrium{Param: 0, State: x0})
package continuation
