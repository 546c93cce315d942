// Package dynamo provides the core types for steady-state analysis of
// parameterised ordinary differential equations.
//
// The package defines the fundamental interfaces and value types shared by
// the solver packages:
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dx/dt = f(x; p))
//   - [Jacobian], [ParamSensitivity]: optional analytic derivatives
//   - [Equilibrium]: a steady state with its stability
//   - [Branch]: equilibria connected by parameter continuation
//   - [Event]: folds, stability changes and changes in equilibrium count
//   - [Config]: sweep range, step control and solver tolerances
//
// Derivatives that a system does not supply are computed by central finite
// differences, see [JacobianAt] and [ParamDerivativeAt].
//
// # Errors
//
// [ErrNoConvergence] and [ErrContinuationStalled] end a single branch.
// [ErrInvalidModel] means the model produced NaN or Inf and aborts the run:
//
//	if dynamo.IsFatal(err) {
//	    return err
//	}
//
// # Thread Safety
//
// All values in this package are immutable once built. Systems are only
// read during solving, so one System may be shared by parallel tracers as
// long as nobody calls SetParam concurrently.
package dynamo
