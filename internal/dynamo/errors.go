package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for solver operations.
var (
	// ErrNoConvergence indicates the root finder hit its iteration cap.
	ErrNoConvergence = errors.New("dynamo: root finding did not converge")

	// ErrContinuationStalled indicates step halving reached the minimum step
	// without a converged corrector.
	ErrContinuationStalled = errors.New("dynamo: continuation stalled at minimum step")

	// ErrInvalidModel indicates the right-hand side or Jacobian returned NaN or Inf.
	ErrInvalidModel = errors.New("dynamo: model returned non-finite values")

	// ErrInvalidConfig indicates an unusable solver configuration.
	ErrInvalidConfig = errors.New("dynamo: invalid configuration")

	// ErrDimensionMismatch indicates mismatched state/system dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrNoBracket indicates no sign change could be found around a guess.
	ErrNoBracket = errors.New("dynamo: no sign change bracket found")
)

// SolveError wraps an error with the point at which solving failed.
type SolveError struct {
	Param      float64
	State      State
	Iterations int
	Wrapped    error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("p=%.6g after %d iterations: %v", e.Param, e.Iterations, e.Wrapped)
}

func (e *SolveError) Unwrap() error {
	return e.Wrapped
}

// IsFatal reports whether err must abort a whole run rather than one branch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidModel) || errors.Is(err, ErrDimensionMismatch)
}
