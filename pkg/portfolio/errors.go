package portfolio

import (
	"errors"
	"fmt"

	"github.com/peter-kozarec/frontier/pkg/optimize/qp"
	"github.com/peter-kozarec/frontier/pkg/stats"
)

var (
	ErrInsufficientData     = stats.ErrInsufficientData
	ErrMalformedInput       = stats.ErrMalformedInput
	ErrInfeasibleTarget     = errors.New("infeasible target return")
	ErrNonConvergence       = errors.New("solver did not converge")
	ErrNumericalInstability = errors.New("numerical instability")
)

// SolveError describes why a single target could not be solved. It matches
// both the portfolio sentinel (Kind) and the underlying solver error with
// errors.Is.
type SolveError struct {
	Target     float64
	Iterations int
	Condition  float64
	Status     qp.Status
	Kind       error
	Err        error
}

func (e *SolveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("target %g: %v", e.Target, e.Kind)
	}
	return fmt.Sprintf("target %g: %v: %v", e.Target, e.Kind, e.Err)
}

func (e *SolveError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Reason is the short, stable name of the failure class.
func (e *SolveError) Reason() string {
	switch {
	case errors.Is(e.Kind, ErrInfeasibleTarget):
		return "infeasible_target"
	case errors.Is(e.Kind, ErrNonConvergence):
		return "non_convergence"
	case errors.Is(e.Kind, ErrNumericalInstability):
		return "numerical_instability"
	case errors.Is(e.Kind, ErrMalformedInput):
		return "malformed_input"
	default:
		return "unknown"
	}
}

// classify maps a solver error onto the portfolio taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, qp.ErrInfeasible):
		return ErrInfeasibleTarget
	case errors.Is(err, qp.ErrIterationLimit), errors.Is(err, qp.ErrTimeLimit), errors.Is(err, qp.ErrResidual):
		return ErrNonConvergence
	case errors.Is(err, qp.ErrSingularKKT):
		return ErrNumericalInstability
	default:
		return ErrMalformedInput
	}
}
