// Package qp solves small dense convex quadratic programs of the form
//
//	minimize    ½·xᵀQx + cᵀx
//	subject to  A·x = b
//	            lower ≤ x ≤ upper
//
// with a primal active-set method. Q must be positive semi-definite. Where it
// is singular on the null space of the active constraints the least-norm
// step is taken, which requires the linear term to be constant along those
// directions; otherwise the solve is rejected as singular.
package qp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidProblem  = errors.New("qp: invalid problem")
	ErrInfeasibleStart = errors.New("qp: starting point violates bounds")
	ErrInfeasible      = errors.New("qp: constraints cannot be satisfied")
	ErrIterationLimit  = errors.New("qp: iteration limit reached")
	ErrTimeLimit       = errors.New("qp: time limit reached")
	ErrSingularKKT     = errors.New("qp: kkt system is singular or ill-conditioned")
	ErrResidual        = errors.New("qp: stationarity residual above tolerance")
)

// Problem describes one quadratic program. C, A, B, Lower and Upper are
// optional: a nil linear term is zero, nil equality rows mean no equality
// constraints and nil bounds are unbounded on that side.
type Problem struct {
	Q     *mat.SymDense
	C     []float64
	A     *mat.Dense
	B     []float64
	Lower []float64
	Upper []float64
}

// Objective evaluates ½·xᵀQx + cᵀx.
func (p Problem) Objective(x []float64) float64 {
	v := mat.NewVecDense(len(x), x)
	obj := 0.5 * mat.Inner(v, p.Q, v)
	for i, ci := range p.C {
		obj += ci * x[i]
	}
	return obj
}

func (p Problem) dims() (n, k int, err error) {
	if p.Q == nil {
		return 0, 0, fmt.Errorf("%w: objective matrix is nil", ErrInvalidProblem)
	}

	n = p.Q.SymmetricDim()
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: objective matrix is empty", ErrInvalidProblem)
	}

	if p.C != nil && len(p.C) != n {
		return 0, 0, fmt.Errorf("%w: linear term has length %d, expected %d", ErrInvalidProblem, len(p.C), n)
	}

	if p.A != nil {
		var cols int
		k, cols = p.A.Dims()
		if cols != n {
			return 0, 0, fmt.Errorf("%w: equality rows have %d columns, expected %d", ErrInvalidProblem, cols, n)
		}
	}
	if len(p.B) != k {
		return 0, 0, fmt.Errorf("%w: %d equality targets for %d rows", ErrInvalidProblem, len(p.B), k)
	}

	if p.Lower != nil && len(p.Lower) != n {
		return 0, 0, fmt.Errorf("%w: lower bounds have length %d, expected %d", ErrInvalidProblem, len(p.Lower), n)
	}
	if p.Upper != nil && len(p.Upper) != n {
		return 0, 0, fmt.Errorf("%w: upper bounds have length %d, expected %d", ErrInvalidProblem, len(p.Upper), n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if !isFinite(p.Q.At(i, j)) {
				return 0, 0, fmt.Errorf("%w: objective matrix entry (%d,%d) is not finite", ErrInvalidProblem, i, j)
			}
		}
	}
	for i, v := range p.C {
		if !isFinite(v) {
			return 0, 0, fmt.Errorf("%w: linear term %d is not finite", ErrInvalidProblem, i)
		}
	}
	for j := 0; j < k; j++ {
		if !isFinite(p.B[j]) {
			return 0, 0, fmt.Errorf("%w: equality target %d is not finite", ErrInvalidProblem, j)
		}
		for i := 0; i < n; i++ {
			if !isFinite(p.A.At(j, i)) {
				return 0, 0, fmt.Errorf("%w: equality entry (%d,%d) is not finite", ErrInvalidProblem, j, i)
			}
		}
	}

	return n, k, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
