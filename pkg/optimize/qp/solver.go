package qp

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Rows of the reduced equality matrix whose component orthogonal to the
// already accepted rows is below this fraction of their norm are treated as
// linearly dependent and left out of the KKT system.
const rankTolerance = 1e-8

// Singular values of a KKT matrix below this fraction of the largest one are
// treated as zero when the system is solved in the least-norm sense.
const nullTolerance = 1e-12

type boundState uint8

const (
	stateFree boundState = iota
	stateLower
	stateUpper
	stateFixed
)

type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusIterationLimit
	StatusTimeLimit
	StatusSingular
	StatusCanceled
	StatusNotConverged
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusIterationLimit:
		return "iteration_limit"
	case StatusTimeLimit:
		return "time_limit"
	case StatusSingular:
		return "singular"
	case StatusCanceled:
		return "canceled"
	case StatusNotConverged:
		return "not_converged"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is returned by every Solve, including failed ones, so callers can
// report how far the solver got. X is only a solution when Status is
// StatusOptimal.
type Result struct {
	X          []float64
	Lambda     []float64
	Objective  float64
	Iterations int
	Condition  float64
	Residual   float64
	Violation  float64
	Status     Status
}

type solver struct {
	problem Problem
	opts    Options
	n, k    int

	// Q and c scaled by qScale, rows of A and b scaled to unit max-norm.
	q       *mat.SymDense
	c       []float64
	a       *mat.Dense
	b       []float64
	qScale  float64
	rowNorm []float64

	lower, upper []float64

	x      []float64
	g      []float64
	lambda []float64
	state  []boundState
	cond   float64
}

// Solve minimizes the problem from the starting point x0. The starting
// point must satisfy the bounds; equality residuals are driven to zero by
// the iteration itself. Solve never returns an approximate point as optimal:
// any error comes with a Result whose Status names the reason.
func Solve(ctx context.Context, p Problem, x0 []float64, opts Options) (Result, error) {
	s, err := newSolver(p, x0, opts.withDefaults())
	if err != nil {
		return Result{Status: StatusInfeasible}, err
	}
	return s.run(ctx)
}

func newSolver(p Problem, x0 []float64, opts Options) (*solver, error) {
	n, k, err := p.dims()
	if err != nil {
		return nil, err
	}
	if len(x0) != n {
		return nil, fmt.Errorf("%w: starting point has length %d, expected %d", ErrInvalidProblem, len(x0), n)
	}

	s := &solver{
		problem: p,
		opts:    opts,
		n:       n,
		k:       k,
		c:       make([]float64, n),
		b:       make([]float64, k),
		rowNorm: make([]float64, k),
		lower:   make([]float64, n),
		upper:   make([]float64, n),
		x:       make([]float64, n),
		g:       make([]float64, n),
		lambda:  make([]float64, k),
		state:   make([]boundState, n),
	}

	s.qScale = maxAbsSym(p.Q)
	if s.qScale == 0 {
		s.qScale = 1
	}
	s.q = mat.NewSymDense(n, nil)
	s.q.ScaleSym(1/s.qScale, p.Q)
	for i, ci := range p.C {
		s.c[i] = ci / s.qScale
	}

	if k > 0 {
		s.a = mat.NewDense(k, n, nil)
		for j := 0; j < k; j++ {
			row := p.A.RawRowView(j)
			norm := 0.0
			for _, v := range row {
				norm = math.Max(norm, math.Abs(v))
			}
			if norm == 0 {
				norm = 1
			}
			s.rowNorm[j] = norm
			for i, v := range row {
				s.a.Set(j, i, v/norm)
			}
			s.b[j] = p.B[j] / norm
		}
	}

	tol := opts.Tolerance
	for i := 0; i < n; i++ {
		s.lower[i] = math.Inf(-1)
		s.upper[i] = math.Inf(1)
		if p.Lower != nil {
			s.lower[i] = p.Lower[i]
		}
		if p.Upper != nil {
			s.upper[i] = p.Upper[i]
		}
		if math.IsNaN(s.lower[i]) || math.IsNaN(s.upper[i]) || s.lower[i] > s.upper[i] {
			return nil, fmt.Errorf("%w: bounds of variable %d are [%g, %g]", ErrInvalidProblem, i, s.lower[i], s.upper[i])
		}

		xi := x0[i]
		if !isFinite(xi) {
			return nil, fmt.Errorf("%w: starting point %d is not finite", ErrInvalidProblem, i)
		}
		if xi < s.lower[i]-tol*(1+math.Abs(s.lower[i])) || xi > s.upper[i]+tol*(1+math.Abs(s.upper[i])) {
			return nil, fmt.Errorf("%w: x[%d]=%g outside [%g, %g]", ErrInfeasibleStart, i, xi, s.lower[i], s.upper[i])
		}
		s.x[i] = math.Min(math.Max(xi, s.lower[i]), s.upper[i])
	}

	return s, nil
}

func (s *solver) run(ctx context.Context) (Result, error) {
	start := time.Now()
	tol := s.opts.Tolerance

	s.initWorkingSet()

	for iter := 1; iter <= s.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return s.result(iter, StatusCanceled), err
		}
		if s.opts.MaxDuration > 0 && time.Since(start) > s.opts.MaxDuration {
			return s.result(iter, StatusTimeLimit), fmt.Errorf("%w after %d iterations (%s)", ErrTimeLimit, iter, s.opts.MaxDuration)
		}

		s.gradient()

		var lambda []float64
		if free := s.freeSet(); len(free) > 0 {
			step, l, err := s.subproblem(free)
			if err != nil {
				return s.result(iter, StatusSingular), err
			}

			alpha, blocking, side := s.ratioTest(free, step)
			for idx, i := range free {
				s.x[i] += alpha * step[idx]
			}

			if blocking >= 0 {
				if side == stateLower {
					s.x[blocking] = s.lower[blocking]
				} else {
					s.x[blocking] = s.upper[blocking]
				}
				s.state[blocking] = side
				continue
			}

			if floats.Norm(step, math.Inf(1)) > tol {
				continue
			}
			lambda = l
		} else {
			l, err := s.vertexMultipliers()
			if err != nil {
				return s.result(iter, StatusSingular), err
			}
			lambda = l
		}

		copy(s.lambda, lambda)
		s.gradient()

		release, nu := s.mostNegativeMultiplier()
		if release >= 0 && nu < -tol {
			s.state[release] = stateFree
			continue
		}

		return s.finish(iter)
	}

	return s.result(s.opts.MaxIterations, StatusIterationLimit),
		fmt.Errorf("%w (%d)", ErrIterationLimit, s.opts.MaxIterations)
}

func (s *solver) initWorkingSet() {
	firstMovable := -1
	hasFree := false

	for i := range s.x {
		switch {
		case s.lower[i] == s.upper[i]:
			s.state[i] = stateFixed
			s.x[i] = s.lower[i]
		case s.x[i] <= s.lower[i]:
			s.state[i] = stateLower
		default:
			s.state[i] = stateFree
			hasFree = true
		}
		if s.state[i] != stateFixed && firstMovable < 0 {
			firstMovable = i
		}
	}

	if !hasFree && firstMovable >= 0 {
		s.state[firstMovable] = stateFree
	}
}

func (s *solver) gradient() {
	for i := 0; i < s.n; i++ {
		v := s.c[i]
		for j := 0; j < s.n; j++ {
			v += s.q.At(i, j) * s.x[j]
		}
		s.g[i] = v
	}
}

func (s *solver) freeSet() []int {
	free := make([]int, 0, s.n)
	for i, st := range s.state {
		if st == stateFree {
			free = append(free, i)
		}
	}
	return free
}

// subproblem solves the equality-constrained step over the free variables:
//
//	[Q_FF  A_Fᵀ] [p]   [-g_F     ]
//	[A_F   0   ] [y] = [b - A·x  ]
//
// and returns p together with the equality multipliers λ = -y.
//
// When Q_FF is singular on the null space of A_F the system has a whole
// affine set of solutions and the least-norm one is taken instead.
func (s *solver) subproblem(free []int) ([]float64, []float64, error) {
	rows := s.independentRows(free)
	nf, nr := len(free), len(rows)
	size := nf + nr

	kkt := mat.NewDense(size, size, nil)
	rhs := mat.NewVecDense(size, nil)

	for r, i := range free {
		for c, j := range free {
			kkt.Set(r, c, s.q.At(i, j))
		}
		rhs.SetVec(r, -s.g[i])
	}
	for r, row := range rows {
		for c, i := range free {
			v := s.a.At(row, i)
			kkt.Set(nf+r, c, v)
			kkt.Set(c, nf+r, v)
		}
		rhs.SetVec(nf+r, s.b[row]-s.rowDot(row))
	}

	var lu mat.LU
	lu.Factorize(kkt)

	sol := mat.NewVecDense(size, nil)
	cond := lu.Cond()
	if math.IsNaN(cond) || math.IsInf(cond, 0) || cond > s.opts.MaxCondition {
		var err error
		cond, err = s.leastNorm(sol, kkt, rhs)
		s.cond = math.Max(s.cond, cond)
		if err != nil {
			return nil, nil, err
		}
	} else {
		s.cond = math.Max(s.cond, cond)
		if err := lu.SolveVecTo(sol, false, rhs); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrSingularKKT, err)
		}
	}

	step := make([]float64, nf)
	for r := range free {
		step[r] = sol.AtVec(r)
	}
	lambda := make([]float64, s.k)
	for r, row := range rows {
		lambda[row] = -sol.AtVec(nf + r)
	}

	return step, lambda, nil
}

// leastNorm solves kkt·sol = rhs through a truncated SVD and returns the
// condition number of the part of kkt that was kept. The system must be
// consistent: a right-hand side with a component along a dropped direction
// means the objective decreases linearly along a direction of zero
// curvature, and no step of the active-set iteration can follow it.
func (s *solver) leastNorm(sol *mat.VecDense, kkt *mat.Dense, rhs *mat.VecDense) (float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(kkt, mat.SVDThin); !ok {
		return math.Inf(1), fmt.Errorf("%w: singular value decomposition failed", ErrSingularKKT)
	}

	rank := svd.Rank(nullTolerance)
	if rank == 0 {
		sol.Zero()
	} else {
		svd.SolveVecTo(sol, rhs, rank)
	}

	cond := 1.0
	if rank > 0 {
		values := svd.Values(nil)
		cond = values[0] / values[rank-1]
	}

	var res mat.VecDense
	res.MulVec(kkt, sol)
	res.SubVec(&res, rhs)

	scale := 1 + mat.Norm(rhs, math.Inf(1))
	if r := mat.Norm(&res, math.Inf(1)); r > s.opts.Tolerance*scale {
		return cond, fmt.Errorf("%w: objective decreases along a zero-curvature direction (residual %.3g)", ErrSingularKKT, r)
	}
	return cond, nil
}

// vertexMultipliers estimates the equality multipliers when every variable
// sits on a bound. The stationarity condition no longer pins them down, so
// the least-squares choice minimizing the bound multipliers is used.
func (s *solver) vertexMultipliers() ([]float64, error) {
	lambda := make([]float64, s.k)

	movable := make([]int, 0, s.n)
	for i, st := range s.state {
		if st != stateFixed {
			movable = append(movable, i)
		}
	}

	rows := s.independentRows(movable)
	if len(rows) == 0 {
		return lambda, nil
	}

	at := mat.NewDense(len(movable), len(rows), nil)
	g := mat.NewVecDense(len(movable), nil)
	for r, i := range movable {
		for c, row := range rows {
			at.Set(r, c, s.a.At(row, i))
		}
		g.SetVec(r, s.g[i])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(at, g); err != nil {
		return nil, fmt.Errorf("%w: vertex multipliers: %v", ErrSingularKKT, err)
	}
	for c, row := range rows {
		lambda[row] = sol.AtVec(c)
	}

	return lambda, nil
}

// independentRows picks, in order, the equality rows whose restriction to the
// free variables is linearly independent of the rows picked before them.
func (s *solver) independentRows(free []int) []int {
	rows := make([]int, 0, s.k)
	basis := make([][]float64, 0, s.k)

	for j := 0; j < s.k && len(rows) < len(free); j++ {
		v := make([]float64, len(free))
		for c, i := range free {
			v[c] = s.a.At(j, i)
		}

		norm0 := floats.Norm(v, 2)
		if norm0 == 0 {
			continue
		}
		for _, e := range basis {
			floats.AddScaled(v, -floats.Dot(v, e), e)
		}
		norm := floats.Norm(v, 2)
		if norm <= rankTolerance*norm0 {
			continue
		}

		floats.Scale(1/norm, v)
		basis = append(basis, v)
		rows = append(rows, j)
	}

	return rows
}

// ratioTest returns the longest step fraction in [0, 1] keeping every free
// variable inside its bounds, and the variable that blocks it, if any.
func (s *solver) ratioTest(free []int, step []float64) (float64, int, boundState) {
	const eps = 1e-15

	alpha := 1.0
	blocking := -1
	side := stateFree

	for idx, i := range free {
		p := step[idx]
		var a float64
		var st boundState
		switch {
		case p < -eps && !math.IsInf(s.lower[i], -1):
			a, st = (s.lower[i]-s.x[i])/p, stateLower
		case p > eps && !math.IsInf(s.upper[i], 1):
			a, st = (s.upper[i]-s.x[i])/p, stateUpper
		default:
			continue
		}
		if a < 0 {
			a = 0
		}
		if a < alpha {
			alpha, blocking, side = a, i, st
		}
	}

	return alpha, blocking, side
}

// mostNegativeMultiplier returns the working-set bound whose multiplier has
// the wrong sign by the largest margin.
func (s *solver) mostNegativeMultiplier() (int, float64) {
	worst := -1
	worstNu := 0.0

	for i, st := range s.state {
		var nu float64
		switch st {
		case stateLower:
			nu = s.g[i] - s.columnDot(i)
		case stateUpper:
			nu = s.columnDot(i) - s.g[i]
		default:
			continue
		}
		if nu < worstNu {
			worst, worstNu = i, nu
		}
	}

	return worst, worstNu
}

func (s *solver) finish(iter int) (Result, error) {
	tol := s.opts.Tolerance

	residual, gradient := 0.0, 0.0
	for i, st := range s.state {
		if st == stateFree {
			residual = math.Max(residual, math.Abs(s.g[i]-s.columnDot(i)))
			gradient = math.Max(gradient, math.Abs(s.g[i]))
		}
	}

	if residual > tol*(1+gradient) {
		res := s.result(iter, StatusNotConverged)
		res.Residual = residual * s.qScale
		return res, fmt.Errorf("%w: %.3g after %d iterations", ErrResidual, res.Residual, iter)
	}

	violation := s.violation()
	for j := 0; j < s.k; j++ {
		if math.Abs(s.b[j]-s.rowDot(j)) > tol*(1+math.Abs(s.b[j])) {
			res := s.result(iter, StatusInfeasible)
			res.Residual = residual * s.qScale
			return res, fmt.Errorf("%w: equality row %d violated by %.3g", ErrInfeasible, j, violation)
		}
	}

	res := s.result(iter, StatusOptimal)
	res.Residual = residual * s.qScale
	return res, nil
}

func (s *solver) result(iter int, status Status) Result {
	x := make([]float64, s.n)
	copy(x, s.x)

	lambda := make([]float64, s.k)
	for j := range lambda {
		lambda[j] = s.lambda[j] * s.qScale / s.rowNorm[j]
	}

	return Result{
		X:          x,
		Lambda:     lambda,
		Objective:  s.problem.Objective(x),
		Iterations: iter,
		Condition:  s.cond,
		Violation:  s.violation(),
		Status:     status,
	}
}

// violation is the largest absolute breach of an equality row or bound, in
// the units of the original problem.
func (s *solver) violation() float64 {
	v := 0.0
	for j := 0; j < s.k; j++ {
		v = math.Max(v, math.Abs(s.b[j]-s.rowDot(j))*s.rowNorm[j])
	}
	for i, xi := range s.x {
		v = math.Max(v, s.lower[i]-xi)
		v = math.Max(v, xi-s.upper[i])
	}
	return v
}

func (s *solver) rowDot(j int) float64 {
	return floats.Dot(s.a.RawRowView(j), s.x)
}

// columnDot is (Aᵀλ)_i.
func (s *solver) columnDot(i int) float64 {
	v := 0.0
	for j := 0; j < s.k; j++ {
		v += s.a.At(j, i) * s.lambda[j]
	}
	return v
}

func maxAbsSym(q *mat.SymDense) float64 {
	n := q.SymmetricDim()
	m := 0.0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			m = math.Max(m, math.Abs(q.At(i, j)))
		}
	}
	return m
}

