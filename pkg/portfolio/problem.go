package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/peter-kozarec/frontier/pkg/optimize/qp"
	"gonum.org/v1/gonum/mat"
)

const (
	// Relative tolerances on the covariance matrix.
	symmetryTolerance = 1e-10
	psdTolerance      = 1e-10

	// Accepted solutions are re-checked against the original constraints
	// with this absolute tolerance.
	verifyTolerance = 1e-7
)

type Option func(*Problem)

func WithSolverOptions(opts qp.Options) Option {
	return func(p *Problem) {
		p.solverOptions = opts
	}
}

// Problem is the long-only, fully invested minimum-variance problem over a
// fixed mean vector and covariance matrix. It is immutable after NewProblem
// and safe for concurrent Solve calls.
type Problem struct {
	mean []float64
	cov  *mat.SymDense

	minMean, maxMean float64
	argMin, argMax   int

	// Return row expressed relative to the average mean and scaled to unit
	// max-norm. It is a combination of the return and budget rows, so it
	// describes the same feasible set with a better conditioned KKT system.
	centered      []float64
	averageMean   float64
	spread        float64
	edgeTolerance float64

	solverOptions qp.Options
}

// NewProblem validates the inputs: the covariance must be square, match the
// mean vector, be symmetric and positive semi-definite.
func NewProblem(mean []float64, cov mat.Matrix, options ...Option) (*Problem, error) {
	n := len(mean)
	if n < 1 {
		return nil, fmt.Errorf("mean vector is empty: %w", ErrMalformedInput)
	}
	if cov == nil {
		return nil, fmt.Errorf("covariance matrix is nil: %w", ErrMalformedInput)
	}

	r, c := cov.Dims()
	if r != c {
		return nil, fmt.Errorf("covariance matrix is %dx%d: %w", r, c, ErrMalformedInput)
	}
	if r != n {
		return nil, fmt.Errorf("covariance matrix is %dx%d for %d assets: %w", r, c, n, ErrMalformedInput)
	}

	p := &Problem{
		mean:          make([]float64, n),
		cov:           mat.NewSymDense(n, nil),
		solverOptions: qp.DefaultOptions(),
	}
	copy(p.mean, mean)

	for _, option := range options {
		option(p)
	}

	scale := 0.0
	for i := 0; i < n; i++ {
		if !isFinite(mean[i]) {
			return nil, fmt.Errorf("mean of asset %d is not finite: %w", i, ErrMalformedInput)
		}
		for j := 0; j < n; j++ {
			v := cov.At(i, j)
			if !isFinite(v) {
				return nil, fmt.Errorf("covariance entry (%d,%d) is not finite: %w", i, j, ErrMalformedInput)
			}
			scale = math.Max(scale, math.Abs(v))
		}
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a, b := cov.At(i, j), cov.At(j, i)
			if math.Abs(a-b) > symmetryTolerance*math.Max(scale, 1e-300) {
				return nil, fmt.Errorf("covariance entries (%d,%d)=%g and (%d,%d)=%g differ: %w", i, j, a, j, i, b, ErrMalformedInput)
			}
			p.cov.SetSym(i, j, 0.5*(a+b))
		}
	}

	if err := checkPositiveSemiDefinite(p.cov); err != nil {
		return nil, err
	}

	p.minMean, p.maxMean = mean[0], mean[0]
	for i, m := range mean {
		if m < p.minMean {
			p.minMean, p.argMin = m, i
		}
		if m > p.maxMean {
			p.maxMean, p.argMax = m, i
		}
		p.averageMean += m
	}
	p.averageMean /= float64(n)
	p.edgeTolerance = 1e-12 * math.Max(1, math.Max(math.Abs(p.minMean), math.Abs(p.maxMean)))

	p.centered = make([]float64, n)
	for _, m := range mean {
		p.spread = math.Max(p.spread, math.Abs(m-p.averageMean))
	}
	if p.spread > p.edgeTolerance {
		for i, m := range mean {
			p.centered[i] = (m - p.averageMean) / p.spread
		}
	} else {
		p.spread = 0
	}

	return p, nil
}

func checkPositiveSemiDefinite(cov *mat.SymDense) error {
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, false); !ok {
		return fmt.Errorf("eigen decomposition of covariance failed: %w", ErrNumericalInstability)
	}

	values := eig.Values(nil)
	lo, hi := values[0], values[len(values)-1]
	if lo < -psdTolerance*math.Max(math.Abs(hi), 1e-300) {
		return fmt.Errorf("covariance is not positive semi-definite (min eigenvalue %.3g, max %.3g): %w", lo, hi, ErrNumericalInstability)
	}
	return nil
}

func (p *Problem) Assets() int {
	return len(p.mean)
}

func (p *Problem) Mean() []float64 {
	return append([]float64(nil), p.mean...)
}

func (p *Problem) MinReturn() float64 {
	return p.minMean
}

func (p *Problem) MaxReturn() float64 {
	return p.maxMean
}

func (p *Problem) Covariance() *mat.SymDense {
	cov := mat.NewSymDense(p.Assets(), nil)
	cov.CopySym(p.cov)
	return cov
}

// Evaluate computes the performance of weights against the problem inputs.
func (p *Problem) Evaluate(weights []float64) Performance {
	return Evaluate(weights, p.mean, p.cov)
}

// Uniform returns the equal-weight portfolio.
func Uniform(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

type Solution struct {
	Target     float64
	Weights    []float64
	Iterations int
	Condition  float64
	Status     qp.Status
}

// Solve finds the minimum-variance weights whose expected return equals
// target. warm is a long-only warm start (nil means uniform weights); it is
// moved along the segment towards the extreme-mean asset until it meets the
// return target, which gives the active-set iteration a feasible seed.
//
// Failures are *SolveError values; a canceled context is returned as is.
func (p *Problem) Solve(ctx context.Context, target float64, warm []float64) (Solution, error) {
	n := p.Assets()

	if !isFinite(target) {
		return Solution{Target: target}, &SolveError{Target: target, Kind: ErrInfeasibleTarget, Err: errors.New("target is not finite")}
	}
	if target < p.minMean-p.edgeTolerance || target > p.maxMean+p.edgeTolerance {
		return Solution{Target: target}, &SolveError{
			Target: target,
			Kind:   ErrInfeasibleTarget,
			Err:    fmt.Errorf("outside achievable range [%g, %g]", p.minMean, p.maxMean),
		}
	}
	goal := math.Min(math.Max(target, p.minMean), p.maxMean)

	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range upper {
		upper[i] = 1
	}

	// At either end of the range only the extreme-mean assets can carry
	// weight. Pinning the rest to zero keeps the working set away from
	// degenerate vertices.
	pinned := true
	switch {
	case goal <= p.minMean+p.edgeTolerance:
		for i, m := range p.mean {
			if m > p.minMean+p.edgeTolerance {
				upper[i] = 0
			}
		}
	case goal >= p.maxMean-p.edgeTolerance:
		for i, m := range p.mean {
			if m < p.maxMean-p.edgeTolerance {
				upper[i] = 0
			}
		}
	default:
		pinned = false
	}

	seed, err := p.seed(goal, warm, upper, pinned)
	if err != nil {
		return Solution{Target: target}, &SolveError{Target: target, Kind: ErrMalformedInput, Err: err}
	}

	q := mat.NewSymDense(n, nil)
	q.ScaleSym(2, p.cov)

	var a *mat.Dense
	var b []float64
	if p.spread > 0 {
		a = mat.NewDense(2, n, nil)
		for i := 0; i < n; i++ {
			a.Set(0, i, 1)
			a.Set(1, i, p.centered[i])
		}
		b = []float64{1, (goal - p.averageMean) / p.spread}
	} else {
		a = mat.NewDense(1, n, nil)
		for i := 0; i < n; i++ {
			a.Set(0, i, 1)
		}
		b = []float64{1}
	}

	res, err := qp.Solve(ctx, qp.Problem{Q: q, A: a, B: b, Lower: lower, Upper: upper}, seed, p.solverOptions)
	sol := Solution{
		Target:     target,
		Iterations: res.Iterations,
		Condition:  res.Condition,
		Status:     res.Status,
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return sol, err
		}
		return sol, &SolveError{
			Target:     target,
			Iterations: res.Iterations,
			Condition:  res.Condition,
			Status:     res.Status,
			Kind:       classify(err),
			Err:        err,
		}
	}

	weights := res.X
	if err := p.verify(weights, goal); err != nil {
		return sol, &SolveError{
			Target:     target,
			Iterations: res.Iterations,
			Condition:  res.Condition,
			Status:     res.Status,
			Kind:       ErrNonConvergence,
			Err:        err,
		}
	}
	for i, w := range weights {
		weights[i] = math.Min(math.Max(w, 0), 1)
	}

	sol.Weights = weights
	return sol, nil
}

func (p *Problem) seed(goal float64, warm, upper []float64, pinned bool) ([]float64, error) {
	n := p.Assets()

	w := make([]float64, n)
	if warm == nil {
		warm = Uniform(n)
	}
	if len(warm) != n {
		return nil, fmt.Errorf("warm start has %d weights for %d assets", len(warm), n)
	}

	sum := 0.0
	for i, v := range warm {
		if !isFinite(v) || v < 0 {
			return nil, fmt.Errorf("warm start weight %d is %g", i, v)
		}
		if upper[i] > 0 {
			w[i] = v
			sum += v
		}
	}
	if sum == 0 {
		for i := range w {
			if upper[i] > 0 {
				w[i] = 1
				sum++
			}
		}
	}

	ret := 0.0
	for i := range w {
		w[i] /= sum
		ret += w[i] * p.mean[i]
	}

	// Every asset left unpinned already has a mean within the edge
	// tolerance of the goal.
	if pinned {
		return w, nil
	}

	extreme, edge := p.argMax, p.maxMean
	if goal < ret {
		extreme, edge = p.argMin, p.minMean
	}
	if denom := edge - ret; denom != 0 {
		t := math.Min(math.Max((goal-ret)/denom, 0), 1)
		for i := range w {
			w[i] *= 1 - t
		}
		w[extreme] += t
	}

	return w, nil
}

// verify re-checks budget, return and bound constraints on the original,
// unscaled problem.
func (p *Problem) verify(weights []float64, goal float64) error {
	sum, ret := 0.0, 0.0
	for i, w := range weights {
		if w < -verifyTolerance || w > 1+verifyTolerance {
			return fmt.Errorf("weight %d is %g", i, w)
		}
		sum += w
		ret += w * p.mean[i]
	}
	if math.Abs(sum-1) > verifyTolerance {
		return fmt.Errorf("weights sum to %g", sum)
	}
	if math.Abs(ret-goal) > verifyTolerance {
		return fmt.Errorf("return %g misses target %g", ret, goal)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
