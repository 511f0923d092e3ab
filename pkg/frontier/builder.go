// Package frontier sweeps a grid of target returns through the
// minimum-variance solver and assembles the accepted portfolios into a
// frontier ordered by risk.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/peter-kozarec/frontier/pkg/optimize/qp"
	"github.com/peter-kozarec/frontier/pkg/portfolio"
	"github.com/peter-kozarec/frontier/pkg/stats"
	"github.com/peter-kozarec/frontier/pkg/utility"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

type Builder struct {
	logger        *zap.Logger
	gridSize      int
	workers       int
	solverOptions qp.Options
}

func NewBuilder(options ...Option) *Builder {
	b := &Builder{
		logger:        zap.NewNop(),
		gridSize:      DefaultGridSize,
		solverOptions: qp.DefaultOptions(),
	}

	for _, option := range options {
		option(b)
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.workers < 1 {
		b.workers = runtime.GOMAXPROCS(0)
	}

	return b
}

// outcome is the private result slot of one target.
type outcome struct {
	solution portfolio.Solution
	err      error
}

// BuildFromReturns estimates the moments of a T x N returns matrix and builds
// the frontier over them.
func (b *Builder) BuildFromReturns(ctx context.Context, returns mat.Matrix) (Result, error) {
	moments, err := stats.Estimate(returns)
	if err != nil {
		return Result{}, fmt.Errorf("unable to estimate moments: %w", err)
	}
	return b.Build(ctx, moments.Mean, moments.Covariance)
}

// Build solves every grid target and returns the accepted points sorted by
// ascending variance together with the failed targets. Input errors abort the
// run before any solve; a failed target never does. A canceled context aborts
// the run with the context error.
func (b *Builder) Build(ctx context.Context, mean []float64, cov mat.Matrix) (Result, error) {
	if b.gridSize < 1 {
		return Result{}, fmt.Errorf("grid size %d: %w", b.gridSize, portfolio.ErrMalformedInput)
	}

	problem, err := portfolio.NewProblem(mean, cov, portfolio.WithSolverOptions(b.solverOptions))
	if err != nil {
		return Result{}, fmt.Errorf("unable to set up problem: %w", err)
	}

	runID := utility.NewRunID()
	logger := b.logger.With(zap.Stringer("run_id", runID))

	targets := Grid(problem.MinReturn(), problem.MaxReturn(), b.gridSize)

	logger.Info("frontier run started",
		zap.Int("assets", problem.Assets()),
		zap.Int("grid_size", len(targets)),
		zap.Int("workers", b.workers),
		zap.Float64("min_return", problem.MinReturn()),
		zap.Float64("max_return", problem.MaxReturn()))

	start := time.Now()
	outcomes := make([]outcome, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, target := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sol, err := problem.Solve(gctx, target, nil)
			if err != nil && isCanceled(err) {
				return err
			}
			outcomes[i] = outcome{solution: sol, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("frontier run aborted", zap.Error(err))
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		logger.Warn("frontier run aborted", zap.Error(err))
		return Result{}, err
	}

	res := Result{
		RunID:   runID,
		Targets: targets,
		Points:  make([]Point, 0, len(targets)),
	}

	for i, o := range outcomes {
		if o.err != nil {
			f := newFailure(targets[i], o)
			logFailure(logger, f)
			res.Failures = append(res.Failures, f)
			continue
		}

		perf := problem.Evaluate(o.solution.Weights)
		res.Points = append(res.Points, Point{
			Target:     targets[i],
			Weights:    o.solution.Weights,
			Return:     perf.Return,
			Variance:   perf.Variance,
			Volatility: perf.Volatility,
			Iterations: o.solution.Iterations,
			Condition:  o.solution.Condition,
			Status:     o.solution.Status,
		})
	}

	sortByRisk(res.Points)
	res.Duration = time.Since(start)

	logger.Info("frontier run finished",
		zap.Int("accepted", len(res.Points)),
		zap.Int("failed", len(res.Failures)),
		zap.Duration("duration", res.Duration))

	return res, nil
}

func newFailure(target float64, o outcome) Failure {
	f := Failure{
		Target: target,
		Reason: "unknown",
		Err:    o.err,
		Status: o.solution.Status,
	}

	var solveErr *portfolio.SolveError
	if errors.As(o.err, &solveErr) {
		f.Reason = solveErr.Reason()
		f.Iterations = solveErr.Iterations
		f.Condition = solveErr.Condition
	}
	return f
}

func logFailure(logger *zap.Logger, f Failure) {
	fields := []zap.Field{
		zap.Float64("target", f.Target),
		zap.String("reason", f.Reason),
		zap.Int("iterations", f.Iterations),
		zap.Error(f.Err),
	}
	if errors.Is(f.Err, portfolio.ErrNumericalInstability) {
		fields = append(fields, zap.Float64("condition", f.Condition))
	}
	logger.Warn("frontier target failed", fields...)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
