package frontier

import (
	"github.com/peter-kozarec/frontier/pkg/optimize/qp"
	"go.uber.org/zap"
)

const DefaultGridSize = 50

type Option func(*Builder)

func WithGridSize(size int) Option {
	return func(b *Builder) {
		b.gridSize = size
	}
}

// WithWorkers bounds the number of targets solved concurrently. Values below
// one fall back to GOMAXPROCS.
func WithWorkers(workers int) Option {
	return func(b *Builder) {
		b.workers = workers
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

func WithSolverOptions(opts qp.Options) Option {
	return func(b *Builder) {
		b.solverOptions = opts
	}
}
