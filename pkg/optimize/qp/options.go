package qp

import "time"

const (
	DefaultTolerance     = 1e-8
	DefaultMaxIterations = 200
	DefaultMaxCondition  = 1e14
)

// Options bound the work done by a single Solve. Zero fields fall back to
// the package defaults; a zero MaxDuration disables the time cap.
type Options struct {
	Tolerance     float64
	MaxIterations int
	MaxDuration   time.Duration
	MaxCondition  float64
}

func DefaultOptions() Options {
	return Options{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		MaxCondition:  DefaultMaxCondition,
	}
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxCondition <= 0 {
		o.MaxCondition = DefaultMaxCondition
	}
	if o.MaxDuration < 0 {
		o.MaxDuration = 0
	}
	return o
}
