package frontier

import (
	"cmp"
	"slices"
	"time"

	"github.com/peter-kozarec/frontier/pkg/optimize/qp"
	"github.com/peter-kozarec/frontier/pkg/utility"
)

// Point is one accepted portfolio. It is never modified after the run that
// produced it.
type Point struct {
	Target     float64
	Weights    []float64
	Return     float64
	Variance   float64
	Volatility float64
	Iterations int
	Condition  float64
	Status     qp.Status
}

// Failure records a target the solver could not serve.
type Failure struct {
	Target     float64
	Reason     string
	Err        error
	Iterations int
	Condition  float64
	Status     qp.Status
}

type Result struct {
	RunID    utility.RunID
	Targets  []float64
	Points   []Point
	Failures []Failure
	Duration time.Duration
}

// Complete reports whether every grid target was accepted.
func (r Result) Complete() bool {
	return len(r.Failures) == 0 && len(r.Points) == len(r.Targets)
}

// MinimumVariance returns the accepted point with the lowest variance.
func (r Result) MinimumVariance() (Point, bool) {
	if len(r.Points) == 0 {
		return Point{}, false
	}
	return r.Points[0], true
}

// Efficient drops every point that another accepted point dominates, leaving
// a sequence whose return strictly increases with variance.
func (r Result) Efficient() []Point {
	var efficient []Point
	for _, p := range r.Points {
		if len(efficient) == 0 || p.Return > efficient[len(efficient)-1].Return {
			efficient = append(efficient, p)
		}
	}
	return efficient
}

// sortByRisk orders points by ascending variance; on equal variance the
// higher return comes first.
func sortByRisk(points []Point) {
	slices.SortStableFunc(points, func(a, b Point) int {
		return cmp.Or(
			cmp.Compare(a.Variance, b.Variance),
			cmp.Compare(b.Return, a.Return),
		)
	})
}
