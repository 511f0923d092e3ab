package frontier

// Grid returns size evenly spaced targets over [lo, hi], both ends included.
// A single target sits at lo.
func Grid(lo, hi float64, size int) []float64 {
	if size < 1 {
		return nil
	}

	targets := make([]float64, size)
	if size == 1 {
		targets[0] = lo
		return targets
	}

	step := (hi - lo) / float64(size-1)
	for i := range targets {
		targets[i] = lo + float64(i)*step
	}
	targets[size-1] = hi

	return targets
}
