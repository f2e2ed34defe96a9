package pipeline

// costEstimator tracks a running exponential moving average of each
// priority level's processing time. The scheduler compares the estimate
// against the remaining frame budget before committing to a level.
//
// A level that has never been observed estimates zero, so it always runs
// at least once and the estimator seeds itself from real measurements.
type costEstimator struct {
	alpha float64
	est   [NumLevels]float64
	seen  [NumLevels]bool
}

func newCostEstimator(alpha float64) *costEstimator {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &costEstimator{alpha: alpha}
}

// Observe folds a measured level duration (ms) into the estimate.
func (c *costEstimator) Observe(level PriorityLevel, elapsedMS float64) {
	if !c.seen[level] {
		c.est[level] = elapsedMS
		c.seen[level] = true
		return
	}
	c.est[level] = c.alpha*elapsedMS + (1-c.alpha)*c.est[level]
}

// Estimate returns the expected cost of a level in ms; zero for a level
// never observed (cold start).
func (c *costEstimator) Estimate(level PriorityLevel) float64 {
	if !c.seen[level] {
		return 0
	}
	return c.est[level]
}

// Seen reports whether the level has ever been processed.
func (c *costEstimator) Seen(level PriorityLevel) bool {
	return c.seen[level]
}
