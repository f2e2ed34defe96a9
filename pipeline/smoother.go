package pipeline

// TemporalSmoother abstracts the per-landmark filter chain (outlier gate +
// Kalman + weighted moving average). The production implementation lives in
// pipeline/smoothing; it registers itself via NewSmootherFunc.
//
// Implementations are not safe for concurrent use: filter state is owned by
// a single pipeline instance and updated in frame-index order.
type TemporalSmoother interface {
	// Apply runs the full chain on a fresh raw sample and returns the
	// smoothed coordinate. The first observation of a landmark is a cold
	// start: the estimate equals the raw sample.
	Apply(id LandmarkID, frameIndex int64, raw Coordinate) Coordinate

	// ApplyWithPrior re-smooths using a cached coordinate as the Kalman
	// prior: the filter state is pulled toward prior before the newest raw
	// sample is gated and blended (cheap reuse-with-refresh on cache hits).
	ApplyWithPrior(id LandmarkID, frameIndex int64, prior, raw Coordinate) Coordinate

	// ObserveMissing records that a landmark had no raw sample this frame.
	// The filter advances on prediction alone with inflated covariance;
	// after the configured number of consecutive misses the state is
	// discarded so reappearance is a cold start.
	ObserveMissing(id LandmarkID, frameIndex int64)

	// Reset discards one landmark's filter state.
	Reset(id LandmarkID)

	// ResetAll discards every filter state (temporal discontinuity).
	ResetAll()

	// Stats returns smoother counters.
	Stats() SmootherStats
}

// SmootherStats is a snapshot of smoother behavior.
type SmootherStats struct {
	ActiveFilters    int
	OutliersRejected uint64
	Resets           uint64
}

// NewSmootherFunc builds the production TemporalSmoother. Set by
// pipeline/smoothing's init; nil until that package is linked in.
var NewSmootherFunc func(cfg SmoothingConfig) TemporalSmoother
