package pipeline

// Config groups the processor-level knobs. Cache and smoothing knobs live in
// their own config structs below; all three are plain data consumed read-only
// by the pipeline (loading/merging is the caller's concern, see bundle.go).
type Config struct {
	// FrameBudgetMS is the wall-time allotted to one frame's landmark set,
	// in milliseconds. Zero means only cold starts and forced refreshes run
	// beyond the critical level.
	FrameBudgetMS float64

	// CostAlpha is the EMA smoothing factor for per-level cost estimates.
	CostAlpha float64

	// MaxConsecutiveSkips is how many frames in a row a level may be skipped
	// before it is force-processed regardless of budget.
	MaxConsecutiveSkips int

	// MaxMissingFrames is how many consecutive frames a landmark may go
	// unobserved before its filter state is discarded; the same threshold
	// bounds the frame-index gap treated as a temporal discontinuity
	// (scene cut), which invalidates the cache and resets all filters.
	MaxMissingFrames int

	// Quantization is the fingerprint cell size (coordinate units).
	Quantization float64

	// RegionLevels maps each region to its priority level.
	RegionLevels [NumRegions]PriorityLevel
}

// CacheConfig groups region cache parameters, consumed by pipeline/cache.
type CacheConfig struct {
	// Strategies selects the eviction strategy per region by name
	// ("lru", "lfu", "adaptive", "temporal", "hybrid"). Empty entries
	// default to "lru".
	Strategies [NumRegions]string

	// MaxEntries caps the number of entries per region shard (0 = 64).
	MaxEntries int

	// MaxBytes caps the compressed payload bytes per region shard
	// (0 = unlimited; entry-count cap still applies).
	MaxBytes int64

	// LockTimeoutMS bounds how long Get/Put wait for a shard lock before
	// failing open as a miss. Zero means the 1ms default.
	LockTimeoutMS float64

	// AdaptiveWindow is the hit/miss sliding window length for the
	// adaptive strategy (0 = 64).
	AdaptiveWindow int

	// AdaptiveLowWater / AdaptiveHighWater are the hit-ratio thresholds at
	// which the adaptive strategy switches to LFU / back to LRU.
	AdaptiveLowWater  float64
	AdaptiveHighWater float64

	// TemporalMaxAgeMS is the absolute entry lifetime for the temporal
	// strategy, in milliseconds (0 = 500ms).
	TemporalMaxAgeMS float64

	// Hybrid scoring weights. Zero values take the defaults (1, 1, 1).
	HybridRecencyWeight   float64
	HybridFrequencyWeight float64
	HybridAgeWeight       float64
}

// SmoothingConfig groups temporal smoother parameters, consumed by
// pipeline/smoothing.
type SmoothingConfig struct {
	// OutlierSigma is the adaptive outlier threshold multiplier: a sample
	// deviating from the Kalman prediction by more than OutlierSigma times
	// the rolling window's standard deviation is rejected.
	OutlierSigma float64

	// OutlierMinStddev floors the window stddev so a perfectly still
	// landmark does not reject every micro-movement.
	OutlierMinStddev float64

	// MinWindowFill is the minimum number of window samples before the
	// outlier gate activates.
	MinWindowFill int

	// MaxConsecutiveRejects bounds how many samples in a row the outlier
	// gate may reject for one landmark. Past the bound the deviation is
	// treated as real motion and the filter reinitializes from the
	// measurement, so a trajectory change cannot lock the gate shut.
	MaxConsecutiveRejects int

	// Kalman constant-velocity model noise parameters.
	ProcessNoisePos  float64
	ProcessNoiseVel  float64
	MeasurementNoise float64

	// WindowSize is the rolling raw-sample window length, shared by the
	// outlier gate and the weighted moving average.
	WindowSize int

	// WMADecay is the per-step recency decay of moving-average weights,
	// in (0,1]. Lower values weigh recent samples more heavily.
	WMADecay float64

	// KalmanWeight is the weight of the Kalman output in the final
	// weighted average (raw window samples carry the decayed weights).
	KalmanWeight float64

	// MaxMissingFrames mirrors Config.MaxMissingFrames for standalone use
	// of the smoother.
	MaxMissingFrames int
}

// DefaultConfig returns the recommended processor configuration for a
// 30fps stream.
func DefaultConfig() Config {
	cfg := Config{
		FrameBudgetMS:       25.0,
		CostAlpha:           0.2,
		MaxConsecutiveSkips: 10,
		MaxMissingFrames:    15,
		Quantization:        DefaultQuantization,
	}
	for _, r := range Regions() {
		cfg.RegionLevels[r] = DefaultLevelOf(r)
	}
	return cfg
}

// DefaultCacheConfig returns per-region strategies tuned for typical
// motion profiles: temporal eviction for the fast-moving hands, adaptive
// for the face mesh, LRU elsewhere.
func DefaultCacheConfig() CacheConfig {
	cfg := CacheConfig{
		MaxEntries:            64,
		LockTimeoutMS:         1.0,
		AdaptiveWindow:        64,
		AdaptiveLowWater:      0.2,
		AdaptiveHighWater:     0.6,
		TemporalMaxAgeMS:      500,
		HybridRecencyWeight:   1.0,
		HybridFrequencyWeight: 1.0,
		HybridAgeWeight:       1.0,
	}
	for _, r := range Regions() {
		cfg.Strategies[r] = "lru"
	}
	cfg.Strategies[RegionLeftHand] = "temporal"
	cfg.Strategies[RegionRightHand] = "temporal"
	cfg.Strategies[RegionFace] = "adaptive"
	return cfg
}

// DefaultSmoothingConfig returns smoothing defaults tuned for ~2px sensor
// noise at 30fps.
func DefaultSmoothingConfig() SmoothingConfig {
	return SmoothingConfig{
		OutlierSigma:          4.0,
		OutlierMinStddev:      0.5,
		MinWindowFill:         4,
		MaxConsecutiveRejects: 3,
		ProcessNoisePos:       0.05,
		ProcessNoiseVel:       0.01,
		MeasurementNoise:      4.0,
		WindowSize:            8,
		WMADecay:              0.6,
		KalmanWeight:          2.0,
		MaxMissingFrames:      15,
	}
}
