package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/posekit/posekit/pipeline/trace"
)

// Bundle holds unified pipeline configuration, loadable from a YAML file.
// Nil pointer fields mean "not set in YAML" and do not override the
// defaults. Name maps use the string forms validated below.
type Bundle struct {
	Processor ProcessorBundle `yaml:"processor"`
	Cache     CacheBundle     `yaml:"cache"`
	Smoothing SmoothingBundle `yaml:"smoothing"`
	Trace     string          `yaml:"trace"`
}

// ProcessorBundle overrides Config fields.
type ProcessorBundle struct {
	FrameBudgetMS       *float64          `yaml:"frame_budget_ms"`
	CostAlpha           *float64          `yaml:"cost_alpha"`
	MaxConsecutiveSkips *int              `yaml:"max_consecutive_skips"`
	MaxMissingFrames    *int              `yaml:"max_missing_frames"`
	Quantization        *float64          `yaml:"quantization"`
	RegionLevels        map[string]string `yaml:"region_levels"` // region name → level name
}

// CacheBundle overrides CacheConfig fields.
type CacheBundle struct {
	Strategies        map[string]string `yaml:"strategies"` // region name → strategy name
	MaxEntries        *int              `yaml:"max_entries"`
	MaxBytes          *int64            `yaml:"max_bytes"`
	LockTimeoutMS     *float64          `yaml:"lock_timeout_ms"`
	AdaptiveWindow    *int              `yaml:"adaptive_window"`
	AdaptiveLowWater  *float64          `yaml:"adaptive_low_water"`
	AdaptiveHighWater *float64          `yaml:"adaptive_high_water"`
	TemporalMaxAgeMS  *float64          `yaml:"temporal_max_age_ms"`
	HybridRecency     *float64          `yaml:"hybrid_recency_weight"`
	HybridFrequency   *float64          `yaml:"hybrid_frequency_weight"`
	HybridAge         *float64          `yaml:"hybrid_age_weight"`
}

// SmoothingBundle overrides SmoothingConfig fields.
type SmoothingBundle struct {
	OutlierSigma          *float64 `yaml:"outlier_sigma"`
	OutlierMinStddev      *float64 `yaml:"outlier_min_stddev"`
	MinWindowFill         *int     `yaml:"min_window_fill"`
	MaxConsecutiveRejects *int     `yaml:"max_consecutive_rejects"`
	ProcessNoisePos       *float64 `yaml:"process_noise_pos"`
	ProcessNoiseVel       *float64 `yaml:"process_noise_vel"`
	MeasurementNoise      *float64 `yaml:"measurement_noise"`
	WindowSize            *int     `yaml:"window_size"`
	WMADecay              *float64 `yaml:"wma_decay"`
	KalmanWeight          *float64 `yaml:"kalman_weight"`
	MaxMissingFrames      *int     `yaml:"max_missing_frames"`
}

// LoadBundle reads and parses a YAML pipeline configuration file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline config: %w", err)
	}
	var bundle Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parsing pipeline config: %w", err)
	}
	return &bundle, nil
}

// ValidCacheStrategies is the set of recognized cache strategy names.
// Shared by Validate() and the cache package's strategy construction.
var ValidCacheStrategies = map[string]bool{
	"": true, "lru": true, "lfu": true, "adaptive": true, "temporal": true, "hybrid": true,
}

// IsValidCacheStrategy returns true for a recognized strategy name.
func IsValidCacheStrategy(name string) bool {
	return ValidCacheStrategies[name]
}

// regionsByName maps yaml region names to Region values.
var regionsByName = func() map[string]Region {
	m := make(map[string]Region, NumRegions)
	for _, r := range Regions() {
		m[r.String()] = r
	}
	return m
}()

// levelsByName maps yaml level names to PriorityLevel values.
var levelsByName = func() map[string]PriorityLevel {
	m := make(map[string]PriorityLevel, NumLevels)
	for _, l := range Levels() {
		m[l.String()] = l
	}
	return m
}()

// RegionFromName resolves a region by its yaml/CLI name.
func RegionFromName(name string) (Region, bool) {
	r, ok := regionsByName[name]
	return r, ok
}

// LevelFromName resolves a priority level by its yaml/CLI name.
func LevelFromName(name string) (PriorityLevel, bool) {
	l, ok := levelsByName[name]
	return l, ok
}

// Validate checks that all names and parameter ranges in the bundle are valid.
func (b *Bundle) Validate() error {
	if !trace.IsValidTraceLevel(b.Trace) {
		return fmt.Errorf("unknown trace level %q", b.Trace)
	}
	for region, strategy := range b.Cache.Strategies {
		if _, ok := RegionFromName(region); !ok {
			return fmt.Errorf("unknown region %q in cache strategies", region)
		}
		if !IsValidCacheStrategy(strategy) {
			return fmt.Errorf("unknown cache strategy %q for region %q", strategy, region)
		}
	}
	for region, level := range b.Processor.RegionLevels {
		if _, ok := RegionFromName(region); !ok {
			return fmt.Errorf("unknown region %q in region levels", region)
		}
		if _, ok := LevelFromName(level); !ok {
			return fmt.Errorf("unknown priority level %q for region %q", level, region)
		}
	}
	if b.Processor.FrameBudgetMS != nil && *b.Processor.FrameBudgetMS < 0 {
		return fmt.Errorf("frame_budget_ms must be non-negative, got %v", *b.Processor.FrameBudgetMS)
	}
	if b.Processor.CostAlpha != nil && (*b.Processor.CostAlpha <= 0 || *b.Processor.CostAlpha > 1) {
		return fmt.Errorf("cost_alpha must be in (0, 1], got %v", *b.Processor.CostAlpha)
	}
	if b.Processor.Quantization != nil && *b.Processor.Quantization <= 0 {
		return fmt.Errorf("quantization must be positive, got %v", *b.Processor.Quantization)
	}
	if b.Cache.MaxEntries != nil && *b.Cache.MaxEntries <= 0 {
		return fmt.Errorf("max_entries must be positive, got %d", *b.Cache.MaxEntries)
	}
	if b.Cache.AdaptiveLowWater != nil && b.Cache.AdaptiveHighWater != nil &&
		*b.Cache.AdaptiveLowWater >= *b.Cache.AdaptiveHighWater {
		return fmt.Errorf("adaptive_low_water (%v) must be below adaptive_high_water (%v)",
			*b.Cache.AdaptiveLowWater, *b.Cache.AdaptiveHighWater)
	}
	if b.Smoothing.OutlierSigma != nil && *b.Smoothing.OutlierSigma <= 0 {
		return fmt.Errorf("outlier_sigma must be positive, got %v", *b.Smoothing.OutlierSigma)
	}
	if b.Smoothing.WMADecay != nil && (*b.Smoothing.WMADecay <= 0 || *b.Smoothing.WMADecay > 1) {
		return fmt.Errorf("wma_decay must be in (0, 1], got %v", *b.Smoothing.WMADecay)
	}
	if b.Smoothing.WindowSize != nil && *b.Smoothing.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", *b.Smoothing.WindowSize)
	}
	if b.Smoothing.MaxConsecutiveRejects != nil && *b.Smoothing.MaxConsecutiveRejects <= 0 {
		return fmt.Errorf("max_consecutive_rejects must be positive, got %d", *b.Smoothing.MaxConsecutiveRejects)
	}
	return nil
}

// Apply overlays the bundle's set fields onto the given configs.
// Call Validate first; Apply assumes names resolve.
func (b *Bundle) Apply(cfg *Config, cacheCfg *CacheConfig, smoothingCfg *SmoothingConfig) {
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setI := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setF(&cfg.FrameBudgetMS, b.Processor.FrameBudgetMS)
	setF(&cfg.CostAlpha, b.Processor.CostAlpha)
	setI(&cfg.MaxConsecutiveSkips, b.Processor.MaxConsecutiveSkips)
	setI(&cfg.MaxMissingFrames, b.Processor.MaxMissingFrames)
	setF(&cfg.Quantization, b.Processor.Quantization)
	for name, levelName := range b.Processor.RegionLevels {
		r, _ := RegionFromName(name)
		l, _ := LevelFromName(levelName)
		cfg.RegionLevels[r] = l
	}

	for name, strategy := range b.Cache.Strategies {
		r, _ := RegionFromName(name)
		cacheCfg.Strategies[r] = strategy
	}
	setI(&cacheCfg.MaxEntries, b.Cache.MaxEntries)
	if b.Cache.MaxBytes != nil {
		cacheCfg.MaxBytes = *b.Cache.MaxBytes
	}
	setF(&cacheCfg.LockTimeoutMS, b.Cache.LockTimeoutMS)
	setI(&cacheCfg.AdaptiveWindow, b.Cache.AdaptiveWindow)
	setF(&cacheCfg.AdaptiveLowWater, b.Cache.AdaptiveLowWater)
	setF(&cacheCfg.AdaptiveHighWater, b.Cache.AdaptiveHighWater)
	setF(&cacheCfg.TemporalMaxAgeMS, b.Cache.TemporalMaxAgeMS)
	setF(&cacheCfg.HybridRecencyWeight, b.Cache.HybridRecency)
	setF(&cacheCfg.HybridFrequencyWeight, b.Cache.HybridFrequency)
	setF(&cacheCfg.HybridAgeWeight, b.Cache.HybridAge)

	setF(&smoothingCfg.OutlierSigma, b.Smoothing.OutlierSigma)
	setF(&smoothingCfg.OutlierMinStddev, b.Smoothing.OutlierMinStddev)
	setI(&smoothingCfg.MinWindowFill, b.Smoothing.MinWindowFill)
	setI(&smoothingCfg.MaxConsecutiveRejects, b.Smoothing.MaxConsecutiveRejects)
	setF(&smoothingCfg.ProcessNoisePos, b.Smoothing.ProcessNoisePos)
	setF(&smoothingCfg.ProcessNoiseVel, b.Smoothing.ProcessNoiseVel)
	setF(&smoothingCfg.MeasurementNoise, b.Smoothing.MeasurementNoise)
	setI(&smoothingCfg.WindowSize, b.Smoothing.WindowSize)
	setF(&smoothingCfg.WMADecay, b.Smoothing.WMADecay)
	setF(&smoothingCfg.KalmanWeight, b.Smoothing.KalmanWeight)
	setI(&smoothingCfg.MaxMissingFrames, b.Smoothing.MaxMissingFrames)
}
