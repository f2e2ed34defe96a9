// Implements the hierarchical frame processor: per frame, it walks the
// priority levels in fixed order and decides per region whether to
// recompute, serve from cache, or hold the previous output, under the
// configured wall-time budget.

package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/posekit/posekit/pipeline/trace"
)

// HierarchicalProcessor orchestrates per-frame landmark processing.
//
// One processor owns one session's state (cache, filter states, held
// outputs) and processes frames strictly in index order. Parallel video
// processing means parallel processor instances; a single instance is not
// safe for concurrent ProcessFrame calls.
type HierarchicalProcessor struct {
	cfg      Config
	cache    RegionCache
	smoother TemporalSmoother
	cost     *costEstimator
	metrics  *Metrics
	trace    *trace.SessionTrace

	levelRegions [NumLevels][]Region

	// lastSmoothed holds, per region, the most recent emitted coordinates.
	// Served verbatim when a level is skipped and as the fallback when the
	// detector has no data for a region.
	lastSmoothed [NumRegions]map[LandmarkID]Coordinate

	skipStreak [NumLevels]int
	lastIndex  int64

	// now is the clock used for budget measurement. Overridable via
	// SetClock for deterministic scheduling tests.
	now func() time.Time
}

// NewHierarchicalProcessor wires a processor from its collaborators.
// cache and smoother are owned by the caller but must not be shared with
// another live processor.
func NewHierarchicalProcessor(cfg Config, cache RegionCache, smoother TemporalSmoother) *HierarchicalProcessor {
	p := &HierarchicalProcessor{
		cfg:       cfg,
		cache:     cache,
		smoother:  smoother,
		cost:      newCostEstimator(cfg.CostAlpha),
		metrics:   NewMetrics(),
		lastIndex: -1,
		now:       time.Now,
	}
	for _, r := range Regions() {
		lvl := cfg.RegionLevels[r]
		p.levelRegions[lvl] = append(p.levelRegions[lvl], r)
	}
	return p
}

// NewProcessorFromConfig builds a processor with the registered production
// cache and smoother implementations. Panics unless pipeline/cache and
// pipeline/smoothing are linked in (blank-import them or use their
// constructors directly with NewHierarchicalProcessor).
func NewProcessorFromConfig(cfg Config, cacheCfg CacheConfig, smoothingCfg SmoothingConfig) *HierarchicalProcessor {
	if NewRegionCacheFunc == nil {
		panic("pipeline: no RegionCache registered; import github.com/posekit/posekit/pipeline/cache")
	}
	if NewSmootherFunc == nil {
		panic("pipeline: no TemporalSmoother registered; import github.com/posekit/posekit/pipeline/smoothing")
	}
	return NewHierarchicalProcessor(cfg, NewRegionCacheFunc(cacheCfg), NewSmootherFunc(smoothingCfg))
}

// SetClock replaces the budget-measurement clock. Test hook.
func (p *HierarchicalProcessor) SetClock(now func() time.Time) {
	p.now = now
}

// SetTrace attaches a decision trace. Nil disables tracing.
func (p *HierarchicalProcessor) SetTrace(t *trace.SessionTrace) {
	p.trace = t
}

// Metrics returns the processor's aggregate counters.
func (p *HierarchicalProcessor) Metrics() *Metrics {
	return p.metrics
}

// Cache returns the processor's region cache (for stats reporting).
func (p *HierarchicalProcessor) Cache() RegionCache { return p.cache }

// Smoother returns the processor's temporal smoother.
func (p *HierarchicalProcessor) Smoother() TemporalSmoother { return p.smoother }

// ProcessFrame runs one frame through the hierarchy and returns the merged
// landmark set with per-region freshness flags.
//
// The only error returns are a CriticalFailureError (critical region has no
// usable data and no fallback), an OutOfOrderFrameError, and context
// cancellation between levels. Everything else degrades through freshness
// flags.
func (p *HierarchicalProcessor) ProcessFrame(ctx context.Context, sample *FrameSample) (*FrameResult, error) {
	if p.lastIndex >= 0 && sample.Index <= p.lastIndex {
		return nil, &OutOfOrderFrameError{Index: sample.Index, LastIndex: p.lastIndex}
	}
	if p.lastIndex >= 0 && p.cfg.MaxMissingFrames > 0 &&
		sample.Index-p.lastIndex > int64(p.cfg.MaxMissingFrames) {
		p.handleDiscontinuity(sample.Index)
	}

	fc := &FrameContext{Index: sample.Index, RemainingBudget: p.cfg.FrameBudgetMS}
	res := &FrameResult{Index: sample.Index, Landmarks: make(map[LandmarkID]Coordinate, len(sample.Landmarks))}
	exhausted := false

	for _, level := range Levels() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		regions := p.levelRegions[level]
		if len(regions) == 0 {
			continue
		}

		if level != LevelCritical {
			est := p.cost.Estimate(level)
			forced := p.cfg.MaxConsecutiveSkips > 0 && p.skipStreak[level] >= p.cfg.MaxConsecutiveSkips
			cold := !p.cost.Seen(level)
			if !forced && !cold && (exhausted || est > fc.RemainingBudget) {
				p.skipLevel(level, est, fc, res)
				continue
			}
			if forced {
				fc.LevelOutcome[level] = ActionForced
				for _, r := range regions {
					fc.ForcedRefresh[r] = true
				}
				p.metrics.ForcedRefreshes++
				if p.trace != nil {
					p.trace.RecordForced(trace.ForcedRecord{
						FrameIndex: sample.Index,
						Level:      level.String(),
						SkipStreak: p.skipStreak[level],
					})
				}
				logrus.Debugf("frame %d: level %s force-processed after %d consecutive skips",
					sample.Index, level, p.skipStreak[level])
			} else {
				fc.LevelOutcome[level] = ActionProcessed
			}
		} else {
			fc.LevelOutcome[level] = ActionProcessed
		}

		start := p.now()
		err := p.processLevel(level, sample, res)
		elapsed := float64(p.now().Sub(start)) / float64(time.Millisecond)
		fc.LevelElapsed[level] = elapsed
		p.cost.Observe(level, elapsed)
		fc.RemainingBudget -= elapsed
		if fc.RemainingBudget <= 0 {
			fc.RemainingBudget = 0
			exhausted = true
		}
		p.skipStreak[level] = 0

		if err != nil {
			// Critical level had no usable data: the frame is failed,
			// downstream analysis is meaningless without a pose anchor.
			p.lastIndex = sample.Index
			p.metrics.FramesFailed++
			return nil, err
		}
	}

	p.lastIndex = sample.Index
	p.metrics.FramesProcessed++
	if res.Partial {
		p.metrics.FramesPartial++
	}
	total := 0.0
	for _, e := range fc.LevelElapsed {
		total += e
	}
	p.metrics.FrameLatenciesMS = append(p.metrics.FrameLatenciesMS, total)
	return res, nil
}

// handleDiscontinuity resets filter and cache state after a tracking gap
// larger than the reset threshold (scene cut, long dropout). A stale
// Kalman prior across such a gap would snap the output to a visibly wrong
// extrapolation.
func (p *HierarchicalProcessor) handleDiscontinuity(index int64) {
	logrus.Warnf("frame %d: tracking gap of %d frames exceeds reset threshold %d; resetting session state",
		index, index-p.lastIndex, p.cfg.MaxMissingFrames)
	for _, r := range Regions() {
		p.cache.Invalidate(r)
		p.lastSmoothed[r] = nil
	}
	p.smoother.ResetAll()
	p.metrics.Discontinuities++
	if p.trace != nil {
		p.trace.RecordReset(trace.ResetRecord{FrameIndex: index, LandmarkID: -1, Reason: "discontinuity"})
	}
}

// skipLevel holds the previous output for every region in the level.
func (p *HierarchicalProcessor) skipLevel(level PriorityLevel, est float64, fc *FrameContext, res *FrameResult) {
	fc.LevelOutcome[level] = ActionSkipped
	p.skipStreak[level]++
	p.metrics.LevelSkips[level]++
	if p.trace != nil {
		p.trace.RecordSkip(trace.SkipRecord{
			FrameIndex:      fc.Index,
			Level:           level.String(),
			EstimatedCostMS: est,
			RemainingMS:     fc.RemainingBudget,
		})
	}
	logrus.Debugf("frame %d: level %s skipped (est %.2fms > remaining %.2fms)",
		fc.Index, level, est, fc.RemainingBudget)
	for _, r := range p.levelRegions[level] {
		res.Region[r] = FreshnessSkipped
		for id, c := range p.lastSmoothed[r] {
			res.Landmarks[id] = c
		}
	}
}

// processLevel recomputes or cache-serves each region in the level.
// Returns a CriticalFailureError only for critical regions with no data
// and no fallback.
func (p *HierarchicalProcessor) processLevel(level PriorityLevel, sample *FrameSample, res *FrameResult) error {
	for _, region := range p.levelRegions[level] {
		if err := p.processRegion(level, region, sample, res); err != nil {
			return err
		}
	}
	return nil
}

func (p *HierarchicalProcessor) processRegion(level PriorityLevel, region Region, sample *FrameSample, res *FrameResult) error {
	if sample.RegionLandmarkCount(region) == 0 {
		return p.fallbackRegion(level, region, sample.Index, res)
	}

	key := CacheKey{Region: region, Fingerprint: RegionFingerprint(sample, region, p.cfg.Quantization)}
	members := RegionLandmarks(region)
	out := make(map[LandmarkID]Coordinate, len(members))

	if entry, ok := p.cache.Get(key); ok {
		// Reuse-with-refresh: the cached coordinates seed the Kalman prior
		// and the newest raw sample still passes the outlier gate.
		for _, id := range members {
			prior := entry.Coordinates[id]
			if raw, has := sample.Landmarks[id]; has {
				out[id] = p.smoother.ApplyWithPrior(id, sample.Index, prior, raw)
			} else {
				p.smoother.ObserveMissing(id, sample.Index)
				out[id] = prior
			}
		}
		res.Region[region] = FreshnessCacheReused
		if p.trace != nil {
			p.trace.RecordDecision(trace.DecisionRecord{
				FrameIndex: sample.Index, Region: region.String(),
				Outcome: string(FreshnessCacheReused), Fingerprint: uint64(key.Fingerprint),
			})
		}
		p.storeAndEmit(key, out, res)
		return nil
	}

	// Cache miss: full recompute through the smoother chain. Landmarks the
	// detector missed inside an otherwise-present region hold their last
	// smoothed value while their filters coast on prediction.
	for _, id := range members {
		if raw, has := sample.Landmarks[id]; has {
			out[id] = p.smoother.Apply(id, sample.Index, raw)
			continue
		}
		p.smoother.ObserveMissing(id, sample.Index)
		if last, ok := p.lastSmoothed[region][id]; ok {
			out[id] = last
		}
	}
	res.Region[region] = FreshnessFresh
	if p.trace != nil {
		p.trace.RecordDecision(trace.DecisionRecord{
			FrameIndex: sample.Index, Region: region.String(),
			Outcome: string(FreshnessFresh), Fingerprint: uint64(key.Fingerprint),
		})
	}
	p.storeAndEmit(key, out, res)
	return nil
}

// storeAndEmit writes the region result back to the cache (only complete
// sets are cacheable), records it as the held output, and merges it into
// the frame result.
func (p *HierarchicalProcessor) storeAndEmit(key CacheKey, out map[LandmarkID]Coordinate, res *FrameResult) {
	if len(out) == RegionSize(key.Region) {
		if err := p.cache.Put(key, out); err != nil {
			logrus.Warnf("cache put for region %s: %v", key.Region, err)
		}
	}
	p.lastSmoothed[key.Region] = out
	for id, c := range out {
		res.Landmarks[id] = c
	}
}

// fallbackRegion handles a detection gap: the detector produced no
// landmarks for the region this frame.
func (p *HierarchicalProcessor) fallbackRegion(level PriorityLevel, region Region, frameIndex int64, res *FrameResult) error {
	for _, id := range RegionLandmarks(region) {
		p.smoother.ObserveMissing(id, frameIndex)
	}
	if last := p.lastSmoothed[region]; last != nil {
		res.Region[region] = FreshnessFallback
		res.Partial = true
		for id, c := range last {
			res.Landmarks[id] = c
		}
		logrus.Debugf("frame %d: region %s missing, serving held output", frameIndex, region)
		return nil
	}
	if level == LevelCritical {
		return &CriticalFailureError{FrameIndex: frameIndex, Region: region}
	}
	// Nothing to serve yet for a non-critical region; downstream sees the
	// gap through the freshness flag.
	res.Region[region] = FreshnessFallback
	res.Partial = true
	return nil
}
