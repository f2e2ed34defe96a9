package pipeline_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/posekit/posekit/pipeline"
	"github.com/posekit/posekit/pipeline/cache"
	"github.com/posekit/posekit/pipeline/smoothing"
	"github.com/posekit/posekit/pipeline/trace"
	"github.com/posekit/posekit/pipeline/workload"
)

// fakeClock advances a fixed step on every reading, so each processed
// level measures exactly stepMS of wall time.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func newFakeClock(stepMS float64) *fakeClock {
	return &fakeClock{
		t:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		step: time.Duration(stepMS * float64(time.Millisecond)),
	}
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

// fullSample builds a complete 543-landmark detector frame with positions
// derived from the landmark ID plus an offset.
func fullSample(index int64, offset float64) *pipeline.FrameSample {
	s := &pipeline.FrameSample{
		Index:     index,
		Landmarks: make(map[pipeline.LandmarkID]pipeline.Coordinate, pipeline.TotalLandmarks),
	}
	for id := 0; id < pipeline.TotalLandmarks; id++ {
		s.Landmarks[pipeline.LandmarkID(id)] = pipeline.Coordinate{
			X:          offset + float64(id)*3.0,
			Y:          offset + float64(id)*2.0,
			Z:          -0.1,
			Visibility: 1.0,
		}
	}
	return s
}

func dropRegion(s *pipeline.FrameSample, r pipeline.Region) {
	for _, id := range pipeline.RegionLandmarks(r) {
		delete(s.Landmarks, id)
	}
}

func newTestProcessor(cfg pipeline.Config) *pipeline.HierarchicalProcessor {
	return pipeline.NewHierarchicalProcessor(cfg,
		cache.New(pipeline.DefaultCacheConfig()),
		smoothing.New(pipeline.DefaultSmoothingConfig()))
}

func processedOrReused(f pipeline.Freshness) bool {
	return f == pipeline.FreshnessFresh || f == pipeline.FreshnessCacheReused
}

// === Scheduling Tests ===

func TestProcessFrame_ColdStartProcessesEveryLevel(t *testing.T) {
	// GIVEN an unseen workload, WHEN the first frame arrives, THEN every
	// level runs even though measured costs already exceed the budget:
	// cost estimates only exist after a level has run once.
	cfg := pipeline.DefaultConfig()
	cfg.FrameBudgetMS = 25
	p := newTestProcessor(cfg)
	p.SetClock(newFakeClock(10).now)

	res, err := p.ProcessFrame(context.Background(), fullSample(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Landmarks) != pipeline.TotalLandmarks {
		t.Errorf("result has %d landmarks, want %d", len(res.Landmarks), pipeline.TotalLandmarks)
	}
	for _, r := range pipeline.Regions() {
		if res.Region[r] != pipeline.FreshnessFresh {
			t.Errorf("region %s freshness = %q on cold start, want fresh", r, res.Region[r])
		}
	}
}

func TestProcessFrame_SkipsLowPriorityLevelsUnderTightBudget(t *testing.T) {
	// With a 10ms measured cost per level and a 25ms budget, the second
	// frame fits critical (10) and high (10) but not medium or low.
	cfg := pipeline.DefaultConfig()
	cfg.FrameBudgetMS = 25
	p := newTestProcessor(cfg)
	p.SetClock(newFakeClock(10).now)

	if _, err := p.ProcessFrame(context.Background(), fullSample(0, 0)); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	res, err := p.ProcessFrame(context.Background(), fullSample(1, 1))
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}

	if !processedOrReused(res.Region[pipeline.RegionPoseCore]) {
		t.Errorf("pose-core freshness = %q, want processed", res.Region[pipeline.RegionPoseCore])
	}
	if !processedOrReused(res.Region[pipeline.RegionLeftHand]) {
		t.Errorf("left-hand freshness = %q, want processed", res.Region[pipeline.RegionLeftHand])
	}
	assert.Equal(t, pipeline.FreshnessSkipped, res.Region[pipeline.RegionFace])
	assert.Equal(t, pipeline.FreshnessSkipped, res.Region[pipeline.RegionFeet])
	assert.Equal(t, pipeline.FreshnessSkipped, res.Region[pipeline.RegionAuxiliary])

	m := p.Metrics()
	assert.Equal(t, 1, m.LevelSkips[pipeline.LevelMedium])
	assert.Equal(t, 1, m.LevelSkips[pipeline.LevelLow])
	assert.Equal(t, 0, m.LevelSkips[pipeline.LevelCritical])
	// Skipped regions still emit their held coordinates.
	if len(res.Landmarks) != pipeline.TotalLandmarks {
		t.Errorf("skipped frame emitted %d landmarks, want %d", len(res.Landmarks), pipeline.TotalLandmarks)
	}
}

func TestProcessFrame_ElapsedBoundedByBudgetPlusOneLevel(t *testing.T) {
	// Once per-level costs are learned, a frame's total measured time may
	// exceed the budget by at most one level's overrun: the scheduler only
	// commits to a level while budget remains, so the final committed level
	// is the only one that can run past it. The warm-up frame is exempt
	// because unmeasured levels always run once.
	const stepMS = 10.0
	for _, budget := range []float64{5, 15, 25} {
		cfg := pipeline.DefaultConfig()
		cfg.FrameBudgetMS = budget
		cfg.MaxConsecutiveSkips = 0 // forced refreshes overrun on purpose
		p := newTestProcessor(cfg)
		p.SetClock(newFakeClock(stepMS).now)

		for i := int64(0); i < 12; i++ {
			if _, err := p.ProcessFrame(context.Background(), fullSample(i, float64(i))); err != nil {
				t.Fatalf("budget %v, frame %d: %v", budget, i, err)
			}
		}

		latencies := p.Metrics().FrameLatenciesMS
		if len(latencies) != 12 {
			t.Fatalf("budget %v: recorded %d latencies, want 12", budget, len(latencies))
		}
		for i, l := range latencies[1:] {
			if l > budget+stepMS {
				t.Errorf("budget %v, frame %d: elapsed %vms exceeds budget by more than one level",
					budget, i+1, l)
			}
		}
		// Critical is exempt from skipping, so frames are never free.
		for i, l := range latencies {
			if l < stepMS {
				t.Errorf("budget %v, frame %d: elapsed %vms, critical level did not run", budget, i, l)
			}
		}
	}
}

func TestProcessFrame_CriticalNeverSkippedAtZeroBudget(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.FrameBudgetMS = 0
	cfg.MaxConsecutiveSkips = 0 // no forced refresh; pure starvation
	p := newTestProcessor(cfg)
	p.SetClock(newFakeClock(5).now)

	for i := int64(0); i < 10; i++ {
		res, err := p.ProcessFrame(context.Background(), fullSample(i, float64(i)))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !processedOrReused(res.Region[pipeline.RegionPoseCore]) {
			t.Errorf("frame %d: pose-core freshness = %q, want processed", i, res.Region[pipeline.RegionPoseCore])
		}
		if i > 0 && res.Region[pipeline.RegionFace] != pipeline.FreshnessSkipped {
			t.Errorf("frame %d: face freshness = %q, want skipped", i, res.Region[pipeline.RegionFace])
		}
		if len(res.Landmarks) != pipeline.TotalLandmarks {
			t.Errorf("frame %d: %d landmarks, want full set from held values", i, len(res.Landmarks))
		}
	}
	assert.Equal(t, 9, p.Metrics().LevelSkips[pipeline.LevelHigh])
	assert.Equal(t, 0, p.Metrics().ForcedRefreshes)
}

func TestProcessFrame_ForcedRefreshCapsStaleness(t *testing.T) {
	// At zero budget each non-critical level starves until its skip streak
	// reaches the cap, then it is force-processed regardless of budget.
	cfg := pipeline.DefaultConfig()
	cfg.FrameBudgetMS = 0
	cfg.MaxConsecutiveSkips = 3
	p := newTestProcessor(cfg)
	p.SetClock(newFakeClock(5).now)
	st := trace.NewSessionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	p.SetTrace(st)

	var res *pipeline.FrameResult
	var err error
	for i := int64(0); i <= 4; i++ {
		res, err = p.ProcessFrame(context.Background(), fullSample(i, 10*float64(i)))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	// Frames 1-3 skipped the high level; frame 4 force-processed it.
	if !processedOrReused(res.Region[pipeline.RegionLeftHand]) {
		t.Errorf("frame 4: left-hand freshness = %q, want force-processed", res.Region[pipeline.RegionLeftHand])
	}
	assert.Equal(t, 3, p.Metrics().LevelSkips[pipeline.LevelHigh])
	assert.Equal(t, 3, p.Metrics().ForcedRefreshes) // high, medium, low
	if assert.Len(t, st.Forced, 3) {
		assert.Equal(t, int64(4), st.Forced[0].FrameIndex)
		assert.Equal(t, 3, st.Forced[0].SkipStreak)
	}
}

// === Error Path Tests ===

func TestProcessFrame_OutOfOrderFrameRejected(t *testing.T) {
	p := newTestProcessor(pipeline.DefaultConfig())
	if _, err := p.ProcessFrame(context.Background(), fullSample(5, 0)); err != nil {
		t.Fatalf("frame 5: %v", err)
	}

	_, err := p.ProcessFrame(context.Background(), fullSample(5, 0))
	var oor *pipeline.OutOfOrderFrameError
	if !errors.As(err, &oor) {
		t.Fatalf("replayed frame: got %v, want OutOfOrderFrameError", err)
	}
	assert.Equal(t, int64(5), oor.Index)
	assert.Equal(t, int64(5), oor.LastIndex)

	// The session is still live for in-order frames.
	if _, err := p.ProcessFrame(context.Background(), fullSample(6, 0)); err != nil {
		t.Errorf("frame 6 after rejected replay: %v", err)
	}
}

func TestProcessFrame_CriticalLossWithoutFallbackFailsFrame(t *testing.T) {
	p := newTestProcessor(pipeline.DefaultConfig())
	s := fullSample(0, 0)
	dropRegion(s, pipeline.RegionPoseCore)

	_, err := p.ProcessFrame(context.Background(), s)
	var cf *pipeline.CriticalFailureError
	if !errors.As(err, &cf) {
		t.Fatalf("got %v, want CriticalFailureError", err)
	}
	assert.Equal(t, pipeline.RegionPoseCore, cf.Region)
	assert.Equal(t, 1, p.Metrics().FramesFailed)
}

func TestProcessFrame_CriticalLossWithFallbackDegrades(t *testing.T) {
	p := newTestProcessor(pipeline.DefaultConfig())
	if _, err := p.ProcessFrame(context.Background(), fullSample(0, 0)); err != nil {
		t.Fatalf("frame 0: %v", err)
	}

	s := fullSample(1, 0)
	dropRegion(s, pipeline.RegionPoseCore)
	res, err := p.ProcessFrame(context.Background(), s)
	if err != nil {
		t.Fatalf("frame 1 with held pose available: %v", err)
	}
	assert.Equal(t, pipeline.FreshnessFallback, res.Region[pipeline.RegionPoseCore])
	assert.True(t, res.Partial)
	assert.Equal(t, 1, p.Metrics().FramesPartial)
	// Held pose-core coordinates are served.
	for _, id := range pipeline.RegionLandmarks(pipeline.RegionPoseCore) {
		if _, ok := res.Landmarks[id]; !ok {
			t.Fatalf("landmark %d missing from fallback output", id)
		}
	}
}

func TestProcessFrame_NonCriticalGapIsNotAnError(t *testing.T) {
	p := newTestProcessor(pipeline.DefaultConfig())
	s := fullSample(0, 0)
	dropRegion(s, pipeline.RegionLeftHand)

	// First frame: nothing held yet, the gap shows only through flags.
	res, err := p.ProcessFrame(context.Background(), s)
	if err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	assert.Equal(t, pipeline.FreshnessFallback, res.Region[pipeline.RegionLeftHand])
	assert.True(t, res.Partial)

	// Second frame with the hand back, third with it gone again: the held
	// output is served.
	if _, err := p.ProcessFrame(context.Background(), fullSample(1, 0)); err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	s2 := fullSample(2, 0)
	dropRegion(s2, pipeline.RegionLeftHand)
	res, err = p.ProcessFrame(context.Background(), s2)
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	assert.Equal(t, pipeline.FreshnessFallback, res.Region[pipeline.RegionLeftHand])
	for _, id := range pipeline.RegionLandmarks(pipeline.RegionLeftHand) {
		if _, ok := res.Landmarks[id]; !ok {
			t.Fatalf("landmark %d missing despite held output", id)
		}
	}
}

func TestProcessFrame_CancelledContext(t *testing.T) {
	p := newTestProcessor(pipeline.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessFrame(ctx, fullSample(0, 0))
	assert.ErrorIs(t, err, context.Canceled)
}

// === Continuity Tests ===

func TestProcessFrame_LargeGapResetsSessionState(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.MaxMissingFrames = 15
	p := newTestProcessor(cfg)
	st := trace.NewSessionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	p.SetTrace(st)

	if _, err := p.ProcessFrame(context.Background(), fullSample(0, 0)); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	res, err := p.ProcessFrame(context.Background(), fullSample(100, 500))
	if err != nil {
		t.Fatalf("frame 100 after gap: %v", err)
	}

	assert.Equal(t, 1, p.Metrics().Discontinuities)
	// Post-reset the frame recomputes from scratch rather than reusing a
	// pre-gap cache entry.
	for _, r := range pipeline.Regions() {
		assert.Equal(t, pipeline.FreshnessFresh, res.Region[r], "region %s", r)
	}
	if p.Smoother().Stats().Resets == 0 {
		t.Error("filter states were not reset across the discontinuity")
	}
	if len(st.Resets) != 1 || st.Resets[0].Reason != "discontinuity" {
		t.Errorf("trace resets = %+v, want one discontinuity record", st.Resets)
	}
}

func TestProcessFrame_SmallGapDoesNotReset(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.MaxMissingFrames = 15
	p := newTestProcessor(cfg)

	if _, err := p.ProcessFrame(context.Background(), fullSample(0, 0)); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	if _, err := p.ProcessFrame(context.Background(), fullSample(10, 0)); err != nil {
		t.Fatalf("frame 10: %v", err)
	}
	assert.Equal(t, 0, p.Metrics().Discontinuities)
}

// === Cache Interaction Tests ===

func TestProcessFrame_StablePoseServesFromCache(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.FrameBudgetMS = 1000
	p := newTestProcessor(cfg)

	if _, err := p.ProcessFrame(context.Background(), fullSample(0, 0)); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	res, err := p.ProcessFrame(context.Background(), fullSample(1, 0))
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}

	// An unmoved subject reuses every region's cached result.
	for _, r := range pipeline.Regions() {
		assert.Equal(t, pipeline.FreshnessCacheReused, res.Region[r], "region %s", r)
	}
	stats := p.Cache().Stats()
	if stats.Hits == 0 {
		t.Error("no cache hits recorded for an unmoved subject")
	}
}

func TestNewProcessorFromConfig_UsesRegisteredImplementations(t *testing.T) {
	p := pipeline.NewProcessorFromConfig(
		pipeline.DefaultConfig(), pipeline.DefaultCacheConfig(), pipeline.DefaultSmoothingConfig())
	res, err := p.ProcessFrame(context.Background(), fullSample(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, pipeline.TotalLandmarks, len(res.Landmarks))
}

// === End-to-End ===

func TestEndToEnd_SmoothingReducesTrackingError(t *testing.T) {
	spec := workload.Spec{
		Frames:          120,
		Seed:            7,
		NoiseSigma:      2.0,
		MotionAmplitude: 10.0,
		MotionPeriod:    120.0,
		OutlierRate:     0.02,
		OutlierScale:    100.0,
	}
	gen := workload.NewGenerator(spec)

	cfg := pipeline.DefaultConfig()
	cfg.FrameBudgetMS = 1000 // generous: this test measures quality, not scheduling
	p := newTestProcessor(cfg)

	const warmup = 20
	var rawSq, smoothSq float64
	var n int
	for i := int64(0); i < int64(spec.Frames); i++ {
		sample := gen.Frame(i)
		res, err := p.ProcessFrame(context.Background(), sample)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if i < warmup {
			continue
		}
		for _, id := range pipeline.RegionLandmarks(pipeline.RegionPoseCore) {
			truth := gen.GroundTruth(id, i)
			raw, ok := sample.Landmarks[id]
			if !ok {
				continue
			}
			out := res.Landmarks[id]
			rawSq += (raw.X-truth.X)*(raw.X-truth.X) + (raw.Y-truth.Y)*(raw.Y-truth.Y)
			smoothSq += (out.X-truth.X)*(out.X-truth.X) + (out.Y-truth.Y)*(out.Y-truth.Y)
			n++
		}
	}

	rawRMS := math.Sqrt(rawSq / float64(n))
	smoothRMS := math.Sqrt(smoothSq / float64(n))
	t.Logf("raw RMS %.3fpx, smoothed RMS %.3fpx over %d samples", rawRMS, smoothRMS, n)
	if smoothRMS >= rawRMS {
		t.Errorf("smoothing did not reduce tracking error: raw %.3fpx, smoothed %.3fpx", rawRMS, smoothRMS)
	}
	assert.Equal(t, spec.Frames, p.Metrics().FramesProcessed)
	if p.Smoother().Stats().OutliersRejected == 0 {
		t.Error("no outliers rejected despite injected spikes")
	}
}
