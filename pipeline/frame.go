// Defines the per-frame input/output types exchanged with the excluded
// detector (upstream) and angle-analysis/drawing collaborators (downstream).

package pipeline

import "fmt"

// FrameSample is one frame's raw detector output. A region with no
// detected landmarks simply has no entries in Landmarks; that is valid
// input, not an error.
type FrameSample struct {
	Index     int64 // Monotonic frame index within a session
	Landmarks map[LandmarkID]Coordinate
}

// RegionLandmarkCount returns how many of the region's landmarks are
// present in this sample.
func (s *FrameSample) RegionLandmarkCount(r Region) int {
	n := 0
	for _, id := range RegionLandmarks(r) {
		if _, ok := s.Landmarks[id]; ok {
			n++
		}
	}
	return n
}

// Freshness describes how a region's coordinates in a FrameResult were
// produced, so downstream consumers can decide whether to trust the
// geometry for scoring.
type Freshness string

const (
	// FreshnessFresh: region was recomputed and smoothed this frame.
	FreshnessFresh Freshness = "fresh"
	// FreshnessCacheReused: a fingerprint-matching cache entry was served,
	// re-smoothed against the newest raw sample.
	FreshnessCacheReused Freshness = "cache-reused"
	// FreshnessSkipped: the level was skipped for budget; the prior frame's
	// smoothed output was held verbatim.
	FreshnessSkipped Freshness = "skipped"
	// FreshnessFallback: the detector produced no landmarks for the region;
	// the last cached/smoothed value was substituted.
	FreshnessFallback Freshness = "failed-fallback"
)

// FrameResult is the merged landmark set emitted for one frame.
type FrameResult struct {
	Index     int64
	Landmarks map[LandmarkID]Coordinate
	Region    [NumRegions]Freshness

	// Partial is set when at least one non-critical region fell back to a
	// held value because the detector had no data for it.
	Partial bool
}

func (r *FrameResult) String() string {
	return fmt.Sprintf("FrameResult(index=%d, landmarks=%d, partial=%v)",
		r.Index, len(r.Landmarks), r.Partial)
}

// FrameContext is the ephemeral budget bookkeeping for one frame.
// Created at frame start, discarded at frame end.
type FrameContext struct {
	Index           int64
	RemainingBudget float64                // milliseconds left for this frame
	LevelElapsed    [NumLevels]float64     // measured wall time per level (ms)
	ForcedRefresh   [NumRegions]bool       // region exceeded max consecutive skips
	LevelOutcome    [NumLevels]LevelAction // what the scheduler decided per level
}

// LevelAction records the scheduler's decision for one level in one frame.
type LevelAction string

const (
	ActionProcessed LevelAction = "processed"
	ActionSkipped   LevelAction = "skipped"
	ActionForced    LevelAction = "forced" // processed despite budget, to cap staleness
)
