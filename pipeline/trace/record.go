package trace

// SkipRecord captures a level skipped for budget in one frame.
type SkipRecord struct {
	FrameIndex      int64
	Level           string
	EstimatedCostMS float64
	RemainingMS     float64
}

// DecisionRecord captures how one region's output was produced in one frame.
type DecisionRecord struct {
	FrameIndex  int64
	Region      string
	Outcome     string // "fresh", "cache-reused", "skipped", "failed-fallback"
	Fingerprint uint64
}

// ForcedRecord captures a level force-processed after exhausting its
// consecutive-skip allowance.
type ForcedRecord struct {
	FrameIndex int64
	Level      string
	SkipStreak int
}

// ResetRecord captures a filter-state or whole-session reset.
type ResetRecord struct {
	FrameIndex int64
	LandmarkID int    // -1 for session-wide resets
	Reason     string // "discontinuity", "missing-frames"
}
