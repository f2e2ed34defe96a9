package pipeline

import "fmt"

// CriticalFailureError reports that the critical level had no usable data
// for a frame: the detector produced nothing for a critical region and no
// cached or previously smoothed value existed to fall back on. The frame
// is failed rather than emitting fabricated geometry.
//
// All other degradations (cache misses, detection gaps, budget skips,
// filter resets) are absorbed locally and surfaced through per-region
// freshness flags and metrics, never as errors.
type CriticalFailureError struct {
	FrameIndex int64
	Region     Region
}

func (e *CriticalFailureError) Error() string {
	return fmt.Sprintf("frame %d: no usable landmarks for critical region %s and no fallback", e.FrameIndex, e.Region)
}

// OutOfOrderFrameError reports a frame sample whose index does not advance
// the session. Filter state must be updated in frame-index order; applying
// an older frame would corrupt the Kalman velocity estimates.
type OutOfOrderFrameError struct {
	Index     int64
	LastIndex int64
}

func (e *OutOfOrderFrameError) Error() string {
	return fmt.Sprintf("frame index %d does not advance session (last processed %d)", e.Index, e.LastIndex)
}
