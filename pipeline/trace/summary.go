package trace

// TraceSummary aggregates statistics from a SessionTrace.
type TraceSummary struct {
	TotalSkips       int
	TotalDecisions   int
	TotalForced      int
	TotalResets      int
	SkipsByLevel     map[string]int // level name → skip count
	OutcomesByRegion map[string]map[string]int
}

// Summarize computes aggregate statistics from a SessionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SessionTrace) *TraceSummary {
	summary := &TraceSummary{
		SkipsByLevel:     make(map[string]int),
		OutcomesByRegion: make(map[string]map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalSkips = len(st.Skips)
	summary.TotalForced = len(st.Forced)
	summary.TotalResets = len(st.Resets)
	summary.TotalDecisions = len(st.Decisions)

	for _, s := range st.Skips {
		summary.SkipsByLevel[s.Level]++
	}
	for _, d := range st.Decisions {
		byOutcome, ok := summary.OutcomesByRegion[d.Region]
		if !ok {
			byOutcome = make(map[string]int)
			summary.OutcomesByRegion[d.Region] = byOutcome
		}
		byOutcome[d.Outcome]++
	}
	return summary
}
