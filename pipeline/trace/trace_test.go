package trace

import "testing"

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"decisions", true},
		{"", true},
		{"verbose", false},
		{"DECISIONS", false},
	}
	for _, tt := range tests {
		if got := IsValidTraceLevel(tt.level); got != tt.valid {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.valid)
		}
	}
}

func TestSessionTrace_UniqueSessionIDs(t *testing.T) {
	a := NewSessionTrace(TraceConfig{Level: TraceLevelDecisions})
	b := NewSessionTrace(TraceConfig{Level: TraceLevelDecisions})
	if a.SessionID == "" || a.SessionID == b.SessionID {
		t.Errorf("session IDs not unique: %q vs %q", a.SessionID, b.SessionID)
	}
}

func TestSessionTrace_DisabledRecordsNothing(t *testing.T) {
	st := NewSessionTrace(TraceConfig{Level: TraceLevelNone})
	st.RecordSkip(SkipRecord{FrameIndex: 1, Level: "low"})
	st.RecordDecision(DecisionRecord{FrameIndex: 1, Region: "face"})
	st.RecordForced(ForcedRecord{FrameIndex: 1, Level: "low"})
	st.RecordReset(ResetRecord{FrameIndex: 1, LandmarkID: -1})
	if len(st.Skips)+len(st.Decisions)+len(st.Forced)+len(st.Resets) != 0 {
		t.Error("disabled trace recorded events")
	}
}

func TestSessionTrace_NilReceiverIsSafe(t *testing.T) {
	var st *SessionTrace
	st.RecordSkip(SkipRecord{})
	st.RecordDecision(DecisionRecord{})
	st.RecordForced(ForcedRecord{})
	st.RecordReset(ResetRecord{})
}

func TestSummarize_AggregatesByLevelAndRegion(t *testing.T) {
	st := NewSessionTrace(TraceConfig{Level: TraceLevelDecisions})
	st.RecordSkip(SkipRecord{FrameIndex: 1, Level: "low"})
	st.RecordSkip(SkipRecord{FrameIndex: 2, Level: "low"})
	st.RecordSkip(SkipRecord{FrameIndex: 2, Level: "medium"})
	st.RecordDecision(DecisionRecord{FrameIndex: 1, Region: "face", Outcome: "fresh"})
	st.RecordDecision(DecisionRecord{FrameIndex: 2, Region: "face", Outcome: "cache-reused"})
	st.RecordDecision(DecisionRecord{FrameIndex: 2, Region: "feet", Outcome: "fresh"})
	st.RecordForced(ForcedRecord{FrameIndex: 3, Level: "low", SkipStreak: 10})
	st.RecordReset(ResetRecord{FrameIndex: 3, LandmarkID: -1, Reason: "discontinuity"})

	sum := Summarize(st)
	if sum.TotalSkips != 3 || sum.TotalDecisions != 3 || sum.TotalForced != 1 || sum.TotalResets != 1 {
		t.Errorf("totals = %d/%d/%d/%d, want 3/3/1/1",
			sum.TotalSkips, sum.TotalDecisions, sum.TotalForced, sum.TotalResets)
	}
	if sum.SkipsByLevel["low"] != 2 || sum.SkipsByLevel["medium"] != 1 {
		t.Errorf("skips by level = %v", sum.SkipsByLevel)
	}
	if sum.OutcomesByRegion["face"]["fresh"] != 1 || sum.OutcomesByRegion["face"]["cache-reused"] != 1 {
		t.Errorf("face outcomes = %v", sum.OutcomesByRegion["face"])
	}
}

func TestSummarize_NilTrace(t *testing.T) {
	sum := Summarize(nil)
	if sum == nil || sum.TotalSkips != 0 || sum.SkipsByLevel == nil {
		t.Errorf("nil trace summary = %+v", sum)
	}
}
