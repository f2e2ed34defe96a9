// Package trace provides decision-trace recording for offline analysis of
// scheduling and caching behavior. It stores pure data types and has no
// dependency on the pipeline packages.
package trace

import "github.com/google/uuid"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures skip, cache, forced-refresh and reset decisions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SessionTrace collects decision records for one processing session.
type SessionTrace struct {
	Config    TraceConfig
	SessionID string

	Skips     []SkipRecord
	Decisions []DecisionRecord
	Forced    []ForcedRecord
	Resets    []ResetRecord
}

// NewSessionTrace creates a SessionTrace with a fresh session identity.
func NewSessionTrace(config TraceConfig) *SessionTrace {
	return &SessionTrace{
		Config:    config,
		SessionID: uuid.NewString(),
		Skips:     make([]SkipRecord, 0),
		Decisions: make([]DecisionRecord, 0),
		Forced:    make([]ForcedRecord, 0),
		Resets:    make([]ResetRecord, 0),
	}
}

func (st *SessionTrace) enabled() bool {
	return st != nil && st.Config.Level == TraceLevelDecisions
}

// RecordSkip appends a budget-skip record.
func (st *SessionTrace) RecordSkip(record SkipRecord) {
	if !st.enabled() {
		return
	}
	st.Skips = append(st.Skips, record)
}

// RecordDecision appends a per-region processing decision record.
func (st *SessionTrace) RecordDecision(record DecisionRecord) {
	if !st.enabled() {
		return
	}
	st.Decisions = append(st.Decisions, record)
}

// RecordForced appends a forced-refresh record.
func (st *SessionTrace) RecordForced(record ForcedRecord) {
	if !st.enabled() {
		return
	}
	st.Forced = append(st.Forced, record)
}

// RecordReset appends a filter/session reset record.
func (st *SessionTrace) RecordReset(record ResetRecord) {
	if !st.enabled() {
		return
	}
	st.Resets = append(st.Resets, record)
}
