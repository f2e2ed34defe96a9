// Eviction strategy state machines.
//
// Strategies are a tagged enum with a switch-dispatched victim scorer
// rather than an interface hierarchy: the eviction hot path stays
// branch-predictable and the adaptive strategy is a small state machine
// over the same enum instead of swapping implementations.

package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/posekit/posekit/pipeline"
)

// Strategy names one eviction policy.
type Strategy string

const (
	// StrategyLRU evicts the least-recently-accessed entry.
	StrategyLRU Strategy = "lru"
	// StrategyLFU evicts the least-frequently-accessed entry, ties broken
	// by recency.
	StrategyLFU Strategy = "lfu"
	// StrategyAdaptive tracks the hit ratio in a sliding window and
	// switches between LRU and LFU when the ratio crosses the configured
	// thresholds.
	StrategyAdaptive Strategy = "adaptive"
	// StrategyTemporal evicts (and expires on read) by absolute entry age
	// regardless of access pattern. Correct for fast-moving regions whose
	// cached poses go stale on a wall clock, like hands.
	StrategyTemporal Strategy = "temporal"
	// StrategyHybrid evicts the lowest weighted score over recency,
	// frequency and age.
	StrategyHybrid Strategy = "hybrid"
)

// strategyState holds one shard's eviction policy state. The observation
// window has its own lock so hit/miss bookkeeping can run under the
// shard's read lock.
type strategyState struct {
	configured Strategy

	mu     sync.Mutex
	active Strategy // resolved policy; differs from configured under adaptive

	// Sliding hit/miss window (adaptive only).
	window     []bool
	windowIdx  int
	windowFill int
	windowHits int
	lowWater   float64
	highWater  float64

	maxAge time.Duration // temporal only

	wRecency   float64 // hybrid weights
	wFrequency float64
	wAge       float64
}

func newStrategyState(name Strategy, cfg pipeline.CacheConfig) *strategyState {
	if !pipeline.IsValidCacheStrategy(string(name)) {
		panic(fmt.Sprintf("unknown cache strategy %q", name))
	}
	if name == "" {
		name = StrategyLRU
	}
	st := &strategyState{
		configured: name,
		active:     name,
		lowWater:   cfg.AdaptiveLowWater,
		highWater:  cfg.AdaptiveHighWater,
		maxAge:     time.Duration(cfg.TemporalMaxAgeMS * float64(time.Millisecond)),
		wRecency:   cfg.HybridRecencyWeight,
		wFrequency: cfg.HybridFrequencyWeight,
		wAge:       cfg.HybridAgeWeight,
	}
	if st.maxAge <= 0 {
		st.maxAge = 500 * time.Millisecond
	}
	if st.wRecency == 0 {
		st.wRecency = 1
	}
	if st.wFrequency == 0 {
		st.wFrequency = 1
	}
	if st.wAge == 0 {
		st.wAge = 1
	}
	if name == StrategyAdaptive {
		st.active = StrategyLRU
		n := cfg.AdaptiveWindow
		if n <= 0 {
			n = 64
		}
		st.window = make([]bool, n)
		if st.lowWater <= 0 {
			st.lowWater = 0.2
		}
		if st.highWater <= 0 {
			st.highWater = 0.6
		}
	}
	return st
}

// observe feeds one lookup outcome into the adaptive window and applies
// the LRU/LFU transition when the full window's hit ratio crosses a
// threshold. A low ratio under LRU means recency is not predicting reuse,
// so frequency gets a turn; a recovered ratio switches back.
func (st *strategyState) observe(hit bool) {
	if st.configured != StrategyAdaptive {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.windowFill == len(st.window) {
		if st.window[st.windowIdx] {
			st.windowHits--
		}
	} else {
		st.windowFill++
	}
	st.window[st.windowIdx] = hit
	if hit {
		st.windowHits++
	}
	st.windowIdx = (st.windowIdx + 1) % len(st.window)

	if st.windowFill < len(st.window) {
		return
	}
	ratio := float64(st.windowHits) / float64(st.windowFill)
	switch {
	case st.active == StrategyLRU && ratio < st.lowWater:
		st.active = StrategyLFU
	case st.active == StrategyLFU && ratio > st.highWater:
		st.active = StrategyLRU
	}
}

// resolved returns the policy eviction currently runs under.
func (st *strategyState) resolved() Strategy {
	if st.configured != StrategyAdaptive {
		return st.configured
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active
}

// expired reports whether an entry is past its temporal lifetime. Only the
// temporal strategy expires entries on read; for the others, staleness is
// the fingerprint's problem.
func (st *strategyState) expired(e *entry, now time.Time) bool {
	if st.configured != StrategyTemporal {
		return false
	}
	return now.Sub(e.insertedAt) > st.maxAge
}

// victim selects the fingerprint to evict. Preference order is the active
// policy's score; entries tied on score lose the larger stored payload
// first (frees more budget per eviction). Must be called with the shard
// write lock held; returns false on an empty map.
func (st *strategyState) victim(entries map[pipeline.Fingerprint]*entry, now time.Time) (pipeline.Fingerprint, bool) {
	policy := st.resolved()
	var (
		found    bool
		bestFP   pipeline.Fingerprint
		bestVal  *entry
		bestScr  float64
		bestScr2 float64
	)
	for fp, e := range entries {
		scr, scr2 := st.score(policy, e, now)
		better := !found ||
			scr < bestScr ||
			(scr == bestScr && scr2 < bestScr2) ||
			(scr == bestScr && scr2 == bestScr2 && len(e.payload) > len(bestVal.payload))
		if better {
			found = true
			bestFP, bestVal, bestScr, bestScr2 = fp, e, scr, scr2
		}
	}
	return bestFP, found
}

// score returns (primary, secondary) retention scores for an entry under a
// policy; the lowest-scoring entry is evicted.
func (st *strategyState) score(policy Strategy, e *entry, now time.Time) (float64, float64) {
	switch policy {
	case StrategyLRU:
		return float64(e.accessSeq.Load()), 0
	case StrategyLFU:
		// Ties on frequency fall back to recency.
		return float64(e.accessCount.Load()), float64(e.accessSeq.Load())
	case StrategyTemporal:
		// Oldest absolute age evicts first.
		return float64(e.insertedAt.UnixNano()), 0
	case StrategyHybrid:
		ageMS := float64(now.Sub(e.insertedAt)) / float64(time.Millisecond)
		idleMS := float64(now.UnixNano()-e.lastAccessNano.Load()) / float64(time.Millisecond)
		score := st.wRecency/(1+idleMS) + st.wFrequency*float64(e.accessCount.Load()) - st.wAge*ageMS/1000
		return score, 0
	default:
		panic(fmt.Sprintf("victim scoring for unresolved strategy %q", policy))
	}
}
