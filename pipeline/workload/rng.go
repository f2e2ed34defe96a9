package workload

import (
	"hash/fnv"
	"math/rand"
)

// SessionKey uniquely identifies a reproducible synthetic session.
// Two sessions with the same SessionKey and identical spec MUST produce
// bit-for-bit identical frame streams.
type SessionKey int64

// RNG subsystem names. Isolating subsystems keeps, e.g., dropout draws
// from perturbing the noise sequence when a spec knob changes.
const (
	SubsystemMotion  = "motion"
	SubsystemNoise   = "noise"
	SubsystemDropout = "dropout"
	SubsystemOutlier = "outlier"
)

// PartitionedRNG provides deterministic, isolated RNG instances per
// subsystem, derived as masterSeed XOR fnv1a64(subsystemName).
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type PartitionedRNG struct {
	key        SessionKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SessionKey.
func NewPartitionedRNG(key SessionKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named
// subsystem. The same name always returns the same *rand.Rand instance.
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derivedSeed := int64(p.key) ^ fnv1a64(name)
	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SessionKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SessionKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
