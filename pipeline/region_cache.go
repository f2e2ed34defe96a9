package pipeline

import "time"

// RegionCache abstracts the adaptive per-region result cache for the
// processor. The production implementation lives in pipeline/cache; it
// registers itself via NewRegionCacheFunc (see cache/register.go).
type RegionCache interface {
	// Get returns a copy-on-read snapshot of the entry for key, or false
	// on a miss. Lock acquisition is bounded; contention beyond the
	// configured timeout is reported as a miss (fail-open), never as an
	// error.
	Get(key CacheKey) (*CacheEntry, bool)

	// Put inserts or atomically replaces the entry for key. coords must
	// cover exactly the key's region landmark set. Triggers eviction when
	// the shard exceeds its entry or byte budget. A bounded lock timeout
	// drops the write silently (the next frame recomputes).
	Put(key CacheKey, coords map[LandmarkID]Coordinate) error

	// Invalidate drops all entries for a region. Used when tracking
	// continuity breaks.
	Invalidate(region Region)

	// Clear drops every entry in every shard and releases pooled buffers.
	Clear()

	// Stats returns a read-only snapshot of cache counters.
	Stats() CacheStats
}

// CacheEntry is the decoded snapshot returned by RegionCache.Get. The
// coordinate map is the caller's to keep; it never aliases cache-internal
// storage.
type CacheEntry struct {
	Region       Region
	Coordinates  map[LandmarkID]Coordinate
	InsertedAt   time.Time
	LastAccess   time.Time
	AccessCount  uint64
	StoredBytes  int  // compressed payload size (raw size if Uncompressed)
	Uncompressed bool // payload was stored raw after a compression failure
}

// CacheStats is a point-in-time snapshot of cache behavior.
type CacheStats struct {
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	LockTimeouts uint64
	PerRegion    [NumRegions]RegionCacheStats
}

// RegionCacheStats describes one region shard.
type RegionCacheStats struct {
	Strategy       string // configured strategy name
	ActiveStrategy string // resolved strategy (differs under "adaptive")
	Entries        int
	StoredBytes    int64
	AvgEntryAgeMS  float64
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewRegionCacheFunc builds the production RegionCache. Set by
// pipeline/cache's init; nil until that package is linked in.
var NewRegionCacheFunc func(cfg CacheConfig) RegionCache
