// Package cache implements the adaptive per-region landmark result cache.
//
// The cache is sharded one shard per anatomical region, so concurrent
// region processing never contends across regions. Within a shard, reads
// proceed concurrently (payloads are copied out under the read lock and
// decompressed outside it) and writers hold the exclusive lock only for
// the structural mutation, never for compression work.
//
// Every lock acquisition is bounded: a shard that cannot be locked within
// the configured timeout is treated as a miss on Get and a dropped write
// on Put. The pipeline fails open to recomputation, never closed to an
// error.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/posekit/posekit/pipeline"
)

// entry is the stored form of one region result. payload is immutable
// after insert; Put replaces the whole entry, never mutates fields in
// place, so a cancelled frame can never leave a half-written entry behind.
// Access metadata is atomic so hits under the shard read lock can record
// themselves.
type entry struct {
	payload        []byte
	compressed     bool
	insertedAt     time.Time
	accessCount    atomic.Uint64
	accessSeq      atomic.Uint64
	lastAccessNano atomic.Int64
}

type shard struct {
	mu      sync.RWMutex
	region  pipeline.Region
	policy  *strategyState
	entries map[pipeline.Fingerprint]*entry
	bytes   int64
	seq     atomic.Uint64 // shard-local recency clock
}

// Cache is the production pipeline.RegionCache implementation.
type Cache struct {
	cfg        pipeline.CacheConfig
	shards     [pipeline.NumRegions]*shard
	pool       *bufferPool
	maxEntries int
	lockWait   time.Duration

	hits         atomic.Uint64
	misses       atomic.Uint64
	evictions    atomic.Uint64
	lockTimeouts atomic.Uint64

	// now is the clock used for ages and temporal expiry. Test hook.
	now func() time.Time
}

var _ pipeline.RegionCache = (*Cache)(nil)

// New builds a cache with one shard per region, each running the
// configured strategy. Panics on an unknown strategy name: strategy names
// come from validated configuration.
func New(cfg pipeline.CacheConfig) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 64
	}
	lockWait := time.Duration(cfg.LockTimeoutMS * float64(time.Millisecond))
	if lockWait <= 0 {
		lockWait = time.Millisecond
	}
	c := &Cache{
		cfg:        cfg,
		pool:       newBufferPool(),
		maxEntries: maxEntries,
		lockWait:   lockWait,
		now:        time.Now,
	}
	for _, r := range pipeline.Regions() {
		c.shards[r] = &shard{
			region:  r,
			policy:  newStrategyState(Strategy(cfg.Strategies[r]), cfg),
			entries: make(map[pipeline.Fingerprint]*entry),
		}
	}
	return c
}

// SetClock replaces the cache clock. Test hook.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

const lockSpinInterval = 20 * time.Microsecond

// tryRLock acquires a shard read lock within the bounded wait.
func (c *Cache) tryRLock(sh *shard) bool {
	deadline := c.now().Add(c.lockWait)
	for !sh.mu.TryRLock() {
		if c.now().After(deadline) {
			c.lockTimeouts.Add(1)
			return false
		}
		time.Sleep(lockSpinInterval)
	}
	return true
}

// tryLock acquires a shard write lock within the bounded wait.
func (c *Cache) tryLock(sh *shard) bool {
	deadline := c.now().Add(c.lockWait)
	for !sh.mu.TryLock() {
		if c.now().After(deadline) {
			c.lockTimeouts.Add(1)
			return false
		}
		time.Sleep(lockSpinInterval)
	}
	return true
}

// Get implements pipeline.RegionCache. The returned entry is a snapshot;
// its coordinate map never aliases cache storage.
func (c *Cache) Get(key pipeline.CacheKey) (*pipeline.CacheEntry, bool) {
	sh := c.shards[key.Region]
	if !c.tryRLock(sh) {
		// Contended beyond the bound: fail open to recomputation.
		c.misses.Add(1)
		return nil, false
	}

	e, ok := sh.entries[key.Fingerprint]
	now := c.now()
	if ok && sh.policy.expired(e, now) {
		sh.mu.RUnlock()
		c.dropExpired(sh, key.Fingerprint, e)
		c.misses.Add(1)
		sh.policy.observe(false)
		return nil, false
	}
	if !ok {
		sh.mu.RUnlock()
		c.misses.Add(1)
		sh.policy.observe(false)
		return nil, false
	}

	// Copy the payload out under the read lock; eviction can return the
	// backing buffer to the pool the moment we let go.
	buf := c.pool.get(len(e.payload))
	buf = append(buf, e.payload...)
	compressed := e.compressed
	insertedAt := e.insertedAt
	count := e.accessCount.Add(1)
	e.lastAccessNano.Store(now.UnixNano())
	e.accessSeq.Store(sh.seq.Add(1))
	sh.mu.RUnlock()

	sh.policy.observe(true)
	c.hits.Add(1)

	raw, err := decompress(buf, compressed)
	storedBytes := len(buf)
	c.pool.put(buf)
	if err != nil {
		// Corrupt payload: serve a miss, recomputation overwrites it.
		c.misses.Add(1)
		return nil, false
	}
	coords, err := deserializeRegion(key.Region, raw)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	return &pipeline.CacheEntry{
		Region:       key.Region,
		Coordinates:  coords,
		InsertedAt:   insertedAt,
		LastAccess:   now,
		AccessCount:  count,
		StoredBytes:  storedBytes,
		Uncompressed: !compressed,
	}, true
}

// dropExpired removes a temporally expired entry, best-effort: if the
// shard is contended the entry stays until the next eviction pass.
func (c *Cache) dropExpired(sh *shard, fp pipeline.Fingerprint, expired *entry) {
	if !sh.mu.TryLock() {
		return
	}
	defer sh.mu.Unlock()
	if cur, ok := sh.entries[fp]; ok && cur == expired {
		sh.bytes -= int64(len(cur.payload))
		delete(sh.entries, fp)
		c.pool.put(cur.payload)
		c.evictions.Add(1)
	}
}

// Put implements pipeline.RegionCache. Serialization and compression run
// before the lock is taken; the exclusive section is insert-and-evict only.
func (c *Cache) Put(key pipeline.CacheKey, coords map[pipeline.LandmarkID]pipeline.Coordinate) error {
	raw, err := serializeRegion(key.Region, coords, c.pool.get(0))
	if err != nil {
		return err
	}
	payload, compressed := compress(raw, c.pool.get(len(raw)))
	c.pool.put(raw)

	now := c.now()
	e := &entry{
		payload:    payload,
		compressed: compressed,
		insertedAt: now,
	}
	e.accessCount.Store(1)
	e.lastAccessNano.Store(now.UnixNano())

	sh := c.shards[key.Region]
	if !c.tryLock(sh) {
		// Dropped write: the next frame recomputes. Never an error.
		c.pool.put(payload)
		return nil
	}
	defer sh.mu.Unlock()

	e.accessSeq.Store(sh.seq.Add(1))
	if old, ok := sh.entries[key.Fingerprint]; ok {
		sh.bytes -= int64(len(old.payload))
		c.pool.put(old.payload)
	}
	sh.entries[key.Fingerprint] = e
	sh.bytes += int64(len(payload))
	c.evictLocked(sh, now)
	return nil
}

// evictLocked applies the shard's entry and byte budgets. Caller holds the
// write lock.
func (c *Cache) evictLocked(sh *shard, now time.Time) {
	for len(sh.entries) > c.maxEntries || (c.cfg.MaxBytes > 0 && sh.bytes > c.cfg.MaxBytes) {
		fp, ok := sh.policy.victim(sh.entries, now)
		if !ok {
			return
		}
		victim := sh.entries[fp]
		sh.bytes -= int64(len(victim.payload))
		delete(sh.entries, fp)
		c.pool.put(victim.payload)
		c.evictions.Add(1)
	}
}

// Invalidate implements pipeline.RegionCache. Unlike Get/Put this waits
// for the lock unconditionally: invalidation is a correctness operation
// (tracking continuity broke) and must not be skipped under contention.
func (c *Cache) Invalidate(region pipeline.Region) {
	sh := c.shards[region]
	sh.mu.Lock()
	sh.entries = make(map[pipeline.Fingerprint]*entry)
	sh.bytes = 0
	sh.mu.Unlock()
	c.pool.drain()
}

// Clear drops every shard and releases pooled buffers.
func (c *Cache) Clear() {
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.entries = make(map[pipeline.Fingerprint]*entry)
		sh.bytes = 0
		sh.mu.Unlock()
	}
	c.pool.drain()
}

// Stats implements pipeline.RegionCache.
func (c *Cache) Stats() pipeline.CacheStats {
	stats := pipeline.CacheStats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Evictions:    c.evictions.Load(),
		LockTimeouts: c.lockTimeouts.Load(),
	}
	now := c.now()
	for _, sh := range c.shards {
		sh.mu.RLock()
		rs := pipeline.RegionCacheStats{
			Strategy:       string(sh.policy.configured),
			ActiveStrategy: string(sh.policy.resolved()),
			Entries:        len(sh.entries),
			StoredBytes:    sh.bytes,
		}
		if n := len(sh.entries); n > 0 {
			var ageSum float64
			for _, e := range sh.entries {
				ageSum += float64(now.Sub(e.insertedAt)) / float64(time.Millisecond)
			}
			rs.AvgEntryAgeMS = ageSum / float64(n)
		}
		sh.mu.RUnlock()
		stats.PerRegion[sh.region] = rs
	}
	return stats
}
