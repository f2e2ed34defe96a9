// Payload codec and buffer pooling for the region cache.
//
// Entries are stored as a fixed binary layout (4 float64 words per landmark
// in region order) compressed with zstd. Compression output that fails or
// does not shrink the payload is stored raw with a flag; data is never
// dropped on codec trouble.

package cache

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/posekit/posekit/pipeline"
)

// coordBytes is the serialized size of one Coordinate (x, y, z, visibility).
const coordBytes = 4 * 8

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	// Concurrency-safe stateless EncodeAll/DecodeAll use; the writer/reader
	// streaming side is unused (nil destination/source).
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)
}

// serializeRegion encodes a complete region coordinate set into buf
// (growing it as needed) in ascending landmark-ID order. Returns an error
// if any of the region's landmarks is absent: a cache entry's coordinate
// count must equal its region's landmark count.
func serializeRegion(region pipeline.Region, coords map[pipeline.LandmarkID]pipeline.Coordinate, buf []byte) ([]byte, error) {
	members := pipeline.RegionLandmarks(region)
	if len(coords) != len(members) {
		return nil, fmt.Errorf("region %s: %d coordinates, want %d", region, len(coords), len(members))
	}
	need := len(members) * coordBytes
	if cap(buf) < need {
		buf = make([]byte, need)
	}
	buf = buf[:need]
	off := 0
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}
	for _, id := range members {
		c, ok := coords[id]
		if !ok {
			return nil, fmt.Errorf("region %s: landmark %d missing from entry", region, id)
		}
		put(c.X)
		put(c.Y)
		put(c.Z)
		put(c.Visibility)
	}
	return buf, nil
}

// deserializeRegion decodes a serialized region payload back into a fresh
// coordinate map.
func deserializeRegion(region pipeline.Region, data []byte) (map[pipeline.LandmarkID]pipeline.Coordinate, error) {
	members := pipeline.RegionLandmarks(region)
	if len(data) != len(members)*coordBytes {
		return nil, fmt.Errorf("region %s: payload is %d bytes, want %d", region, len(data), len(members)*coordBytes)
	}
	out := make(map[pipeline.LandmarkID]pipeline.Coordinate, len(members))
	off := 0
	get := func() float64 {
		v := math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		return v
	}
	for _, id := range members {
		out[id] = pipeline.Coordinate{X: get(), Y: get(), Z: get(), Visibility: get()}
	}
	return out, nil
}

// compress returns the payload to store and whether it is compressed.
// When zstd does not shrink the data (tiny regions) the raw bytes are
// stored instead, flagged uncompressed.
func compress(raw []byte, dst []byte) (payload []byte, compressed bool) {
	out := encoder.EncodeAll(raw, dst[:0])
	if len(out) >= len(raw) {
		stored := append(dst[:0], raw...)
		return stored, false
	}
	return out, true
}

// decompress reverses compress.
func decompress(payload []byte, compressed bool) ([]byte, error) {
	if !compressed {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
	return decoder.DecodeAll(payload, nil)
}

// bufferPool is a reusable byte-buffer pool sized to the largest observed
// region payload. Growth is geometric; the free list is dropped only on
// explicit Invalidate/Clear so steady frame rates do not thrash the
// allocator.
type bufferPool struct {
	mu      sync.Mutex
	free    [][]byte
	capHint int
}

const poolBaseCap = 1024

func newBufferPool() *bufferPool {
	return &bufferPool{capHint: poolBaseCap}
}

// get returns a zero-length buffer with capacity at least n.
func (p *bufferPool) get(n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.free) - 1; i >= 0; i-- {
		if cap(p.free[i]) >= n {
			b := p.free[i]
			p.free = append(p.free[:i], p.free[i+1:]...)
			return b[:0]
		}
	}
	for p.capHint < n {
		p.capHint *= 2
	}
	return make([]byte, 0, p.capHint)
}

// put returns a buffer to the pool.
func (p *bufferPool) put(b []byte) {
	if cap(b) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < 32 {
		p.free = append(p.free, b[:0])
	}
}

// drain releases all pooled buffers and resets the size hint.
func (p *bufferPool) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = nil
	p.capHint = poolBaseCap
}
