// Region fingerprinting for cache validity.
//
// A fingerprint is a quantized-pose signature: raw coordinates are snapped
// to a configurable cell size before hashing, so frames where the region
// barely moved collide on purpose and become eligible for cache reuse.
// An exact content hash over float coordinates would essentially never
// repeat between consecutive frames of live video.

package pipeline

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a compact signature of a region's recent raw input.
type Fingerprint uint64

// CacheKey identifies one region's cacheable computation result.
type CacheKey struct {
	Region      Region
	Fingerprint Fingerprint
}

// DefaultQuantization is the default fingerprint cell size, in the same
// units as the landmark coordinates (pixels for X/Y).
const DefaultQuantization = 4.0

// RegionFingerprint computes the quantized signature of a region's raw
// landmarks in a sample. Landmarks absent from the sample contribute a
// sentinel so presence changes alter the fingerprint. Quantization must
// be > 0.
func RegionFingerprint(s *FrameSample, r Region, quantization float64) Fingerprint {
	d := xxhash.New()
	var buf [8]byte
	writeQ := func(v float64) {
		q := int64(math.Round(v / quantization))
		binary.LittleEndian.PutUint64(buf[:], uint64(q))
		d.Write(buf[:])
	}
	for _, id := range RegionLandmarks(r) {
		c, ok := s.Landmarks[id]
		if !ok {
			// Sentinel for a missing landmark: distinguish "absent" from
			// "present at origin".
			binary.LittleEndian.PutUint64(buf[:], math.MaxUint64)
			d.Write(buf[:])
			continue
		}
		writeQ(c.X)
		writeQ(c.Y)
		writeQ(c.Z)
	}
	return Fingerprint(d.Sum64())
}
