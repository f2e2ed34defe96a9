// Package workload generates deterministic synthetic landmark streams for
// the CLI demo and end-to-end tests: smooth parametric ground-truth motion
// with Gaussian sensor noise, region dropouts, and injected spikes.
package workload

import (
	"math"

	"github.com/posekit/posekit/pipeline"
)

// Spec describes a synthetic session.
type Spec struct {
	Frames int   // number of frames to generate
	Seed   int64 // master seed for all subsystems

	// NoiseSigma is the per-axis Gaussian noise, in pixels.
	NoiseSigma float64

	// MotionAmplitude and MotionPeriod shape the sinusoidal sway applied
	// to the whole skeleton (pixels / frames).
	MotionAmplitude float64
	MotionPeriod    float64

	// DropoutRate is the per-frame probability that a non-critical region
	// is entirely absent (detector missed it).
	DropoutRate float64

	// OutlierRate is the per-frame probability that one landmark is
	// displaced by OutlierScale pixels (tracking glitch).
	OutlierRate  float64
	OutlierScale float64
}

// DefaultSpec returns a spec mimicking a steady subject at 30fps with
// ~2px sensor noise.
func DefaultSpec() Spec {
	return Spec{
		Frames:          300,
		Seed:            42,
		NoiseSigma:      2.0,
		MotionAmplitude: 40.0,
		MotionPeriod:    120.0,
		DropoutRate:     0.02,
		OutlierRate:     0.01,
		OutlierScale:    80.0,
	}
}

// Generator produces FrameSamples for a Spec. Frames must be requested in
// order; the generator consumes its RNG streams as it goes.
type Generator struct {
	spec Spec
	rng  *PartitionedRNG

	// base holds each landmark's resting position, laid out once from the
	// landmark ID so ground truth is a pure function of (id, frame).
	base [pipeline.TotalLandmarks]pipeline.Coordinate
}

// NewGenerator builds a generator for the spec.
func NewGenerator(spec Spec) *Generator {
	g := &Generator{
		spec: spec,
		rng:  NewPartitionedRNG(SessionKey(spec.Seed)),
	}
	for id := 0; id < pipeline.TotalLandmarks; id++ {
		g.base[id] = restingPosition(pipeline.LandmarkID(id))
	}
	return g
}

// restingPosition lays the skeleton out on a deterministic grid: regions
// occupy distinct areas of a nominal 1280x720 frame and landmarks within a
// region fan out in a local grid. Exact anatomy does not matter to the
// pipeline; stable, spatially coherent geometry does.
func restingPosition(id pipeline.LandmarkID) pipeline.Coordinate {
	region := pipeline.RegionOf(id)
	var cx, cy float64
	switch region {
	case pipeline.RegionFace:
		cx, cy = 640, 140
	case pipeline.RegionPoseCore:
		cx, cy = 640, 330
	case pipeline.RegionLeftHand:
		cx, cy = 420, 420
	case pipeline.RegionRightHand:
		cx, cy = 860, 420
	case pipeline.RegionFeet:
		cx, cy = 640, 660
	case pipeline.RegionAuxiliary:
		cx, cy = 640, 560
	}
	// Local fan-out keyed by the landmark's index within its region.
	members := pipeline.RegionLandmarks(region)
	local := 0
	for i, m := range members {
		if m == id {
			local = i
			break
		}
	}
	cols := 24
	dx := float64(local%cols-cols/2) * 6.0
	dy := float64(local/cols) * 6.0
	return pipeline.Coordinate{X: cx + dx, Y: cy + dy, Z: -0.1, Visibility: 1.0}
}

// GroundTruth returns the noise-free position of a landmark at a frame.
func (g *Generator) GroundTruth(id pipeline.LandmarkID, frame int64) pipeline.Coordinate {
	c := g.base[id]
	if g.spec.MotionPeriod > 0 {
		phase := 2 * math.Pi * float64(frame) / g.spec.MotionPeriod
		c.X += g.spec.MotionAmplitude * math.Sin(phase)
		c.Y += 0.5 * g.spec.MotionAmplitude * math.Sin(2*phase)
	}
	return c
}

// Frame produces the raw detector output for one frame: ground truth plus
// noise, with dropouts and spikes applied per the spec.
func (g *Generator) Frame(frame int64) *pipeline.FrameSample {
	noise := g.rng.ForSubsystem(SubsystemNoise)
	dropout := g.rng.ForSubsystem(SubsystemDropout)
	outlier := g.rng.ForSubsystem(SubsystemOutlier)

	sample := &pipeline.FrameSample{
		Index:     frame,
		Landmarks: make(map[pipeline.LandmarkID]pipeline.Coordinate, pipeline.TotalLandmarks),
	}

	// Decide region dropouts up front. Critical regions never drop here;
	// critical-loss scenarios are constructed explicitly in tests.
	var dropped [pipeline.NumRegions]bool
	for _, r := range pipeline.Regions() {
		if pipeline.DefaultLevelOf(r) == pipeline.LevelCritical {
			continue
		}
		if g.spec.DropoutRate > 0 && dropout.Float64() < g.spec.DropoutRate {
			dropped[r] = true
		}
	}

	for id := 0; id < pipeline.TotalLandmarks; id++ {
		lid := pipeline.LandmarkID(id)
		if dropped[pipeline.RegionOf(lid)] {
			continue
		}
		c := g.GroundTruth(lid, frame)
		c.X += noise.NormFloat64() * g.spec.NoiseSigma
		c.Y += noise.NormFloat64() * g.spec.NoiseSigma
		c.Z += noise.NormFloat64() * g.spec.NoiseSigma * 0.01
		if g.spec.OutlierRate > 0 && outlier.Float64() < g.spec.OutlierRate {
			c.X += g.spec.OutlierScale
			c.Y -= g.spec.OutlierScale
		}
		sample.Landmarks[lid] = c
	}
	return sample
}
