// Defines the landmark coordinate model and the static anatomical partition.
// Every landmark ID belongs to exactly one region for the lifetime of the process;
// the tables here are built once at init and never mutated.

package pipeline

import "fmt"

// LandmarkID is a stable integer identifying one skeletal/facial/hand point
// across frames. The index layout follows the holistic detector convention:
//
//	0..32    body pose points (nose, eyes, shoulders, ..., foot index)
//	33..500  face mesh points (468 points)
//	501..521 left hand points (21 points)
//	522..542 right hand points (21 points)
type LandmarkID int

// TotalLandmarks is the number of landmark IDs in a complete set.
const TotalLandmarks = 543

// Boundaries of the holistic index layout.
const (
	poseBegin      = 0
	poseEnd        = 33 // exclusive
	faceBegin      = 33
	faceEnd        = 501
	leftHandBegin  = 501
	leftHandEnd    = 522
	rightHandBegin = 522
	rightHandEnd   = 543
)

// Body pose sub-ranges. Knees are auxiliary; ankles, heels and foot
// indices form the feet region.
const (
	kneeBegin = 25 // left knee, right knee
	kneeEnd   = 27
	feetBegin = 27 // ankles, heels, foot indices
	feetEnd   = 33
)

// Coordinate is one raw or smoothed landmark measurement.
// Visibility is the detector's confidence in [0,1]; it is carried through
// the pipeline untouched (never temporally blended).
type Coordinate struct {
	X          float64
	Y          float64
	Z          float64
	Visibility float64
}

// Region is a static anatomical grouping of landmarks.
type Region int

const (
	RegionFace Region = iota
	RegionPoseCore
	RegionLeftHand
	RegionRightHand
	RegionFeet
	RegionAuxiliary

	// NumRegions is the number of anatomical regions.
	NumRegions
)

var regionNames = [NumRegions]string{
	RegionFace:      "face",
	RegionPoseCore:  "pose-core",
	RegionLeftHand:  "left-hand",
	RegionRightHand: "right-hand",
	RegionFeet:      "feet",
	RegionAuxiliary: "auxiliary",
}

func (r Region) String() string {
	if r < 0 || r >= NumRegions {
		return fmt.Sprintf("region(%d)", int(r))
	}
	return regionNames[r]
}

// Regions returns all regions in declaration order.
func Regions() []Region {
	out := make([]Region, NumRegions)
	for i := range out {
		out[i] = Region(i)
	}
	return out
}

// PriorityLevel is the scheduling tier a region is processed under.
// Lower values are processed first; Critical is never skipped.
type PriorityLevel int

const (
	LevelCritical PriorityLevel = iota
	LevelHigh
	LevelMedium
	LevelLow

	// NumLevels is the number of priority levels.
	NumLevels
)

var levelNames = [NumLevels]string{
	LevelCritical: "critical",
	LevelHigh:     "high",
	LevelMedium:   "medium",
	LevelLow:      "low",
}

func (l PriorityLevel) String() string {
	if l < 0 || l >= NumLevels {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Levels returns all priority levels in processing order.
func Levels() []PriorityLevel {
	out := make([]PriorityLevel, NumLevels)
	for i := range out {
		out[i] = PriorityLevel(i)
	}
	return out
}

// regionOf is the flat LandmarkID -> Region lookup, built once at init.
// Flat array rather than a map: the smoother consults it per landmark per
// frame and the IDs are dense.
var regionOf [TotalLandmarks]Region

// regionMembers maps each region to its landmark IDs in ascending order.
var regionMembers [NumRegions][]LandmarkID

func init() {
	assign := func(begin, end int, r Region) {
		for id := begin; id < end; id++ {
			regionOf[id] = r
			regionMembers[r] = append(regionMembers[r], LandmarkID(id))
		}
	}
	// The pose anchor points (nose, eyes, ears, shoulders, elbows, wrists,
	// hips) gate every downstream angle computation and form the critical
	// pose-core region. Knees ride in auxiliary, feet in their own region.
	assign(poseBegin, kneeBegin, RegionPoseCore)
	assign(kneeBegin, kneeEnd, RegionAuxiliary)
	assign(feetBegin, feetEnd, RegionFeet)
	assign(faceBegin, faceEnd, RegionFace)
	assign(leftHandBegin, leftHandEnd, RegionLeftHand)
	assign(rightHandBegin, rightHandEnd, RegionRightHand)
}

// RegionOf returns the region owning the given landmark ID.
// Panics on out-of-range IDs: landmark IDs come from the static layout,
// an unknown ID is a programmer error.
func RegionOf(id LandmarkID) Region {
	if id < 0 || int(id) >= TotalLandmarks {
		panic(fmt.Sprintf("RegionOf: landmark ID %d out of range [0,%d)", id, TotalLandmarks))
	}
	return regionOf[id]
}

// RegionLandmarks returns the landmark IDs belonging to a region, in
// ascending ID order. The returned slice is shared static data and MUST
// NOT be modified by callers.
func RegionLandmarks(r Region) []LandmarkID {
	if r < 0 || r >= NumRegions {
		panic(fmt.Sprintf("RegionLandmarks: unknown region %d", int(r)))
	}
	return regionMembers[r]
}

// RegionSize returns the number of landmarks a region owns.
func RegionSize(r Region) int {
	return len(RegionLandmarks(r))
}

// DefaultLevelOf returns the default region -> priority mapping:
// the pose anchors are critical, hands are high (fast-moving, ergonomically
// relevant), the face mesh detail is medium, feet and knees are low (absent
// from many camera framings). Overridable via Config.RegionLevels.
func DefaultLevelOf(r Region) PriorityLevel {
	switch r {
	case RegionPoseCore:
		return LevelCritical
	case RegionLeftHand, RegionRightHand:
		return LevelHigh
	case RegionFace:
		return LevelMedium
	case RegionFeet, RegionAuxiliary:
		return LevelLow
	default:
		panic(fmt.Sprintf("DefaultLevelOf: unknown region %d", int(r)))
	}
}
