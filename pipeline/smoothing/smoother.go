// Package smoothing implements the per-landmark temporal filter chain:
// adaptive outlier rejection, a constant-velocity Kalman filter, and a
// recency-weighted moving average over the Kalman output and recent
// accepted samples.
//
// Filter state lives in a flat arena indexed by LandmarkID. The package is
// not safe for concurrent use: one Smoother belongs to one pipeline
// instance and is updated in frame-index order.
package smoothing

import (
	"math"

	"github.com/posekit/posekit/pipeline"
)

// filterState is one landmark's persistent filter state.
type filterState struct {
	axes    [3]axisKalman
	window  *rollingWindow
	missing int // consecutive frames without a raw sample
	rejects int // consecutive samples rejected by the outlier gate
}

// Smoother is the production pipeline.TemporalSmoother implementation.
type Smoother struct {
	cfg pipeline.SmoothingConfig

	// states is an arena indexed by LandmarkID; nil means never observed
	// (or reset). Region membership is a static table in the pipeline
	// package, so no per-landmark structure beyond this slice is needed.
	states []*filterState

	active           int
	outliersRejected uint64
	resets           uint64
}

var _ pipeline.TemporalSmoother = (*Smoother)(nil)

// New builds a smoother for the full landmark set.
func New(cfg pipeline.SmoothingConfig) *Smoother {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 8
	}
	if cfg.OutlierSigma <= 0 {
		cfg.OutlierSigma = 4.0
	}
	if cfg.OutlierMinStddev <= 0 {
		cfg.OutlierMinStddev = 0.5
	}
	if cfg.MinWindowFill <= 0 {
		cfg.MinWindowFill = 4
	}
	if cfg.MaxConsecutiveRejects <= 0 {
		cfg.MaxConsecutiveRejects = 3
	}
	if cfg.WMADecay <= 0 || cfg.WMADecay > 1 {
		cfg.WMADecay = 0.6
	}
	if cfg.KalmanWeight <= 0 {
		cfg.KalmanWeight = 2.0
	}
	if cfg.MeasurementNoise <= 0 {
		cfg.MeasurementNoise = 4.0
	}
	if cfg.ProcessNoisePos <= 0 {
		cfg.ProcessNoisePos = 0.05
	}
	if cfg.ProcessNoiseVel <= 0 {
		cfg.ProcessNoiseVel = 0.01
	}
	return &Smoother{
		cfg:    cfg,
		states: make([]*filterState, pipeline.TotalLandmarks),
	}
}

func (s *Smoother) newState(seed sample) *filterState {
	st := &filterState{window: newRollingWindow(s.cfg.WindowSize)}
	for axis := range st.axes {
		k := &st.axes[axis]
		k.qPos = s.cfg.ProcessNoisePos
		k.qVel = s.cfg.ProcessNoiseVel
		k.r = s.cfg.MeasurementNoise
		k.init(seed[axis])
	}
	st.window.push(seed)
	s.active++
	return st
}

func asSample(c pipeline.Coordinate) sample {
	return sample{c.X, c.Y, c.Z}
}

// Apply implements pipeline.TemporalSmoother.
func (s *Smoother) Apply(id pipeline.LandmarkID, frameIndex int64, raw pipeline.Coordinate) pipeline.Coordinate {
	st := s.states[id]
	if st == nil {
		// Cold start: the estimate is the measurement.
		s.states[id] = s.newState(asSample(raw))
		return raw
	}
	return s.step(st, raw)
}

// ApplyWithPrior implements pipeline.TemporalSmoother.
func (s *Smoother) ApplyWithPrior(id pipeline.LandmarkID, frameIndex int64, prior, raw pipeline.Coordinate) pipeline.Coordinate {
	st := s.states[id]
	if st == nil {
		st = s.newState(asSample(prior))
		s.states[id] = st
	} else {
		for axis := range st.axes {
			st.axes[axis].seedPrior(asSample(prior)[axis])
		}
	}
	return s.step(st, raw)
}

// step runs one predict/gate/update/average cycle on an existing state.
func (s *Smoother) step(st *filterState, raw pipeline.Coordinate) pipeline.Coordinate {
	st.missing = 0
	z := asSample(raw)

	var pred sample
	for axis := range st.axes {
		pred[axis] = st.axes[axis].predict()
	}

	var kal sample
	if s.isOutlier(st, pred, z) {
		st.rejects++
		if st.rejects >= s.cfg.MaxConsecutiveRejects {
			// Sustained deviation is a trajectory change, not noise:
			// reinitialize from the measurement so the gate cannot pin
			// the landmark to a stale estimate.
			s.reinit(st, z)
			s.resets++
			return pipeline.Coordinate{
				X: z[0], Y: z[1], Z: z[2],
				Visibility: raw.Visibility,
			}
		}
		// Rejected measurement: the filter advances on its prediction
		// alone and the sample stays out of the window, so one spike
		// cannot drag either the state or the average.
		s.outliersRejected++
		kal = pred
	} else {
		st.rejects = 0
		for axis := range st.axes {
			kal[axis] = st.axes[axis].update(z[axis])
		}
		st.window.push(z)
	}

	out := s.weightedAverage(st, kal)
	return pipeline.Coordinate{
		X: out[0], Y: out[1], Z: out[2],
		// Detection confidence is not a position signal; blending it over
		// time would fabricate confidence values the detector never
		// reported.
		Visibility: raw.Visibility,
	}
}

// reinit restarts a state from a measurement, as on cold start. The
// existing window is discarded: its samples describe the abandoned
// trajectory.
func (s *Smoother) reinit(st *filterState, z sample) {
	for axis := range st.axes {
		st.axes[axis].init(z[axis])
	}
	st.window.reset()
	st.window.push(z)
	st.rejects = 0
}

// isOutlier gates a measurement against the Kalman prediction using an
// adaptive threshold: a multiple of the recent window's per-axis standard
// deviation, floored so a motionless landmark still accepts micro-motion.
// The gate stays open until the window has seen enough samples.
func (s *Smoother) isOutlier(st *filterState, pred, z sample) bool {
	if st.window.fill < s.cfg.MinWindowFill {
		return false
	}
	for axis := 0; axis < 3; axis++ {
		sigma := st.window.axisStdDev(axis)
		if sigma < s.cfg.OutlierMinStddev {
			sigma = s.cfg.OutlierMinStddev
		}
		if math.Abs(z[axis]-pred[axis]) > s.cfg.OutlierSigma*sigma {
			return true
		}
	}
	return false
}

// weightedAverage blends the Kalman output with the recent accepted
// samples, weights decaying by recency. The Kalman value carries the
// largest weight; the raw tail dampens residual high-frequency jitter
// without the lag of a plain moving average.
func (s *Smoother) weightedAverage(st *filterState, kal sample) sample {
	var out sample
	for axis := 0; axis < 3; axis++ {
		sum := s.cfg.KalmanWeight * kal[axis]
		wsum := s.cfg.KalmanWeight
		w := s.cfg.WMADecay
		for i := 0; i < st.window.fill; i++ {
			sum += w * st.window.at(i)[axis]
			wsum += w
			w *= s.cfg.WMADecay
		}
		out[axis] = sum / wsum
	}
	return out
}

// ObserveMissing implements pipeline.TemporalSmoother.
func (s *Smoother) ObserveMissing(id pipeline.LandmarkID, frameIndex int64) {
	st := s.states[id]
	if st == nil {
		return
	}
	st.missing++
	if s.cfg.MaxMissingFrames > 0 && st.missing > s.cfg.MaxMissingFrames {
		// Long occlusion: a stale prior would snap the landmark to a wrong
		// extrapolation on reappearance. Cold-start instead.
		s.Reset(id)
		s.resets++
		return
	}
	// Coast on the prediction; covariance inflates each skipped update.
	for axis := range st.axes {
		st.axes[axis].predict()
	}
}

// Reset implements pipeline.TemporalSmoother.
func (s *Smoother) Reset(id pipeline.LandmarkID) {
	if s.states[id] != nil {
		s.states[id] = nil
		s.active--
	}
}

// ResetAll implements pipeline.TemporalSmoother.
func (s *Smoother) ResetAll() {
	for i := range s.states {
		s.states[i] = nil
	}
	if s.active > 0 {
		s.resets++
	}
	s.active = 0
}

// Stats implements pipeline.TemporalSmoother.
func (s *Smoother) Stats() pipeline.SmootherStats {
	return pipeline.SmootherStats{
		ActiveFilters:    s.active,
		OutliersRejected: s.outliersRejected,
		Resets:           s.resets,
	}
}
