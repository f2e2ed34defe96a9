// Constant-velocity Kalman filter, one scalar 2-state filter per
// coordinate axis.
//
// The state is [position, velocity] with transition F = [1, 1; 0, 1]
// (dt is one frame) and measurement H = [1, 0]. The 2x2 covariance is
// carried as four scalars; at this size the matrix algebra written out by
// hand is both faster and clearer than going through a matrix library on
// a per-landmark per-frame hot path.

package smoothing

// axisKalman tracks one coordinate axis of one landmark.
type axisKalman struct {
	pos float64
	vel float64

	// Covariance P = [p00, p01; p10, p11].
	p00, p01, p10, p11 float64

	qPos float64 // process noise, position
	qVel float64 // process noise, velocity
	r    float64 // measurement noise
}

// Initial covariance: position uncertainty of the order of measurement
// noise, wide velocity uncertainty until a few frames establish a trend.
const (
	initialPosVariance = 10.0
	initialVelVariance = 10.0
)

func (k *axisKalman) init(z float64) {
	k.pos = z
	k.vel = 0
	k.p00 = initialPosVariance
	k.p01 = 0
	k.p10 = 0
	k.p11 = initialVelVariance
}

// predict advances the state one frame and returns the predicted position.
// Covariance grows by the process noise, so uncertainty accumulates across
// frames where the measurement update is skipped (occlusion, outliers).
func (k *axisKalman) predict() float64 {
	// x = F x
	k.pos += k.vel

	// P = F P Fᵀ + Q
	p00 := k.p00 + k.p10 + k.p01 + k.p11 + k.qPos
	p01 := k.p01 + k.p11
	p10 := k.p10 + k.p11
	p11 := k.p11 + k.qVel
	k.p00, k.p01, k.p10, k.p11 = p00, p01, p10, p11

	return k.pos
}

// update blends the measurement into the predicted state and returns the
// corrected position. Call after predict.
func (k *axisKalman) update(z float64) float64 {
	// Innovation and its variance (H = [1, 0]).
	y := z - k.pos
	s := k.p00 + k.r

	// Kalman gain K = P Hᵀ / S.
	g0 := k.p00 / s
	g1 := k.p10 / s

	k.pos += g0 * y
	k.vel += g1 * y

	// P = (I - K H) P
	p00 := (1 - g0) * k.p00
	p01 := (1 - g0) * k.p01
	p10 := k.p10 - g1*k.p00
	p11 := k.p11 - g1*k.p01
	k.p00, k.p01, k.p10, k.p11 = p00, p01, p10, p11

	return k.pos
}

// seedPrior replaces the position estimate with an externally supplied
// prior (a cached smoothed value), keeping velocity and covariance. Used
// on cache hits so the refresh update starts from the cached pose.
func (k *axisKalman) seedPrior(pos float64) {
	k.pos = pos
}
