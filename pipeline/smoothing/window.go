// Rolling raw-sample window shared by the outlier gate and the weighted
// moving average. Ring buffer, newest-last, fixed capacity.

package smoothing

import "gonum.org/v1/gonum/stat"

type sample [3]float64

type rollingWindow struct {
	buf  []sample
	head int // next write position
	fill int

	scratch []float64 // reused per-axis view for gonum
}

func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = 8
	}
	return &rollingWindow{
		buf:     make([]sample, size),
		scratch: make([]float64, 0, size),
	}
}

func (w *rollingWindow) push(s sample) {
	w.buf[w.head] = s
	w.head = (w.head + 1) % len(w.buf)
	if w.fill < len(w.buf) {
		w.fill++
	}
}

func (w *rollingWindow) reset() {
	w.head = 0
	w.fill = 0
}

// at returns the i-th newest sample (0 = most recent). Caller guarantees
// i < fill.
func (w *rollingWindow) at(i int) sample {
	idx := (w.head - 1 - i + 2*len(w.buf)) % len(w.buf)
	return w.buf[idx]
}

// axisStdDev returns the sample standard deviation of one axis across the
// window. Zero when fewer than two samples are present.
func (w *rollingWindow) axisStdDev(axis int) float64 {
	if w.fill < 2 {
		return 0
	}
	w.scratch = w.scratch[:0]
	for i := 0; i < w.fill; i++ {
		w.scratch = append(w.scratch, w.at(i)[axis])
	}
	return stat.StdDev(w.scratch, nil)
}
