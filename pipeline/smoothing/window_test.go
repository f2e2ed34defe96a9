package smoothing

import (
	"math"
	"testing"
)

func TestRollingWindow_NewestFirstOrder(t *testing.T) {
	w := newRollingWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.push(sample{v, 0, 0})
	}
	// Capacity 3 keeps 5, 4, 3 newest-first.
	want := []float64{5, 4, 3}
	if w.fill != 3 {
		t.Fatalf("fill = %d, want 3", w.fill)
	}
	for i, v := range want {
		if got := w.at(i)[0]; got != v {
			t.Errorf("at(%d) = %v, want %v", i, got, v)
		}
	}
}

func TestRollingWindow_StdDev(t *testing.T) {
	w := newRollingWindow(8)
	if w.axisStdDev(0) != 0 {
		t.Error("stddev of empty window should be 0")
	}
	w.push(sample{2, 0, 0})
	if w.axisStdDev(0) != 0 {
		t.Error("stddev of single sample should be 0")
	}
	w.push(sample{4, 0, 0})
	w.push(sample{4, 0, 0})
	w.push(sample{4, 0, 0})
	w.push(sample{5, 0, 0})
	w.push(sample{5, 0, 0})
	w.push(sample{7, 0, 0})
	w.push(sample{9, 0, 0})
	// Sample stddev of {2,4,4,4,5,5,7,9} = 2.138...
	if got := w.axisStdDev(0); math.Abs(got-2.13809) > 1e-4 {
		t.Errorf("stddev = %v, want ~2.13809", got)
	}
}

func TestRollingWindow_Reset(t *testing.T) {
	w := newRollingWindow(4)
	w.push(sample{1, 1, 1})
	w.push(sample{2, 2, 2})
	w.reset()
	if w.fill != 0 {
		t.Errorf("fill = %d after reset, want 0", w.fill)
	}
}
