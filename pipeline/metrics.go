// Tracks session-wide processing metrics for final reporting.

package pipeline

import (
	"fmt"
	"math"
	"sort"
)

// Metrics aggregates statistics about a processing session.
// Useful for evaluating budget/staleness trade-offs and debugging
// scheduling behavior over time.
type Metrics struct {
	FramesProcessed int // Frames that produced a result
	FramesFailed    int // Frames failed on critical-level data loss
	FramesPartial   int // Frames where at least one region fell back

	LevelSkips      [NumLevels]int // Budget skips per priority level
	ForcedRefreshes int            // Levels force-processed after max consecutive skips
	Discontinuities int            // Tracking gaps that reset session state

	FrameLatenciesMS []float64 // Measured total processing time per frame
}

// NewMetrics returns an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Print displays aggregated metrics at the end of a session.
func (m *Metrics) Print() {
	fmt.Println("=== Session Metrics ===")
	fmt.Printf("Frames Processed     : %d\n", m.FramesProcessed)
	fmt.Printf("Frames Failed        : %d\n", m.FramesFailed)
	fmt.Printf("Frames Partial       : %d\n", m.FramesPartial)
	for _, l := range Levels() {
		fmt.Printf("Skips (%-8s)     : %d\n", l, m.LevelSkips[l])
	}
	fmt.Printf("Forced Refreshes     : %d\n", m.ForcedRefreshes)
	fmt.Printf("Discontinuities      : %d\n", m.Discontinuities)
	if len(m.FrameLatenciesMS) > 0 {
		sorted := make([]float64, len(m.FrameLatenciesMS))
		copy(sorted, m.FrameLatenciesMS)
		sort.Float64s(sorted)
		fmt.Printf("Mean Frame Time      : %.3f ms\n", CalculateMean(sorted))
		fmt.Printf("p50 Frame Time       : %.3f ms\n", CalculatePercentile(sorted, 50))
		fmt.Printf("p99 Frame Time       : %.3f ms\n", CalculatePercentile(sorted, 99))
	}
}

type IntOrFloat64 interface {
	int | int64 | float64
}

// CalculatePercentile computes the p-th percentile of an ascending-sorted
// data list by linear interpolation. Returns 0 on empty input.
func CalculatePercentile[T IntOrFloat64](data []T, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if upperIdx >= n {
		return float64(data[n-1])
	}
	if lowerIdx == upperIdx {
		return float64(data[lowerIdx])
	}
	lowerVal := float64(data[lowerIdx])
	upperVal := float64(data[upperIdx])
	return lowerVal + (upperVal-lowerVal)*(rank-float64(lowerIdx))
}

// CalculateMean computes the mean of a data list. Returns 0 on empty input.
func CalculateMean[T IntOrFloat64](numbers []T) float64 {
	if len(numbers) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, number := range numbers {
		sum += float64(number)
	}
	return sum / float64(len(numbers))
}
