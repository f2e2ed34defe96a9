// Package pipeline provides the core per-frame landmark processing engine
// for posekit.
//
// # Reading Guide
//
// Start with these three files to understand the frame path:
//   - landmark.go: the coordinate model and the static region partition
//   - frame.go: per-frame input/output types and freshness flags
//   - processor.go: the hierarchical, budget-aware scheduling loop
//
// # Architecture
//
// The pipeline package defines interfaces and plain-data config types;
// implementations live in sub-packages:
//   - pipeline/cache/: the adaptive per-region result cache
//   - pipeline/smoothing/: the Kalman + outlier + moving-average chain
//   - pipeline/trace/: decision trace recording
//   - pipeline/workload/: synthetic landmark stream generation
//
// Sub-packages register their implementations via init() functions that set
// package-level factory variables (NewRegionCacheFunc, NewSmootherFunc);
// NewHierarchicalProcessor also accepts implementations directly.
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - RegionCache: bounded-lock get/put/invalidate over per-region shards
//   - TemporalSmoother: per-landmark filter chain with explicit reset
//
// One HierarchicalProcessor owns one session: its cache, filter states and
// held outputs. Parallel video processing means one processor per stream;
// nothing is shared between instances.
package pipeline
