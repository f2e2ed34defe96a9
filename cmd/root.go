package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/posekit/posekit/pipeline"
	"github.com/posekit/posekit/pipeline/cache"
	"github.com/posekit/posekit/pipeline/smoothing"
	"github.com/posekit/posekit/pipeline/trace"
	"github.com/posekit/posekit/pipeline/workload"
)

var (
	// CLI flags for the synthetic session
	seed            int64   // Seed for synthetic stream generation
	frames          int     // Number of frames to process
	logLevel        string  // Log verbosity level
	frameBudgetMS   float64 // Per-frame wall-time budget in ms
	noiseSigma      float64 // Gaussian sensor noise in pixels
	dropoutRate     float64 // Per-frame region dropout probability
	outlierRate     float64 // Per-frame landmark spike probability
	configPath      string  // Optional YAML pipeline config
	traceLevel      string  // Decision trace level (none, decisions)
	cacheMaxEntries int     // Per-region cache entry budget

	strategyOverrides map[string]string // Per-region cache strategy overrides
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "posekit",
	Short: "Adaptive landmark processing pipeline",
}

// runCmd processes a synthetic landmark session using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a synthetic landmark session",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}

		cfg := pipeline.DefaultConfig()
		cacheCfg := pipeline.DefaultCacheConfig()
		smoothingCfg := pipeline.DefaultSmoothingConfig()

		if configPath != "" {
			bundle, err := pipeline.LoadBundle(configPath)
			if err != nil {
				logrus.Fatalf("Loading config: %v", err)
			}
			if err := bundle.Validate(); err != nil {
				logrus.Fatalf("Invalid config: %v", err)
			}
			bundle.Apply(&cfg, &cacheCfg, &smoothingCfg)
			if bundle.Trace != "" && !cmd.Flags().Changed("trace") {
				traceLevel = bundle.Trace
			}
		}

		// Flags override the config file, but only when set explicitly.
		if cmd.Flags().Changed("budget-ms") {
			cfg.FrameBudgetMS = frameBudgetMS
		}
		if cmd.Flags().Changed("cache-entries") {
			cacheCfg.MaxEntries = cacheMaxEntries
		}
		for region, strategy := range strategyOverrides {
			r, ok := pipeline.RegionFromName(region)
			if !ok {
				logrus.Fatalf("Unknown region in --strategy: %s", region)
			}
			if !pipeline.IsValidCacheStrategy(strategy) {
				logrus.Fatalf("Unknown cache strategy in --strategy: %s", strategy)
			}
			cacheCfg.Strategies[r] = strategy
		}

		spec := workload.DefaultSpec()
		spec.Frames = frames
		spec.Seed = seed
		spec.NoiseSigma = noiseSigma
		spec.DropoutRate = dropoutRate
		spec.OutlierRate = outlierRate

		logrus.Infof("Starting session: %d frames, budget=%.1fms, noise=%.1fpx",
			spec.Frames, cfg.FrameBudgetMS, spec.NoiseSigma)

		proc := pipeline.NewHierarchicalProcessor(cfg, cache.New(cacheCfg), smoothing.New(smoothingCfg))
		st := trace.NewSessionTrace(trace.TraceConfig{Level: trace.TraceLevel(traceLevel)})
		proc.SetTrace(st)

		gen := workload.NewGenerator(spec)
		startTime := time.Now()
		for i := 0; i < spec.Frames; i++ {
			if _, err := proc.ProcessFrame(context.Background(), gen.Frame(int64(i))); err != nil {
				logrus.Warnf("frame %d failed: %v", i, err)
			}
		}
		elapsed := time.Since(startTime)

		proc.Metrics().Print()
		printCacheStats(proc.Cache().Stats())
		printSmootherStats(proc.Smoother().Stats())
		printTraceSummary(st)
		logrus.Infof("Session complete in %s.", elapsed)
	},
}

func printCacheStats(stats pipeline.CacheStats) {
	fmt.Println("=== Cache ===")
	fmt.Printf("Hit Rate             : %.2f%% (%d hits, %d misses)\n", 100*stats.HitRate(), stats.Hits, stats.Misses)
	fmt.Printf("Evictions            : %d\n", stats.Evictions)
	fmt.Printf("Lock Timeouts        : %d\n", stats.LockTimeouts)
	for _, r := range pipeline.Regions() {
		rs := stats.PerRegion[r]
		fmt.Printf("%-12s strategy=%s(active=%s) entries=%d bytes=%d avg-age=%.0fms\n",
			r, rs.Strategy, rs.ActiveStrategy, rs.Entries, rs.StoredBytes, rs.AvgEntryAgeMS)
	}
}

func printSmootherStats(stats pipeline.SmootherStats) {
	fmt.Println("=== Smoother ===")
	fmt.Printf("Active Filters       : %d\n", stats.ActiveFilters)
	fmt.Printf("Outliers Rejected    : %d\n", stats.OutliersRejected)
	fmt.Printf("Filter Resets        : %d\n", stats.Resets)
}

func printTraceSummary(st *trace.SessionTrace) {
	if st.Config.Level != trace.TraceLevelDecisions {
		return
	}
	summary := trace.Summarize(st)
	fmt.Println("=== Trace ===")
	fmt.Printf("Session              : %s\n", st.SessionID)
	fmt.Printf("Skips                : %d\n", summary.TotalSkips)
	for level, n := range summary.SkipsByLevel {
		fmt.Printf("  %-8s           : %d\n", level, n)
	}
	fmt.Printf("Forced Refreshes     : %d\n", summary.TotalForced)
	fmt.Printf("Decisions            : %d\n", summary.TotalDecisions)
	fmt.Printf("Resets               : %d\n", summary.TotalResets)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for synthetic stream generation")
	runCmd.Flags().IntVar(&frames, "frames", 300, "Number of frames to process")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().Float64Var(&frameBudgetMS, "budget-ms", 25.0, "Per-frame processing budget in milliseconds")
	runCmd.Flags().Float64Var(&noiseSigma, "noise-sigma", 2.0, "Gaussian sensor noise in pixels")
	runCmd.Flags().Float64Var(&dropoutRate, "dropout-rate", 0.02, "Per-frame probability a non-critical region is missing")
	runCmd.Flags().Float64Var(&outlierRate, "outlier-rate", 0.01, "Per-frame probability of a landmark spike")
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML pipeline config")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Decision trace level (none, decisions)")
	runCmd.Flags().IntVar(&cacheMaxEntries, "cache-entries", 64, "Per-region cache entry budget")
	runCmd.Flags().StringToStringVar(&strategyOverrides, "strategy", nil,
		"Per-region cache strategy overrides (e.g. --strategy face=hybrid,left-hand=lru)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
