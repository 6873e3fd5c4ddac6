package analyzer

import (
	"math"

	"samply-hotspots/internal/samply"
	"samply-hotspots/internal/symbolize"
)

// ProfileStatistics contains summary statistics about a profile run.
type ProfileStatistics struct {
	TotalWeight       int64
	TotalSamples      int
	TotalThreads      int
	TotalLibraries    int
	MatchedLibraries  int
	AverageStackDepth float64
	MaxStackDepth     int
	MinStackDepth     int
	UniqueSymbols     int
}

// ComputeStatistics calculates summary statistics for the profile under the
// given weight mode. Only samples with a valid stack id are counted, matching
// the aggregation pass.
func ComputeStatistics(profile *samply.Profile, resolver *symbolize.Resolver, mode WeightMode) ProfileStatistics {
	stats := ProfileStatistics{
		TotalThreads:     len(profile.Threads),
		TotalLibraries:   resolver.LibraryCount(),
		MatchedLibraries: resolver.MatchedLibraries(),
		MinStackDepth:    math.MaxInt32,
	}

	symbolSet := make(map[string]bool)
	totalDepth := 0

	for ti := range profile.Threads {
		thread := &profile.Threads[ti]
		walker := NewWalker(resolver, thread)
		frames := thread.StackTable.Frame

		for idx, sid := range thread.Samples.Stack {
			if sid == nil || *sid < 0 || *sid >= len(frames) {
				continue
			}

			stats.TotalSamples++
			stats.TotalWeight += SampleWeight(thread, mode, idx)

			syms := walker.StackSymbols(*sid)
			depth := len(syms)
			totalDepth += depth
			if depth > stats.MaxStackDepth {
				stats.MaxStackDepth = depth
			}
			if depth < stats.MinStackDepth {
				stats.MinStackDepth = depth
			}

			for _, sym := range syms {
				symbolSet[sym] = true
			}
		}
	}

	if stats.TotalSamples > 0 {
		stats.AverageStackDepth = float64(totalDepth) / float64(stats.TotalSamples)
	}
	if stats.MinStackDepth == math.MaxInt32 {
		stats.MinStackDepth = 0
	}
	stats.UniqueSymbols = len(symbolSet)

	return stats
}
