package analyzer

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"samply-hotspots/internal/samply"
	"samply-hotspots/internal/symbolize"
)

// RootCaller is the caller name recorded for leaves whose stack has no
// parent.
const RootCaller = "(root)"

// WeightMode selects which per-sample field feeds the count tables.
type WeightMode string

const (
	// WeightCPU uses the per-sample CPU time delta, in microseconds.
	WeightCPU WeightMode = "cpu"
	// WeightWall uses the per-sample wall clock delta. The source value is
	// fractional milliseconds; it is stored as an integer microsecond count.
	WeightWall WeightMode = "wall"
	// WeightSamples uses the explicit sample weight, defaulting to 1.
	WeightSamples WeightMode = "samples"
)

// ParseWeightMode validates a weight mode string from the configuration
// surface.
func ParseWeightMode(s string) (WeightMode, error) {
	switch WeightMode(s) {
	case WeightCPU, WeightWall, WeightSamples:
		return WeightMode(s), nil
	}
	return "", fmt.Errorf("invalid weight mode %q (expected cpu, wall or samples)", s)
}

// SampleWeight computes the weight of sample idx of a thread under the given
// mode. In cpu and wall modes a missing delta yields 0; in samples mode a
// missing weight defaults to 1 and any delta columns are ignored.
func SampleWeight(thread *samply.Thread, mode WeightMode, idx int) int64 {
	s := &thread.Samples
	switch mode {
	case WeightCPU:
		if idx >= 0 && idx < len(s.ThreadCPUDelta) {
			if d := s.ThreadCPUDelta[idx]; d != nil {
				return *d
			}
		}
		return 0
	case WeightWall:
		if idx >= 0 && idx < len(s.TimeDeltas) {
			// ms (float) stored as ms*1000 to keep an integer accumulator
			// without losing sub-millisecond precision.
			return int64(s.TimeDeltas[idx] * 1000.0)
		}
		return 0
	}
	if idx >= 0 && idx < len(s.Weight) {
		if w := s.Weight[idx]; w != nil {
			return *w
		}
	}
	return 1
}

// Aggregation holds the count tables of one aggregation run. All tables are
// accumulated monotonically and are safe to hand to independent report
// writers once the run completes.
type Aggregation struct {
	// TotalWeight is the summed weight of every valid sample.
	TotalWeight int64
	// LeafCounts maps a leaf symbol to its accumulated weight.
	LeafCounts map[string]int64
	// InclusiveCounts maps a symbol to the accumulated weight of every
	// sample whose stack contains it, at most once per sample.
	InclusiveCounts map[string]int64
	// LeafCallers maps a leaf symbol to its immediate callers and their
	// accumulated weights.
	LeafCallers map[string]map[string]int64
}

// NewAggregation returns empty count tables.
func NewAggregation() *Aggregation {
	return &Aggregation{
		LeafCounts:      make(map[string]int64),
		InclusiveCounts: make(map[string]int64),
		LeafCallers:     make(map[string]map[string]int64),
	}
}

// Merge adds another aggregation's tables into this one, key-wise. All table
// updates are commutative additions, so merge order does not matter.
func (a *Aggregation) Merge(other *Aggregation) {
	a.TotalWeight += other.TotalWeight
	for name, w := range other.LeafCounts {
		a.LeafCounts[name] += w
	}
	for name, w := range other.InclusiveCounts {
		a.InclusiveCounts[name] += w
	}
	for leaf, callers := range other.LeafCallers {
		dst := a.LeafCallers[leaf]
		if dst == nil {
			dst = make(map[string]int64)
			a.LeafCallers[leaf] = dst
		}
		for caller, w := range callers {
			dst[caller] += w
		}
	}
}

// AggregateThread runs the sample pass for a single thread and returns its
// partial tables. Samples without a valid in-range stack id contribute
// nothing, not even to the total.
func AggregateThread(resolver *symbolize.Resolver, thread *samply.Thread, mode WeightMode) *Aggregation {
	agg := NewAggregation()
	walker := NewWalker(resolver, thread)

	frames := thread.StackTable.Frame
	prefix := thread.StackTable.Prefix

	for idx, sid := range thread.Samples.Stack {
		if sid == nil {
			continue
		}
		stackID := *sid
		if stackID < 0 || stackID >= len(frames) {
			continue
		}

		w := SampleWeight(thread, mode, idx)
		agg.TotalWeight += w

		// Leaf.
		leaf := walker.SymbolForFrame(frames[stackID])
		agg.LeafCounts[leaf] += w

		// Immediate caller (one frame up).
		caller := RootCaller
		if stackID < len(prefix) {
			if parent := prefix[stackID]; parent != nil && *parent >= 0 && *parent < len(frames) {
				caller = walker.SymbolForFrame(frames[*parent])
			}
		}
		callers := agg.LeafCallers[leaf]
		if callers == nil {
			callers = make(map[string]int64)
			agg.LeafCallers[leaf] = callers
		}
		callers[caller] += w

		// Inclusive: every distinct symbol on the stack, once per sample,
		// so percentages stay bounded by the total.
		seen := make(map[string]struct{})
		for _, sym := range walker.StackSymbols(stackID) {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			agg.InclusiveCounts[sym] += w
		}
	}

	return agg
}

// Aggregate runs the sample pass over every thread of the profile and merges
// the per-thread tables. Threads are independent, so up to jobs of them run
// concurrently against the shared read-only resolver; jobs <= 0 means one
// worker per available CPU.
func Aggregate(profile *samply.Profile, resolver *symbolize.Resolver, mode WeightMode, jobs int) *Aggregation {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	partials := make([]*Aggregation, len(profile.Threads))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i := range profile.Threads {
		g.Go(func() error {
			partials[i] = AggregateThread(resolver, &profile.Threads[i], mode)
			return nil
		})
	}
	// Workers never fail; the group only bounds concurrency.
	_ = g.Wait()

	total := NewAggregation()
	for _, partial := range partials {
		total.Merge(partial)
	}
	return total
}
