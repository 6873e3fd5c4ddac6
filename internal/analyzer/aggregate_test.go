package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"samply-hotspots/internal/samply"
	"samply-hotspots/internal/symbolize"
)

func stackID(v int) *int { return &v }

func addr(v int64) *int64 { return &v }

func sampleWeight(v int64) *int64 { return &v }

func symIndex(v int) *int { return &v }

// hotResolver matches a single library against one catalog entry with the
// range [100, 200) named "hot".
func hotResolver(t *testing.T) *symbolize.Resolver {
	t.Helper()
	catalog := symbolize.BuildCatalog(&samply.SymsDocument{
		StringTable: []string{"hot"},
		Data: []samply.SymsEntry{{
			CodeID:      "abc",
			SymbolTable: []samply.SymbolRange{{RVA: 100, Size: 100, Symbol: symIndex(0)}},
		}},
	})
	return symbolize.NewResolver([]samply.Library{{CodeID: "abc", DebugName: "libhot.so"}}, catalog)
}

// chainResolver maps rva 100->"A", 200->"B", 300->"C" in one library.
func chainResolver(t *testing.T) *symbolize.Resolver {
	t.Helper()
	catalog := symbolize.BuildCatalog(&samply.SymsDocument{
		StringTable: []string{"A", "B", "C"},
		Data: []samply.SymsEntry{{
			CodeID: "abc",
			SymbolTable: []samply.SymbolRange{
				{RVA: 100, Size: 100, Symbol: symIndex(0)},
				{RVA: 200, Size: 100, Symbol: symIndex(1)},
				{RVA: 300, Size: 100, Symbol: symIndex(2)},
			},
		}},
	})
	return symbolize.NewResolver([]samply.Library{{CodeID: "abc"}}, catalog)
}

// chainThread builds stacks 0:A, 1:A->B, 2:A->B->C over a single library.
func chainThread(stacks []*int) samply.Thread {
	return samply.Thread{
		Name: "worker",
		Samples: samply.Samples{
			Stack: stacks,
		},
		StackTable: samply.StackTable{
			Prefix: []*int{nil, stackID(0), stackID(1)},
			Frame:  []int{0, 1, 2},
		},
		FrameTable: samply.FrameTable{
			Address: []*int64{addr(150), addr(250), addr(350)},
			Func:    []int{0, 0, 0},
		},
		FuncTable:     samply.FuncTable{Resource: []int{0}},
		ResourceTable: samply.ResourceTable{Lib: []int{0}},
	}
}

func TestAggregateEndToEnd(t *testing.T) {
	// Two samples at a single-frame stack whose rva falls inside the
	// catalog range, counted in samples mode with no explicit weights.
	thread := samply.Thread{
		Name: "main",
		Samples: samply.Samples{
			Stack: []*int{stackID(1), stackID(1)},
		},
		StackTable: samply.StackTable{
			Prefix: []*int{nil, nil},
			Frame:  []int{0, 0},
		},
		FrameTable: samply.FrameTable{
			Address: []*int64{addr(150)},
			Func:    []int{0},
		},
		FuncTable:     samply.FuncTable{Resource: []int{0}},
		ResourceTable: samply.ResourceTable{Lib: []int{0}},
	}
	profile := &samply.Profile{
		Libs:    []samply.Library{{CodeID: "abc", DebugName: "libhot.so"}},
		Threads: []samply.Thread{thread},
	}

	agg := Aggregate(profile, hotResolver(t), WeightSamples, 1)

	require.Equal(t, int64(2), agg.TotalWeight)
	require.Equal(t, map[string]int64{"hot": 2}, agg.LeafCounts)
	require.Equal(t, map[string]int64{"hot": 2}, agg.InclusiveCounts)
	require.Equal(t, map[string]map[string]int64{"hot": {RootCaller: 2}}, agg.LeafCallers)
}

func TestCallerAttribution(t *testing.T) {
	// One sample at A->B->C and one at the single-frame stack A.
	thread := chainThread([]*int{stackID(2), stackID(0)})

	agg := AggregateThread(chainResolver(t), &thread, WeightSamples)

	require.Equal(t, int64(2), agg.TotalWeight)
	require.Equal(t, map[string]int64{"C": 1, "A": 1}, agg.LeafCounts)
	// Leaf C is called by B; the single-frame leaf A has no parent.
	require.Equal(t, map[string]int64{"B": 1}, agg.LeafCallers["C"])
	require.Equal(t, map[string]int64{RootCaller: 1}, agg.LeafCallers["A"])
	require.Equal(t, map[string]int64{"A": 2, "B": 1, "C": 1}, agg.InclusiveCounts)
}

func TestInclusiveCountsDeduplicatePerSample(t *testing.T) {
	// Recursive stack A -> B -> A: A appears twice but must count once.
	thread := samply.Thread{
		Samples: samply.Samples{Stack: []*int{stackID(2)}},
		StackTable: samply.StackTable{
			Prefix: []*int{nil, stackID(0), stackID(1)},
			Frame:  []int{0, 1, 0},
		},
		FrameTable: samply.FrameTable{
			Address: []*int64{addr(150), addr(250)},
			Func:    []int{0, 0},
		},
		FuncTable:     samply.FuncTable{Resource: []int{0}},
		ResourceTable: samply.ResourceTable{Lib: []int{0}},
	}

	agg := AggregateThread(chainResolver(t), &thread, WeightSamples)

	require.Equal(t, int64(1), agg.TotalWeight)
	require.Equal(t, int64(1), agg.InclusiveCounts["A"])
	require.Equal(t, int64(1), agg.InclusiveCounts["B"])
	require.LessOrEqual(t, agg.InclusiveCounts["A"], agg.TotalWeight)
}

func TestWeightConservation(t *testing.T) {
	// Mix of valid samples, a null stack and an out-of-range stack id: the
	// leaf table total must equal the total weight of the valid samples.
	thread := chainThread([]*int{stackID(2), nil, stackID(99), stackID(1), stackID(0)})
	thread.Samples.Weight = []*int64{sampleWeight(5), sampleWeight(7), sampleWeight(11), nil, sampleWeight(3)}

	agg := AggregateThread(chainResolver(t), &thread, WeightSamples)

	require.Equal(t, int64(9), agg.TotalWeight) // 5 + 1 (defaulted) + 3
	var leafTotal int64
	for _, w := range agg.LeafCounts {
		leafTotal += w
	}
	require.Equal(t, agg.TotalWeight, leafTotal)
}

func TestWeightModes(t *testing.T) {
	thread := chainThread([]*int{stackID(0)})
	thread.Samples.Weight = []*int64{sampleWeight(3)}
	thread.Samples.ThreadCPUDelta = []*int64{sampleWeight(7)}
	thread.Samples.TimeDeltas = []float64{0.5}

	// Each mode reads only its own column, whatever else is present.
	require.Equal(t, int64(7), SampleWeight(&thread, WeightCPU, 0))
	require.Equal(t, int64(500), SampleWeight(&thread, WeightWall, 0))
	require.Equal(t, int64(3), SampleWeight(&thread, WeightSamples, 0))

	// Missing delta entries yield 0 in cpu and wall mode, 1 in samples mode.
	bare := chainThread([]*int{stackID(0)})
	require.Equal(t, int64(0), SampleWeight(&bare, WeightCPU, 0))
	require.Equal(t, int64(0), SampleWeight(&bare, WeightWall, 0))
	require.Equal(t, int64(1), SampleWeight(&bare, WeightSamples, 0))

	// A null CPU delta also yields 0.
	nullCPU := chainThread([]*int{stackID(0)})
	nullCPU.Samples.ThreadCPUDelta = []*int64{nil}
	require.Equal(t, int64(0), SampleWeight(&nullCPU, WeightCPU, 0))
}

func TestWallModePrecedence(t *testing.T) {
	thread := chainThread([]*int{stackID(0)})
	thread.Samples.Weight = []*int64{sampleWeight(3)}
	thread.Samples.ThreadCPUDelta = []*int64{sampleWeight(7)}
	thread.Samples.TimeDeltas = []float64{0.5}

	agg := AggregateThread(chainResolver(t), &thread, WeightWall)
	require.Equal(t, int64(500), agg.TotalWeight)
}

func TestTruncatedWalkOnBadPrefix(t *testing.T) {
	// Prefix of the leaf stack points outside the table; the walk stops
	// there instead of failing, and the sample still counts.
	thread := chainThread([]*int{stackID(1)})
	thread.StackTable.Prefix[1] = stackID(99)

	agg := AggregateThread(chainResolver(t), &thread, WeightSamples)

	require.Equal(t, int64(1), agg.TotalWeight)
	require.Equal(t, map[string]int64{"B": 1}, agg.LeafCounts)
	// The out-of-range parent cannot be resolved as a caller either.
	require.Equal(t, map[string]int64{RootCaller: 1}, agg.LeafCallers["B"])
	require.Equal(t, map[string]int64{"B": 1}, agg.InclusiveCounts)
}

func TestBadFrameReferencesDegrade(t *testing.T) {
	// Frame id outside the frame table resolves to UNKNOWN.
	thread := samply.Thread{
		Samples: samply.Samples{Stack: []*int{stackID(0)}},
		StackTable: samply.StackTable{
			Prefix: []*int{nil},
			Frame:  []int{42},
		},
		FrameTable: samply.FrameTable{
			Address: []*int64{addr(150)},
			Func:    []int{0},
		},
		FuncTable:     samply.FuncTable{Resource: []int{0}},
		ResourceTable: samply.ResourceTable{Lib: []int{0}},
	}

	agg := AggregateThread(chainResolver(t), &thread, WeightSamples)
	require.Equal(t, map[string]int64{symbolize.UnknownSymbol: 1}, agg.LeafCounts)
}

func TestNilFrameAddressIsUnknown(t *testing.T) {
	thread := chainThread([]*int{stackID(0)})
	thread.FrameTable.Address[0] = nil

	agg := AggregateThread(chainResolver(t), &thread, WeightSamples)
	require.Equal(t, map[string]int64{symbolize.UnknownSymbol: 1}, agg.LeafCounts)
}

func TestCycleGuardTerminates(t *testing.T) {
	// Corrupt prefix chain forming a cycle between stacks 1 and 2; the
	// bounded walk must still terminate.
	thread := chainThread([]*int{stackID(2)})
	thread.StackTable.Prefix[1] = stackID(2)

	agg := AggregateThread(chainResolver(t), &thread, WeightSamples)
	require.Equal(t, int64(1), agg.TotalWeight)
	require.Equal(t, int64(1), agg.LeafCounts["C"])
}

func TestAggregateParallelMatchesSerial(t *testing.T) {
	threads := make([]samply.Thread, 8)
	for i := range threads {
		threads[i] = chainThread([]*int{stackID(2), stackID(1), stackID(0), stackID(2)})
		threads[i].Samples.Weight = []*int64{sampleWeight(int64(i + 1)), sampleWeight(2), nil, sampleWeight(5)}
	}
	profile := &samply.Profile{
		Libs:    []samply.Library{{CodeID: "abc"}},
		Threads: threads,
	}
	resolver := chainResolver(t)

	serial := Aggregate(profile, resolver, WeightSamples, 1)
	parallel := Aggregate(profile, resolver, WeightSamples, 4)

	require.Equal(t, serial.TotalWeight, parallel.TotalWeight)
	require.Equal(t, serial.LeafCounts, parallel.LeafCounts)
	require.Equal(t, serial.InclusiveCounts, parallel.InclusiveCounts)
	require.Equal(t, serial.LeafCallers, parallel.LeafCallers)
}

func TestMerge(t *testing.T) {
	a := NewAggregation()
	a.TotalWeight = 2
	a.LeafCounts["f"] = 2
	a.InclusiveCounts["f"] = 2
	a.LeafCallers["f"] = map[string]int64{RootCaller: 2}

	b := NewAggregation()
	b.TotalWeight = 3
	b.LeafCounts["f"] = 1
	b.LeafCounts["g"] = 2
	b.InclusiveCounts["f"] = 3
	b.LeafCallers["f"] = map[string]int64{"g": 1}

	a.Merge(b)

	require.Equal(t, int64(5), a.TotalWeight)
	require.Equal(t, map[string]int64{"f": 3, "g": 2}, a.LeafCounts)
	require.Equal(t, map[string]int64{"f": 5}, a.InclusiveCounts)
	require.Equal(t, map[string]map[string]int64{"f": {RootCaller: 2, "g": 1}}, a.LeafCallers)
}

func TestParseWeightMode(t *testing.T) {
	for _, valid := range []string{"cpu", "wall", "samples"} {
		mode, err := ParseWeightMode(valid)
		require.NoError(t, err)
		require.Equal(t, WeightMode(valid), mode)
	}
	_, err := ParseWeightMode("nanoseconds")
	require.Error(t, err)
}
