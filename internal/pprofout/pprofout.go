// Package pprofout converts an aggregated samply profile into the pprof wire
// format, so the same data can be inspected with the standard pprof tooling.
package pprofout

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/pprof/profile"

	"samply-hotspots/internal/analyzer"
	"samply-hotspots/internal/samply"
	"samply-hotspots/internal/symbolize"
)

// Build creates a pprof profile with one sample per distinct sampled stack,
// carrying that stack's accumulated weight. Locations are synthesized per
// symbol name, leaf first, as pprof expects.
func Build(p *samply.Profile, resolver *symbolize.Resolver, mode analyzer.WeightMode) *profile.Profile {
	unit := "count"
	name := "samples"
	switch mode {
	case analyzer.WeightCPU:
		name, unit = "cpu", "microseconds"
	case analyzer.WeightWall:
		name, unit = "wall", "microseconds"
	}

	out := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: name, Unit: unit}},
	}

	funcs := map[string]*profile.Function{}
	locs := map[string]*profile.Location{}
	nextFuncID := uint64(1)
	nextLocID := uint64(1)

	locationFor := func(sym string) *profile.Location {
		if loc, ok := locs[sym]; ok {
			return loc
		}
		fn, ok := funcs[sym]
		if !ok {
			fn = &profile.Function{ID: nextFuncID, Name: sym}
			nextFuncID++
			funcs[sym] = fn
			out.Function = append(out.Function, fn)
		}
		loc := &profile.Location{
			ID:   nextLocID,
			Line: []profile.Line{{Function: fn}},
		}
		nextLocID++
		locs[sym] = loc
		out.Location = append(out.Location, loc)
		return loc
	}

	for ti := range p.Threads {
		thread := &p.Threads[ti]
		walker := analyzer.NewWalker(resolver, thread)
		frames := thread.StackTable.Frame

		// Accumulate weight per stack id first; stacks repeat heavily.
		weights := make(map[int]int64)
		for idx, sid := range thread.Samples.Stack {
			if sid == nil || *sid < 0 || *sid >= len(frames) {
				continue
			}
			weights[*sid] += analyzer.SampleWeight(thread, mode, idx)
		}

		stackIDs := make([]int, 0, len(weights))
		for sid := range weights {
			stackIDs = append(stackIDs, sid)
		}
		sort.Ints(stackIDs)

		for _, sid := range stackIDs {
			syms := walker.StackSymbols(sid)
			if len(syms) == 0 {
				continue
			}
			// StackSymbols is root->leaf; pprof wants leaf first.
			sampleLocs := make([]*profile.Location, 0, len(syms))
			for i := len(syms) - 1; i >= 0; i-- {
				sampleLocs = append(sampleLocs, locationFor(syms[i]))
			}
			out.Sample = append(out.Sample, &profile.Sample{
				Value:    []int64{weights[sid]},
				Location: sampleLocs,
				Label:    map[string][]string{"thread": {thread.Name}},
			})
		}
	}

	return out
}

// WriteFile serializes the profile to path. The pprof library gzips the
// output itself.
func WriteFile(path string, p *profile.Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := p.Write(f); err != nil {
		return fmt.Errorf("failed to write pprof profile to %s: %w", path, err)
	}
	return nil
}
