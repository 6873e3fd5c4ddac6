package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"samply-hotspots/internal/analyzer"
)

// Options controls the truncation and naming of the markdown tables. The
// aggregation itself is never truncated; top-N limiting happens here.
type Options struct {
	Label    string
	Mode     analyzer.WeightMode
	TopN     int
	CallersN int
}

// WriteAll writes the three hotspot tables into dir and returns the written
// paths: top leaves, top inclusive functions, and per-leaf immediate callers.
// The leaf-callers report caps its leaf list at 40 regardless of TopN.
func WriteAll(dir string, agg *analyzer.Aggregation, opts Options) ([]string, error) {
	topLeavesPath := filepath.Join(dir, fmt.Sprintf("top_leaves_%s_%s.md", opts.Label, opts.Mode))
	topInclusivePath := filepath.Join(dir, fmt.Sprintf("top_inclusive_%s_%s.md", opts.Label, opts.Mode))
	leafCallersPath := filepath.Join(dir, fmt.Sprintf("leaf_callers_%s.md", opts.Label))

	if err := WriteTopLeaves(topLeavesPath, opts.Mode, agg.TotalWeight, agg.LeafCounts, opts.TopN); err != nil {
		return nil, err
	}
	if err := WriteTopInclusive(topInclusivePath, opts.Mode, agg.TotalWeight, agg.InclusiveCounts, opts.TopN); err != nil {
		return nil, err
	}
	if err := WriteLeafCallers(leafCallersPath, opts.Mode, agg.TotalWeight, agg.LeafCounts, agg.LeafCallers, min(opts.TopN, 40), opts.CallersN); err != nil {
		return nil, err
	}

	return []string{topLeavesPath, topInclusivePath, leafCallersPath}, nil
}

// WriteTopLeaves writes the ranked leaf-function table.
func WriteTopLeaves(path string, mode analyzer.WeightMode, total int64, leafCounts map[string]int64, topN int) error {
	header := "Samples"
	switch mode {
	case analyzer.WeightCPU:
		header = "CPU ms"
	case analyzer.WeightWall:
		header = "Wall ms"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "| # | %s | %% | Leaf |\n", header)
	sb.WriteString("| -: | --: | --: | --- |\n")
	for i, item := range Ranked(leafCounts, topN) {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n",
			i+1, FormatWeight(mode, item.Weight), percentOf(item.Weight, total), item.Name)
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// WriteTopInclusive writes the ranked inclusive-function table.
func WriteTopInclusive(path string, mode analyzer.WeightMode, total int64, inclusiveCounts map[string]int64, topN int) error {
	header := "Inclusive Samples"
	switch mode {
	case analyzer.WeightCPU:
		header = "Inclusive CPU ms"
	case analyzer.WeightWall:
		header = "Inclusive Wall ms"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "| # | %s | Samples %% | Function |\n", header)
	sb.WriteString("| -: | --: | --: | --- |\n")
	for i, item := range Ranked(inclusiveCounts, topN) {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n",
			i+1, FormatWeight(mode, item.Weight), percentOf(item.Weight, total), item.Name)
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// WriteLeafCallers writes the hot-leaf table followed by one immediate-caller
// table per hot leaf.
func WriteLeafCallers(path string, mode analyzer.WeightMode, total int64, leafCounts map[string]int64, leafCallers map[string]map[string]int64, topLeavesN, callersN int) error {
	header := "Leaf Samples"
	switch mode {
	case analyzer.WeightCPU:
		header = "Leaf CPU ms"
	case analyzer.WeightWall:
		header = "Leaf Wall ms"
	}

	topLeaves := Ranked(leafCounts, topLeavesN)

	var sb strings.Builder
	fmt.Fprintf(&sb, "| # | %s | Leaf %% | Leaf |\n", header)
	sb.WriteString("| -: | --: | --: | --- |\n")
	for i, item := range topLeaves {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n",
			i+1, FormatWeight(mode, item.Weight), percentOf(item.Weight, total), item.Name)
	}

	sb.WriteString("\n")
	sb.WriteString("### Top immediate callers per hot leaf\n\n")

	for _, leaf := range topLeaves {
		pct := 0.0
		if total > 0 {
			pct = float64(leaf.Weight) / float64(total) * 100.0
		}
		fmt.Fprintf(&sb, "#### Leaf: `%s` (%s ms, %.1f%%)\n",
			leaf.Name, FormatWeight(mode, leaf.Weight), pct)
		sb.WriteString("| # | Caller CPU ms | Caller % of leaf | Caller |\n")
		sb.WriteString("| -: | --: | --: | --- |\n")

		for i, caller := range Ranked(leafCallers[leaf.Name], callersN) {
			fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n",
				i+1, FormatWeight(mode, caller.Weight), percentOf(caller.Weight, leaf.Weight), caller.Name)
		}
		sb.WriteString("\n")
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// FormatWeight renders an internal weight for display. CPU and wall weights
// are stored at microsecond scale and render as milliseconds with one
// decimal; sample counts render as plain integers.
func FormatWeight(mode analyzer.WeightMode, w int64) string {
	if mode == analyzer.WeightSamples {
		return strconv.FormatInt(w, 10)
	}
	return humanize.FormatFloat("#,###.#", float64(w)/1000.0)
}

// Entry is one row of a ranked count table.
type Entry struct {
	Name   string
	Weight int64
}

// Ranked sorts a count table by weight descending (name ascending on ties,
// to keep output stable across runs) and truncates it to topN entries.
func Ranked(counts map[string]int64, topN int) []Entry {
	items := make([]Entry, 0, len(counts))
	for name, w := range counts {
		items = append(items, Entry{Name: name, Weight: w})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Weight != items[j].Weight {
			return items[i].Weight > items[j].Weight
		}
		return items[i].Name < items[j].Name
	})
	if topN > 0 && topN < len(items) {
		items = items[:topN]
	}
	return items
}

func percentOf(w, total int64) string {
	pct := 0.0
	if total > 0 {
		pct = float64(w) / float64(total) * 100.0
	}
	return fmt.Sprintf("%5.1f%%", pct)
}
