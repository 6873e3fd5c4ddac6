package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"samply-hotspots/internal/analyzer"
	"samply-hotspots/internal/pprofout"
	"samply-hotspots/internal/report"
	"samply-hotspots/internal/samply"
	"samply-hotspots/internal/symbolize"
)

var (
	flagProfile string
	flagSyms    string
	flagOutDir  string
	flagLabel   string
	flagWeight  string
	flagPprof   string
	flagTopN    int
	flagCallers int
	flagJobs    int

	rootCmd = &cobra.Command{
		Use:           "extract",
		Short:         "Extract hotspot markdown tables from a samply profile and its symbol side-car",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run()
		},
	}
)

func init() {
	rootCmd.Flags().StringVar(&flagProfile, "profile", "", "Path to samply profile JSON (.json, .json.gz or .json.zst)")
	rootCmd.Flags().StringVar(&flagSyms, "syms", "", "Path to samply symbols side-car (.syms.json)")
	rootCmd.Flags().StringVar(&flagOutDir, "out-dir", "", "Output directory for markdown tables")
	rootCmd.Flags().StringVar(&flagLabel, "label", "", "Label used in output filenames (e.g. rust, zig)")
	rootCmd.Flags().StringVar(&flagWeight, "weight", "cpu", "Weight source: cpu, wall or samples")
	rootCmd.Flags().StringVar(&flagPprof, "pprof", "", "Optional path to also write the aggregate as a pprof profile")
	rootCmd.Flags().IntVar(&flagTopN, "top-n", 60, "Top N functions to output for leaf/inclusive tables")
	rootCmd.Flags().IntVar(&flagCallers, "callers-n", 10, "Top N immediate callers per hot leaf")
	rootCmd.Flags().IntVar(&flagJobs, "jobs", 0, "Number of parallel thread workers (0 = one per CPU)")

	for _, required := range []string{"profile", "syms", "out-dir", "label"} {
		_ = rootCmd.MarkFlagRequired(required)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	mode, err := analyzer.ParseWeightMode(flagWeight)
	if err != nil {
		return err
	}

	// Load failures are fatal before anything is written.
	prof, err := samply.LoadProfile(flagProfile)
	if err != nil {
		return err
	}
	syms, err := samply.LoadSyms(flagSyms)
	if err != nil {
		return err
	}
	logger.Info("loaded documents",
		zap.String("profile", flagProfile),
		zap.Int("threads", len(prof.Threads)),
		zap.Int("libs", len(prof.Libs)),
		zap.Int("sym_modules", len(syms.Data)))

	catalog := symbolize.BuildCatalog(syms)
	resolver := symbolize.NewResolver(prof.Libs, catalog)
	logger.Info("matched libraries",
		zap.Int("matched", resolver.MatchedLibraries()),
		zap.Int("total", resolver.LibraryCount()))

	agg := analyzer.Aggregate(prof, resolver, mode, flagJobs)
	logger.Info("aggregated samples",
		zap.String("weight", string(mode)),
		zap.Int64("total_weight", agg.TotalWeight),
		zap.Int("leaves", len(agg.LeafCounts)),
		zap.Int("functions", len(agg.InclusiveCounts)))

	if err := os.MkdirAll(flagOutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", flagOutDir, err)
	}

	paths, err := report.WriteAll(flagOutDir, agg, report.Options{
		Label:    flagLabel,
		Mode:     mode,
		TopN:     flagTopN,
		CallersN: flagCallers,
	})
	if err != nil {
		return err
	}

	if flagPprof != "" {
		if err := pprofout.WriteFile(flagPprof, pprofout.Build(prof, resolver, mode)); err != nil {
			return err
		}
		paths = append(paths, flagPprof)
	}

	fmt.Println("Wrote:")
	for _, path := range paths {
		fmt.Printf("  %s\n", path)
	}

	printPreview(agg, mode)
	return nil
}

// printPreview prints a short top-leaves table to stdout so the hot spots are
// visible without opening the markdown files.
func printPreview(agg *analyzer.Aggregation, mode analyzer.WeightMode) {
	const previewN = 10

	leaves := report.Ranked(agg.LeafCounts, previewN)

	unit := "Samples"
	switch mode {
	case analyzer.WeightCPU:
		unit = "CPU ms"
	case analyzer.WeightWall:
		unit = "Wall ms"
	}

	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", unit, "%", "Leaf"})
	for i, l := range leaves {
		pct := 0.0
		if agg.TotalWeight > 0 {
			pct = float64(l.Weight) / float64(agg.TotalWeight) * 100.0
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			report.FormatWeight(mode, l.Weight),
			fmt.Sprintf("%.1f%%", pct),
			l.Name,
		})
	}
	table.Render()
}
