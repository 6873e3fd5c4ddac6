package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"samply-hotspots/internal/analyzer"
	"samply-hotspots/internal/report"
	"samply-hotspots/internal/samply"
	"samply-hotspots/internal/symbolize"
)

// loadedProfile is one fully aggregated profile kept in the cache.
type loadedProfile struct {
	profile  *samply.Profile
	resolver *symbolize.Resolver
	mode     analyzer.WeightMode
	agg      *analyzer.Aggregation
}

// Profile cache, keyed by profile path.
var profileCache = make(map[string]*loadedProfile)

func main() {
	// Create MCP server
	s := server.NewMCPServer(
		"samply-hotspots",
		"1.0.0",
		server.WithLogging(),
	)

	// Tool 1: Load Profile
	loadProfileTool := mcp.NewTool("load_profile",
		mcp.WithDescription("Load a samply profile JSON plus its symbol side-car and aggregate it for analysis"),
		mcp.WithString("profile_path",
			mcp.Required(),
			mcp.Description("Absolute path to the samply profile (.json, .json.gz or .json.zst)"),
		),
		mcp.WithString("syms_path",
			mcp.Required(),
			mcp.Description("Absolute path to the symbols side-car (.syms.json)"),
		),
		mcp.WithString("weight",
			mcp.Description("Weight source: cpu, wall or samples (default: cpu)"),
		),
	)

	s.AddTool(loadProfileTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profilePath, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		symsPath, err := request.RequireString("syms_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		mode, err := analyzer.ParseWeightMode(request.GetString("weight", "cpu"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		prof, err := samply.LoadProfile(profilePath)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to load profile: %v", err)), nil
		}
		syms, err := samply.LoadSyms(symsPath)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to load syms: %v", err)), nil
		}

		resolver := symbolize.NewResolver(prof.Libs, symbolize.BuildCatalog(syms))
		agg := analyzer.Aggregate(prof, resolver, mode, 0)

		profileCache[profilePath] = &loadedProfile{
			profile:  prof,
			resolver: resolver,
			mode:     mode,
			agg:      agg,
		}

		result := fmt.Sprintf(`Profile loaded successfully!

Profile: %s
Syms: %s
Weight mode: %s
Threads: %d
Libraries: %d (%d matched to symbols)
Total weight: %s
Leaf functions: %d

Use other tools to analyze this profile.
`,
			profilePath,
			symsPath,
			mode,
			len(prof.Threads),
			resolver.LibraryCount(),
			resolver.MatchedLibraries(),
			report.FormatWeight(mode, agg.TotalWeight),
			len(agg.LeafCounts),
		)

		return mcp.NewToolResultText(result), nil
	})

	// Tool 2: Find Hotspots (top leaf functions)
	findHotspotsTool := mcp.NewTool("find_hotspots",
		mcp.WithDescription("Find the top leaf functions (innermost frames where CPU time is actually spent). This is the most important tool for identifying performance bottlenecks."),
		mcp.WithString("profile_path",
			mcp.Required(),
			mcp.Description("Path to the loaded profile"),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of top leaves to return (default: 10)"),
		),
	)

	s.AddTool(findHotspotsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profilePath, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		topN := int(request.GetFloat("top_n", 10.0))

		loaded, ok := profileCache[profilePath]
		if !ok {
			return mcp.NewToolResultError("Profile not loaded. Use load_profile tool first"), nil
		}

		leaves := report.Ranked(loaded.agg.LeafCounts, topN)

		var sb strings.Builder
		sb.WriteString("🔥 TOP LEAF FUNCTIONS (Where CPU Time Is Spent)\n")
		sb.WriteString("═══════════════════════════════════════════════════\n\n")

		if len(leaves) == 0 {
			sb.WriteString("No samples found.\n")
		} else {
			writeRankedList(&sb, leaves, loaded.mode, loaded.agg.TotalWeight)
		}

		return mcp.NewToolResultText(sb.String()), nil
	})

	// Tool 3: Find Inclusive Functions
	findInclusiveTool := mcp.NewTool("find_inclusive",
		mcp.WithDescription("Find the top inclusive functions (weighted by every sample where the function appears anywhere on the stack). Useful for finding expensive call trees rather than single hot loops."),
		mcp.WithString("profile_path",
			mcp.Required(),
			mcp.Description("Path to the loaded profile"),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of top functions to return (default: 10)"),
		),
	)

	s.AddTool(findInclusiveTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profilePath, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		topN := int(request.GetFloat("top_n", 10.0))

		loaded, ok := profileCache[profilePath]
		if !ok {
			return mcp.NewToolResultError("Profile not loaded. Use load_profile tool first"), nil
		}

		functions := report.Ranked(loaded.agg.InclusiveCounts, topN)

		var sb strings.Builder
		sb.WriteString("🌳 TOP INCLUSIVE FUNCTIONS (Entire Call Trees)\n")
		sb.WriteString("═══════════════════════════════════════════════════\n\n")
		sb.WriteString("Each sample counts a function at most once, so percentages stay below 100%.\n\n")

		if len(functions) == 0 {
			sb.WriteString("No samples found.\n")
		} else {
			writeRankedList(&sb, functions, loaded.mode, loaded.agg.TotalWeight)
		}

		return mcp.NewToolResultText(sb.String()), nil
	})

	// Tool 4: Get Leaf Callers
	leafCallersTool := mcp.NewTool("get_leaf_callers",
		mcp.WithDescription("Show the immediate callers of a hot leaf function and how much weight each caller contributes. Useful for deciding where to attack a hotspot from."),
		mcp.WithString("profile_path",
			mcp.Required(),
			mcp.Description("Path to the loaded profile"),
		),
		mcp.WithString("leaf",
			mcp.Required(),
			mcp.Description("Exact leaf symbol name (as reported by find_hotspots)"),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of callers to return (default: 10)"),
		),
	)

	s.AddTool(leafCallersTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profilePath, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		leaf, err := request.RequireString("leaf")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		topN := int(request.GetFloat("top_n", 10.0))

		loaded, ok := profileCache[profilePath]
		if !ok {
			return mcp.NewToolResultError("Profile not loaded. Use load_profile tool first"), nil
		}

		callers, ok := loaded.agg.LeafCallers[leaf]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Leaf %q not found in this profile. Use find_hotspots to list leaves", leaf)), nil
		}
		leafWeight := loaded.agg.LeafCounts[leaf]

		var sb strings.Builder
		sb.WriteString("📞 IMMEDIATE CALLERS\n")
		sb.WriteString("═══════════════════════════════════════════════════\n\n")
		fmt.Fprintf(&sb, "Leaf: %s\n", leaf)
		fmt.Fprintf(&sb, "Leaf weight: %s\n\n", report.FormatWeight(loaded.mode, leafWeight))

		for i, caller := range report.Ranked(callers, topN) {
			pct := 0.0
			if leafWeight > 0 {
				pct = float64(caller.Weight) / float64(leafWeight) * 100.0
			}
			fmt.Fprintf(&sb, "#%d: %s\n", i+1, caller.Name)
			fmt.Fprintf(&sb, "    Weight: %s (%.2f%% of leaf)\n\n", report.FormatWeight(loaded.mode, caller.Weight), pct)
		}

		return mcp.NewToolResultText(sb.String()), nil
	})

	// Tool 5: Get Statistics
	getStatisticsTool := mcp.NewTool("get_statistics",
		mcp.WithDescription("Get comprehensive statistics about the profile including total weight, stack depths, library match rate and unique symbols."),
		mcp.WithString("profile_path",
			mcp.Required(),
			mcp.Description("Path to the loaded profile"),
		),
	)

	s.AddTool(getStatisticsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profilePath, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		loaded, ok := profileCache[profilePath]
		if !ok {
			return mcp.NewToolResultError("Profile not loaded. Use load_profile tool first"), nil
		}

		stats := analyzer.ComputeStatistics(loaded.profile, loaded.resolver, loaded.mode)

		var sb strings.Builder
		sb.WriteString("📊 PROFILE STATISTICS\n")
		sb.WriteString("═══════════════════════════════════════════════════\n\n")

		fmt.Fprintf(&sb, "Total Weight: %s (%s)\n", report.FormatWeight(loaded.mode, stats.TotalWeight), loaded.mode)
		fmt.Fprintf(&sb, "Valid Samples: %d\n", stats.TotalSamples)
		fmt.Fprintf(&sb, "Threads: %d\n", stats.TotalThreads)
		fmt.Fprintf(&sb, "Libraries: %d (%d matched to symbols)\n\n", stats.TotalLibraries, stats.MatchedLibraries)

		sb.WriteString("Call Stack Depth Statistics:\n")
		fmt.Fprintf(&sb, "  Average: %.2f frames\n", stats.AverageStackDepth)
		fmt.Fprintf(&sb, "  Maximum: %d frames\n", stats.MaxStackDepth)
		fmt.Fprintf(&sb, "  Minimum: %d frames\n\n", stats.MinStackDepth)

		fmt.Fprintf(&sb, "Unique Symbols: %d\n", stats.UniqueSymbols)

		return mcp.NewToolResultText(sb.String()), nil
	})

	// Start the server
	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func writeRankedList(sb *strings.Builder, items []report.Entry, mode analyzer.WeightMode, total int64) {
	for i, item := range items {
		pct := 0.0
		if total > 0 {
			pct = float64(item.Weight) / float64(total) * 100.0
		}
		fmt.Fprintf(sb, "#%d: %s\n", i+1, item.Name)
		fmt.Fprintf(sb, "    Weight: %s (%.2f%%)\n\n", report.FormatWeight(mode, item.Weight), pct)
	}
}
