package cli

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/raphaelgruber/aiact-go/internal/client"
	"github.com/raphaelgruber/aiact-go/internal/httpapi"
	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show runtime statistics of aiact-server: timings of index builds,
queries, LLM calls, store access and workflow stages, plus token usage.

Examples:
  aiact stats
  aiact stats --server http://localhost:8484`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := client.New(serverURL).Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(os.Stdout, stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(w io.Writer, stats *httpapi.StatsResponse) {
	fmt.Fprintf(w, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", stats.UptimeSeconds)

	if stats.Index != nil {
		fmt.Fprintf(w, "\nIndex: %d passages, %d terms\n", stats.Index.Passages, stats.Index.Terms)
	}

	sections := []struct {
		title string
		op    *metrics.OperationSnapshot
	}{
		{"Turns", stats.Turn},
		{"Index Build", stats.IndexBuild},
		{"Index Load", stats.IndexLoad},
		{"Index Query", stats.IndexQuery},
		{"LLM Complete", stats.LLMComplete},
		{"LLM Stream", stats.LLMStream},
		{"Store Read", stats.StoreRead},
		{"Store Write", stats.StoreWrite},
	}
	for _, s := range sections {
		if s.op == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", s.title)
		printOpStats(w, s.op)
		printTokenStats(w, s.op)
	}

	if len(stats.Stages) > 0 {
		fmt.Fprintf(w, "\nStages:\n")
		names := make([]string, 0, len(stats.Stages))
		for name := range stats.Stages {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			op := stats.Stages[name]
			fmt.Fprintf(w, "  %-20s %5d calls, avg %.1fms, max %dms\n", name, op.Count, op.AvgTimeMs, op.MaxTimeMs)
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Fprintln(w)
}
