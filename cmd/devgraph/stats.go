package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/devgraph/devgraph-go/internal/pipeline"
	"github.com/devgraph/devgraph-go/internal/query"
	"github.com/devgraph/devgraph-go/internal/temporal"
)

// roundTo keeps printed durations readable.
const roundTo = time.Millisecond

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show node and relationship counts for the ingested graph",
	Long: `Show per-label node counts, per-type relationship counts, and
requirement traceability for the ingested graph.

Examples:
  devgraph stats
  devgraph stats --analytics`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().Bool("analytics", false, "include traceability and commit activity")
}

func runStats(cmd *cobra.Command, args []string) error {
	withAnalytics, _ := cmd.Flags().GetBool("analytics")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	cache := query.NewResultCache("", "", logger)
	defer cache.Close()

	stats, err := query.NewService(client, cache, temporal.NewMetricsRing(), logger).Stats(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Kind", "Name", "Count"})
	for _, label := range sortedCountKeys(stats.Nodes) {
		t.AppendRow(table.Row{"node", label, humanize.Comma(stats.Nodes[label])})
	}
	t.AppendSeparator()
	for _, rel := range sortedCountKeys(stats.Edges) {
		t.AppendRow(table.Row{"edge", rel, humanize.Comma(stats.Edges[rel])})
	}
	t.AppendFooter(table.Row{"total",
		humanize.Comma(stats.TotalNodes()) + " nodes",
		humanize.Comma(stats.TotalEdges()) + " edges"})
	t.Render()

	if !withAnalytics {
		return nil
	}

	analytics, err := pipeline.NewValidator(client, logger).Analytics(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Traceability: %.1f%% of requirements implemented, %s without a sprint\n",
		analytics.TraceabilityPct, humanize.Comma(analytics.RequirementsWithoutPartOf))
	if analytics.PeakDay != "" {
		fmt.Printf("Peak activity: %s commits on %s\n",
			humanize.Comma(analytics.PeakCommits), analytics.PeakDay)
	}
	return nil
}

func sortedCountKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
