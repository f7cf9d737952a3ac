package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/devgraph/devgraph-go/internal/derive"
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Run relationship derivation against an ingested graph",
	Long: `Derive evidence-based relationships (IMPLEMENTS, EVOLVES_FROM,
DEPENDS_ON, MENTIONS_*, RELATES_TO, CO_OCCURS_WITH) from the ingested
graph. Each family keeps a watermark, so repeated runs only process
new evidence.

Examples:
  devgraph derive
  devgraph derive --dry-run
  devgraph derive --since 2025-06-01T00:00:00Z
  devgraph derive --strategy implements --strategy mentions`,
	RunE: runDerive,
}

func init() {
	deriveCmd.Flags().String("since", "", "reprocess evidence from this ISO-8601 instant")
	deriveCmd.Flags().Bool("dry-run", false, "report would-be edges without committing")
	deriveCmd.Flags().StringSlice("strategy", nil, "restrict to specific families")
}

func runDerive(cmd *cobra.Command, args []string) error {
	since, _ := cmd.Flags().GetString("since")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	strategies, _ := cmd.Flags().GetStringSlice("strategy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	report, err := derive.NewDeriver(client, logger).Run(ctx, derive.Options{
		Since:      since,
		DryRun:     dryRun,
		Strategies: strategies,
	})
	if err != nil {
		return err
	}

	if report.DryRun {
		fmt.Println("Dry run: no changes were committed")
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Family", "Edges", "Duration", "Error"})
	for _, family := range report.Families {
		t.AppendRow(table.Row{family.Name, family.Edges, family.Duration.Round(roundTo), family.Error})
	}
	t.Render()

	fmt.Printf("Confidence histogram: low=%d medium=%d high=%d\n",
		report.Histogram.Low, report.Histogram.Medium, report.Histogram.High)
	fmt.Printf("Run %s finished in %dms\n", report.RunID, report.WallTimeMs)
	return nil
}
