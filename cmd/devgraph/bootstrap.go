package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/devgraph/devgraph-go/internal/pipeline"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run the full ingestion pipeline against a repository",
	Long: `Run every ingestion stage in order: schema setup, repository
verification, filesystem ingestion, git history, sprint mapping,
symbol extraction, and relationship derivation.

Re-running against the same repository is safe; writes are idempotent
MERGE operations. Use --reset to wipe the graph first.

Examples:
  devgraph bootstrap --repo ~/code/myproject
  devgraph bootstrap --repo . --reset --commit-limit 5000
  devgraph bootstrap --repo . --no-derive`,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().Bool("reset", false, "wipe the graph before ingesting")
	bootstrapCmd.Flags().Int("commit-limit", 0, "max commits to ingest (0 = configured default)")
	bootstrapCmd.Flags().String("subpath", "", "restrict ingestion to a subdirectory")
	bootstrapCmd.Flags().StringSlice("exclude", nil, "additional glob patterns to skip")
	bootstrapCmd.Flags().Int("workers", 0, "worker pool size (0 = number of CPUs)")
	bootstrapCmd.Flags().Bool("no-derive", false, "skip relationship derivation")
	bootstrapCmd.Flags().Bool("dry-run", false, "derive relationships in a rolled-back transaction")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	if reset, _ := cmd.Flags().GetBool("reset"); reset {
		cfg.ResetGraph = true
	}
	if limit, _ := cmd.Flags().GetInt("commit-limit"); limit > 0 {
		cfg.CommitLimit = limit
	}
	if subpath, _ := cmd.Flags().GetString("subpath"); subpath != "" {
		cfg.Subpath = subpath
	}
	if exclude, _ := cmd.Flags().GetStringSlice("exclude"); len(exclude) > 0 {
		cfg.ExcludePatterns = append(cfg.ExcludePatterns, exclude...)
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.MaxWorkers = workers
	}
	if noDerive, _ := cmd.Flags().GetBool("no-derive"); noDerive {
		cfg.DeriveRelationships = false
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	started := time.Now()
	fmt.Printf("Ingesting %s into %s\n", cfg.RepoPath, cfg.GraphStoreURL)

	report, runErr := pipeline.NewOrchestrator(cfg, client, logger).Bootstrap(ctx, "", nil)
	printStageTable(report)

	if runErr != nil {
		return runErr
	}
	fmt.Printf("Done in %s\n", humanize.RelTime(started, time.Now(), "", ""))
	return nil
}

func printStageTable(report *pipeline.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Stage", "Status", "Duration", "Counts"})
	for _, stage := range report.Stages {
		t.AppendRow(table.Row{
			stage.Name,
			stage.Status,
			fmt.Sprintf("%dms", stage.DurationMs),
			formatCounts(stage.Counts),
		})
	}
	t.Render()
}

func formatCounts(counts map[string]any) string {
	if len(counts) == 0 {
		return ""
	}
	out := ""
	for _, key := range sortedKeys(counts) {
		if out != "" {
			out += "  "
		}
		switch v := counts[key].(type) {
		case int:
			out += fmt.Sprintf("%s=%s", key, humanize.Comma(int64(v)))
		case int64:
			out += fmt.Sprintf("%s=%s", key, humanize.Comma(v))
		default:
			out += fmt.Sprintf("%s=%v", key, v)
		}
	}
	return out
}
