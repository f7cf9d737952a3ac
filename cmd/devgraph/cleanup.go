package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/devgraph/devgraph-go/internal/pipeline"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete orphan nodes from the graph",
	Long: `Delete nodes with no relationships at all. Orphans appear when a
subpath re-ingestion narrows the tree or when derivation evidence is
removed upstream.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	removed, err := pipeline.NewValidator(client, logger).CleanupOrphans(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %s orphan nodes\n", humanize.Comma(removed))
	return nil
}
