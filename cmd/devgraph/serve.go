package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devgraph/devgraph-go/internal/query"
	"github.com/devgraph/devgraph-go/internal/server"
	"github.com/devgraph/devgraph-go/internal/temporal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ingestion and query HTTP API",
	Long: `Start the HTTP API. Ingestion endpoints launch background jobs
polled via /ingest/status/{id}; query endpoints serve windowed
subgraphs, commit buckets, search, and analytics.

Examples:
  devgraph serve
  devgraph serve --listen :9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.ListenAddr = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	cache := query.NewResultCache(cfg.RedisAddr, cfg.RedisPassword, logger)
	defer cache.Close()

	queries := query.NewService(client, cache, temporal.NewMetricsRing(), logger)
	srv := server.New(cfg, client, queries, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
