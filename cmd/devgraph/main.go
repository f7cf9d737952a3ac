package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/devgraph/devgraph-go/internal/config"
	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/graph"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errs.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "devgraph",
	Short: "Temporal dev-graph ingestion for git repositories",
	Long: `devgraph ingests a repository's git history, file tree, documents,
and code symbols into a Neo4j property graph, derives evidence-based
relationships with calibrated confidence, and serves windowed queries
over the result.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./devgraph.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("repo", "", "path to the repository to ingest")
	rootCmd.PersistentFlags().String("graph-url", "", "bolt URL of the graph store")

	rootCmd.SetVersionTemplate(`devgraph {{.Version}}
Build time: ` + BuildTime + `
`)

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(deriveCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)
}

// applyFlagOverrides lets shared flags win over file and env config.
func applyFlagOverrides(cmd *cobra.Command) {
	if repo, _ := cmd.Flags().GetString("repo"); repo != "" {
		cfg.RepoPath = repo
	}
	if url, _ := cmd.Flags().GetString("graph-url"); url != "" {
		cfg.GraphStoreURL = url
	}
}

// connect opens the graph store client shared by all subcommands.
func connect(ctx context.Context) (*graph.Client, error) {
	return graph.NewClient(ctx, cfg.GraphStoreURL, cfg.GraphStoreUser, cfg.GraphStorePassword, cfg.GraphStoreDatabase, logger)
}
