package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run invariant checks against the ingested graph",
	Long: `Run the schema, temporal, and relationship invariant checks and
report violations. Exits non-zero when any check fails.

Examples:
  devgraph validate
  devgraph validate --group temporal`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("group", "", "check group to run: schema, temporal, or relationships (default all)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	group, _ := cmd.Flags().GetString("group")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	validator := pipeline.NewValidator(client, logger)
	groups := []struct {
		name string
		run  func(context.Context) (*pipeline.ValidationReport, error)
	}{
		{"schema", validator.Schema},
		{"temporal", validator.Temporal},
		{"relationships", validator.Relationships},
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Group", "Check", "Result", "Violations"})

	allPassed := true
	matched := false
	for _, g := range groups {
		if group != "" && g.name != group {
			continue
		}
		matched = true
		report, err := g.run(ctx)
		if err != nil {
			return err
		}
		for _, check := range report.Checks {
			result := "pass"
			if !check.Passed {
				result = "FAIL"
				allPassed = false
			}
			t.AppendRow(table.Row{g.name, check.Name, result, check.Violations})
		}
	}
	if !matched {
		return errs.Newf(errs.KindConfig, "unknown check group %q", group)
	}
	t.Render()

	if !allPassed {
		return errs.New(errs.KindInternal, "invariant checks failed")
	}
	fmt.Println("All checks passed")
	return nil
}
