package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/migrator"
)

var dryrunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Simulate a migration without making changes",
	Long: `Dry-run profiles the source and reports what a migration would do
without writing anywhere: the breaker verdict, which columns cleaning
would touch, the table copy order, and the row volume.

The destination is never contacted.

Example:
  gopromote dry-run --config gopromote.yaml`,
	RunE: runDryrun,
}

func init() {
	rootCmd.AddCommand(dryrunCmd)
}

func runDryrun(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	orch, err := migrator.NewOrchestrator(cfg, log, metrics.NewRecorder())
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	dr, err := orch.DryRun(ctx)
	if err != nil {
		return fmt.Errorf("dry-run failed: %w", err)
	}

	fmt.Fprintf(outputWriter, "\n=== Dry Run ===\n")
	fmt.Fprintf(outputWriter, "Strategy: %s\n", dr.Strategy)
	fmt.Fprintf(outputWriter, "Copy order: %s\n", strings.Join(dr.MigrationOrder, " -> "))
	fmt.Fprintf(outputWriter, "Total rows: %d\n", dr.TotalRows)

	batches := dr.TotalRows / int64(cfg.Migration.BatchSize)
	if dr.TotalRows%int64(cfg.Migration.BatchSize) != 0 {
		batches++
	}
	fmt.Fprintf(outputWriter, "Estimated batches: %d (batch size %d)\n", batches, cfg.Migration.BatchSize)

	if dr.Verdict.ShouldHalt {
		fmt.Fprintf(outputWriter, "\nBreaker verdict: %s\n", coloredStatus("halted"))
		for _, rule := range dr.Verdict.Triggered {
			fmt.Fprintf(outputWriter, "  - %s\n", rule)
		}
		fmt.Fprintln(outputWriter, "A real run would stop here.")
		return nil
	}
	fmt.Fprintf(outputWriter, "\nBreaker verdict: %s\n", coloredStatus("passed"))

	if len(dr.PlannedTargets) == 0 {
		fmt.Fprintln(outputWriter, "\nCleaning would touch no columns.")
		return nil
	}
	fmt.Fprintf(outputWriter, "\nCleaning would apply:\n")
	widths := []int{22, 30}
	printRow(widths, "OPERATION", "COLUMN")
	for _, t := range dr.PlannedTargets {
		printRow(widths, t.Operation, t.Table+"."+t.Column)
	}
	return nil
}
