package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/migrator"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Produce a cleaned copy of the source store",
	Long: `Clean profiles the source, then applies the configured cleaning
operations to a copy of it inside a single transaction. The original
source file is never mutated; the cleaned artifact path is printed for
inspection.

Example:
  gopromote clean --config gopromote.yaml`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
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

	result, err := orch.CleanOnly(ctx, uuid.NewString())
	if err != nil {
		return fmt.Errorf("cleaning failed: %w", err)
	}

	fmt.Fprintf(outputWriter, "\n=== Cleaning Complete ===\n")
	fmt.Fprintf(outputWriter, "Source: %s\n", result.SourcePath)
	fmt.Fprintf(outputWriter, "Cleaned artifact: %s\n\n", result.CleanedPath)

	widths := []int{22, 30, 12}
	printRow(widths, "OPERATION", "COLUMN", "ROWS")
	for _, op := range result.Operations {
		printRow(widths, op.Name, op.Table+"."+op.Column, fmt.Sprint(op.RowsAffected))
	}
	fmt.Fprintf(outputWriter, "\nTotal rows affected: %d\n", result.RowsAffected())
	return nil
}
