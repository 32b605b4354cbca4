package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/migrator"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Profile the source store and evaluate the circuit breaker",
	Long: `Profile samples every configured table, infers a type per column
with a confidence, and reports corruption rates. The circuit breaker
verdict shows whether a migration would be allowed to proceed.

The source is opened read-only; nothing is written anywhere.

Example:
  gopromote profile --config gopromote.yaml`,
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
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

	report, verdict, err := orch.Profile(ctx)
	if err != nil {
		return fmt.Errorf("profiling failed: %w", err)
	}

	fmt.Fprintf(outputWriter, "\n=== Source Profile ===\n\n")
	widths := []int{30, 12, 12, 10, 8, 8}
	printRow(widths, "COLUMN", "DECLARED", "INFERRED", "CONFIDENCE", "CORRUPT", "NULLS")
	for _, t := range report.Tables {
		for _, col := range t.Columns {
			printRow(widths,
				t.Table+"."+col.Column,
				col.DeclaredType,
				string(col.InferredType),
				fmt.Sprintf("%.1f%%", col.Confidence*100),
				fmt.Sprintf("%.1f%%", col.CorruptRate()*100),
				fmt.Sprint(col.NullCount),
			)
		}
	}

	fmt.Fprintf(outputWriter, "\nTables: %d\n", len(report.Tables))
	fmt.Fprintf(outputWriter, "Type mismatch rate: %.2f%%\n", report.TypeMismatchRate()*100)
	rate, worst := report.WorstCorruptDateRate()
	if worst != "" {
		fmt.Fprintf(outputWriter, "Worst corrupt timestamp column: %s (%.2f%%)\n", worst, rate*100)
	}

	if verdict.ShouldHalt {
		fmt.Fprintf(outputWriter, "\nBreaker verdict: %s\n", coloredStatus("halted"))
		for _, rule := range verdict.Triggered {
			fmt.Fprintf(outputWriter, "  - %s\n", rule)
		}
	} else {
		fmt.Fprintf(outputWriter, "\nBreaker verdict: %s\n", coloredStatus("passed"))
	}
	return nil
}
