package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/migrator"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent migration runs",
	Long: `Runs lists the family's recent runs from the control schema with
their status and target schema version.

Example:
  gopromote runs --config gopromote.yaml --limit 20`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "Maximum runs to list")

	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
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

	records, err := orch.Runs(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintf(outputWriter, "No runs recorded for family %s\n", cfg.Schema.Family)
		return nil
	}

	widths := []int{36, 12, 12, 30, 20}
	printRow(widths, "RUN", "STRATEGY", "STATUS", "TARGET", "STARTED")
	for _, rec := range records {
		printRow(widths,
			rec.ID,
			rec.Strategy,
			coloredStatus(rec.Status),
			rec.TargetSchema,
			rec.StartedAt.Format("2006-01-02 15:04:05"),
		)
		if rec.ErrorDetail != "" {
			fmt.Fprintf(outputWriter, "    error: %s\n", rec.ErrorDetail)
		}
	}
	fmt.Fprintf(outputWriter, "\nTotal: %d run(s)\n", len(records))
	return nil
}
