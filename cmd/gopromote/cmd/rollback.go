package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/migrator"
)

var rollbackYes bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert the active schema pointer to the previous version",
	Long: `Rollback flips the family's active pointer back to the previous
schema version. No data moves; consumers see the previous version at
their next read.

Example:
  gopromote rollback --config gopromote.yaml --yes`,
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackYes, "yes", false,
		"Confirm the rollback (required)")

	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	if !rollbackYes {
		return fmt.Errorf("rollback flips the active schema for every consumer; re-run with --yes to confirm")
	}

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

	if err := orch.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	fmt.Fprintf(outputWriter, "Active pointer for family %s reverted to the previous version.\n", cfg.Schema.Family)
	return nil
}
