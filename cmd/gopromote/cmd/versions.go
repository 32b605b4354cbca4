package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/migrator"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List schema versions of the configured family",
	Long: `Versions lists every schema version of the family recorded in the
control schema, oldest first, with the active pointer marked.

Example:
  gopromote versions --config gopromote.yaml`,
	RunE: runVersions,
}

var retireCmd = &cobra.Command{
	Use:   "retire",
	Short: "Drop retired schema versions beyond the retention window",
	Long: `Retire reclaims disk by dropping retired schema versions older than
the configured retention window. The active version and its immediate
predecessors are always kept.

Example:
  gopromote retire --config gopromote.yaml`,
	RunE: runRetire,
}

func init() {
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(retireCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
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

	versions, active, err := orch.Versions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}
	if len(versions) == 0 {
		fmt.Fprintf(outputWriter, "No schema versions recorded for family %s\n", cfg.Schema.Family)
		return nil
	}

	widths := []int{40, 10, 20}
	printRow(widths, "SCHEMA", "STATUS", "CREATED")
	for _, v := range versions {
		marker := ""
		if v.SchemaName == active {
			marker = " *"
		}
		printRow(widths,
			v.SchemaName+marker,
			coloredStatus(string(v.Status)),
			v.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	fmt.Fprintf(outputWriter, "\n* active pointer\n")
	return nil
}

func runRetire(cmd *cobra.Command, args []string) error {
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

	remaining, err := orch.Retire(ctx)
	if err != nil {
		return fmt.Errorf("retire failed: %w", err)
	}

	fmt.Fprintf(outputWriter, "Retention window: %d version(s)\n", cfg.Migration.KeepVersions)
	fmt.Fprintf(outputWriter, "Versions remaining: %d\n", len(remaining))
	return nil
}
