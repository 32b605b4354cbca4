package cmd

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/migrator"
	"github.com/veridata/gopromote/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score cleaned data without migrating",
	Long: `Score runs profile, clean, and the quality score battery, then
discards the cleaned artifact. Use it to learn whether a migration would
pass the gate before committing to one.

Example:
  gopromote score --config gopromote.yaml`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
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

	score, err := orch.ScoreOnly(ctx, uuid.NewString())
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}

	fmt.Fprintf(outputWriter, "\n=== Quality Score ===\n\n")
	printScore(score)
	return nil
}

func printScore(score *scorer.Score) {
	names := make([]string, 0, len(score.Dimensions))
	for name := range score.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)

	widths := []int{26, 10}
	printRow(widths, "DIMENSION", "SCORE")
	for _, name := range names {
		printRow(widths, name, fmt.Sprintf("%.2f", score.Dimensions[name]))
	}

	fmt.Fprintf(outputWriter, "\nComposite: %.2f (minimum %.2f)\n", score.Composite, score.MinimumScore)
	if score.GatePassed {
		fmt.Fprintf(outputWriter, "Gate: %s\n", coloredStatus("passed"))
	} else {
		fmt.Fprintf(outputWriter, "Gate: %s\n", coloredStatus("failed"))
	}
}
