package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/graph"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the migration plan for the configured schema family",
	Long: `Plan resolves the table dependency graph and displays the order
tables would migrate in, parents before children.

Example:
  gopromote plan --config gopromote.yaml`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	g, err := graph.Build(&cfg.Schema)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}

	order, err := g.MigrationOrder()
	if err != nil {
		return fmt.Errorf("failed to resolve migration order: %w", err)
	}

	fmt.Fprintf(outputWriter, "\n=== Migration Plan ===\n")
	fmt.Fprintf(outputWriter, "Family: %s\n", cfg.Schema.Family)
	fmt.Fprintf(outputWriter, "Strategy: %s\n", cfg.Migration.Strategy)
	fmt.Fprintf(outputWriter, "Tables: %d\n\n", g.NodeCount())

	fmt.Fprintf(outputWriter, "Copy order (parents first):\n")
	for i, table := range order {
		node := g.GetNode(table)
		if node.Parent != "" {
			fmt.Fprintf(outputWriter, "  %d. %s (pk: %s, parent: %s via %s)\n",
				i+1, table, node.PrimaryKey, node.Parent, node.ForeignKey)
		} else {
			fmt.Fprintf(outputWriter, "  %d. %s (pk: %s, root)\n", i+1, table, node.PrimaryKey)
		}
	}

	fmt.Fprintf(outputWriter, "\nRoots: %s\n", strings.Join(g.Roots(), ", "))
	return nil
}
