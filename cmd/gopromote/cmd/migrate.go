package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridata/gopromote/internal/breaker"
	"github.com/veridata/gopromote/internal/lock"
	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/migrator"
	"github.com/veridata/gopromote/internal/scorer"
)

var (
	migrateResume string
	metricsAddr   string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the full migration pipeline",
	Long: `Migrate runs every stage of the pipeline: profile the source,
evaluate the circuit breaker, clean into an intermediate store, score the
cleaned data, and migrate under the configured strategy.

The source store is never mutated. The destination cutover is an atomic
active-pointer flip, and the previous schema version is retained for
instant rollback.

Example:
  gopromote migrate --config gopromote.yaml
  gopromote migrate --config gopromote.yaml --resume 2f1c...`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateResume, "resume", "",
		"Resume an interrupted run by its ID")
	migrateCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address for the duration of the run (for example :9105)")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	rec := metrics.NewRecorder()
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: rec.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warnw("Metrics endpoint stopped", "addr", metricsAddr, "error", err)
			}
		}()
		defer srv.Close()
		log.Infow("Serving metrics", "addr", metricsAddr)
	}

	orch, err := migrator.NewOrchestrator(cfg, log, rec)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	var run *migrator.Run
	if migrateResume != "" {
		run, err = orch.Resume(ctx, migrateResume)
	} else {
		run, err = orch.Execute(ctx)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Migration cancelled by user")
			return nil
		}
		if errors.Is(err, lock.ErrLockTimeout) {
			return fmt.Errorf("another run is already active for this schema family: %w", err)
		}

		var haltErr *breaker.HaltError
		if errors.As(err, &haltErr) {
			fmt.Fprintf(outputWriter, "\n=== Migration Halted ===\n")
			for _, rule := range haltErr.Verdict.Triggered {
				fmt.Fprintf(outputWriter, "  %s: %s\n", coloredStatus("halted"), rule)
			}
			fmt.Fprintln(outputWriter, "\nRemediate the source data and run again.")
			return err
		}

		var gateErr *scorer.GateError
		if errors.As(err, &gateErr) {
			fmt.Fprintf(outputWriter, "\n=== Quality Gate Refused Migration ===\n")
			printScore(gateErr.Score)
			return err
		}

		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintf(outputWriter, "\n=== Migration Complete ===\n")
	fmt.Fprintf(outputWriter, "Run: %s\n", run.ID)
	fmt.Fprintf(outputWriter, "Strategy: %s\n", run.Plan.Strategy)
	fmt.Fprintf(outputWriter, "Status: %s\n", coloredStatus(string(run.Status)))
	fmt.Fprintf(outputWriter, "Duration: %s\n", run.EndedAt.Sub(run.StartedAt).Round(time.Second))
	return nil
}
