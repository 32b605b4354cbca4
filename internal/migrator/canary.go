package migrator

import (
	"context"
	"fmt"

	"github.com/veridata/gopromote/internal/profiler"
)

// canaryScopeSuffix is appended to the run ID to keep rehearsal
// checkpoints apart from the full copy's. The combined scope must fit the
// audit store's checkpoint run_id column.
const canaryScopeSuffix = "_canary"

func canaryCheckpointScope(runID string) string {
	return runID + canaryScopeSuffix
}

// CanaryError wraps the rehearsal failure that aborted a run before any
// real destination schema was touched.
type CanaryError struct {
	Schema string
	Err    error
}

func (e *CanaryError) Error() string {
	return fmt.Sprintf("canary rehearsal in %s failed: %v", e.Schema, e.Err)
}

func (e *CanaryError) Unwrap() error { return e.Err }

// CanaryStage rehearses the migration with a deterministic sample of rows
// in a disposable namespace before any real schema version exists. The
// canary schema is dropped whether the rehearsal passes or fails; only a
// passing rehearsal proceeds to staging the full version.
func (e *Executor) CanaryStage(ctx context.Context, runID string, report *profiler.Report) (*Outcome, error) {
	canarySchema := e.schemas.CanaryName(runID)

	if err := e.rehearse(ctx, runID, canarySchema, report); err != nil {
		return nil, &CanaryError{Schema: canarySchema, Err: err}
	}

	e.log.Infow("Canary rehearsal passed, proceeding to full migration",
		"run_id", runID,
		"canary_schema", canarySchema,
		"sample_rate", e.cfg.CanarySampleRate,
	)
	return e.Stage(ctx, runID, report)
}

// rehearse provisions the canary namespace, copies the sampled subset,
// validates it against the copied counts, and always tears the namespace
// down before returning.
func (e *Executor) rehearse(ctx context.Context, runID, canarySchema string, report *profiler.Report) (err error) {
	if _, err = e.schemas.CreateVersion(ctx, canarySchema); err != nil {
		return err
	}
	defer func() {
		// Canary schemas never outlive the rehearsal. Drop with a fresh
		// context so teardown survives a cancelled run.
		if dropErr := e.schemas.DropVersion(context.WithoutCancel(ctx), canarySchema); dropErr != nil {
			e.log.Warnw("Failed to drop canary schema", "schema", canarySchema, "error", dropErr)
			if err == nil {
				err = dropErr
			}
		}
	}()

	if err = e.schemas.CreateTables(ctx, canarySchema, report, e.g); err != nil {
		return err
	}

	// Checkpoints of the rehearsal are scoped apart from the full copy so
	// a passing canary never causes the real migration to resume mid-table.
	checkpointScope := canaryCheckpointScope(runID)
	outcome, err := e.copyAll(ctx, checkpointScope, canarySchema, report, func(table string) RowFilter {
		return CanaryFilter(runID, table, e.cfg.CanarySampleRate)
	})
	if err != nil {
		return err
	}

	e.log.Infow("Canary sample copied",
		"run_id", runID,
		"schema", canarySchema,
		"rows", outcome.TotalRows,
	)
	return e.validator.Validate(ctx, canarySchema, report, outcome.RowsByTable)
}
