package migrator

import (
	"context"
	"fmt"
	"time"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/graph"
	"github.com/veridata/gopromote/internal/logger"
	"github.com/veridata/gopromote/internal/profiler"
)

// Executor carries the collaborators a strategy needs to move cleaned
// data into the destination.
type Executor struct {
	schemas   *SchemaManager
	copier    *Copier
	validator *Validator
	g         *graph.Graph
	cfg       config.MigrationConfig
	log       *logger.Logger
}

// NewExecutor assembles a strategy executor.
func NewExecutor(schemas *SchemaManager, copier *Copier, validator *Validator, g *graph.Graph, cfg config.MigrationConfig, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Executor{schemas: schemas, copier: copier, validator: validator, g: g, cfg: cfg, log: log}
}

// Outcome summarizes a completed copy into a destination schema.
type Outcome struct {
	TargetSchema string
	RowsByTable  map[string]int64
	TotalRows    int64
}

// Stage provisions a fresh schema version and copies every table into it
// while the previously active schema keeps serving. Nothing the old
// schema depends on is touched; a failure here leaves consumers unaware
// anything happened.
func (e *Executor) Stage(ctx context.Context, runID string, report *profiler.Report) (*Outcome, error) {
	name := e.schemas.VersionName(time.Now())
	if _, err := e.schemas.CreateVersion(ctx, name); err != nil {
		return nil, err
	}
	if err := e.schemas.CreateTables(ctx, name, report, e.g); err != nil {
		return nil, err
	}

	outcome, err := e.copyAll(ctx, runID, name, report, nil)
	if err != nil {
		return nil, err
	}

	e.log.Infow("Schema version staged",
		"run_id", runID,
		"schema", name,
		"rows", outcome.TotalRows,
	)
	return outcome, nil
}

// Promote validates the staged schema and, only when every check passes,
// flips the active pointer to it. The previous schema stays behind for
// instant rollback; versions beyond the retention window are reclaimed.
func (e *Executor) Promote(ctx context.Context, runID string, outcome *Outcome, report *profiler.Report) error {
	if err := e.validator.Validate(ctx, outcome.TargetSchema, report, nil); err != nil {
		return err
	}

	// Flipping to a schema that is already active is a no-op, so the flip
	// is safe to retry through transient destination errors.
	if err := WithRetry(ctx, e.log, "activate "+outcome.TargetSchema, true, func(ctx context.Context) error {
		return e.schemas.Activate(ctx, outcome.TargetSchema)
	}); err != nil {
		return err
	}

	if err := e.Reclaim(ctx); err != nil {
		// Retention is housekeeping; a failed reclaim never fails the run.
		e.log.Warnw("Version reclaim failed", "error", err)
	}

	e.log.Infow("Cutover complete",
		"run_id", runID,
		"schema", outcome.TargetSchema,
		"rows", outcome.TotalRows,
	)
	return nil
}

// copyAll copies every table in dependency order. A non-nil filter turns
// the copy into a sampled one and the outcome reflects sampled counts.
func (e *Executor) copyAll(ctx context.Context, runID, targetSchema string, report *profiler.Report, filterFor func(table string) RowFilter) (*Outcome, error) {
	order, err := e.g.MigrationOrder()
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{TargetSchema: targetSchema, RowsByTable: make(map[string]int64, len(order))}
	for _, table := range order {
		tp := findTable(report, table)
		if tp == nil {
			return nil, fmt.Errorf("table %s missing from cleaned profile", table)
		}

		var filter RowFilter
		if filterFor != nil {
			filter = filterFor(table)
		}

		copied, err := e.copier.CopyTable(ctx, runID, table, e.g.GetPK(table),
			columnNames(tp), targetSchema, tp.RowCount, filter)
		if err != nil {
			return nil, err
		}
		outcome.RowsByTable[table] = copied
		outcome.TotalRows += copied
	}
	return outcome, nil
}

// Reclaim drops retired schema versions beyond the retention window. The
// active schema and the pointer's rollback target are always kept, even
// when the window would otherwise reach them.
func (e *Executor) Reclaim(ctx context.Context) error {
	keep := e.cfg.KeepVersions
	if keep < 1 {
		keep = 1
	}

	versions, err := e.schemas.ListVersions(ctx)
	if err != nil {
		return err
	}
	if len(versions) <= keep {
		return nil
	}

	active, previous, err := e.schemas.Pointer(ctx)
	if err != nil {
		return err
	}

	for _, v := range versions[:len(versions)-keep] {
		if v.Status == VersionActive || v.SchemaName == active || v.SchemaName == previous {
			continue
		}
		if err := e.schemas.DropVersion(ctx, v.SchemaName); err != nil {
			return err
		}
	}
	return nil
}

func columnNames(tp *profiler.TableProfile) []string {
	names := make([]string, len(tp.Columns))
	for i, col := range tp.Columns {
		names[i] = col.Column
	}
	return names
}
