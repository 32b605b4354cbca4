package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/veridata/gopromote/internal/audit"
	"github.com/veridata/gopromote/internal/breaker"
	"github.com/veridata/gopromote/internal/cleaner"
	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/database"
	"github.com/veridata/gopromote/internal/graph"
	"github.com/veridata/gopromote/internal/health"
	"github.com/veridata/gopromote/internal/lock"
	"github.com/veridata/gopromote/internal/logger"
	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/profiler"
	"github.com/veridata/gopromote/internal/scorer"
)

// Orchestrator drives a migration run through its stages: profile the
// source, evaluate the circuit breaker, clean into an intermediate store,
// score the cleaned data, and migrate under the configured strategy. Every
// stage transition is validated by the run state machine and persisted to
// the control schema before the next stage begins.
type Orchestrator struct {
	cfg     *config.Config
	log     *logger.Logger
	rec     *metrics.Recorder
	checker *health.Checker
	dbm     *database.Manager
	g       *graph.Graph
}

// NewOrchestrator builds an orchestrator from configuration. The
// destination connection is not opened until a pipeline method runs.
func NewOrchestrator(cfg *config.Config, log *logger.Logger, rec *metrics.Recorder) (*Orchestrator, error) {
	if log == nil {
		log = logger.NewDefault()
	}
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	g, err := graph.Build(&cfg.Schema)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:     cfg,
		log:     log,
		rec:     rec,
		checker: health.NewChecker(cfg.Health, cfg.Cleaning.WorkDir),
		dbm:     database.NewManager(cfg),
		g:       g,
	}, nil
}

// Execute runs the full pipeline as a new run.
func (o *Orchestrator) Execute(ctx context.Context) (*Run, error) {
	run := NewRun(NewPlan(o.cfg))
	return run, o.pipeline(ctx, run, false)
}

// Resume continues an interrupted run under its original ID. Profiling
// and the breaker evaluation are repeated against the current source
// before anything resumes moving, so a source that degraded while the
// run was down still halts. Copy checkpoints make the migration stage
// pick up from the last committed batch.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*Run, error) {
	rec, err := o.fetchRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if Status(rec.Status).IsTerminal() {
		return nil, fmt.Errorf("run %s already ended with status %s", runID, rec.Status)
	}

	run := &Run{
		ID: rec.ID,
		Plan: &Plan{
			ID:         rec.ID,
			Strategy:   Strategy(rec.Strategy),
			SourcePath: rec.SourcePath,
			Family:     rec.Family,
			SampleRate: rec.SampleRate,
			CreatedAt:  rec.StartedAt,
		},
		Status:    StatusPending,
		StartedAt: rec.StartedAt,
	}
	o.log.WithRun(runID).Infow("Resuming run", "previous_status", rec.Status)
	return run, o.pipeline(ctx, run, true)
}

// fetchRun reads one run record over a short-lived destination connection.
func (o *Orchestrator) fetchRun(ctx context.Context, runID string) (*audit.RunRecord, error) {
	if err := o.dbm.Connect(ctx); err != nil {
		return nil, err
	}
	defer o.dbm.Close()

	store, err := audit.NewStore(o.dbm.Destination, o.cfg.Destination.ControlSchema, o.log)
	if err != nil {
		return nil, err
	}
	return store.GetRun(ctx, runID)
}

// pipeline executes every stage of a run. Any stage error marks the run
// failed; a validation failure after copy marks it rolled back instead,
// because the active pointer was never flipped.
func (o *Orchestrator) pipeline(ctx context.Context, run *Run, resume bool) error {
	log := o.log.WithRun(run.ID)

	if err := o.dbm.Connect(ctx); err != nil {
		return err
	}
	defer o.dbm.Close()

	runLock, err := lock.NewRunLock(o.dbm.Destination, run.Plan.Family)
	if err != nil {
		return err
	}
	if err := runLock.Acquire(ctx, lock.TimeoutShort); err != nil {
		return err
	}
	defer runLock.Release(context.WithoutCancel(ctx))

	store, err := audit.NewStore(o.dbm.Destination, o.cfg.Destination.ControlSchema, log)
	if err != nil {
		return err
	}
	if err := store.InitializeTables(ctx); err != nil {
		return err
	}
	schemas, err := NewSchemaManager(o.dbm.Destination, o.cfg.Destination.ControlSchema, run.Plan.Family, log)
	if err != nil {
		return err
	}
	if err := schemas.InitializeTables(ctx); err != nil {
		return err
	}

	if !resume {
		if err := store.CreateRun(ctx, &audit.RunRecord{
			ID:         run.ID,
			Family:     run.Plan.Family,
			Strategy:   string(run.Plan.Strategy),
			Status:     string(run.Status),
			SourcePath: run.Plan.SourcePath,
			SampleRate: run.Plan.SampleRate,
			StartedAt:  run.StartedAt,
		}); err != nil {
			return err
		}
	}

	err = o.stages(ctx, run, store, schemas, log)
	if err != nil {
		if tErr := o.transition(ctx, run, store, terminalStatus(run, err), err.Error()); tErr != nil {
			log.Errorw("Failed to record terminal status", "error", tErr)
		}
		return err
	}
	return nil
}

// terminalStatus maps a stage error to the run's terminal status. A
// validation failure while the run was validating means the staged schema
// was discarded before the pointer ever flipped, so the run rolled back.
// Every other error, including a failed canary rehearsal during the copy
// stage, marks the run failed.
func terminalStatus(run *Run, err error) Status {
	var verr *ValidationError
	if errors.As(err, &verr) && run.Status == StatusValidating {
		return StatusRolledBack
	}
	return StatusFailed
}

func (o *Orchestrator) stages(ctx context.Context, run *Run, store *audit.Store, schemas *SchemaManager, log *logger.Logger) error {
	// Profiling always runs against the current source, even on resume.
	if err := o.transition(ctx, run, store, StatusProfiling, ""); err != nil {
		return err
	}
	report, err := o.profileSource(ctx, run.Plan.SourcePath)
	if err != nil {
		return err
	}
	if err := store.SaveReport(ctx, run.ID, report); err != nil {
		return err
	}

	verdict := breaker.Evaluate(report, o.cfg.Breaker)
	if verdict.ShouldHalt {
		return &breaker.HaltError{Verdict: verdict}
	}
	log.Infow("Breaker evaluation passed", "summary", verdict.Summary)

	if err := o.transition(ctx, run, store, StatusCleaning, ""); err != nil {
		return err
	}
	cl := cleaner.New(o.cfg.Cleaning, log, o.rec, o.checker)
	cleanResult, err := cl.Clean(ctx, run.Plan.SourcePath, report, run.ID)
	if err != nil {
		return err
	}
	if err := store.SaveCleaningOperations(ctx, run.ID, cleanResult.Operations); err != nil {
		return err
	}

	if err := o.transition(ctx, run, store, StatusScoring, ""); err != nil {
		return err
	}
	cleanedDB, err := database.OpenSQLite(ctx, cleanResult.CleanedPath, true)
	if err != nil {
		return err
	}
	defer cleanedDB.Close()

	cleanedReport, err := o.profileStore(ctx, cleanedDB)
	if err != nil {
		return err
	}
	sc, err := scorer.New(cleanedDB, o.cfg.Scoring, o.g, log, o.rec)
	if err != nil {
		return err
	}
	score, err := sc.Score(ctx, cleanedReport, o.cfg.Schema.Tables)
	if err != nil {
		return err
	}
	if err := store.SaveScore(ctx, run.ID, score); err != nil {
		return err
	}
	o.rec.SetGauge("quality_score", score.Composite)
	if !score.GatePassed {
		// The cleaned artifact stays on disk for inspection.
		log.Errorw("Quality gate refused migration",
			"composite", score.Composite,
			"minimum", score.MinimumScore,
			"artifact", cleanResult.CleanedPath,
		)
		return &scorer.GateError{Score: score}
	}

	if err := o.transition(ctx, run, store, StatusMigrating, ""); err != nil {
		return err
	}
	exec := NewExecutor(
		schemas,
		NewCopier(cleanedDB, o.dbm.Destination, store, o.cfg.Migration, log, o.rec, o.checker),
		NewValidator(cleanedDB, o.dbm.Destination, o.g, log),
		o.g, o.cfg.Migration, log,
	)

	var outcome *Outcome
	if run.Plan.Strategy == StrategyCanary {
		outcome, err = exec.CanaryStage(ctx, run.ID, cleanedReport)
	} else {
		outcome, err = exec.Stage(ctx, run.ID, cleanedReport)
	}
	if err != nil {
		return err
	}
	if err := store.SetRunTarget(ctx, run.ID, outcome.TargetSchema); err != nil {
		return err
	}

	if err := o.transition(ctx, run, store, StatusValidating, ""); err != nil {
		return err
	}
	if err := exec.Promote(ctx, run.ID, outcome, cleanedReport); err != nil {
		return err
	}

	if err := o.transition(ctx, run, store, StatusCommitted, ""); err != nil {
		return err
	}
	if err := cl.Discard(cleanResult.CleanedPath); err != nil {
		log.Warnw("Failed to remove cleaned artifact", "path", cleanResult.CleanedPath, "error", err)
	}
	log.Infow("Run committed",
		"schema", outcome.TargetSchema,
		"rows", outcome.TotalRows,
		"score", score.Composite,
	)
	return nil
}

// transition advances the run state machine and persists the new status
// before the stage it gates begins.
func (o *Orchestrator) transition(ctx context.Context, run *Run, store *audit.Store, to Status, errorDetail string) error {
	from := run.Status
	if err := run.Transition(to); err != nil {
		return err
	}
	run.ErrorDetail = errorDetail
	o.log.WithRun(run.ID).Infow("Run transition", "from", from, "to", to)
	return store.UpdateRunStatus(ctx, run.ID, string(to), errorDetail, to.IsTerminal())
}

// profileSource profiles the source store at path without mutating it.
func (o *Orchestrator) profileSource(ctx context.Context, path string) (*profiler.Report, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &profiler.SourceUnavailableError{Table: "", Err: err}
	}
	db, err := database.OpenSQLite(ctx, path, true)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return o.profileStore(ctx, db)
}

func (o *Orchestrator) profileStore(ctx context.Context, db *sql.DB) (*profiler.Report, error) {
	p, err := profiler.New(db, o.cfg.Profiling, o.log, o.rec)
	if err != nil {
		return nil, err
	}
	return p.ProfileAll(ctx, o.cfg.TableNames())
}

// Profile runs the profiler and breaker standalone, without acquiring the
// run lock or writing audit rows. Used for inspection ahead of a run.
func (o *Orchestrator) Profile(ctx context.Context) (*profiler.Report, *breaker.Verdict, error) {
	report, err := o.profileSource(ctx, o.cfg.Source.Path)
	if err != nil {
		return nil, nil, err
	}
	return report, breaker.Evaluate(report, o.cfg.Breaker), nil
}

// CleanOnly profiles the source and produces a cleaned artifact without
// touching the destination. The artifact path is returned for inspection;
// it is the caller's to discard.
func (o *Orchestrator) CleanOnly(ctx context.Context, runID string) (*cleaner.Result, error) {
	report, verdict, err := o.Profile(ctx)
	if err != nil {
		return nil, err
	}
	if verdict.ShouldHalt {
		return nil, &breaker.HaltError{Verdict: verdict}
	}
	cl := cleaner.New(o.cfg.Cleaning, o.log, o.rec, o.checker)
	return cl.Clean(ctx, o.cfg.Source.Path, report, runID)
}

// ScoreOnly runs profile, clean, and score without migrating. The cleaned
// artifact is discarded before returning.
func (o *Orchestrator) ScoreOnly(ctx context.Context, runID string) (*scorer.Score, error) {
	cleanResult, err := o.CleanOnly(ctx, runID)
	if err != nil {
		return nil, err
	}
	cl := cleaner.New(o.cfg.Cleaning, o.log, o.rec, o.checker)
	defer func() {
		if err := cl.Discard(cleanResult.CleanedPath); err != nil {
			o.log.Warnw("Failed to remove cleaned artifact", "path", cleanResult.CleanedPath, "error", err)
		}
	}()

	cleanedDB, err := database.OpenSQLite(ctx, cleanResult.CleanedPath, true)
	if err != nil {
		return nil, err
	}
	defer cleanedDB.Close()

	cleanedReport, err := o.profileStore(ctx, cleanedDB)
	if err != nil {
		return nil, err
	}
	sc, err := scorer.New(cleanedDB, o.cfg.Scoring, o.g, o.log, o.rec)
	if err != nil {
		return nil, err
	}
	return sc.Score(ctx, cleanedReport, o.cfg.Schema.Tables)
}

// DryRunReport describes what a run would do without executing any of it.
type DryRunReport struct {
	Report         *profiler.Report        `json:"report"`
	Verdict        *breaker.Verdict        `json:"verdict"`
	PlannedTargets []cleaner.PlannedTarget `json:"planned_targets"`
	MigrationOrder []string                `json:"migration_order"`
	Strategy       Strategy                `json:"strategy"`
	TotalRows      int64                   `json:"total_rows"`
}

// DryRun profiles the source and reports what the pipeline would do: the
// breaker verdict, which columns cleaning would touch, the table order,
// and the row volume. The destination is never contacted.
func (o *Orchestrator) DryRun(ctx context.Context) (*DryRunReport, error) {
	report, verdict, err := o.Profile(ctx)
	if err != nil {
		return nil, err
	}
	targets, err := cleaner.PlanTargets(o.cfg.Cleaning.Operations, report)
	if err != nil {
		return nil, err
	}
	order, err := o.g.MigrationOrder()
	if err != nil {
		return nil, err
	}

	var total int64
	for _, t := range report.Tables {
		total += t.RowCount
	}
	return &DryRunReport{
		Report:         report,
		Verdict:        verdict,
		PlannedTargets: targets,
		MigrationOrder: order,
		Strategy:       Strategy(o.cfg.Migration.Strategy),
		TotalRows:      total,
	}, nil
}

// Rollback reverts the family's active pointer to the previous schema
// version. It completes without moving any data.
func (o *Orchestrator) Rollback(ctx context.Context) error {
	if err := o.dbm.Connect(ctx); err != nil {
		return err
	}
	defer o.dbm.Close()

	schemas, err := NewSchemaManager(o.dbm.Destination, o.cfg.Destination.ControlSchema, o.cfg.Schema.Family, o.log)
	if err != nil {
		return err
	}
	return schemas.RollbackPointer(ctx)
}

// Retire reclaims retired schema versions beyond the retention window.
func (o *Orchestrator) Retire(ctx context.Context) ([]SchemaVersion, error) {
	if err := o.dbm.Connect(ctx); err != nil {
		return nil, err
	}
	defer o.dbm.Close()

	schemas, err := NewSchemaManager(o.dbm.Destination, o.cfg.Destination.ControlSchema, o.cfg.Schema.Family, o.log)
	if err != nil {
		return nil, err
	}
	exec := &Executor{schemas: schemas, g: o.g, cfg: o.cfg.Migration, log: o.log}
	if err := exec.Reclaim(ctx); err != nil {
		return nil, err
	}
	return schemas.ListVersions(ctx)
}

// Versions lists the family's schema versions with the active pointer.
func (o *Orchestrator) Versions(ctx context.Context) ([]SchemaVersion, string, error) {
	if err := o.dbm.Connect(ctx); err != nil {
		return nil, "", err
	}
	defer o.dbm.Close()

	schemas, err := NewSchemaManager(o.dbm.Destination, o.cfg.Destination.ControlSchema, o.cfg.Schema.Family, o.log)
	if err != nil {
		return nil, "", err
	}
	versions, err := schemas.ListVersions(ctx)
	if err != nil {
		return nil, "", err
	}
	active, err := schemas.ActiveSchema(ctx)
	if err != nil {
		return nil, "", err
	}
	return versions, active, nil
}

// Runs lists recent runs of the family from the control schema.
func (o *Orchestrator) Runs(ctx context.Context, limit int) ([]audit.RunRecord, error) {
	if err := o.dbm.Connect(ctx); err != nil {
		return nil, err
	}
	defer o.dbm.Close()

	store, err := audit.NewStore(o.dbm.Destination, o.cfg.Destination.ControlSchema, o.log)
	if err != nil {
		return nil, err
	}
	return store.ListRuns(ctx, o.cfg.Schema.Family, limit)
}
