package cleaner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/database"
	"github.com/veridata/gopromote/internal/health"
	"github.com/veridata/gopromote/internal/logger"
	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/profiler"
)

// TransactionError reports which cleaning operation failed. The cleaning
// transaction is fully rolled back and the partial artifact deleted, so a
// retry from scratch is always safe.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("cleaning transaction failed at operation %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// Result describes a committed cleaning run: the cleaned store location and
// the ordered audit trail of operations applied.
type Result struct {
	SourcePath  string            `json:"source_path"`
	CleanedPath string            `json:"cleaned_path"`
	Operations  []OperationResult `json:"operations"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// RowsAffected returns the total rows changed across all operations.
func (r *Result) RowsAffected() int64 {
	var total int64
	for _, op := range r.Operations {
		total += op.RowsAffected
	}
	return total
}

// Cleaner rewrites a copy of the source into a cleaned intermediate store.
// The original file is opened read-only for the copy and never mutated.
type Cleaner struct {
	cfg     config.CleaningConfig
	log     *logger.Logger
	rec     *metrics.Recorder
	checker *health.Checker
}

// New creates a cleaner with the given configuration.
func New(cfg config.CleaningConfig, log *logger.Logger, rec *metrics.Recorder, checker *health.Checker) *Cleaner {
	if log == nil {
		log = logger.NewDefault()
	}
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	return &Cleaner{cfg: cfg, log: log, rec: rec, checker: checker}
}

// CleanedPath returns where the cleaned copy for a run is written.
func (c *Cleaner) CleanedPath(sourcePath, runID string) string {
	dir := c.cfg.WorkDir
	if dir == "" {
		dir = filepath.Dir(sourcePath)
	}
	base := filepath.Base(sourcePath)
	return filepath.Join(dir, fmt.Sprintf("%s.cleaned.%s", base, runID))
}

// Clean copies the source store and applies the enabled operations inside a
// single exclusive transaction on the copy. On any failure the transaction
// is rolled back and the partial artifact is deleted; no partially-cleaned
// file survives a failed run.
func (c *Cleaner) Clean(ctx context.Context, sourcePath string, report *profiler.Report, runID string) (result *Result, err error) {
	ops, err := enabledOperations(c.cfg.Operations)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	destPath := c.CleanedPath(sourcePath, runID)

	if err := copyFile(sourcePath, destPath); err != nil {
		return nil, fmt.Errorf("failed to copy source store: %w", err)
	}

	// From here on, any failure removes destPath before returning.
	defer func() {
		if err != nil {
			if rmErr := os.Remove(destPath); rmErr != nil && !os.IsNotExist(rmErr) {
				c.log.Errorw("Failed to delete partial cleaned artifact", "path", destPath, "error", rmErr)
			}
		}
	}()

	db, err := database.OpenSQLite(ctx, destPath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open cleaned store: %w", err)
	}
	defer db.Close()

	// The connection DSN requests immediate transactions, so BeginTx takes
	// the write lock up front: no other writer can touch the
	// destination-in-progress while the cleaning transaction is open.
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin cleaning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.log.Errorw("Failed to roll back cleaning transaction", "error", rbErr)
			}
		}
	}()

	var results []OperationResult
	for _, op := range ops {
		for _, profile := range report.AllColumns() {
			if !op.Targets(&profile) {
				continue
			}

			affected, opErr := op.Apply(ctx, tx, profile.Table, profile.Column)
			if opErr != nil {
				return nil, &TransactionError{Op: op.Name(), Err: opErr}
			}

			results = append(results, OperationResult{
				Name:         op.Name(),
				Table:        profile.Table,
				Column:       profile.Column,
				RowsAffected: affected,
				Idempotent:   true,
			})
			c.rec.IncCounter("cleaner_rows_affected_total", float64(affected))
			c.log.Debugw("Cleaning operation applied",
				"operation", op.Name(),
				"table", profile.Table,
				"column", profile.Column,
				"rows_affected", affected,
			)
		}

		if c.checker != nil {
			if hErr := c.checker.Check(); hErr != nil {
				return nil, hErr
			}
		}
	}

	// Post-conditions: every operation re-checks its own invariant before
	// the transaction may commit.
	for _, op := range ops {
		for _, profile := range report.AllColumns() {
			if !op.Targets(&profile) {
				continue
			}
			if vErr := op.Validate(ctx, tx, profile.Table, profile.Column); vErr != nil {
				return nil, &TransactionError{Op: op.Name(), Err: vErr}
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, &TransactionError{Op: "commit", Err: err}
	}
	committed = true

	result = &Result{
		SourcePath:  sourcePath,
		CleanedPath: destPath,
		Operations:  results,
		StartedAt:   start,
		FinishedAt:  time.Now(),
	}

	c.rec.ObserveDuration("cleaner_duration_seconds", time.Since(start))
	c.log.Infow("Cleaning committed",
		"cleaned_path", destPath,
		"operations", len(results),
		"rows_affected", result.RowsAffected(),
	)

	return result, nil
}

// Discard removes a cleaned artifact. Used when a later stage fails and the
// run cannot be promoted.
func (c *Cleaner) Discard(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard cleaned artifact: %w", err)
	}
	return nil
}

// copyFile copies src to dst, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
