package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/veridata/gopromote/internal/audit"
	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/health"
	"github.com/veridata/gopromote/internal/logger"
	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/sqlutil"
	"github.com/veridata/gopromote/internal/types"
)

// sampleModulus is the resolution of the canary sampling hash. A rate of
// 0.05 admits hash values below 500.
const sampleModulus = 10000

// RowFilter decides whether a source row participates in a copy. A nil
// filter admits every row.
type RowFilter func(pkValue string) bool

// CanaryFilter returns a deterministic sampling filter: whether a row is
// sampled depends only on the run ID, the table, and the primary key, so
// re-running a canary always selects the same subset.
func CanaryFilter(runID, table string, rate float64) RowFilter {
	threshold := uint64(rate * sampleModulus)
	return func(pkValue string) bool {
		h := fnv.New64a()
		h.Write([]byte(runID))
		h.Write([]byte{'|'})
		h.Write([]byte(table))
		h.Write([]byte{'|'})
		h.Write([]byte(pkValue))
		return h.Sum64()%sampleModulus < threshold
	}
}

// healthCadence spaces resource checks by rows processed so a fast copy
// of small batches does not stat the filesystem before every batch. The
// first call is always due.
type healthCadence struct {
	every int
	seen  int
	ran   bool
}

func (h *healthCadence) due(rows int) bool {
	h.seen += rows
	if !h.ran || h.every <= 0 || h.seen >= h.every {
		h.ran = true
		h.seen = 0
		return true
	}
	return false
}

// Copier moves rows from the cleaned source store into a destination
// schema in checkpointed batches. Each batch commits in its own
// destination transaction, and the checkpoint is written only after the
// commit, so a crash resumes from the last durable batch without losing
// or duplicating rows.
type Copier struct {
	src     *sql.DB
	dst     *sql.DB
	audit   *audit.Store
	cfg     config.MigrationConfig
	log     *logger.Logger
	rec     *metrics.Recorder
	checker *health.Checker
}

// NewCopier creates a copier between the cleaned store and the destination.
func NewCopier(src, dst *sql.DB, store *audit.Store, cfg config.MigrationConfig, log *logger.Logger, rec *metrics.Recorder, checker *health.Checker) *Copier {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Copier{src: src, dst: dst, audit: store, cfg: cfg, log: log, rec: rec, checker: checker}
}

// CopyTable copies one table into targetSchema and returns the number of
// rows written. The copy resumes from the run's checkpoint when one exists.
func (c *Copier) CopyTable(ctx context.Context, runID, table, pk string, columns []string, targetSchema string, totalRows int64, filter RowFilter) (int64, error) {
	if err := sqlutil.ValidateIdentifiers(append([]string{table, pk, targetSchema}, columns...)...); err != nil {
		return 0, err
	}

	log := c.log.WithRun(runID).WithTable(table)

	var lastRowID int64
	var rowsCopied int64
	if cp, err := c.audit.GetCheckpoint(ctx, runID, table); err != nil {
		return 0, err
	} else if cp != nil {
		lastRowID = cp.LastRowID
		rowsCopied = cp.RowsCopied
		log.Infow("Resuming table copy from checkpoint",
			"last_rowid", lastRowID,
			"rows_copied", rowsCopied,
		)
	}

	pkIdx := -1
	for i, col := range columns {
		if col == pk {
			pkIdx = i
		}
	}
	if pkIdx < 0 {
		return 0, fmt.Errorf("primary key %s not among columns of %s", pk, table)
	}

	selectStmt := buildBatchSelect(table, columns)
	insertPrefix := buildInsertPrefix(targetSchema, table, columns)
	tracker := metrics.NewProgressTracker(log, table, totalRows)
	tracker.Update(rowsCopied)
	batchNum := 0

	cadence := healthCadence{}
	if c.checker != nil {
		cadence.every = c.checker.Every()
	}
	lastBatch := 0

	for {
		if err := ctx.Err(); err != nil {
			return rowsCopied, err
		}
		if c.checker != nil && cadence.due(lastBatch) {
			if err := c.checker.Check(); err != nil {
				return rowsCopied, err
			}
		}

		rows, maxRowID, err := c.fetchBatch(ctx, selectStmt, lastRowID, len(columns))
		if err != nil {
			return rowsCopied, fmt.Errorf("failed to read batch from %s: %w", table, err)
		}
		lastBatch = len(rows)
		if len(rows) == 0 && maxRowID == lastRowID {
			break
		}

		batchNum++
		kept := rows
		if filter != nil {
			kept = kept[:0]
			for _, row := range rows {
				if filter(types.ToString(row[pkIdx])) {
					kept = append(kept, row)
				}
			}
		}

		if len(kept) > 0 {
			written, err := c.writeBatch(ctx, insertPrefix, len(columns), kept)
			if err != nil {
				return rowsCopied, fmt.Errorf("failed to write batch %d of %s: %w", batchNum, table, err)
			}
			rowsCopied += written
		}
		lastRowID = maxRowID

		if err := c.audit.SaveCheckpoint(ctx, &audit.Checkpoint{
			RunID:      runID,
			Table:      table,
			LastRowID:  lastRowID,
			RowsCopied: rowsCopied,
		}); err != nil {
			return rowsCopied, err
		}

		if c.rec != nil {
			c.rec.IncCounter("rows_migrated_total", float64(len(kept)))
		}
		tracker.Update(rowsCopied)

		if c.cfg.SleepSeconds > 0 {
			select {
			case <-time.After(time.Duration(c.cfg.SleepSeconds * float64(time.Second))):
			case <-ctx.Done():
				return rowsCopied, ctx.Err()
			}
		}
	}

	log.Infow("Table copy complete", "rows_copied", rowsCopied, "batches", batchNum)
	return rowsCopied, nil
}

func buildBatchSelect(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = sqlutil.QuoteSQLite(col)
	}
	return fmt.Sprintf("SELECT rowid, %s FROM %s WHERE rowid > ? ORDER BY rowid LIMIT ?",
		strings.Join(quoted, ", "), sqlutil.QuoteSQLite(table))
}

func buildInsertPrefix(schema, table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = sqlutil.QuoteMySQL(col)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		sqlutil.QuoteQualified(schema, table), strings.Join(quoted, ", "))
}

// fetchBatch reads the next batch of rows past lastRowID and returns the
// row values with the highest rowid seen. Values arrive as the cleaned
// store's native types; NULLs stay NULL.
func (c *Copier) fetchBatch(ctx context.Context, stmt string, lastRowID int64, width int) ([][]any, int64, error) {
	rows, err := c.src.QueryContext(ctx, stmt, lastRowID, c.cfg.BatchSize)
	if err != nil {
		return nil, lastRowID, err
	}
	defer rows.Close()

	var out [][]any
	maxRowID := lastRowID
	for rows.Next() {
		var rowid int64
		values := make([]any, width)
		dest := make([]any, width+1)
		dest[0] = &rowid
		for i := range values {
			dest[i+1] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, lastRowID, err
		}
		if rowid > maxRowID {
			maxRowID = rowid
		}
		out = append(out, values)
	}
	return out, maxRowID, rows.Err()
}

// writeBatch inserts the batch inside one destination transaction bounded
// by the configured batch timeout.
func (c *Copier) writeBatch(ctx context.Context, insertPrefix string, width int, batch [][]any) (int64, error) {
	batchCtx := ctx
	if c.cfg.BatchTimeoutSecs > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.BatchTimeoutSecs)*time.Second)
		defer cancel()
	}

	tx, err := c.dst.BeginTx(batchCtx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", width), ",") + ")"
	tuples := make([]string, len(batch))
	args := make([]any, 0, len(batch)*width)
	for i, row := range batch {
		tuples[i] = placeholder
		args = append(args, row...)
	}

	res, err := tx.ExecContext(batchCtx, insertPrefix+strings.Join(tuples, ", "), args...)
	if err != nil {
		return 0, err
	}
	written, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return written, tx.Commit()
}
