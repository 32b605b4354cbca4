// Package audit persists the artifacts of every pipeline run (profiling
// reports, cleaning operations, quality scores, and migration run records)
// in the destination control schema so any run can be reconstructed later.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veridata/gopromote/internal/cleaner"
	"github.com/veridata/gopromote/internal/logger"
	"github.com/veridata/gopromote/internal/profiler"
	"github.com/veridata/gopromote/internal/scorer"
	"github.com/veridata/gopromote/internal/sqlutil"
)

// CheckpointScopeChars is the width of migration_checkpoint.run_id. Copy
// scopes can be longer than a bare run UUID (a canary rehearsal suffixes
// the run ID to keep its checkpoints apart from the full copy's), so the
// column is wider than migration_run.id.
const CheckpointScopeChars = 64

// RunRecord is one row of the migration_run table.
type RunRecord struct {
	ID           string
	Family       string
	Strategy     string
	Status       string
	SourcePath   string
	TargetSchema string
	SampleRate   float64
	ErrorDetail  string
	StartedAt    time.Time
	EndedAt      sql.NullTime
}

// Checkpoint is the last committed batch position for one table of a run.
type Checkpoint struct {
	RunID      string
	Table      string
	LastRowID  int64
	RowsCopied int64
}

// Store persists audit artifacts into the control schema.
type Store struct {
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// NewStore creates an audit store over the destination connection.
func NewStore(db *sql.DB, controlSchema string, log *logger.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	if err := sqlutil.ValidateIdentifiers(controlSchema); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Store{db: db, schema: controlSchema, log: log}, nil
}

// InitializeTables creates the control schema and audit tables when absent.
func (s *Store) InitializeTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", sqlutil.QuoteMySQL(s.schema)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			family VARCHAR(255) NOT NULL,
			strategy VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			source_path TEXT NOT NULL,
			target_schema VARCHAR(255),
			sample_rate DOUBLE NOT NULL DEFAULT 0,
			error_detail TEXT,
			started_at TIMESTAMP NULL,
			ended_at TIMESTAMP NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_family_status (family, status)
		) ENGINE=InnoDB`, s.table("migration_run")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id VARCHAR(%d) NOT NULL,
			table_name VARCHAR(255) NOT NULL,
			last_rowid BIGINT NOT NULL DEFAULT 0,
			rows_copied BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, table_name)
		) ENGINE=InnoDB`, s.table("migration_checkpoint"), CheckpointScopeChars),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id VARCHAR(36) PRIMARY KEY,
			payload LONGTEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB`, s.table("profiling_report")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(36) NOT NULL,
			seq INT NOT NULL,
			name VARCHAR(64) NOT NULL,
			table_name VARCHAR(255) NOT NULL,
			column_name VARCHAR(255) NOT NULL,
			rows_affected BIGINT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run (run_id)
		) ENGINE=InnoDB`, s.table("cleaning_operation")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id VARCHAR(36) PRIMARY KEY,
			composite DOUBLE NOT NULL,
			gate_passed TINYINT(1) NOT NULL,
			payload LONGTEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB`, s.table("quality_score")),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize audit tables: %w", err)
		}
	}
	return nil
}

func (s *Store) table(name string) string {
	return sqlutil.QuoteQualified(s.schema, name)
}

// CreateRun records a new migration run.
func (s *Store) CreateRun(ctx context.Context, rec *RunRecord) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, family, strategy, status, source_path, target_schema, sample_rate, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table("migration_run")),
		rec.ID, rec.Family, rec.Strategy, rec.Status, rec.SourcePath,
		rec.TargetSchema, rec.SampleRate, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run record: %w", err)
	}
	return nil
}

// UpdateRunStatus persists a state-machine transition.
func (s *Store) UpdateRunStatus(ctx context.Context, runID, status, errorDetail string, ended bool) error {
	query := fmt.Sprintf("UPDATE %s SET status = ?, error_detail = NULLIF(?, '')", s.table("migration_run"))
	args := []interface{}{status, errorDetail}
	if ended {
		query += ", ended_at = ?"
		args = append(args, time.Now().UTC())
	}
	query += " WHERE id = ?"
	args = append(args, runID)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// SetRunTarget records the versioned schema a run migrated into.
func (s *Store) SetRunTarget(ctx context.Context, runID, targetSchema string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET target_schema = ? WHERE id = ?", s.table("migration_run")),
		targetSchema, runID)
	if err != nil {
		return fmt.Errorf("failed to set run target: %w", err)
	}
	return nil
}

// GetRun loads a run record by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	rec := &RunRecord{}
	var target, errDetail sql.NullString
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, family, strategy, status, source_path, target_schema, sample_rate, error_detail, started_at, ended_at
		 FROM %s WHERE id = ?`, s.table("migration_run")), runID).
		Scan(&rec.ID, &rec.Family, &rec.Strategy, &rec.Status, &rec.SourcePath,
			&target, &rec.SampleRate, &errDetail, &rec.StartedAt, &rec.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	rec.TargetSchema = target.String
	rec.ErrorDetail = errDetail.String
	return rec, nil
}

// ListRuns returns the most recent runs for a family, newest first.
func (s *Store) ListRuns(ctx context.Context, family string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, family, strategy, status, source_path, target_schema, sample_rate, error_detail, started_at, ended_at
		 FROM %s WHERE family = ? ORDER BY started_at DESC LIMIT ?`, s.table("migration_run")),
		family, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var target, errDetail sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Family, &rec.Strategy, &rec.Status, &rec.SourcePath,
			&target, &rec.SampleRate, &errDetail, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, err
		}
		rec.TargetSchema = target.String
		rec.ErrorDetail = errDetail.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveReport persists the full profiling report as JSON.
func (s *Store) SaveReport(ctx context.Context, runID string, report *profiler.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode profiling report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		"REPLACE INTO %s (run_id, payload) VALUES (?, ?)", s.table("profiling_report")),
		runID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to persist profiling report: %w", err)
	}
	return nil
}

// SaveCleaningOperations persists the ordered operation audit trail.
func (s *Store) SaveCleaningOperations(ctx context.Context, runID string, ops []cleaner.OperationResult) error {
	for i, op := range ops {
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (run_id, seq, name, table_name, column_name, rows_affected)
			 VALUES (?, ?, ?, ?, ?, ?)`, s.table("cleaning_operation")),
			runID, i, op.Name, op.Table, op.Column, op.RowsAffected)
		if err != nil {
			return fmt.Errorf("failed to persist cleaning operation %s: %w", op.Name, err)
		}
	}
	return nil
}

// SaveScore persists the quality score with its dimension breakdown.
func (s *Store) SaveScore(ctx context.Context, runID string, score *scorer.Score) error {
	payload, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("failed to encode quality score: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		"REPLACE INTO %s (run_id, composite, gate_passed, payload) VALUES (?, ?, ?, ?)",
		s.table("quality_score")),
		runID, score.Composite, score.GatePassed, string(payload))
	if err != nil {
		return fmt.Errorf("failed to persist quality score: %w", err)
	}
	return nil
}

// SaveCheckpoint upserts the last committed batch position for a table.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (run_id, table_name, last_rowid, rows_copied)
		 VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE last_rowid = VALUES(last_rowid), rows_copied = VALUES(rows_copied)`,
		s.table("migration_checkpoint")),
		cp.RunID, cp.Table, cp.LastRowID, cp.RowsCopied)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint returns the checkpoint for a run and table, or nil when the
// table has not started.
func (s *Store) GetCheckpoint(ctx context.Context, runID, table string) (*Checkpoint, error) {
	cp := &Checkpoint{RunID: runID, Table: table}
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT last_rowid, rows_copied FROM %s WHERE run_id = ? AND table_name = ?",
		s.table("migration_checkpoint")), runID, table).
		Scan(&cp.LastRowID, &cp.RowsCopied)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}
