package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/veridata/gopromote/internal/graph"
	"github.com/veridata/gopromote/internal/logger"
	"github.com/veridata/gopromote/internal/profiler"
	"github.com/veridata/gopromote/internal/sqlutil"
)

// VersionStatus tracks a schema version through its lifecycle.
type VersionStatus string

const (
	VersionStaging VersionStatus = "staging"
	VersionActive  VersionStatus = "active"
	VersionRetired VersionStatus = "retired"
)

// SchemaVersion is one versioned destination schema of a family.
type SchemaVersion struct {
	SchemaName string
	Family     string
	Status     VersionStatus
	CreatedAt  time.Time
}

// SchemaManager owns the versioned destination schemas of one family and
// the single active pointer consumers read through. Pointer flips are
// transactional single-row updates, so cutover and rollback never move data.
type SchemaManager struct {
	db      *sql.DB
	control string
	family  string
	log     *logger.Logger
}

// NewSchemaManager creates a manager for one schema family.
func NewSchemaManager(db *sql.DB, controlSchema, family string, log *logger.Logger) (*SchemaManager, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	if err := sqlutil.ValidateIdentifiers(controlSchema, family); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &SchemaManager{db: db, control: controlSchema, family: family, log: log}, nil
}

// InitializeTables creates the version and pointer tables when absent.
func (m *SchemaManager) InitializeTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", sqlutil.QuoteMySQL(m.control)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			schema_name VARCHAR(255) PRIMARY KEY,
			family VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'staging',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_family (family, status)
		) ENGINE=InnoDB`, m.versionTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			family VARCHAR(255) PRIMARY KEY,
			schema_name VARCHAR(255) NOT NULL,
			previous_schema VARCHAR(255),
			flipped_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB`, m.pointerTable()),
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema tables: %w", err)
		}
	}
	return nil
}

func (m *SchemaManager) versionTable() string {
	return sqlutil.QuoteQualified(m.control, "schema_version")
}

func (m *SchemaManager) pointerTable() string {
	return sqlutil.QuoteQualified(m.control, "active_schema")
}

// VersionName derives a unique schema name from the creation instant.
func (m *SchemaManager) VersionName(at time.Time) string {
	return fmt.Sprintf("%s_v%s", m.family, at.UTC().Format("20060102150405"))
}

// CanaryName derives the disposable canary schema name for a run.
func (m *SchemaManager) CanaryName(runID string) string {
	// Schema names cannot carry the dashes of a UUID.
	clean := make([]byte, 0, len(runID))
	for i := 0; i < len(runID); i++ {
		if runID[i] != '-' {
			clean = append(clean, runID[i])
		}
	}
	return fmt.Sprintf("%s_canary_%s", m.family, clean)
}

// CreateVersion allocates a new, empty versioned schema in staging state.
// It never overwrites an existing schema.
func (m *SchemaManager) CreateVersion(ctx context.Context, schemaName string) (*SchemaVersion, error) {
	if err := sqlutil.ValidateIdentifiers(schemaName); err != nil {
		return nil, err
	}

	if _, err := m.db.ExecContext(ctx,
		fmt.Sprintf("CREATE DATABASE %s", sqlutil.QuoteMySQL(schemaName))); err != nil {
		return nil, fmt.Errorf("failed to create schema %s: %w", schemaName, err)
	}

	if _, err := m.db.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (schema_name, family, status) VALUES (?, ?, ?)", m.versionTable()),
		schemaName, m.family, VersionStaging); err != nil {
		return nil, fmt.Errorf("failed to record schema version: %w", err)
	}

	m.log.Infow("Schema version created", "schema", schemaName, "family", m.family)
	return &SchemaVersion{
		SchemaName: schemaName,
		Family:     m.family,
		Status:     VersionStaging,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// CreateTables builds destination tables in a schema from the cleaned
// store's profile: accepted inferred types become destination column types,
// which is what keeps a mistyped source column from reaching the
// destination as the wrong type.
func (m *SchemaManager) CreateTables(ctx context.Context, schemaName string, report *profiler.Report, g *graph.Graph) error {
	order, err := g.MigrationOrder()
	if err != nil {
		return err
	}

	for _, table := range order {
		tp := findTable(report, table)
		if tp == nil {
			return fmt.Errorf("table %s missing from cleaned profile", table)
		}

		ddl, err := buildCreateTable(schemaName, table, g.GetPK(table), tp.Columns)
		if err != nil {
			return err
		}
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s.%s: %w", schemaName, table, err)
		}
	}
	return nil
}

// buildCreateTable maps inferred column types onto destination types.
func buildCreateTable(schemaName, table, pk string, columns []profiler.ColumnProfile) (string, error) {
	if err := sqlutil.ValidateIdentifiers(schemaName, table, pk); err != nil {
		return "", err
	}

	ddl := "CREATE TABLE " + sqlutil.QuoteQualified(schemaName, table) + " ("
	for i, col := range columns {
		if err := sqlutil.ValidateIdentifiers(col.Column); err != nil {
			return "", err
		}
		if i > 0 {
			ddl += ", "
		}
		ddl += sqlutil.QuoteMySQL(col.Column) + " " + destinationType(col)
	}
	ddl += ", PRIMARY KEY (" + sqlutil.QuoteMySQL(pk) + ")) ENGINE=InnoDB"
	return ddl, nil
}

// destinationType picks the MySQL column type for a profiled column. Only
// accepted inferences are trusted; anything else lands as TEXT.
func destinationType(col profiler.ColumnProfile) string {
	t := col.InferredType
	if !col.Accepted {
		t = profiler.TypeText
	}
	switch t {
	case profiler.TypeInteger:
		return "BIGINT"
	case profiler.TypeFloat:
		return "DOUBLE"
	case profiler.TypeBoolean:
		return "TINYINT(1)"
	case profiler.TypeTimestamp:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

// ActiveSchema returns the schema currently serving reads, or empty when
// the family has never been activated.
func (m *SchemaManager) ActiveSchema(ctx context.Context) (string, error) {
	var name string
	err := m.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT schema_name FROM %s WHERE family = ?", m.pointerTable()), m.family).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active pointer: %w", err)
	}
	return name, nil
}

// Pointer returns both sides of the active pointer: the schema serving
// reads and the previous one kept as the rollback target. Both are empty
// when the family has never been activated.
func (m *SchemaManager) Pointer(ctx context.Context) (active, previous string, err error) {
	var prev sql.NullString
	err = m.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT schema_name, previous_schema FROM %s WHERE family = ?", m.pointerTable()),
		m.family).Scan(&active, &prev)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read active pointer: %w", err)
	}
	return active, prev.String, nil
}

// Activate atomically flips the active pointer to schemaName. The previous
// schema is marked retired but retained for instant rollback.
func (m *SchemaManager) Activate(ctx context.Context, schemaName string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin pointer flip: %w", err)
	}
	defer tx.Rollback()

	var previous sql.NullString
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT schema_name FROM %s WHERE family = ? FOR UPDATE", m.pointerTable()),
		m.family).Scan(&previous)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to lock active pointer: %w", err)
	}
	if previous.String == schemaName {
		// Already active; repeating the flip must not clobber the
		// rollback target.
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (family, schema_name, previous_schema) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE previous_schema = VALUES(previous_schema), schema_name = VALUES(schema_name)`,
		m.pointerTable()),
		m.family, schemaName, previous.String); err != nil {
		return fmt.Errorf("failed to flip active pointer: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET status = ? WHERE schema_name = ?", m.versionTable()),
		VersionActive, schemaName); err != nil {
		return fmt.Errorf("failed to mark schema active: %w", err)
	}
	if previous.Valid && previous.String != "" {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			"UPDATE %s SET status = ? WHERE schema_name = ?", m.versionTable()),
			VersionRetired, previous.String); err != nil {
			return fmt.Errorf("failed to retire previous schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pointer flip: %w", err)
	}

	m.log.Infow("Active schema pointer flipped",
		"family", m.family,
		"active", schemaName,
		"previous", previous.String,
	)
	return nil
}

// RollbackPointer reverts the active pointer to the previous schema.
// No data moves, so this completes in seconds regardless of volume.
func (m *SchemaManager) RollbackPointer(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin pointer rollback: %w", err)
	}
	defer tx.Rollback()

	var current string
	var previous sql.NullString
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT schema_name, previous_schema FROM %s WHERE family = ? FOR UPDATE", m.pointerTable()),
		m.family).Scan(&current, &previous)
	if err != nil {
		return fmt.Errorf("failed to read active pointer: %w", err)
	}
	if !previous.Valid || previous.String == "" {
		return fmt.Errorf("no previous schema to roll back to for family %s", m.family)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET schema_name = ?, previous_schema = ? WHERE family = ?", m.pointerTable()),
		previous.String, current, m.family); err != nil {
		return fmt.Errorf("failed to revert active pointer: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET status = ? WHERE schema_name = ?", m.versionTable()),
		VersionActive, previous.String); err != nil {
		return fmt.Errorf("failed to reactivate previous schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET status = ? WHERE schema_name = ?", m.versionTable()),
		VersionRetired, current); err != nil {
		return fmt.Errorf("failed to retire rolled-back schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pointer rollback: %w", err)
	}

	m.log.Warnw("Active schema pointer rolled back",
		"family", m.family,
		"active", previous.String,
		"retired", current,
	)
	return nil
}

// ListVersions returns every version of the family, oldest first.
func (m *SchemaManager) ListVersions(ctx context.Context) ([]SchemaVersion, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT schema_name, family, status, created_at FROM %s WHERE family = ?", m.versionTable()),
		m.family)
	if err != nil {
		return nil, fmt.Errorf("failed to list schema versions: %w", err)
	}
	defer rows.Close()

	var out []SchemaVersion
	for rows.Next() {
		var v SchemaVersion
		if err := rows.Scan(&v.SchemaName, &v.Family, &v.Status, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DropVersion removes a schema and its version record. Used for canary
// namespaces and for retention reclaim; never called on the active schema.
func (m *SchemaManager) DropVersion(ctx context.Context, schemaName string) error {
	if err := sqlutil.ValidateIdentifiers(schemaName); err != nil {
		return err
	}

	active, err := m.ActiveSchema(ctx)
	if err != nil {
		return err
	}
	if schemaName == active {
		return fmt.Errorf("refusing to drop active schema %s", schemaName)
	}

	if _, err := m.db.ExecContext(ctx,
		fmt.Sprintf("DROP DATABASE IF EXISTS %s", sqlutil.QuoteMySQL(schemaName))); err != nil {
		return fmt.Errorf("failed to drop schema %s: %w", schemaName, err)
	}
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE schema_name = ?", m.versionTable()), schemaName); err != nil {
		return fmt.Errorf("failed to delete version record: %w", err)
	}

	m.log.Infow("Schema version dropped", "schema", schemaName)
	return nil
}

// RowCount returns the row count of one destination table.
func (m *SchemaManager) RowCount(ctx context.Context, schemaName, table string) (int64, error) {
	if err := sqlutil.ValidateIdentifiers(schemaName, table); err != nil {
		return 0, err
	}
	var count int64
	err := m.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", sqlutil.QuoteQualified(schemaName, table))).Scan(&count)
	return count, err
}

func findTable(report *profiler.Report, table string) *profiler.TableProfile {
	for i := range report.Tables {
		if report.Tables[i].Table == table {
			return &report.Tables[i]
		}
	}
	return nil
}
