package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/veridata/gopromote/internal/graph"
	"github.com/veridata/gopromote/internal/logger"
	"github.com/veridata/gopromote/internal/profiler"
	"github.com/veridata/gopromote/internal/sqlutil"
)

// ValidationFailure describes one check the migrated schema failed.
type ValidationFailure struct {
	Table    string
	Check    string
	Expected string
	Observed string
}

func (f ValidationFailure) String() string {
	return fmt.Sprintf("%s: %s (expected %s, observed %s)", f.Table, f.Check, f.Expected, f.Observed)
}

// ValidationError aggregates every failure of a validation pass.
type ValidationError struct {
	Schema   string
	Failures []ValidationFailure
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("validation of %s failed: %s", e.Schema, strings.Join(parts, "; "))
}

// Validator runs the post-copy battery against a destination schema:
// row counts against the cleaned store, destination column types against
// the inferred types, and a representative readthrough per table. It
// never writes, so it is safe to run while the old schema serves traffic.
type Validator struct {
	src *sql.DB
	dst *sql.DB
	g   *graph.Graph
	log *logger.Logger
}

// NewValidator creates a validator between the cleaned store and the
// destination connection.
func NewValidator(src, dst *sql.DB, g *graph.Graph, log *logger.Logger) *Validator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Validator{src: src, dst: dst, g: g, log: log}
}

// Validate checks targetSchema against the cleaned store. expectedRows
// overrides the source row count per table when the copy was sampled
// (canary runs); a nil map means full counts are expected.
func (v *Validator) Validate(ctx context.Context, targetSchema string, report *profiler.Report, expectedRows map[string]int64) error {
	var failures []ValidationFailure

	order, err := v.g.MigrationOrder()
	if err != nil {
		return err
	}

	for _, table := range order {
		tp := findTable(report, table)
		if tp == nil {
			failures = append(failures, ValidationFailure{
				Table: table, Check: "profile", Expected: "profiled table", Observed: "absent",
			})
			continue
		}

		if f := v.checkRowCount(ctx, targetSchema, table, expectedRows); f != nil {
			failures = append(failures, *f)
		}
		failures = append(failures, v.checkColumnTypes(ctx, targetSchema, table, tp.Columns)...)
		if f := v.checkReadthrough(ctx, targetSchema, table); f != nil {
			failures = append(failures, *f)
		}
	}

	if len(failures) > 0 {
		for _, f := range failures {
			v.log.Errorw("Validation check failed",
				"schema", targetSchema,
				"table", f.Table,
				"check", f.Check,
				"expected", f.Expected,
				"observed", f.Observed,
			)
		}
		return &ValidationError{Schema: targetSchema, Failures: failures}
	}

	v.log.Infow("Validation passed", "schema", targetSchema, "tables", len(order))
	return nil
}

// checkRowCount compares the destination row count against the cleaned
// store, counted live so a drift between profiling and copying is caught.
func (v *Validator) checkRowCount(ctx context.Context, schema, table string, expectedRows map[string]int64) *ValidationFailure {
	var expected int64
	if expectedRows != nil {
		expected = expectedRows[table]
	} else {
		err := v.src.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s", sqlutil.QuoteSQLite(table))).Scan(&expected)
		if err != nil {
			return &ValidationFailure{Table: table, Check: "row_count", Expected: "cleaned store count", Observed: err.Error()}
		}
	}

	var observed int64
	err := v.dst.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", sqlutil.QuoteQualified(schema, table))).Scan(&observed)
	if err != nil {
		return &ValidationFailure{Table: table, Check: "row_count", Expected: fmt.Sprint(expected), Observed: err.Error()}
	}
	if observed != expected {
		return &ValidationFailure{Table: table, Check: "row_count", Expected: fmt.Sprint(expected), Observed: fmt.Sprint(observed)}
	}
	return nil
}

// checkColumnTypes compares destination column types with the types the
// profile inferred.
func (v *Validator) checkColumnTypes(ctx context.Context, schema, table string, columns []profiler.ColumnProfile) []ValidationFailure {
	rows, err := v.dst.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = ? AND table_name = ?`,
		schema, table)
	if err != nil {
		return []ValidationFailure{{Table: table, Check: "column_types", Expected: "column metadata", Observed: err.Error()}}
	}
	defer rows.Close()

	observed := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return []ValidationFailure{{Table: table, Check: "column_types", Expected: "column metadata", Observed: err.Error()}}
		}
		observed[name] = strings.ToLower(dataType)
	}
	if err := rows.Err(); err != nil {
		return []ValidationFailure{{Table: table, Check: "column_types", Expected: "column metadata", Observed: err.Error()}}
	}

	var failures []ValidationFailure
	for _, col := range columns {
		want := expectedDataType(col)
		got, ok := observed[col.Column]
		if !ok {
			failures = append(failures, ValidationFailure{
				Table: table, Check: "column_exists", Expected: col.Column, Observed: "absent",
			})
			continue
		}
		if got != want {
			failures = append(failures, ValidationFailure{
				Table:    table,
				Check:    "column_type:" + col.Column,
				Expected: want,
				Observed: got,
			})
		}
	}
	return failures
}

// expectedDataType is the information_schema data_type a profiled column
// must land as, mirroring the DDL mapping.
func expectedDataType(col profiler.ColumnProfile) string {
	t := col.InferredType
	if !col.Accepted {
		t = profiler.TypeText
	}
	switch t {
	case profiler.TypeInteger:
		return "bigint"
	case profiler.TypeFloat:
		return "double"
	case profiler.TypeBoolean:
		return "tinyint"
	case profiler.TypeTimestamp:
		return "datetime"
	default:
		return "text"
	}
}

// checkReadthrough issues one representative query against the table,
// proving the schema answers reads before the pointer flips to it.
func (v *Validator) checkReadthrough(ctx context.Context, schema, table string) *ValidationFailure {
	pk := v.g.GetPK(table)
	stmt := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT 1",
		sqlutil.QuoteMySQL(pk), sqlutil.QuoteQualified(schema, table), sqlutil.QuoteMySQL(pk))

	var first any
	err := v.dst.QueryRowContext(ctx, stmt).Scan(&first)
	if err == sql.ErrNoRows {
		// Empty tables are legitimate; emptiness is judged by row_count.
		return nil
	}
	if err != nil {
		return &ValidationFailure{Table: table, Check: "readthrough", Expected: "query answered", Observed: err.Error()}
	}
	return nil
}
