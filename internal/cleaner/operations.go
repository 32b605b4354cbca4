// Package cleaner produces a cleaned copy of the source store without ever
// mutating the original. Every operation is idempotent and auditable.
package cleaner

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/veridata/gopromote/internal/profiler"
	"github.com/veridata/gopromote/internal/sqlutil"
)

// OperationResult is the audit record of one transformation applied to one
// column. A re-run against already-cleaned data must report RowsAffected 0
// for every operation; that is the idempotency proof.
type OperationResult struct {
	Name         string `json:"name"`
	Table        string `json:"table"`
	Column       string `json:"column"`
	RowsAffected int64  `json:"rows_affected"`
	Idempotent   bool   `json:"idempotent"`
}

// Operation is a single idempotent transformation of one column, executed
// inside the cleaning transaction.
type Operation interface {
	// Name identifies the operation in audit records and configuration.
	Name() string
	// Targets reports whether the operation applies to a profiled column.
	Targets(profile *profiler.ColumnProfile) bool
	// Apply transforms the column and returns the number of rows changed.
	Apply(ctx context.Context, tx *sql.Tx, table, column string) (int64, error)
	// Validate checks the operation's post-condition after all operations
	// ran; it returns an error when un-cleaned values remain.
	Validate(ctx context.Context, tx *sql.Tx, table, column string) error
}

// registry holds the built-in operations in their fixed application order.
// Date standardization runs before empty-string conversion so a repaired
// column is in final form when post-conditions run.
func registry() *orderedmap.OrderedMap[string, Operation] {
	m := orderedmap.NewOrderedMap[string, Operation]()
	for _, op := range []Operation{
		&standardizeDates{},
		&emptyStringToNull{},
	} {
		m.Set(op.Name(), op)
	}
	return m
}

// enabledOperations resolves the configured operation names against the
// registry, preserving registry order.
func enabledOperations(names []string) ([]Operation, error) {
	enabled := make(map[string]bool, len(names))
	for _, n := range names {
		enabled[n] = true
	}

	reg := registry()
	var ops []Operation
	for el := reg.Front(); el != nil; el = el.Next() {
		if enabled[el.Key] {
			ops = append(ops, el.Value)
			delete(enabled, el.Key)
		}
	}
	for name := range enabled {
		return nil, fmt.Errorf("unknown cleaning operation %q", name)
	}
	return ops, nil
}

// PlannedTarget names one column an enabled operation would touch.
type PlannedTarget struct {
	Operation string `json:"operation"`
	Table     string `json:"table"`
	Column    string `json:"column"`
}

// PlanTargets resolves which columns the enabled operations would apply
// to, in application order, without mutating anything.
func PlanTargets(names []string, report *profiler.Report) ([]PlannedTarget, error) {
	ops, err := enabledOperations(names)
	if err != nil {
		return nil, err
	}

	var out []PlannedTarget
	for _, op := range ops {
		for _, t := range report.Tables {
			for i := range t.Columns {
				if op.Targets(&t.Columns[i]) {
					out = append(out, PlannedTarget{
						Operation: op.Name(),
						Table:     t.Table,
						Column:    t.Columns[i].Column,
					})
				}
			}
		}
	}
	return out, nil
}

// standardizeDates rewrites day-first legacy timestamps ("DD/MM/YYYY" with
// optional "H:MM", one or two digit fields) into zero-padded canonical
// "YYYY-MM-DD HH:MM:SS". Values already canonical never match a legacy
// layout, which is what makes the operation idempotent.
type standardizeDates struct{}

func (o *standardizeDates) Name() string { return "standardize_dates" }

func (o *standardizeDates) Targets(p *profiler.ColumnProfile) bool {
	return profiler.IsTemporal(p.DeclaredKind) || profiler.IsTemporal(p.InferredType)
}

func (o *standardizeDates) Apply(ctx context.Context, tx *sql.Tx, table, column string) (int64, error) {
	qt := sqlutil.QuoteSQLite(table)
	qc := sqlutil.QuoteSQLite(column)

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		"SELECT rowid, CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL AND CAST(%s AS TEXT) LIKE '%%/%%/%%'",
		qc, qt, qc, qc))
	if err != nil {
		return 0, err
	}

	type repair struct {
		rowid int64
		value string
	}
	var repairs []repair
	for rows.Next() {
		var rowid int64
		var raw string
		if err := rows.Scan(&rowid, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		if ts := profiler.ParseLegacyTimestamp(raw); ts != nil {
			repairs = append(repairs, repair{rowid: rowid, value: ts.Format("2006-01-02 15:04:05")})
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(repairs) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"UPDATE %s SET %s = ? WHERE rowid = ?", qt, qc))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var affected int64
	for _, r := range repairs {
		res, err := stmt.ExecContext(ctx, r.value, r.rowid)
		if err != nil {
			return affected, err
		}
		n, _ := res.RowsAffected()
		affected += n
	}
	return affected, nil
}

func (o *standardizeDates) Validate(ctx context.Context, tx *sql.Tx, table, column string) error {
	qt := sqlutil.QuoteSQLite(table)
	qc := sqlutil.QuoteSQLite(column)

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		"SELECT CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL AND CAST(%s AS TEXT) LIKE '%%/%%/%%'",
		qc, qt, qc, qc))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		if profiler.ParseLegacyTimestamp(raw) != nil {
			return fmt.Errorf("column %s.%s still contains legacy-format date %q", table, column, raw)
		}
	}
	return rows.Err()
}

// emptyStringToNull converts empty strings to NULL in columns whose type is
// timestamp or numeric: an empty string is not a valid value for those
// types and must not be conflated with an explicit NULL. The WHERE clause
// excludes existing NULLs, so converting twice is a no-op.
type emptyStringToNull struct{}

func (o *emptyStringToNull) Name() string { return "empty_string_to_null" }

func (o *emptyStringToNull) Targets(p *profiler.ColumnProfile) bool {
	for _, t := range []profiler.ValueType{p.DeclaredKind, p.InferredType} {
		switch t {
		case profiler.TypeTimestamp, profiler.TypeInteger, profiler.TypeFloat:
			return true
		}
	}
	return false
}

func (o *emptyStringToNull) Apply(ctx context.Context, tx *sql.Tx, table, column string) (int64, error) {
	qt := sqlutil.QuoteSQLite(table)
	qc := sqlutil.QuoteSQLite(column)

	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET %s = NULL WHERE %s IS NOT NULL AND CAST(%s AS TEXT) = ''",
		qt, qc, qc, qc))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (o *emptyStringToNull) Validate(ctx context.Context, tx *sql.Tx, table, column string) error {
	qt := sqlutil.QuoteSQLite(table)
	qc := sqlutil.QuoteSQLite(column)

	var remaining int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND CAST(%s AS TEXT) = ''",
		qt, qc, qc)).Scan(&remaining)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return fmt.Errorf("column %s.%s still contains %d empty strings", table, column, remaining)
	}
	return nil
}
