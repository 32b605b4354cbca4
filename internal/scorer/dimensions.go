package scorer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/profiler"
	"github.com/veridata/gopromote/internal/sqlutil"
)

// textIntegritySample bounds how many values per text column the text
// integrity dimension inspects.
const textIntegritySample = 5000

// schemaConformance scores the fraction of columns whose inferred type
// agrees with the declared type after cleaning.
func (s *Scorer) schemaConformance(report *profiler.Report) (float64, error) {
	cols := report.AllColumns()
	if len(cols) == 0 {
		return 0, fmt.Errorf("cleaned report has no columns")
	}
	conforming := 0
	for _, c := range cols {
		if !c.Mismatched() {
			conforming++
		}
	}
	return float64(conforming) / float64(len(cols)) * 100, nil
}

// typeCorrectness scores the mean value-level confidence across columns:
// the fraction of sampled values matching each column's inferred type.
func (s *Scorer) typeCorrectness(report *profiler.Report) (float64, error) {
	cols := report.AllColumns()
	if len(cols) == 0 {
		return 0, fmt.Errorf("cleaned report has no columns")
	}
	var sum float64
	for _, c := range cols {
		sum += c.Confidence
	}
	return sum / float64(len(cols)) * 100, nil
}

// completeness scores the fraction of non-null values across the configured
// required columns. With no required columns configured, the dimension is a
// full score rather than a penalty.
func (s *Scorer) completeness(ctx context.Context, tables []config.TableSpec) (float64, error) {
	var total, nonNull int64
	for _, t := range tables {
		for _, col := range t.Required {
			if err := sqlutil.ValidateIdentifiers(t.Name, col); err != nil {
				return 0, err
			}
			var rows, filled int64
			err := s.db.QueryRowContext(ctx, fmt.Sprintf(
				"SELECT COUNT(*), COUNT(%s) FROM %s",
				sqlutil.QuoteSQLite(col), sqlutil.QuoteSQLite(t.Name))).Scan(&rows, &filled)
			if err != nil {
				return 0, err
			}
			total += rows
			nonNull += filled
		}
	}
	if total == 0 {
		return 100, nil
	}
	return float64(nonNull) / float64(total) * 100, nil
}

// referentialIntegrity scores the fraction of foreign-key values with a
// matching parent row, across every parent/child edge in the graph.
func (s *Scorer) referentialIntegrity(ctx context.Context) (float64, error) {
	var total, matched int64
	for _, table := range s.g.AllTables() {
		node := s.g.GetNode(table)
		if node.Parent == "" {
			continue
		}
		if err := sqlutil.ValidateIdentifiers(table, node.ForeignKey, node.Parent); err != nil {
			return 0, err
		}

		parentPK := s.g.GetPK(node.Parent)
		var fkCount, orphanCount int64
		err := s.db.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT COUNT(c.%[1]s),
			        COUNT(CASE WHEN p.%[2]s IS NULL THEN 1 END)
			 FROM %[3]s c
			 LEFT JOIN %[4]s p ON c.%[1]s = p.%[2]s
			 WHERE c.%[1]s IS NOT NULL`,
			sqlutil.QuoteSQLite(node.ForeignKey),
			sqlutil.QuoteSQLite(parentPK),
			sqlutil.QuoteSQLite(table),
			sqlutil.QuoteSQLite(node.Parent))).Scan(&fkCount, &orphanCount)
		if err != nil {
			return 0, err
		}
		total += fkCount
		matched += fkCount - orphanCount
	}
	if total == 0 {
		return 100, nil
	}
	return float64(matched) / float64(total) * 100, nil
}

// businessRules scores primary-key soundness per table: keys must be
// non-null and unique. The score is the fraction of rows carrying a sound
// key, averaged over tables.
func (s *Scorer) businessRules(ctx context.Context) (float64, error) {
	tables := s.g.AllTables()
	if len(tables) == 0 {
		return 0, fmt.Errorf("no tables configured")
	}

	var sum float64
	for _, table := range tables {
		pk := s.g.GetPK(table)
		if err := sqlutil.ValidateIdentifiers(table, pk); err != nil {
			return 0, err
		}

		var rows, distinct int64
		err := s.db.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT COUNT(*), COUNT(DISTINCT %s) FROM %s",
			sqlutil.QuoteSQLite(pk), sqlutil.QuoteSQLite(table))).Scan(&rows, &distinct)
		if err != nil {
			return 0, err
		}
		if rows == 0 {
			sum += 100
			continue
		}
		// distinct counts non-null values once each; duplicated or null
		// keys both reduce it below the row count.
		sum += float64(distinct) / float64(rows) * 100
	}
	return sum / float64(len(tables)), nil
}

// textIntegrity scores the fraction of sampled text values that are valid
// UTF-8 free of replacement characters and embedded NULs.
func (s *Scorer) textIntegrity(ctx context.Context, report *profiler.Report) (float64, error) {
	var total, clean int64
	for _, c := range report.AllColumns() {
		if c.InferredType != profiler.TypeText {
			continue
		}
		if err := sqlutil.ValidateIdentifiers(c.Table, c.Column); err != nil {
			return 0, err
		}

		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
			"SELECT CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL ORDER BY rowid LIMIT %d",
			sqlutil.QuoteSQLite(c.Column), sqlutil.QuoteSQLite(c.Table),
			sqlutil.QuoteSQLite(c.Column), textIntegritySample))
		if err != nil {
			return 0, err
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return 0, err
			}
			total++
			if utf8.ValidString(v) && !strings.ContainsRune(v, '�') && !strings.ContainsRune(v, 0) {
				clean++
			}
		}
		if err := rows.Close(); err != nil {
			return 0, err
		}
		if err := rows.Err(); err != nil {
			return 0, err
		}
	}
	if total == 0 {
		return 100, nil
	}
	return float64(clean) / float64(total) * 100, nil
}
