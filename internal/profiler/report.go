package profiler

import (
	"fmt"
	"time"
)

// acceptConfidence is the minimum fraction of a sample that must match the
// modal type before the inferred type is accepted.
const acceptConfidence = 0.95

// maxCorruptExamples bounds how many corrupt values a profile retains for
// diagnostics.
const maxCorruptExamples = 10

// ColumnProfile captures what the profiler observed for a single column.
type ColumnProfile struct {
	Table           string    `json:"table"`
	Column          string    `json:"column"`
	DeclaredType    string    `json:"declared_type"`
	DeclaredKind    ValueType `json:"declared_kind"`
	SampleSize      int       `json:"sample_size"` // non-null sampled values
	NullCount       int       `json:"null_count"`
	InferredType    ValueType `json:"inferred_type"`
	Confidence      float64   `json:"confidence"` // fraction of sample matching inferred type
	Accepted        bool      `json:"accepted"`   // confidence >= 0.95
	CorruptCount    int       `json:"corrupt_count"`
	CorruptExamples []string  `json:"corrupt_examples,omitempty"`
}

// Mismatched reports whether the declared type disagrees with the inferred
// type. Mixed columns always count as mismatched against a concrete
// declared type.
func (cp *ColumnProfile) Mismatched() bool {
	return cp.DeclaredKind != cp.InferredType
}

// CorruptRate returns the fraction of the non-null sample that parses as
// neither the declared nor the inferred type.
func (cp *ColumnProfile) CorruptRate() float64 {
	if cp.SampleSize == 0 {
		return 0
	}
	return float64(cp.CorruptCount) / float64(cp.SampleSize)
}

// TableProfile aggregates the column profiles of one table.
type TableProfile struct {
	Table       string          `json:"table"`
	RowCount    int64           `json:"row_count"`
	SampledRows int64           `json:"sampled_rows"`
	Columns     []ColumnProfile `json:"columns"` // sorted by column name
}

// Report is the immutable result of one profiling invocation across all
// configured tables.
type Report struct {
	ID          string         `json:"id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Tables      []TableProfile `json:"tables"` // sorted by table name
}

// AllColumns returns every column profile in the report, tables in report
// order, columns in name order.
func (r *Report) AllColumns() []ColumnProfile {
	var out []ColumnProfile
	for _, t := range r.Tables {
		out = append(out, t.Columns...)
	}
	return out
}

// TypeMismatchRate returns the pipeline-wide mismatch rate: the sum of
// confidences of mismatched columns over the number of sampled columns.
// Weighting by confidence keeps a barely-inferred mismatch from counting
// the same as a certain one.
func (r *Report) TypeMismatchRate() float64 {
	cols := r.AllColumns()
	if len(cols) == 0 {
		return 0
	}
	var weighted float64
	for _, c := range cols {
		if c.Mismatched() {
			weighted += c.Confidence
		}
	}
	return weighted / float64(len(cols))
}

// WorstCorruptDateRate returns the highest corrupt-value rate among columns
// whose declared or inferred type is temporal, together with the column it
// was observed on. Returns rate 0 and empty column when no temporal columns
// exist.
func (r *Report) WorstCorruptDateRate() (float64, string) {
	var worst float64
	var worstCol string
	for _, c := range r.AllColumns() {
		if !IsTemporal(c.DeclaredKind) && !IsTemporal(c.InferredType) {
			continue
		}
		if rate := c.CorruptRate(); rate > worst || worstCol == "" {
			worst = rate
			worstCol = fmt.Sprintf("%s.%s", c.Table, c.Column)
		}
	}
	return worst, worstCol
}

// FindColumn returns the profile for table.column, or nil.
func (r *Report) FindColumn(table, column string) *ColumnProfile {
	for i := range r.Tables {
		if r.Tables[i].Table != table {
			continue
		}
		for j := range r.Tables[i].Columns {
			if r.Tables[i].Columns[j].Column == column {
				return &r.Tables[i].Columns[j]
			}
		}
	}
	return nil
}
