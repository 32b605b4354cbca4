package profiler

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/logger"
	"github.com/veridata/gopromote/internal/metrics"
	"github.com/veridata/gopromote/internal/sqlutil"
)

// SourceUnavailableError indicates the source store could not be read.
// It is fatal; retry policy belongs to the orchestrator.
type SourceUnavailableError struct {
	Table string
	Err   error
}

func (e *SourceUnavailableError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("source table %s unavailable: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("source store unavailable: %v", e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// columnMeta is one declared column from the source schema.
type columnMeta struct {
	Name         string
	DeclaredType string
}

// sampledValue is one sampled cell.
type sampledValue struct {
	Raw  string
	Null bool
}

// Profiler samples source tables and builds profiling reports. It is
// strictly read-only against the source.
type Profiler struct {
	db  *sql.DB
	cfg config.ProfilingConfig
	log *logger.Logger
	rec *metrics.Recorder
}

// New creates a profiler over the source store.
func New(db *sql.DB, cfg config.ProfilingConfig, log *logger.Logger, rec *metrics.Recorder) (*Profiler, error) {
	if db == nil {
		return nil, fmt.Errorf("source database is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 5000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Profiler{db: db, cfg: cfg, log: log, rec: rec}, nil
}

// ProfileAll profiles every named table and assembles a single report.
// Tables are profiled and reported in sorted name order so the report is
// reproducible regardless of configuration order.
func (p *Profiler) ProfileAll(ctx context.Context, tables []string) (*Report, error) {
	start := time.Now()

	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)

	report := &Report{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
	}

	for _, table := range sorted {
		tp, err := p.ProfileTable(ctx, table, nil)
		if err != nil {
			return nil, err
		}
		report.Tables = append(report.Tables, *tp)
	}

	p.rec.ObserveDuration("profiler_duration_seconds", time.Since(start))
	p.rec.SetGauge("profiler_type_mismatch_rate", report.TypeMismatchRate())

	p.log.Infow("Profiling complete",
		"tables", len(report.Tables),
		"columns", len(report.AllColumns()),
		"type_mismatch_rate", report.TypeMismatchRate(),
	)

	return report, nil
}

// ProfileTable profiles a single table. columns restricts profiling to an
// explicit subset; nil profiles every column.
func (p *Profiler) ProfileTable(ctx context.Context, table string, columns []string) (*TableProfile, error) {
	if err := sqlutil.ValidateIdentifiers(table); err != nil {
		return nil, err
	}

	schema, err := p.tableSchema(ctx, table)
	if err != nil {
		return nil, &SourceUnavailableError{Table: table, Err: err}
	}
	if len(columns) > 0 {
		schema = filterColumns(schema, columns)
		if len(schema) == 0 {
			return nil, fmt.Errorf("no requested columns exist on table %s", table)
		}
	}

	rowCount, err := p.countRows(ctx, table)
	if err != nil {
		return nil, &SourceUnavailableError{Table: table, Err: err}
	}

	samples, sampledRows, err := p.sample(ctx, table, schema, rowCount)
	if err != nil {
		return nil, &SourceUnavailableError{Table: table, Err: err}
	}

	// Fan out per-column classification. Results land in a fixed slice so
	// worker scheduling cannot affect report ordering.
	profiles := make([]ColumnProfile, len(schema))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range schema {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			profiles[i] = classifyColumn(table, schema[i], samples[schema[i].Name])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Column < profiles[j].Column })

	p.rec.IncCounter("profiler_rows_sampled_total", float64(sampledRows))

	return &TableProfile{
		Table:       table,
		RowCount:    rowCount,
		SampledRows: sampledRows,
		Columns:     profiles,
	}, nil
}

// tableSchema reads the declared columns of a table.
func (p *Profiler) tableSchema(ctx context.Context, table string) ([]columnMeta, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", sqlutil.QuoteSQLite(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []columnMeta
	for rows.Next() {
		var cid int
		var name, declared string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &declared, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, columnMeta{Name: name, DeclaredType: declared})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s has no columns or does not exist", table)
	}
	return cols, nil
}

func (p *Profiler) countRows(ctx context.Context, table string) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", sqlutil.QuoteSQLite(table))).Scan(&count)
	return count, err
}

// sample draws a deterministic uniform sample of up to SampleSize rows.
// Small tables are scanned in full; larger tables are strided over rowid so
// repeated runs against the same snapshot see the same rows.
func (p *Profiler) sample(ctx context.Context, table string, schema []columnMeta, rowCount int64) (map[string][]sampledValue, int64, error) {
	colList := ""
	for i, c := range schema {
		if i > 0 {
			colList += ", "
		}
		colList += "CAST(" + sqlutil.QuoteSQLite(c.Name) + " AS TEXT), " + sqlutil.QuoteSQLite(c.Name) + " IS NULL"
	}

	query := fmt.Sprintf("SELECT %s FROM %s", colList, sqlutil.QuoteSQLite(table))
	sampleSize := int64(p.cfg.SampleSize)
	if rowCount > sampleSize {
		stride := rowCount / sampleSize
		query += fmt.Sprintf(" WHERE (rowid %% %d) = 0", stride)
	}
	query += fmt.Sprintf(" ORDER BY rowid LIMIT %d", sampleSize)

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	samples := make(map[string][]sampledValue, len(schema))
	scan := make([]interface{}, len(schema)*2)
	raws := make([]sql.NullString, len(schema))
	nulls := make([]bool, len(schema))
	for i := range schema {
		scan[i*2] = &raws[i]
		scan[i*2+1] = &nulls[i]
	}

	var sampled int64
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, 0, err
		}
		for i, c := range schema {
			samples[c.Name] = append(samples[c.Name], sampledValue{
				Raw:  raws[i].String,
				Null: nulls[i],
			})
		}
		sampled++
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return samples, sampled, nil
}

// classifyColumn computes the profile for one column from its sample.
func classifyColumn(table string, meta columnMeta, values []sampledValue) ColumnProfile {
	profile := ColumnProfile{
		Table:        table,
		Column:       meta.Name,
		DeclaredType: meta.DeclaredType,
		DeclaredKind: DeclaredKind(meta.DeclaredType),
	}

	counts := make(map[ValueType]int)
	for _, v := range values {
		if v.Null {
			profile.NullCount++
			continue
		}
		profile.SampleSize++
		counts[Classify(v.Raw)]++
	}

	if profile.SampleSize == 0 {
		// An all-null sample carries no type evidence; trust the declaration.
		profile.InferredType = profile.DeclaredKind
		profile.Confidence = 1.0
		profile.Accepted = true
		return profile
	}

	// Modal classification, ties resolved by parser priority.
	modal := TypeText
	best := -1
	for _, t := range classificationOrder {
		if counts[t] > best {
			best = counts[t]
			modal = t
		}
	}

	profile.Confidence = float64(best) / float64(profile.SampleSize)
	profile.Accepted = profile.Confidence >= acceptConfidence

	if profile.Confidence < 0.5 {
		profile.InferredType = TypeMixed
	} else {
		profile.InferredType = modal
	}

	// Corrupt values parse as neither the declared nor the modal type.
	for _, v := range values {
		if v.Null {
			continue
		}
		if ParsesAs(v.Raw, profile.DeclaredKind) || ParsesAs(v.Raw, modal) {
			continue
		}
		profile.CorruptCount++
		if len(profile.CorruptExamples) < maxCorruptExamples {
			profile.CorruptExamples = append(profile.CorruptExamples, v.Raw)
		}
	}

	return profile
}

func filterColumns(schema []columnMeta, want []string) []columnMeta {
	wanted := make(map[string]bool, len(want))
	for _, w := range want {
		wanted[w] = true
	}
	var out []columnMeta
	for _, c := range schema {
		if wanted[c.Name] {
			out = append(out, c)
		}
	}
	return out
}
