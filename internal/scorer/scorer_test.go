package scorer

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/graph"
	"github.com/veridata/gopromote/internal/profiler"
)

func singleTableGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Build(&config.SchemaConfig{
		Family: "app",
		Tables: []config.TableSpec{{Name: "users", PrimaryKey: "id"}},
	})
	require.NoError(t, err)
	return g
}

func parentChildGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Build(&config.SchemaConfig{
		Family: "app",
		Tables: []config.TableSpec{
			{Name: "users", PrimaryKey: "id"},
			{Name: "orders", PrimaryKey: "id", Parent: "users", ForeignKey: "user_id"},
		},
	})
	require.NoError(t, err)
	return g
}

func reportWith(cols ...profiler.ColumnProfile) *profiler.Report {
	return &profiler.Report{
		Tables: []profiler.TableProfile{{Table: "users", Columns: cols}},
	}
}

func TestNew_Defaults(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultWeights(), s.cfg.Weights)
	assert.Equal(t, 80.0, s.cfg.MinimumScore)
}

func TestNew_NilArguments(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(nil, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	assert.Error(t, err)

	_, err = New(db, config.ScoringConfig{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestSchemaConformance(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	report := reportWith(
		profiler.ColumnProfile{Table: "users", Column: "id", DeclaredKind: profiler.TypeInteger, InferredType: profiler.TypeInteger},
		profiler.ColumnProfile{Table: "users", Column: "age", DeclaredKind: profiler.TypeText, InferredType: profiler.TypeInteger},
	)

	got, err := s.schemaConformance(report)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got)

	_, err = s.schemaConformance(&profiler.Report{})
	assert.Error(t, err, "empty report should not score")
}

func TestTypeCorrectness(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	report := reportWith(
		profiler.ColumnProfile{Table: "users", Column: "id", Confidence: 1.0},
		profiler.ColumnProfile{Table: "users", Column: "age", Confidence: 0.8},
	)

	got, err := s.typeCorrectness(report)
	require.NoError(t, err)
	assert.InDelta(t, 90.0, got, 1e-9)
}

func TestCompleteness(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\("email"\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"rows", "filled"}).AddRow(100, 90))

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	tables := []config.TableSpec{{Name: "users", Required: []string{"email"}}}
	got, err := s.completeness(context.Background(), tables)
	require.NoError(t, err)
	assert.Equal(t, 90.0, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteness_NoRequiredColumns(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	got, err := s.completeness(context.Background(), []config.TableSpec{{Name: "users"}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestCompleteness_RejectsBadIdentifier(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	tables := []config.TableSpec{{Name: "users", Required: []string{"email; DROP TABLE users"}}}
	_, err = s.completeness(context.Background(), tables)
	assert.Error(t, err)
}

func TestReferentialIntegrity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`LEFT JOIN "users" p ON c\."user_id" = p\."id"`).
		WillReturnRows(sqlmock.NewRows([]string{"fk", "orphans"}).AddRow(10, 1))

	s, err := New(db, config.ScoringConfig{}, parentChildGraph(t), nil, nil)
	require.NoError(t, err)

	got, err := s.referentialIntegrity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90.0, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferentialIntegrity_NoEdges(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	got, err := s.referentialIntegrity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, got, "a graph with no foreign keys has nothing to violate")
}

func TestBusinessRules(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// 95 distinct non-null keys over 100 rows.
	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT "id"\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"rows", "distinct"}).AddRow(100, 95))

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	got, err := s.businessRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 95.0, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusinessRules_EmptyTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT "id"\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"rows", "distinct"}).AddRow(0, 0))

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	got, err := s.businessRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestTextIntegrity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT CAST\("name" AS TEXT\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("alice").
			AddRow("bob\x00smith").
			AddRow("carol"))

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	report := reportWith(profiler.ColumnProfile{
		Table: "users", Column: "name", InferredType: profiler.TypeText,
	})

	got, err := s.textIntegrity(context.Background(), report)
	require.NoError(t, err)
	assert.InDelta(t, 200.0/3.0, got, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTextIntegrity_NoTextColumns(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	report := reportWith(profiler.ColumnProfile{
		Table: "users", Column: "id", InferredType: profiler.TypeInteger,
	})

	got, err := s.textIntegrity(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestScore_Composite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Only business_rules touches the store: no required columns, no
	// foreign keys, no text columns.
	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT "id"\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"rows", "distinct"}).AddRow(50, 50))

	s, err := New(db, config.ScoringConfig{}, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	report := reportWith(
		profiler.ColumnProfile{Table: "users", Column: "id",
			DeclaredKind: profiler.TypeInteger, InferredType: profiler.TypeInteger, Confidence: 1.0},
		profiler.ColumnProfile{Table: "users", Column: "age",
			DeclaredKind: profiler.TypeInteger, InferredType: profiler.TypeInteger, Confidence: 0.9},
	)

	score, err := s.Score(context.Background(), report, []config.TableSpec{{Name: "users"}})
	require.NoError(t, err)

	// schema 100, type 95, completeness 100, referential 100,
	// business 100, text 100 under the default weights.
	assert.Equal(t, 99.0, score.Composite)
	assert.True(t, score.GatePassed)
	assert.Equal(t, 80.0, score.MinimumScore)
	assert.Equal(t, 100.0, score.Dimensions["schema_conformance"])
	assert.InDelta(t, 95.0, score.Dimensions["type_correctness"], 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScore_GateFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT "id"\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"rows", "distinct"}).AddRow(50, 50))

	cfg := config.ScoringConfig{MinimumScore: 99.5}
	s, err := New(db, cfg, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	report := reportWith(
		profiler.ColumnProfile{Table: "users", Column: "id",
			DeclaredKind: profiler.TypeInteger, InferredType: profiler.TypeInteger, Confidence: 1.0},
		profiler.ColumnProfile{Table: "users", Column: "age",
			DeclaredKind: profiler.TypeInteger, InferredType: profiler.TypeInteger, Confidence: 0.9},
	)

	score, err := s.Score(context.Background(), report, []config.TableSpec{{Name: "users"}})
	require.NoError(t, err)
	assert.False(t, score.GatePassed)
}

func TestScore_GateBoundary(t *testing.T) {
	cases := []struct {
		name     string
		rows     int64
		distinct int64
		want     float64
		passed   bool
	}{
		{"exactly at minimum", 100, 80, 80.0, true},
		{"hundredth below minimum", 10000, 7999, 79.99, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT "id"\) FROM "users"`).
				WillReturnRows(sqlmock.NewRows([]string{"rows", "distinct"}).AddRow(tc.rows, tc.distinct))

			// All weight on business_rules so the composite equals the
			// duplicate ratio and lands exactly on the boundary.
			cfg := config.ScoringConfig{Weights: map[string]float64{"business_rules": 1.0}}
			s, err := New(db, cfg, singleTableGraph(t), nil, nil)
			require.NoError(t, err)

			report := reportWith(profiler.ColumnProfile{
				Table: "users", Column: "id",
				DeclaredKind: profiler.TypeInteger, InferredType: profiler.TypeInteger, Confidence: 1.0,
			})

			score, err := s.Score(context.Background(), report, []config.TableSpec{{Name: "users"}})
			require.NoError(t, err)
			assert.Equal(t, tc.want, score.Composite)
			assert.Equal(t, tc.passed, score.GatePassed)
			assert.Equal(t, 80.0, score.MinimumScore)
		})
	}
}

func TestScore_UnknownWeight(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT "id"\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"rows", "distinct"}).AddRow(1, 1))

	cfg := config.ScoringConfig{Weights: map[string]float64{"vibes": 1.0}}
	s, err := New(db, cfg, singleTableGraph(t), nil, nil)
	require.NoError(t, err)

	report := reportWith(profiler.ColumnProfile{
		Table: "users", Column: "id",
		DeclaredKind: profiler.TypeInteger, InferredType: profiler.TypeInteger, Confidence: 1.0,
	})

	_, err = s.Score(context.Background(), report, nil)
	assert.ErrorContains(t, err, "unknown dimension")
}

func TestGateError_Message(t *testing.T) {
	err := &GateError{Score: &Score{Composite: 72.41, MinimumScore: 80}}
	assert.Equal(t, "quality gate failed: composite 72.41 below minimum 80.00", err.Error())
}
