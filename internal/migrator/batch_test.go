package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/gopromote/internal/audit"
	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/database"
	"github.com/veridata/gopromote/internal/health"
)

func TestCanaryFilter_Deterministic(t *testing.T) {
	a := CanaryFilter("run-1", "users", 0.1)
	b := CanaryFilter("run-1", "users", 0.1)

	for i := 0; i < 1000; i++ {
		pk := fmt.Sprintf("%d", i)
		assert.Equal(t, a(pk), b(pk), "pk %s", pk)
	}
}

func TestCanaryFilter_RateExtremes(t *testing.T) {
	none := CanaryFilter("run-1", "users", 0)
	all := CanaryFilter("run-1", "users", 1)

	for i := 0; i < 1000; i++ {
		pk := fmt.Sprintf("%d", i)
		assert.False(t, none(pk))
		assert.True(t, all(pk))
	}
}

func TestCanaryFilter_ApproximatesRate(t *testing.T) {
	filter := CanaryFilter("run-1", "users", 0.1)

	sampled := 0
	const n = 5000
	for i := 0; i < n; i++ {
		if filter(fmt.Sprintf("%d", i)) {
			sampled++
		}
	}
	assert.InDelta(t, 0.1, float64(sampled)/n, 0.02)
}

func TestCanaryFilter_VariesByRunAndTable(t *testing.T) {
	base := CanaryFilter("run-1", "users", 0.5)
	otherRun := CanaryFilter("run-2", "users", 0.5)
	otherTable := CanaryFilter("run-1", "orders", 0.5)

	sameRun, sameTable := true, true
	for i := 0; i < 200; i++ {
		pk := fmt.Sprintf("%d", i)
		if base(pk) != otherRun(pk) {
			sameRun = false
		}
		if base(pk) != otherTable(pk) {
			sameTable = false
		}
	}
	assert.False(t, sameRun, "different runs should sample different subsets")
	assert.False(t, sameTable, "different tables should sample different subsets")
}

func TestBuildBatchSelect(t *testing.T) {
	got := buildBatchSelect("users", []string{"id", "email"})
	assert.Equal(t,
		`SELECT rowid, "id", "email" FROM "users" WHERE rowid > ? ORDER BY rowid LIMIT ?`,
		got)
}

func TestBuildInsertPrefix(t *testing.T) {
	got := buildInsertPrefix("app_v20240315120000", "users", []string{"id", "email"})
	assert.Equal(t,
		"INSERT INTO `app_v20240315120000`.`users` (`id`, `email`) VALUES ",
		got)
}

func TestHealthCadence(t *testing.T) {
	c := healthCadence{every: 100}
	assert.True(t, c.due(0), "first call is always due")
	assert.False(t, c.due(40))
	assert.True(t, c.due(60))
	assert.False(t, c.due(99))
	assert.True(t, c.due(1))

	always := healthCadence{}
	assert.True(t, always.due(0))
	assert.True(t, always.due(500))
}

// newTestCopier pairs a real SQLite source holding three users rows with a
// mocked destination so batch boundaries and checkpoint writes can be
// asserted exactly.
func newTestCopier(t *testing.T, checker *health.Checker) (*Copier, sqlmock.Sqlmock) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "source.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	src, err := database.OpenSQLite(context.Background(), path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	_, err = src.Exec("CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT)")
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err = src.Exec("INSERT INTO users (id, email) VALUES (?, ?)", i, fmt.Sprintf("u%d@example.com", i))
		require.NoError(t, err)
	}

	dst, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dst.Close() })

	store, err := audit.NewStore(dst, "gopromote_meta", nil)
	require.NoError(t, err)

	cfg := config.MigrationConfig{BatchSize: 10, BatchTimeoutSecs: 30}
	return NewCopier(src, dst, store, cfg, nil, nil, checker), mock
}

func TestCopyTable_FullCopy(t *testing.T) {
	copier, mock := newTestCopier(t, nil)

	mock.ExpectQuery("SELECT last_rowid, rows_copied FROM `gopromote_meta`.`migration_checkpoint`").
		WithArgs("run-1", "users").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `app_v20240315120000`.`users` \\(`id`, `email`\\) VALUES").
		WithArgs(int64(1), "u1@example.com", int64(2), "u2@example.com", int64(3), "u3@example.com").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO `gopromote_meta`.`migration_checkpoint`").
		WithArgs("run-1", "users", int64(3), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := copier.CopyTable(context.Background(), "run-1", "users", "id",
		[]string{"id", "email"}, "app_v20240315120000", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyTable_ResumesFromCheckpoint(t *testing.T) {
	copier, mock := newTestCopier(t, nil)

	mock.ExpectQuery("SELECT last_rowid, rows_copied FROM `gopromote_meta`.`migration_checkpoint`").
		WithArgs("run-1", "users").
		WillReturnRows(sqlmock.NewRows([]string{"last_rowid", "rows_copied"}).AddRow(2, 2))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `app_v20240315120000`.`users` \\(`id`, `email`\\) VALUES").
		WithArgs(int64(3), "u3@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO `gopromote_meta`.`migration_checkpoint`").
		WithArgs("run-1", "users", int64(3), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := copier.CopyTable(context.Background(), "run-1", "users", "id",
		[]string{"id", "email"}, "app_v20240315120000", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "total includes rows copied before the restart")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyTable_HealthFailureStopsBeforeWriting(t *testing.T) {
	checker := health.NewChecker(config.HealthConfig{
		MinFreeDiskGB: 1e9,
		MaxMemoryPct:  100,
		CheckEvery:    10000,
	}, t.TempDir())
	copier, mock := newTestCopier(t, checker)

	mock.ExpectQuery("SELECT last_rowid, rows_copied FROM `gopromote_meta`.`migration_checkpoint`").
		WithArgs("run-1", "users").
		WillReturnError(sql.ErrNoRows)

	_, err := copier.CopyTable(context.Background(), "run-1", "users", "id",
		[]string{"id", "email"}, "app_v20240315120000", 3, nil)
	require.Error(t, err)

	var herr *health.Error
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "disk_free_gb", herr.Check)
	assert.NoError(t, mock.ExpectationsWereMet(), "no destination write may happen after a failed check")
}

func TestCopyTable_FilterSkipsWriteButCheckpoints(t *testing.T) {
	copier, mock := newTestCopier(t, nil)

	mock.ExpectQuery("SELECT last_rowid, rows_copied FROM `gopromote_meta`.`migration_checkpoint`").
		WithArgs("run-1", "users").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO `gopromote_meta`.`migration_checkpoint`").
		WithArgs("run-1", "users", int64(3), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := copier.CopyTable(context.Background(), "run-1", "users", "id",
		[]string{"id", "email"}, "app_v20240315120000", 3, func(string) bool { return false })
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
