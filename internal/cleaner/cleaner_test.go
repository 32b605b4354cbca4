package cleaner

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/gopromote/internal/config"
	"github.com/veridata/gopromote/internal/database"
	"github.com/veridata/gopromote/internal/profiler"
)

func TestCleanedPath(t *testing.T) {
	tests := []struct {
		name     string
		workDir  string
		source   string
		runID    string
		expected string
	}{
		{
			name:     "work dir set",
			workDir:  "/tmp/work",
			source:   "/data/legacy.db",
			runID:    "run1",
			expected: "/tmp/work/legacy.db.cleaned.run1",
		},
		{
			name:     "defaults to source directory",
			workDir:  "",
			source:   "/data/legacy.db",
			runID:    "run2",
			expected: "/data/legacy.db.cleaned.run2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(config.CleaningConfig{WorkDir: tt.workDir}, nil, nil, nil)
			assert.Equal(t, tt.expected, c.CleanedPath(tt.source, tt.runID))
		})
	}
}

func profileStore(t *testing.T, path string) *profiler.Report {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), path, true)
	require.NoError(t, err)
	defer db.Close()

	p, err := profiler.New(db, config.ProfilingConfig{}, nil, nil)
	require.NoError(t, err)
	report, err := p.ProfileAll(context.Background(), []string{"tickets"})
	require.NoError(t, err)
	return report
}

func fileDigest(t *testing.T, path string) [sha256.Size]byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return sha256.Sum256(b)
}

func TestClean_RepairsAndIsIdempotent(t *testing.T) {
	srcPath := filepath.Join(t.TempDir(), "legacy.db")
	require.NoError(t, os.WriteFile(srcPath, nil, 0o644))

	src, err := database.OpenSQLite(context.Background(), srcPath, false)
	require.NoError(t, err)
	_, err = src.Exec("CREATE TABLE tickets (id INTEGER PRIMARY KEY, opened_at TIMESTAMP)")
	require.NoError(t, err)
	_, err = src.Exec(`INSERT INTO tickets (id, opened_at) VALUES
		(1, '2024-01-15 09:30:00'),
		(2, '3/4/2024 7:08'),
		(3, '')`)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	before := fileDigest(t, srcPath)
	report := profileStore(t, srcPath)

	c := New(config.CleaningConfig{
		WorkDir:    t.TempDir(),
		Operations: []string{"standardize_dates", "empty_string_to_null"},
	}, nil, nil, nil)

	result, err := c.Clean(context.Background(), srcPath, report, "run-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Discard(result.CleanedPath) })

	affected := map[string]int64{}
	for _, op := range result.Operations {
		affected[op.Name] += op.RowsAffected
	}
	assert.Equal(t, int64(1), affected["standardize_dates"], "one legacy date to repair")
	assert.Equal(t, int64(1), affected["empty_string_to_null"], "one empty string to null out")

	cleaned, err := database.OpenSQLite(context.Background(), result.CleanedPath, true)
	require.NoError(t, err)
	defer cleaned.Close()

	// Day-first "3/4/2024 7:08" canonicalizes to April 3rd, zero padded.
	var repaired string
	require.NoError(t, cleaned.QueryRow("SELECT opened_at FROM tickets WHERE id = 2").Scan(&repaired))
	assert.Equal(t, "2024-04-03 07:08:00", repaired)

	var nulls int
	require.NoError(t, cleaned.QueryRow("SELECT COUNT(*) FROM tickets WHERE opened_at IS NULL").Scan(&nulls))
	assert.Equal(t, 1, nulls)

	assert.Equal(t, before, fileDigest(t, srcPath), "source store bytes must be untouched")

	// Cleaning the cleaned artifact again finds nothing left to change.
	rerun, err := c.Clean(context.Background(), result.CleanedPath, profileStore(t, result.CleanedPath), "run-b")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Discard(rerun.CleanedPath) })

	assert.Zero(t, rerun.RowsAffected())
	for _, op := range rerun.Operations {
		assert.Zero(t, op.RowsAffected, op.Name)
	}
}

func TestClean_UnknownOperationFailsBeforeCopy(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "legacy.db")
	require.NoError(t, os.WriteFile(source, []byte("not inspected"), 0o644))

	c := New(config.CleaningConfig{WorkDir: dir, Operations: []string{"bogus"}}, nil, nil, nil)
	_, err := c.Clean(context.Background(), source, nil, "run1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")

	// No artifact was created.
	_, statErr := os.Stat(c.CleanedPath(source, "run1"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDiscard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c := New(config.CleaningConfig{}, nil, nil, nil)
	require.NoError(t, c.Discard(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Discarding an already-removed artifact is not an error.
	assert.NoError(t, c.Discard(path))
}

func TestTransactionError(t *testing.T) {
	inner := errors.New("disk full")
	err := &TransactionError{Op: "standardize_dates", Err: inner}

	assert.Contains(t, err.Error(), "standardize_dates")
	assert.ErrorIs(t, err, inner)
}

func TestResult_RowsAffected(t *testing.T) {
	r := &Result{
		Operations: []OperationResult{
			{Name: "standardize_dates", RowsAffected: 40},
			{Name: "empty_string_to_null", RowsAffected: 2},
		},
		StartedAt:  time.Now().Add(-time.Second),
		FinishedAt: time.Now(),
	}
	assert.Equal(t, int64(42), r.RowsAffected())

	empty := &Result{}
	assert.Equal(t, int64(0), empty.RowsAffected())
}
