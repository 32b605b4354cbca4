// Package lock provides MySQL advisory locking to serialize migration runs.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another run is holding the lock for the same schema family.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if the lock cannot be acquired.
	TimeoutImmediate = 0

	// TimeoutShort is suitable for fast-failing duplicate run detection.
	TimeoutShort = 1

	// TimeoutMedium provides a reasonable wait for transient conflicts.
	TimeoutMedium = 10
)

// RunLock is a MySQL advisory lock held for the duration of a migration run.
// Exactly one run may hold the lock for a given schema family, so two
// gopromote processes can never race on the same active pointer.
type RunLock struct {
	db   *sql.DB
	name string
	held bool
	conn *sql.Conn
}

// NewRunLock creates a lock scoped to the given schema family.
func NewRunLock(db *sql.DB, family string) (*RunLock, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	family = strings.TrimSpace(family)
	if family == "" {
		return nil, fmt.Errorf("schema family is required")
	}
	return &RunLock{
		db:   db,
		name: "gopromote:" + family,
	}, nil
}

// Name returns the advisory lock name.
func (l *RunLock) Name() string {
	return l.name
}

// Acquire takes the advisory lock, waiting up to timeoutSeconds. Advisory
// locks are connection-scoped, so a dedicated connection is pinned until
// Release.
func (l *RunLock) Acquire(ctx context.Context, timeoutSeconds int) error {
	if l.held {
		return nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain connection for lock: %w", err)
	}

	var got sql.NullInt64
	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", l.name, timeoutSeconds).Scan(&got)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to acquire lock %s: %w", l.name, err)
	}

	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return fmt.Errorf("%w: another run holds %s", ErrLockTimeout, l.name)
	}

	l.conn = conn
	l.held = true
	return nil
}

// Release frees the advisory lock and its pinned connection. Safe to call
// when the lock is not held.
func (l *RunLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}

	var released sql.NullInt64
	err := l.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", l.name).Scan(&released)
	closeErr := l.conn.Close()
	l.conn = nil
	l.held = false

	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.name, err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close lock connection: %w", closeErr)
	}
	return nil
}

// IsHeld reports whether this instance currently holds the lock.
func (l *RunLock) IsHeld() bool {
	return l.held
}
