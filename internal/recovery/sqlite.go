// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

/*
sqlite.go - Database Snapshot and Integrity Check

Snapshots use SQLite's online backup API through the modernc.org/sqlite
driver. The source is opened read-only with a busy timeout so a concurrently
writing application process is never blocked for long and the copy is a
consistent point-in-time image even while pages change underneath it.

Snapshot Process:
 1. Open source read-only (busy_timeout applied)
 2. Start an online backup into the destination file
 3. Step in page batches, retrying on BUSY/LOCKED
 4. Finish, then remove the destination on any failure
*/

//nolint:staticcheck // File documentation, not package doc
package recovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/stowage/internal/logging"
	"modernc.org/sqlite"
)

const (
	driverName = "sqlite"

	// busyTimeoutMS is applied to every connection this package opens.
	busyTimeoutMS = 5000

	// pagesPerStep copies in batches so writers get the lock between steps.
	pagesPerStep = 256

	// maxBusyRetries bounds how often a single step is retried on BUSY/LOCKED.
	maxBusyRetries = 50

	busyRetryDelay = 50 * time.Millisecond

	sqliteBusy   = 5
	sqliteLocked = 6
)

// backuper is implemented by the modernc.org/sqlite driver connection.
type backuper interface {
	NewBackup(dstURI string) (*sqlite.Backup, error)
}

// readOnlyDSN builds a URI DSN that opens path read-only with a busy timeout.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Path: filepath.ToSlash(abs)}
	return fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(%d)", u.EscapedPath(), busyTimeoutMS), nil
}

// openReadOnly opens path read-only. The file must already exist; SQLite
// would otherwise create an empty database in its place.
func openReadOnly(path string) (*sql.DB, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SnapshotDatabase copies src into dst with SQLite's online backup API.
// It reports whether a complete snapshot was written; on failure any partial
// dst is removed and the cause is logged.
func SnapshotDatabase(ctx context.Context, src, dst string) bool {
	if err := snapshot(ctx, src, dst); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("source", src).
			Str("destination", dst).
			Msg("Database snapshot failed")
		removePartial(dst)
		return false
	}

	logging.Ctx(ctx).Debug().Str("source", src).Str("destination", dst).Msg("Database snapshot complete")
	return true
}

func snapshot(ctx context.Context, src, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	// A stale destination would otherwise be merged page by page.
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear snapshot destination: %w", err)
	}

	db, err := openReadOnly(src)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-only handle

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire source connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck // Returned to a pool that is closed next

	return conn.Raw(func(driverConn any) error {
		b, ok := driverConn.(backuper)
		if !ok {
			return fmt.Errorf("driver connection %T does not support online backup", driverConn)
		}

		bk, err := b.NewBackup(dst)
		if err != nil {
			return fmt.Errorf("failed to start online backup: %w", err)
		}

		stepErr := stepAll(ctx, bk)
		finishErr := bk.Finish()
		if stepErr != nil {
			return stepErr
		}
		if finishErr != nil {
			return fmt.Errorf("failed to finish online backup: %w", finishErr)
		}
		return nil
	})
}

// stepAll drives the backup to completion, retrying transient lock errors.
func stepAll(ctx context.Context, bk *sqlite.Backup) error {
	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		more, err := bk.Step(pagesPerStep)
		switch {
		case err == nil && !more:
			return nil
		case err == nil:
			retries = 0
		case isBusy(err) && retries < maxBusyRetries:
			retries++
			time.Sleep(busyRetryDelay)
		default:
			return fmt.Errorf("online backup step failed: %w", err)
		}
	}
}

func isBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code() & 0xff
	return code == sqliteBusy || code == sqliteLocked
}

func removePartial(path string) {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", p).Msg("Failed to remove partial snapshot")
		}
	}
}

// CheckIntegrity runs PRAGMA integrity_check and reports true only when the
// database explicitly reports "ok". Open or query errors, a missing file and
// an empty file all count as unhealthy.
func CheckIntegrity(ctx context.Context, path string) bool {
	healthy, err := integrityCheck(ctx, path)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("Database integrity check failed")
		return false
	}
	if !healthy {
		logging.Ctx(ctx).Warn().Str("path", path).Msg("Database integrity check reported problems")
	}
	return healthy
}

func integrityCheck(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, fmt.Errorf("%s is empty", path)
	}

	db, err := openReadOnly(path)
	if err != nil {
		return false, err
	}
	defer db.Close() //nolint:errcheck // Read-only handle

	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return false, fmt.Errorf("integrity_check: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var results []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return false, fmt.Errorf("integrity_check scan: %w", err)
		}
		results = append(results, line)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("integrity_check rows: %w", err)
	}

	return len(results) == 1 && results[0] == "ok", nil
}
