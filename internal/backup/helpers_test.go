// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"archive/zip"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const (
	testAppName = "stowage"
	testDBFile  = "stowage.db"
)

// createTestDB writes a SQLite database holding rows entries.
func createTestDB(t *testing.T, path string, rows int) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS items (id INTEGER PRIMARY KEY, payload TEXT NOT NULL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	insertRows(t, db, rows)
}

// addRows appends n rows to an existing test database.
func addRows(t *testing.T, path string, n int) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()
	insertRows(t, db, n)
}

func insertRows(t *testing.T, db *sql.DB, n int) {
	t.Helper()

	payload := strings.Repeat("p", 512)
	for i := 0; i < n; i++ {
		if _, err := db.Exec("INSERT INTO items (payload) VALUES (?)", payload); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func countRows(t *testing.T, path string) int {
	t.Helper()

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n); err != nil {
		t.Fatalf("count rows in %s: %v", path, err)
	}
	return n
}

// writeFile creates path (and its parents) with content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// newConfigTree builds a config root with a few files and a database of
// dbRows rows.
func newConfigTree(t *testing.T, dbRows int) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "config")
	writeFile(t, filepath.Join(root, "app.yaml"), "server:\n  port: 8080\n")
	writeFile(t, filepath.Join(root, "nested", "plugins", "a.conf"), "enabled=true\n")
	writeFile(t, filepath.Join(root, "z-last.txt"), "last\n")
	if dbRows >= 0 {
		createTestDB(t, filepath.Join(root, testDBFile), dbRows)
	}
	return root
}

func newTestArchiver(fs afero.Fs, rec Recorder, head string) *Archiver {
	return NewArchiver(fs, ArchiverConfig{
		AppName:          testAppName,
		AppVersion:       "1.2.0",
		DatabaseFile:     testDBFile,
		CompressionLevel: 6,
		SchemaHead:       func() string { return head },
	}, rec)
}

// writeZipFs creates a zip archive on fs containing the given members.
func writeZipFs(t *testing.T, fs afero.Fs, path string, members map[string]string) {
	t.Helper()

	if err := fs.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}
}

// zipMembers returns the member names and contents of the archive at path.
func zipMembers(t *testing.T, path string) map[string]string {
	t.Helper()

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip %s: %v", path, err)
	}
	defer zr.Close()

	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open member %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read member %s: %v", f.Name, err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func setMtime(t *testing.T, fs afero.Fs, path string, mtime time.Time) {
	t.Helper()

	if err := fs.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// fakeRecorder captures every Recorder call.
type fakeRecorder struct {
	mu        sync.Mutex
	created   []createdCall
	restored  []restoredCall
	snapshots []string
	pruned    [][2]int
}

type createdCall struct {
	success bool
	path    string
	size    int64
}

type restoredCall struct {
	success          bool
	backupPath       string
	rollbackExecuted bool
	message          string
}

func (f *fakeRecorder) RecordBackupCreated(success bool, path string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, createdCall{success, path, size})
}

func (f *fakeRecorder) RecordBackupRestored(success bool, backupPath string, rollbackExecuted bool, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, restoredCall{success, backupPath, rollbackExecuted, message})
}

func (f *fakeRecorder) RecordPreRestoreSnapshot(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, path)
}

func (f *fakeRecorder) RecordPruned(deleted, failed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = append(f.pruned, [2]int{deleted, failed})
}
