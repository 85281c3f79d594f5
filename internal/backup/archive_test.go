// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/tomtom215/stowage/internal/recovery"
)

func TestCreateBackup(t *testing.T) {
	root := newConfigTree(t, 20)
	writeFile(t, filepath.Join(root, testDBFile+"-wal"), "stale wal")
	writeFile(t, filepath.Join(root, "pre-restore-20260101T000000Z.db"), "old snapshot")
	backupsDir := filepath.Join(t.TempDir(), "backups")

	rec := &fakeRecorder{}
	a := newTestArchiver(afero.NewOsFs(), rec, "abc123")

	archive, err := a.CreateBackup(context.Background(), root, backupsDir, "")
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}

	nameRe := regexp.MustCompile(`^stowage-backup-\d{8}T\d{6}Z\.zip$`)
	if !nameRe.MatchString(archive.Name) {
		t.Errorf("archive name = %q, want %s", archive.Name, nameRe)
	}
	if archive.Size == 0 || archive.Size != fileSize(t, archive.Path) {
		t.Errorf("archive.Size = %d, file size = %d", archive.Size, fileSize(t, archive.Path))
	}

	wantFiles := []string{"app.yaml", "nested/plugins/a.conf", "db/stowage.db", "z-last.txt"}
	if !reflect.DeepEqual(archive.Files, wantFiles) {
		t.Errorf("archive.Files = %v, want %v", archive.Files, wantFiles)
	}

	members := zipMembers(t, archive.Path)
	for _, name := range []string{"metadata.txt", "backup_meta.json", "db/stowage.db", "app.yaml"} {
		if _, ok := members[name]; !ok {
			t.Errorf("archive missing member %s", name)
		}
	}
	for _, name := range []string{"stowage.db", "stowage.db-wal", "pre-restore-20260101T000000Z.db"} {
		if _, ok := members[name]; ok {
			t.Errorf("archive should not contain %s", name)
		}
	}
	if members["app.yaml"] != "server:\n  port: 8080\n" {
		t.Errorf("app.yaml content = %q", members["app.yaml"])
	}

	var meta recovery.BackupMeta
	if err := json.Unmarshal([]byte(members["backup_meta.json"]), &meta); err != nil {
		t.Fatalf("decode backup_meta.json: %v", err)
	}
	if meta.Revision() != "abc123" {
		t.Errorf("schema_revision = %q, want abc123", meta.Revision())
	}
	if meta.AppVersion != "1.2.0" {
		t.Errorf("app_version = %q, want 1.2.0", meta.AppVersion)
	}
	if _, err := time.Parse(time.RFC3339, meta.Created); err != nil {
		t.Errorf("created %q is not RFC 3339: %v", meta.Created, err)
	}

	if !strings.Contains(members["metadata.txt"], "Database: db/stowage.db") {
		t.Errorf("metadata.txt missing database line:\n%s", members["metadata.txt"])
	}

	if len(rec.created) != 1 || !rec.created[0].success || rec.created[0].path != archive.Path {
		t.Errorf("recorder created calls = %+v", rec.created)
	}
	assertNoTempFiles(t, backupsDir)
}

func TestCreateBackup_DatabaseSnapshotRestorable(t *testing.T) {
	root := newConfigTree(t, 40)
	backupsDir := t.TempDir()

	archive, err := newTestArchiver(afero.NewOsFs(), nil, "").CreateBackup(context.Background(), root, backupsDir, "")
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "extracted.db")
	writeFile(t, dbPath, zipMembers(t, archive.Path)["db/stowage.db"])

	if !recovery.CheckIntegrity(context.Background(), dbPath) {
		t.Fatal("snapshot in archive failed integrity check")
	}
	if got := countRows(t, dbPath); got != 40 {
		t.Errorf("rows in archived database = %d, want 40", got)
	}
}

func TestCreateBackup_MissingConfigRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	backupsDir := filepath.Join(t.TempDir(), "backups")
	rec := &fakeRecorder{}
	a := newTestArchiver(afero.NewOsFs(), rec, "abc123")

	t.Run("empty prefix is a precondition error", func(t *testing.T) {
		archive, err := a.CreateBackup(context.Background(), missing, backupsDir, "")
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("error = %v, want ErrPrecondition", err)
		}
		var perr *PreconditionError
		if !errors.As(err, &perr) || perr.Path != missing {
			t.Errorf("error = %#v, want PreconditionError for %s", err, missing)
		}
		if archive != nil {
			t.Errorf("archive = %+v, want nil", archive)
		}
	})

	t.Run("prefix produces metadata-only archive", func(t *testing.T) {
		archive, err := a.CreateBackup(context.Background(), missing, backupsDir, "pre-")
		if err != nil {
			t.Fatalf("CreateBackup() error = %v", err)
		}
		if !strings.HasPrefix(archive.Name, "pre-stowage-backup-") {
			t.Errorf("archive name = %q", archive.Name)
		}
		members := zipMembers(t, archive.Path)
		if len(members) != 1 {
			t.Errorf("members = %v, want only metadata.txt", keys(members))
		}
		if _, ok := members["metadata.txt"]; !ok {
			t.Error("metadata.txt missing")
		}
	})
}

func TestCreateBackup_SnapshotFailure(t *testing.T) {
	root := newConfigTree(t, 5)
	backupsDir := filepath.Join(t.TempDir(), "backups")
	rec := &fakeRecorder{}

	a := newTestArchiver(afero.NewOsFs(), rec, "")
	a.snapshot = func(context.Context, string, string) bool { return false }

	archive, err := a.CreateBackup(context.Background(), root, backupsDir, "")
	if !errors.Is(err, ErrArchiveIO) {
		t.Fatalf("error = %v, want ErrArchiveIO", err)
	}
	if errors.Is(err, ErrPrecondition) {
		t.Error("snapshot failure must not be a precondition error")
	}
	if archive != nil {
		t.Errorf("archive = %+v, want nil", archive)
	}

	entries, readErr := os.ReadDir(backupsDir)
	if readErr != nil {
		t.Fatalf("read backups dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("backups dir should be empty, found %d entries", len(entries))
	}
	if len(rec.created) != 1 || rec.created[0].success {
		t.Errorf("recorder created calls = %+v, want one failure", rec.created)
	}
}

func TestCreateBackup_NameCollision(t *testing.T) {
	root := newConfigTree(t, -1)
	backupsDir := t.TempDir()

	a := newTestArchiver(afero.NewOsFs(), nil, "")
	a.now = fixedClock(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC))

	first, err := a.CreateBackup(context.Background(), root, backupsDir, "")
	if err != nil {
		t.Fatalf("first CreateBackup() error = %v", err)
	}
	second, err := a.CreateBackup(context.Background(), root, backupsDir, "")
	if err != nil {
		t.Fatalf("second CreateBackup() error = %v", err)
	}

	if first.Name != "stowage-backup-20260301T020000Z.zip" {
		t.Errorf("first name = %q", first.Name)
	}
	if second.Name != "stowage-backup-20260301T020000Z-1.zip" {
		t.Errorf("second name = %q", second.Name)
	}
}

func TestCreateBackup_BackupsDirInsideRoot(t *testing.T) {
	root := newConfigTree(t, -1)
	backupsDir := filepath.Join(root, "backups")
	writeFile(t, filepath.Join(backupsDir, "older.zip"), "not really a zip")

	archive, err := newTestArchiver(afero.NewOsFs(), nil, "").CreateBackup(context.Background(), root, backupsDir, "")
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	for _, f := range archive.Files {
		if strings.HasPrefix(f, "backups/") {
			t.Errorf("archive contains backups directory member %s", f)
		}
	}
}

func TestCreateBackup_RelativeBackupsDirInsideRoot(t *testing.T) {
	root := newConfigTree(t, -1)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(root); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	a := newTestArchiver(afero.NewOsFs(), nil, "")

	first, err := a.CreateBackup(context.Background(), root, "backups", "")
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	second, err := a.CreateBackup(context.Background(), root, "backups", "")
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	if !reflect.DeepEqual(first.Files, second.Files) {
		t.Errorf("second archive files = %v, want %v", second.Files, first.Files)
	}
	for _, f := range second.Files {
		if strings.HasPrefix(f, "backups/") {
			t.Errorf("archive contains earlier archive %s", f)
		}
	}
}

func TestWithinDir(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dir  string
		path string
		want bool
	}{
		{"same directory", "/config", "/config", true},
		{"nested", "/config", "/config/backups/a.zip", true},
		{"sibling with shared prefix", "/config", "/config-old/a.zip", false},
		{"parent", "/config/backups", "/config", false},
		{"relative inside absolute", cwd, "backups", true},
		{"absolute inside relative", ".", filepath.Join(cwd, "backups", "a.zip"), true},
		{"relative outside", "backups", "other", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinDir(tt.dir, tt.path); got != tt.want {
				t.Errorf("withinDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
			}
		})
	}

	if !sameDir(cwd, ".") || sameDir(cwd, "backups") {
		t.Error("sameDir does not resolve relative paths")
	}
}

func TestCreateBackup_NoDatabase(t *testing.T) {
	root := newConfigTree(t, -1)

	archive, err := newTestArchiver(afero.NewOsFs(), nil, "").CreateBackup(context.Background(), root, t.TempDir(), "auto-")
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	members := zipMembers(t, archive.Path)
	if _, ok := members["db/stowage.db"]; ok {
		t.Error("archive has a database member without a database")
	}
	if !strings.Contains(members["metadata.txt"], "Database: none") {
		t.Errorf("metadata.txt:\n%s", members["metadata.txt"])
	}
	if meta := recovery.ReadBackupMeta(archive.Path); meta == nil || meta.SchemaRevision != nil {
		t.Errorf("meta = %+v, want null schema_revision", meta)
	}
}

func TestCreateBackup_CanceledContext(t *testing.T) {
	root := newConfigTree(t, -1)
	backupsDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestArchiver(afero.NewOsFs(), nil, "").CreateBackup(ctx, root, backupsDir, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	assertNoTempFiles(t, backupsDir)
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.Size()
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
