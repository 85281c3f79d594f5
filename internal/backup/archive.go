// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

/*
archive.go - Backup Archive Creation

This file creates zip archives of a configuration tree.

Archive Structure:

	{prefix}{app}-backup-{YYYYMMDDThhmmssZ}.zip
	├── db/
	│   └── stowage.db        (online-backup snapshot of the live database)
	├── <relative paths>      (every other regular file, lexicographic order)
	├── backup_meta.json      (created, app_version, schema_revision, files)
	└── metadata.txt          (human readable summary)

Archive Creation Process:
 1. Collect regular files under the config root (sorted by relative path)
 2. Write members into a hidden temp file inside the backups directory
 3. Capture the database through the online backup API, never a raw copy
 4. Add backup_meta.json and metadata.txt as final entries
 5. Sync, close and rename the temp file to its final name

Readers only ever see complete archives because the final name appears in a
single rename. A cross-device rename falls back to copy and delete.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"
	"github.com/tomtom215/stowage/internal/logging"
	"github.com/tomtom215/stowage/internal/recovery"
)

// ArchiverConfig configures an Archiver.
type ArchiverConfig struct {
	// AppName is embedded in every archive name.
	AppName string

	// AppVersion is recorded in backup_meta.json.
	AppVersion string

	// DatabaseFile is the database path relative to the config root. Empty
	// disables database handling.
	DatabaseFile string

	// CompressionLevel is the deflate level (-1 default, 0 store, 1-9).
	CompressionLevel int

	// SchemaHead returns the live migration head, "" when unknown.
	SchemaHead func() string
}

// Archiver creates backup archives. Database snapshots are taken through
// SQLite on the host filesystem, so fs must be OS backed whenever the
// config tree contains a database.
type Archiver struct {
	fs       afero.Fs
	cfg      ArchiverConfig
	recorder Recorder

	now      func() time.Time
	snapshot func(ctx context.Context, src, dst string) bool
}

// NewArchiver creates an Archiver. recorder may be nil.
func NewArchiver(fs afero.Fs, cfg ArchiverConfig, recorder Recorder) *Archiver {
	return &Archiver{
		fs:       fs,
		cfg:      cfg,
		recorder: recorderOrNop(recorder),
		now:      time.Now,
		snapshot: recovery.SnapshotDatabase,
	}
}

// sourceFile is one regular file selected for archiving.
type sourceFile struct {
	rel     string // slash separated, relative to the config root
	abs     string
	size    int64
	modTime time.Time
	isDB    bool
}

// CreateBackup archives configRoot into backupsDir.
//
// A missing configRoot with an empty prefix is a *PreconditionError. With a
// prefix the call still succeeds and produces a metadata-only archive, which
// lets automated pre-upgrade backups run on a fresh install. Write failures
// are returned wrapped in ErrArchiveIO and leave no temp file behind.
func (a *Archiver) CreateBackup(ctx context.Context, configRoot, backupsDir, prefix string) (*Archive, error) {
	log := logging.Ctx(ctx)

	rootExists := dirExists(a.fs, configRoot)
	if !rootExists && prefix == "" {
		return nil, preconditionf("create backup", configRoot, "config root does not exist")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := a.now()
	archive, err := a.createArchive(ctx, configRoot, backupsDir, prefix, rootExists)
	if err != nil {
		log.Error().Err(err).
			Str("config_root", configRoot).
			Str("backups_dir", backupsDir).
			Msg("Backup failed")
		a.recorder.RecordBackupCreated(false, "", 0)
		return nil, err
	}

	log.Info().
		Str("archive", archive.Name).
		Int64("size", archive.Size).
		Int("files", len(archive.Files)).
		Dur("duration", a.now().Sub(start)).
		Msg("Backup created")
	a.recorder.RecordBackupCreated(true, archive.Path, archive.Size)
	return archive, nil
}

func (a *Archiver) createArchive(ctx context.Context, configRoot, backupsDir, prefix string, rootExists bool) (archive *Archive, err error) {
	if err := a.fs.MkdirAll(backupsDir, 0o750); err != nil {
		return nil, archiveIOError("create backups directory", err)
	}

	var files []sourceFile
	if rootExists {
		files, err = a.collectFiles(configRoot, backupsDir)
		if err != nil {
			return nil, archiveIOError("walk config root", err)
		}
	} else {
		logging.Warn().Str("config_root", configRoot).Str("prefix", prefix).
			Msg("Config root missing, writing metadata-only archive")
	}

	tmp, err := afero.TempFile(a.fs, backupsDir, "."+a.cfg.AppName+"-*.zip.tmp")
	if err != nil {
		return nil, archiveIOError("create temp file", err)
	}
	tmpPath := tmp.Name()
	tmpOpen := true
	committed := false
	defer func() {
		if tmpOpen {
			tmp.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		}
		if !committed {
			a.fs.Remove(tmpPath) //nolint:errcheck,gosec // Best effort cleanup on error
		}
	}()

	created := a.now().UTC()
	members, err := a.writeArchive(ctx, tmp, configRoot, files, created, rootExists)
	if err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, archiveIOError("sync archive", err)
	}
	tmpOpen = false
	if err := tmp.Close(); err != nil {
		return nil, archiveIOError("close archive", err)
	}

	name := uniqueName(ArchiveName(prefix, a.cfg.AppName, created), func(n string) bool {
		_, statErr := a.fs.Stat(filepath.Join(backupsDir, n))
		return statErr == nil
	})
	finalPath := filepath.Join(backupsDir, name)
	if err := moveFile(a.fs, tmpPath, finalPath); err != nil {
		return nil, archiveIOError("rename archive", err)
	}
	committed = true

	archive = &Archive{
		Name:      name,
		Path:      finalPath,
		CreatedAt: created,
		Prefix:    prefix,
		Files:     members,
	}
	if info, statErr := a.fs.Stat(finalPath); statErr == nil {
		archive.Size = info.Size()
		archive.ModTime = info.ModTime()
	}
	return archive, nil
}

// collectFiles returns every regular file under root in lexicographic
// relative-path order. The backups directory, pre-restore snapshots and the
// database's sidecar files are excluded.
func (a *Archiver) collectFiles(root, backupsDir string) ([]sourceFile, error) {
	dbRel := ""
	if a.cfg.DatabaseFile != "" {
		dbRel = filepath.ToSlash(filepath.Clean(a.cfg.DatabaseFile))
	}
	flat := sameDir(root, backupsDir)
	backupsInside := !flat && withinDir(root, backupsDir)

	var files []sourceFile
	err := afero.Walk(a.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if backupsInside && p != root && withinDir(backupsDir, p) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case rel == dbRel:
			files = append(files, sourceFile{rel: rel, abs: p, size: info.Size(), modTime: info.ModTime(), isDB: true})
			return nil
		case dbRel != "" && path.Dir(rel) == path.Dir(dbRel) && isSidecarOf(path.Base(rel), path.Base(dbRel)):
			return nil
		case isSnapshotName(info.Name()):
			return nil
		case flat && path.Dir(rel) == "." && (isArchiveName(info.Name()) || strings.HasSuffix(info.Name(), ".zip.tmp")):
			return nil
		case rel == metadataTextName || rel == recovery.MetaFileName:
			logging.Warn().Str("file", rel).Msg("Skipping file that collides with a reserved archive member")
			return nil
		}

		files = append(files, sourceFile{rel: rel, abs: p, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, nil
}

// writeArchive writes all members to w and closes the zip writer. It returns
// the member names captured from the config tree. Without a config root the
// archive holds metadata.txt alone.
func (a *Archiver) writeArchive(ctx context.Context, w io.Writer, configRoot string, files []sourceFile, created time.Time, withMeta bool) ([]string, error) {
	zw := zip.NewWriter(w)
	level := a.cfg.CompressionLevel
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	members := make([]string, 0, len(files))
	var totalSize int64
	dbMember := ""
	var dbSize int64

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			zw.Close() //nolint:errcheck,gosec // Abandoned archive
			return nil, err
		}

		if f.isDB {
			name, size, err := a.addDatabase(ctx, zw, f)
			if err != nil {
				zw.Close() //nolint:errcheck,gosec // Abandoned archive
				return nil, err
			}
			dbMember, dbSize = name, size
			members = append(members, name)
			totalSize += size
			continue
		}

		if err := addFileToZip(a.fs, zw, f.abs, f.rel); err != nil {
			zw.Close() //nolint:errcheck,gosec // Abandoned archive
			return nil, archiveIOError("add "+f.rel, err)
		}
		members = append(members, f.rel)
		totalSize += f.size
	}

	revision := ""
	if a.cfg.SchemaHead != nil {
		revision = a.cfg.SchemaHead()
	}

	if withMeta {
		if err := a.addMeta(zw, created, revision, members); err != nil {
			zw.Close() //nolint:errcheck,gosec // Abandoned archive
			return nil, err
		}
	}

	text := a.metadataText(configRoot, created, revision, members, totalSize, dbMember, dbSize)
	if err := addBytesToZip(zw, metadataTextName, []byte(text), created); err != nil {
		zw.Close() //nolint:errcheck,gosec // Abandoned archive
		return nil, archiveIOError("write "+metadataTextName, err)
	}

	if err := zw.Close(); err != nil {
		return nil, archiveIOError("finalize archive", err)
	}
	return members, nil
}

func (a *Archiver) addMeta(zw *zip.Writer, created time.Time, revision string, members []string) error {
	meta := recovery.BackupMeta{
		Created:    created.Format(time.RFC3339),
		AppVersion: a.cfg.AppVersion,
		Files:      members,
	}
	if revision != "" {
		meta.SchemaRevision = &revision
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return archiveIOError("marshal metadata", err)
	}
	if err := addBytesToZip(zw, recovery.MetaFileName, metaJSON, created); err != nil {
		return archiveIOError("write "+recovery.MetaFileName, err)
	}
	return nil
}

// addDatabase snapshots the live database into a private temp directory and
// stores the copy as db/<name>.
func (a *Archiver) addDatabase(ctx context.Context, zw *zip.Writer, f sourceFile) (string, int64, error) {
	snapDir, err := os.MkdirTemp("", "stowage-snapshot-*")
	if err != nil {
		return "", 0, archiveIOError("create snapshot directory", err)
	}
	defer os.RemoveAll(snapDir) //nolint:errcheck // Best effort cleanup

	base := path.Base(f.rel)
	snapPath := filepath.Join(snapDir, base)
	if !a.snapshot(ctx, f.abs, snapPath) {
		return "", 0, archiveIOError("snapshot database", fmt.Errorf("online backup of %s failed", f.rel))
	}

	name := databaseDir + base
	osFs := afero.NewOsFs()
	if err := addFileToZip(osFs, zw, snapPath, name); err != nil {
		return "", 0, archiveIOError("add "+name, err)
	}

	var size int64
	if info, err := osFs.Stat(snapPath); err == nil {
		size = info.Size()
	}
	return name, size, nil
}

func (a *Archiver) metadataText(configRoot string, created time.Time, revision string, members []string, totalSize int64, dbMember string, dbSize int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s backup\n", a.cfg.AppName)
	fmt.Fprintf(&b, "Created: %s\n", created.Format(time.RFC3339))
	if a.cfg.AppVersion != "" {
		fmt.Fprintf(&b, "App version: %s\n", a.cfg.AppVersion)
	}
	if revision == "" {
		revision = "unknown"
	}
	fmt.Fprintf(&b, "Schema revision: %s\n", revision)
	fmt.Fprintf(&b, "Source: %s\n", configRoot)
	if dbMember != "" {
		fmt.Fprintf(&b, "Database: %s (%s)\n", dbMember, humanize.Bytes(uint64(dbSize))) //nolint:gosec // G115: size is non-negative
	} else {
		b.WriteString("Database: none\n")
	}
	fmt.Fprintf(&b, "Files: %d (%s)\n", len(members), humanize.Bytes(uint64(totalSize))) //nolint:gosec // G115: size is non-negative
	for _, m := range members {
		fmt.Fprintf(&b, "  %s\n", m)
	}
	return b.String()
}

// addFileToZip copies src from fs into the archive as name.
func addFileToZip(fs afero.Fs, zw *zip.Writer, src, name string) error {
	file, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, file)
	return err
}

// addBytesToZip writes data into the archive as name.
func addBytesToZip(zw *zip.Writer, name string, data []byte, modTime time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modTime,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
