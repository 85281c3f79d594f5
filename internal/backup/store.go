// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/tomtom215/stowage/internal/logging"
	"github.com/tomtom215/stowage/internal/recovery"
)

// Store lists and inspects archives in a backups directory. Listing only
// considers final ".zip" names, so it is safe to run alongside CreateBackup
// and Prune.
type Store struct {
	fs      afero.Fs
	appName string
}

// NewStore creates a Store. appName is used to parse archive names.
func NewStore(fs afero.Fs, appName string) *Store {
	return &Store{fs: fs, appName: appName}
}

// Fs returns the filesystem the store operates on.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// ListBackups returns the archives in backupsDir whose name contains
// pattern, sorted by name descending (newest first). A missing or unreadable
// directory yields an empty list.
func (s *Store) ListBackups(backupsDir, pattern string) []Archive {
	return s.scan(backupsDir, pattern, true)
}

// scan lists archives in backupsDir. detailed opens each zip for its member
// list and metadata.
func (s *Store) scan(backupsDir, pattern string, detailed bool) []Archive {
	entries, err := afero.ReadDir(s.fs, backupsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("dir", backupsDir).Msg("Failed to read backups directory")
		}
		return []Archive{}
	}

	archives := make([]Archive, 0, len(entries))
	for _, info := range entries {
		if !info.Mode().IsRegular() || !isArchiveName(info.Name()) {
			continue
		}
		if pattern != "" && !strings.Contains(info.Name(), pattern) {
			continue
		}
		archives = append(archives, s.describe(filepath.Join(backupsDir, info.Name()), info, detailed))
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Name > archives[j].Name
	})
	return archives
}

// GetBackupInfo returns the archive at path, or nil if it does not exist.
func (s *Store) GetBackupInfo(path string) *Archive {
	info, err := s.fs.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	a := s.describe(path, info, true)
	return &a
}

// ValidateBackup reports whether path is a structurally sound zip archive:
// the central directory parses and every member decompresses with a matching
// checksum. Member contents are not interpreted.
func (s *Store) ValidateBackup(path string) bool {
	zr, closer, err := openZip(s.fs, path)
	if err != nil {
		logging.Debug().Err(err).Str("archive", path).Msg("Archive failed to open")
		return false
	}
	defer closer.Close() //nolint:errcheck // Read-only archive

	for _, f := range zr.File {
		if err := checkMember(f); err != nil {
			logging.Debug().Err(err).Str("archive", path).Str("member", f.Name).Msg("Archive member is corrupt")
			return false
		}
	}
	return true
}

func checkMember(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // Read-only member

	_, err = io.Copy(io.Discard, rc) //nolint:gosec // G110: output is discarded
	return err
}

// GetBackupSize returns the archive size in bytes, or 0 if it cannot be read.
func (s *Store) GetBackupSize(path string) int64 {
	info, err := s.fs.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// DeleteBackup removes a single archive. Only ".zip" files are accepted.
func (s *Store) DeleteBackup(path string) error {
	if !isArchiveName(filepath.Base(path)) {
		return preconditionf("delete backup", path, "not a backup archive")
	}
	if !fileExists(s.fs, path) {
		return preconditionf("delete backup", path, "archive does not exist")
	}
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	logging.Info().Str("archive", path).Msg("Backup deleted")
	return nil
}

// CleanupTempFiles removes every child of dir. Failures are logged and
// skipped.
func (s *Store) CleanupTempFiles(dir string) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("dir", dir).Msg("Failed to read temp directory")
		}
		return
	}

	for _, info := range entries {
		p := filepath.Join(dir, info.Name())
		if err := s.fs.RemoveAll(p); err != nil {
			logging.Warn().Err(err).Str("path", p).Msg("Failed to remove temp file")
		}
	}
}

// describe builds an Archive from its file info. When detailed is set the
// member list and metadata are added if the zip can be read.
func (s *Store) describe(path string, info os.FileInfo, detailed bool) Archive {
	a := Archive{
		Name:    info.Name(),
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if prefix, created, ok := ParseArchiveName(a.Name, s.appName); ok {
		a.Prefix = prefix
		a.CreatedAt = created
	}
	if !detailed {
		return a
	}

	zr, closer, err := openZip(s.fs, path)
	if err != nil {
		return a
	}
	defer closer.Close() //nolint:errcheck // Read-only archive

	a.Files = make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		a.Files = append(a.Files, f.Name)
	}
	a.Meta = recovery.ReadBackupMetaFrom(zr)
	return a
}

// openZip opens the archive at path through fs.
func openZip(fs afero.Fs, path string) (*zip.Reader, io.Closer, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return nil, nil, err
	}
	if info.IsDir() {
		file.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}

	zr, err := zip.NewReader(file, info.Size())
	if err != nil {
		file.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return nil, nil, err
	}
	return zr, file, nil
}

// ReadMeta returns the decoded backup_meta.json of the archive at path, or
// nil when the archive or the member cannot be read.
func (s *Store) ReadMeta(path string) *recovery.BackupMeta {
	zr, closer, err := openZip(s.fs, path)
	if err != nil {
		return nil
	}
	defer closer.Close() //nolint:errcheck // Read-only archive

	return recovery.ReadBackupMetaFrom(zr)
}
