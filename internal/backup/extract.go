// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/tomtom215/stowage/internal/logging"
	"github.com/tomtom215/stowage/internal/recovery"
)

// ExtractArchive unpacks archivePath onto destDir.
//
// Reserved members (metadata.txt, backup_meta.json) are never written. A
// db/<name> member is written to dbFile (relative to destDir) through a temp
// file and rename, and stale WAL/SHM/journal files next to it are removed.
// Every other member keeps its relative path; members that would escape
// destDir are rejected.
//
// A member that fails to extract is logged and recorded in the report and
// extraction continues. The returned error is reserved for a missing
// destination, a file that is not an archive, and cancellation.
func (s *Store) ExtractArchive(ctx context.Context, archivePath, destDir, dbFile string) (*ExtractReport, error) {
	if !dirExists(s.fs, destDir) {
		return nil, preconditionf("extract archive", destDir, "destination directory does not exist")
	}

	zr, closer, err := openZip(s.fs, archivePath)
	if err != nil {
		return nil, preconditionf("extract archive", archivePath, "not a backup archive: %v", err)
	}
	defer closer.Close() //nolint:errcheck // Read-only archive

	log := logging.Ctx(ctx)
	report := &ExtractReport{Restored: []string{}}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if f.Name == metadataTextName || f.Name == recovery.MetaFileName {
			report.Skipped = append(report.Skipped, f.Name)
			continue
		}

		report.Attempted++
		if isDatabaseMember(f.Name) {
			target := databaseTarget(destDir, dbFile, f.Name)
			if err := s.restoreDatabaseMember(f, target); err != nil {
				log.Error().Err(err).Str("member", f.Name).Msg("Failed to restore database")
				report.DatabaseFailed = true
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", f.Name, err))
				continue
			}
			report.DatabaseRestored = true
			report.Restored = append(report.Restored, f.Name)
			continue
		}

		if err := s.extractMember(f, destDir); err != nil {
			log.Warn().Err(err).Str("member", f.Name).Msg("Skipping archive member")
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		report.Restored = append(report.Restored, f.Name)
	}

	log.Info().
		Str("archive", archivePath).
		Int("restored", len(report.Restored)).
		Int("failed", len(report.Errors)).
		Bool("database", report.DatabaseRestored).
		Msg("Archive extracted")
	return report, nil
}

// isDatabaseMember reports whether name is a direct child of db/.
func isDatabaseMember(name string) bool {
	rest, ok := strings.CutPrefix(name, databaseDir)
	return ok && rest != "" && !strings.Contains(rest, "/")
}

// databaseTarget maps a db/<name> member onto the live database location.
// Without a configured database file the member keeps its own name.
func databaseTarget(destDir, dbFile, member string) string {
	if dbFile == "" {
		return filepath.Join(destDir, path.Base(member))
	}
	return filepath.Join(destDir, filepath.FromSlash(dbFile))
}

func (s *Store) restoreDatabaseMember(f *zip.File, target string) error {
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}

	tmp := target + ".stowage-tmp"
	if err := s.writeMember(f, tmp); err != nil {
		return err
	}

	for _, err := range removeSidecars(s.fs, target) {
		logging.Warn().Err(err).Str("database", target).Msg("Failed to remove stale database sidecar")
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		s.fs.Remove(tmp) //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}
	return nil
}

func (s *Store) extractMember(f *zip.File, destDir string) error {
	destPath, err := validateAndBuildDestPath(destDir, f.Name)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}
	return s.writeMember(f, destPath)
}

// writeMember decompresses f into destPath. The copy is bounded by the
// declared size to stop decompression bombs.
func (s *Store) writeMember(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // Read-only member

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o640
	}
	outFile, err := s.fs.OpenFile(destPath, osCreateTrunc, mode)
	if err != nil {
		return err
	}

	return copyAndCloseExtractedFile(s.fs, outFile, rc, destPath, int64(f.UncompressedSize64)) //nolint:gosec // G115: zip sizes fit int64
}

// copyAndCloseExtractedFile copies data to the extracted file and handles cleanup
func copyAndCloseExtractedFile(fs afero.Fs, outFile afero.File, reader io.Reader, destPath string, size int64) error {
	// Use LimitReader to prevent decompression bomb attacks
	n, err := io.Copy(outFile, io.LimitReader(reader, size+1))
	if err == nil && n > size {
		err = fmt.Errorf("member larger than declared size %d", size)
	}
	if err == nil {
		err = outFile.Sync()
	}
	closeErr := outFile.Close()

	if err != nil {
		fs.Remove(destPath) //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}

	if closeErr != nil {
		fs.Remove(destPath) //nolint:errcheck,gosec // Best effort cleanup on error
		return closeErr
	}

	return nil
}
