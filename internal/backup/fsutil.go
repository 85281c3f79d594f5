// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/tomtom215/stowage/internal/logging"
)

// osCreateTrunc opens a file for writing, creating or truncating it.
const osCreateTrunc = os.O_WRONLY | os.O_CREATE | os.O_TRUNC

// sqliteSidecars are the files SQLite keeps next to a database.
var sqliteSidecars = []string{"-wal", "-shm", "-journal"}

// fileExists reports whether path exists and is a regular file.
func fileExists(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// dirExists reports whether path exists and is a directory.
func dirExists(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && info.IsDir()
}

// copyFile copies a file from src to dst, creating dst's directory.
func copyFile(fs afero.Fs, src, dst string) error {
	sourceFile, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close() //nolint:errcheck // Best effort cleanup

	if err := fs.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	destFile, err := fs.Create(dst)
	if err != nil {
		return err
	}

	return copyAndCloseDestFile(destFile, sourceFile)
}

// copyAndCloseDestFile copies data from source to destination file and ensures proper cleanup
func copyAndCloseDestFile(destFile afero.File, source io.Reader) error {
	if _, err := io.Copy(destFile, source); err != nil {
		destFile.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}

	if err := destFile.Sync(); err != nil {
		destFile.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}

	return destFile.Close()
}

// replaceFile atomically replaces dst with the contents of src. The copy is
// written next to dst and renamed over it, so dst is never half written.
func replaceFile(fs afero.Fs, src, dst string) error {
	tmp := dst + ".stowage-tmp"
	if err := copyFile(fs, src, tmp); err != nil {
		fs.Remove(tmp) //nolint:errcheck,gosec // Best effort cleanup on error
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	if err := fs.Rename(tmp, dst); err != nil {
		fs.Remove(tmp) //nolint:errcheck,gosec // Best effort cleanup on error
		return fmt.Errorf("replace %s: %w", filepath.Base(dst), err)
	}
	return nil
}

// moveFile renames src to dst, falling back to copy and delete when the two
// are on different filesystems.
func moveFile(fs afero.Fs, src, dst string) error {
	err := fs.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	logging.Debug().Str("src", src).Str("dst", dst).Msg("Cross-device rename, copying instead")
	if err := copyFile(fs, src, dst); err != nil {
		fs.Remove(dst) //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}
	return fs.Remove(src)
}

// removeSidecars deletes stale WAL, SHM and journal files for dbPath.
func removeSidecars(fs afero.Fs, dbPath string) []error {
	var errs []error
	for _, suffix := range sqliteSidecars {
		if err := fs.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errs
}

// isSidecarOf reports whether name is a SQLite sidecar of dbName.
func isSidecarOf(name, dbName string) bool {
	for _, suffix := range sqliteSidecars {
		if name == dbName+suffix {
			return true
		}
	}
	return false
}

// isSnapshotName reports whether name is a pre-restore database snapshot.
func isSnapshotName(name string) bool {
	return strings.HasPrefix(name, SnapshotPrefix) && strings.HasSuffix(name, ".db")
}

// withinDir reports whether path is dir or lies inside it. Relative paths
// are resolved against the working directory first.
func withinDir(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// sameDir reports whether a and b name the same directory.
func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// validateAndBuildDestPath validates and builds the destination path for extraction
func validateAndBuildDestPath(destDir, fileName string) (string, error) {
	destPath := filepath.Join(destDir, filepath.FromSlash(fileName))

	// Validate path to prevent directory traversal (G305)
	if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid file path in archive: %s", fileName)
	}

	return destPath, nil
}
