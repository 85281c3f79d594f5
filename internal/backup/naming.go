// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// TimestampFormat is the UTC timestamp embedded in archive and snapshot names.
	TimestampFormat = "20060102T150405Z"

	// ArchiveExt is the extension of every archive.
	ArchiveExt = ".zip"

	// PreRestorePrefix marks archives protected by the pre-restore grace period.
	PreRestorePrefix = "pre-"

	// SnapshotPrefix starts every pre-restore database snapshot name.
	SnapshotPrefix = "pre-restore-"

	// Reserved archive members.
	metadataTextName = "metadata.txt"
	databaseDir      = "db/"
)

// archiveNameRe matches {prefix}{app}-backup-{timestamp}[-N].zip.
var archiveNameRe = regexp.MustCompile(`^(.*)-backup-(\d{8}T\d{6}Z)(?:-\d+)?\.zip$`)

// ArchiveName builds the archive file name for the given prefix, app and time.
func ArchiveName(prefix, appName string, t time.Time) string {
	return fmt.Sprintf("%s%s-backup-%s%s", prefix, appName, t.UTC().Format(TimestampFormat), ArchiveExt)
}

// SnapshotName builds the pre-restore snapshot file name for t.
func SnapshotName(t time.Time) string {
	return SnapshotPrefix + t.UTC().Format(TimestampFormat) + ".db"
}

// ParseArchiveName extracts the prefix and timestamp from an archive name
// produced for appName. ok is false when the name does not follow the
// naming scheme.
func ParseArchiveName(name, appName string) (prefix string, created time.Time, ok bool) {
	m := archiveNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}

	head := m[1]
	if appName != "" {
		if !strings.HasSuffix(head, appName) {
			return "", time.Time{}, false
		}
		prefix = strings.TrimSuffix(head, appName)
	}

	created, err := time.Parse(TimestampFormat, m[2])
	if err != nil {
		return "", time.Time{}, false
	}
	return prefix, created.UTC(), true
}

// IsPreRestoreName reports whether name carries the pre- grace period prefix.
func IsPreRestoreName(name string) bool {
	return strings.HasPrefix(name, PreRestorePrefix)
}

// isArchiveName reports whether name is a final archive name. Temp files
// (".name.zip.tmp") never match.
func isArchiveName(name string) bool {
	return strings.HasSuffix(name, ArchiveExt) && !strings.HasPrefix(name, ".")
}

// uniqueName returns name, or name with a -N suffix before the extension if
// exists reports it as taken.
func uniqueName(name string, exists func(string) bool) string {
	if !exists(name) {
		return name
	}

	ext := ""
	base := name
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i:]
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if !exists(candidate) {
			return candidate
		}
	}
}
