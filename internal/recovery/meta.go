// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package recovery

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tomtom215/stowage/internal/logging"
)

// MetaFileName is the machine-readable metadata member inside every archive.
const MetaFileName = "backup_meta.json"

// maxMetaSize caps how much of the metadata member is read.
const maxMetaSize = 1 << 20

// BackupMeta is the content of backup_meta.json.
type BackupMeta struct {
	// Created is the UTC creation time in RFC 3339 form.
	Created string `json:"created"`

	// AppVersion is the application version that wrote the archive.
	AppVersion string `json:"app_version"`

	// SchemaRevision is the migration head at creation time, nil when unknown.
	SchemaRevision *string `json:"schema_revision"`

	// Files lists the archive members captured from the config tree.
	Files []string `json:"files,omitempty"`
}

// Revision returns the recorded schema revision, or "" when unknown.
func (m *BackupMeta) Revision() string {
	if m == nil || m.SchemaRevision == nil {
		return ""
	}
	return *m.SchemaRevision
}

// ReadBackupMeta extracts and decodes backup_meta.json from the zip archive
// at archivePath. It returns nil when the archive cannot be opened, has no
// metadata member, or the member does not decode.
func ReadBackupMeta(archivePath string) *BackupMeta {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		logging.Debug().Err(err).Str("archive", archivePath).Msg("Cannot open archive for metadata")
		return nil
	}
	defer zr.Close() //nolint:errcheck // Read-only archive

	return ReadBackupMetaFrom(&zr.Reader)
}

// ReadBackupMetaFrom decodes backup_meta.json from an already open archive.
func ReadBackupMetaFrom(zr *zip.Reader) *BackupMeta {
	for _, f := range zr.File {
		if f.Name != MetaFileName {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			logging.Debug().Err(err).Msg("Cannot open backup metadata member")
			return nil
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxMetaSize))
		rc.Close() //nolint:errcheck,gosec // Read-only member
		if err != nil {
			logging.Debug().Err(err).Msg("Cannot read backup metadata member")
			return nil
		}

		var meta BackupMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			logging.Debug().Err(err).Msg("Cannot decode backup metadata")
			return nil
		}
		return &meta
	}
	return nil
}

// SuggestImageTag returns "repository:app_version" for the version recorded in
// meta, or "" when no version is known. A restore blocked by a schema
// mismatch uses it to point the operator at a compatible release.
func SuggestImageTag(meta *BackupMeta, repository string) string {
	if meta == nil || strings.TrimSpace(meta.AppVersion) == "" || repository == "" {
		return ""
	}
	return repository + ":" + strings.TrimSpace(meta.AppVersion)
}
