// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

/*
schema.go - Migration Head Lookup

Migrations live as *.sql files in one directory. Each file declares its
identity and parent in leading comment headers:

	-- revision: 3f2a9c
	-- down_revision: 1b7e00

A file without down_revision is a root. The head is the single revision no
other migration names as its parent. The restore schema gate compares a
backup's recorded revision against this head.
*/

//nolint:staticcheck // File documentation, not package doc
package recovery

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tomtom215/stowage/internal/logging"
)

var (
	// ErrMultipleHeads is returned when the migration graph has diverged.
	ErrMultipleHeads = errors.New("multiple migration heads")

	// ErrRevisionCycle is returned when no migration is a head.
	ErrRevisionCycle = errors.New("migration revisions form a cycle")
)

// Migration is one parsed migration file.
type Migration struct {
	Revision     string
	DownRevision string
	File         string
}

// MigrationSet reads migrations from a directory.
type MigrationSet struct {
	Dir string
}

// NewMigrationSet returns a MigrationSet for dir. An empty dir means
// migrations are unconfigured.
func NewMigrationSet(dir string) *MigrationSet {
	return &MigrationSet{Dir: dir}
}

// Load parses every *.sql file in the directory that declares a revision.
// Files without a revision header are ignored.
func (s *MigrationSet) Load() ([]Migration, error) {
	if s == nil || s.Dir == "" {
		return nil, nil
	}

	paths, err := filepath.Glob(filepath.Join(s.Dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(paths)

	var migrations []Migration
	seen := make(map[string]string)
	for _, p := range paths {
		m, err := parseMigration(p)
		if err != nil {
			return nil, err
		}
		if m.Revision == "" {
			continue
		}
		if prev, dup := seen[m.Revision]; dup {
			return nil, fmt.Errorf("revision %s declared by both %s and %s", m.Revision, prev, m.File)
		}
		seen[m.Revision] = m.File
		migrations = append(migrations, m)
	}
	return migrations, nil
}

// Heads returns the revisions that no other migration builds on.
func (s *MigrationSet) Heads() ([]string, error) {
	migrations, err := s.Load()
	if err != nil {
		return nil, err
	}
	if len(migrations) == 0 {
		return nil, nil
	}

	parents := make(map[string]bool, len(migrations))
	for _, m := range migrations {
		if m.DownRevision != "" {
			parents[m.DownRevision] = true
		}
	}

	var heads []string
	for _, m := range migrations {
		if !parents[m.Revision] {
			heads = append(heads, m.Revision)
		}
	}
	sort.Strings(heads)

	switch len(heads) {
	case 0:
		return nil, ErrRevisionCycle
	case 1:
		return heads, nil
	default:
		return heads, fmt.Errorf("%w: %s", ErrMultipleHeads, strings.Join(heads, ", "))
	}
}

// Head returns the single head revision, or "" when migrations are
// unconfigured, absent, or ambiguous. Ambiguity is logged.
func (s *MigrationSet) Head() string {
	heads, err := s.Heads()
	if err != nil {
		logging.Warn().Err(err).Str("dir", s.Dir).Msg("Cannot resolve migration head")
		return ""
	}
	if len(heads) == 0 {
		return ""
	}
	return heads[0]
}

// HeadSchemaRevision resolves the head revision of the migrations in dir.
func HeadSchemaRevision(dir string) string {
	return NewMigrationSet(dir).Head()
}

// parseMigration reads the leading comment block of a migration file.
func parseMigration(path string) (Migration, error) {
	m := Migration{File: filepath.Base(path)}

	f, err := os.Open(path) //nolint:gosec // G304: path comes from the configured migrations directory
	if err != nil {
		return m, fmt.Errorf("failed to open migration %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // Read-only

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}

		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "--")), ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "revision":
			m.Revision = strings.TrimSpace(value)
		case "down_revision":
			m.DownRevision = strings.TrimSpace(value)
			if strings.EqualFold(m.DownRevision, "none") || strings.EqualFold(m.DownRevision, "null") {
				m.DownRevision = ""
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return m, fmt.Errorf("failed to read migration %s: %w", path, err)
	}
	return m, nil
}
