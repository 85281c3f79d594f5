// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

// Package main is the stowage command line tool.
//
// Stowage captures a configuration directory and its SQLite database into
// timestamped zip archives, prunes them by retention policy, reports backup
// health, and restores an archive with automatic rollback of the database.
//
// # Commands
//
//	stowage create [--prefix auto-]
//	stowage list [--pattern pre-]
//	stowage info <archive>
//	stowage validate <archive>
//	stowage delete <archive>
//	stowage prune [--dry-run]
//	stowage restore <archive> [--force] [--no-rollback] [--cleanup-snapshot]
//	stowage extract <archive> <dir>
//	stowage health
//
// Archive arguments may be a path or a bare file name inside the backups
// directory.
//
// # Configuration
//
// Configuration is loaded via koanf v2 with layered sources (highest priority wins):
//   - Environment variables (STOWAGE_*, LOG_*)
//   - Config file (--config, STOWAGE_CONFIG, or the default search paths)
//   - Built-in defaults
//
// # Exit Codes
//
// The process exits 1 when a command fails, including a restore that was
// rolled back and a health check with status error. Restore failures always
// print the pre-restore snapshot path when one survives.
//
// # Scheduling
//
// Stowage runs one command and exits. Use cron or a systemd timer for
// scheduled backups, and never run two restores at once.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
