// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

// Package backup creates, inspects, prunes and restores backup archives of an
// application's configuration tree and its embedded SQLite database.
//
// # Overview
//
// The package has four parts:
//
//	Archiver - Creates archives atomically (temp file + rename)
//	Store    - Lists, inspects, validates and deletes archives
//	Pruner   - Applies a RetentionPolicy (count, age, pre- grace period)
//	Restorer - Restores an archive with a pre-restore snapshot and rollback
//
// # Archive Format
//
// Archives are zip files named {prefix}{app}-backup-{YYYYMMDDThhmmssZ}.zip:
//
//	metadata.txt        (always present, human readable)
//	backup_meta.json    (created, app_version, schema_revision, files)
//	db/<database file>  (online-backup snapshot, if a database existed)
//	<relative paths>    (every other regular file of the config tree)
//
// # Restore State Machine
//
//	validating -> schema_check -> snapshotting -> restoring -> verifying -> success
//	                                                  |             |
//	                                                  +-------------+-> rolling_back
//	                                                                     -> rolled_back
//	                                                                     -> rollback_failed
//
// Failures before snapshotting end in the failed state without touching the
// destination. A failure after mutation either rolls the database back from
// the pre-restore snapshot or, with rollback disabled, reports the snapshot
// path for manual recovery.
//
// # Concurrency
//
// Every call is synchronous. Creating, listing and pruning may run
// concurrently because archives only appear under their final name once
// complete. Restores must not run concurrently with each other or with a
// backup of the same config directory; callers serialize them.
//
// # Error Handling
//
// Caller misuse is returned as *PreconditionError (errors.Is ErrPrecondition).
// Archive write failures wrap ErrArchiveIO. Restore outcomes are reported in
// RestoreResult rather than as errors.
package backup
