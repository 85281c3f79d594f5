// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

// Package recovery holds the low-level primitives the backup and restore
// paths are built on: a consistent SQLite snapshot taken with the online
// backup API, an integrity check, backup metadata extraction, migration head
// lookup, and image tag suggestion.
//
// None of these functions return errors. Failures are logged and reported
// as false, nil or "" so callers can fold them into their own outcome
// reporting. CheckIntegrity in particular fails closed: anything short of an
// explicit clean report is unhealthy.
package recovery
