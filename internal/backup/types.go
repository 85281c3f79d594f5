// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"fmt"
	"time"

	"github.com/tomtom215/stowage/internal/recovery"
)

// Archive describes a backup archive on disk.
type Archive struct {
	// Name is the archive file name, e.g. "pre-stowage-backup-20260301T020000Z.zip".
	Name string `json:"name"`

	// Path is the full path to the archive.
	Path string `json:"path"`

	// Size is the archive size in bytes.
	Size int64 `json:"size"`

	// ModTime is the file modification time.
	ModTime time.Time `json:"mod_time"`

	// CreatedAt is the timestamp encoded in the name (zero if the name does not parse).
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Prefix is the name prefix before the app name ("pre-", "auto-", ...).
	Prefix string `json:"prefix,omitempty"`

	// Files lists the archive members, best effort.
	Files []string `json:"files,omitempty"`

	// Meta is the decoded backup_meta.json, if present.
	Meta *recovery.BackupMeta `json:"meta,omitempty"`
}

// RestoreState is a step of the restore state machine.
type RestoreState string

const (
	StateValidating     RestoreState = "validating"
	StateSchemaCheck    RestoreState = "schema_check"
	StateSnapshotting   RestoreState = "snapshotting"
	StateRestoring      RestoreState = "restoring"
	StateVerifying      RestoreState = "verifying"
	StateSuccess        RestoreState = "success"
	StateRollingBack    RestoreState = "rolling_back"
	StateRolledBack     RestoreState = "rolled_back"
	StateRollbackFailed RestoreState = "rollback_failed"
	StateFailed         RestoreState = "failed"
)

// Terminal reports whether the state ends a restore.
func (s RestoreState) Terminal() bool {
	switch s {
	case StateSuccess, StateRolledBack, StateRollbackFailed, StateFailed:
		return true
	default:
		return false
	}
}

// RestoreOptions configures RestoreWithRollback.
type RestoreOptions struct {
	// AutoRollback copies the pre-restore snapshot back after a failed restore.
	AutoRollback bool

	// CleanupSnapshot deletes the snapshot after a successful restore.
	CleanupSnapshot bool

	// Force skips the schema revision gate.
	Force bool
}

// DefaultRestoreOptions returns options with automatic rollback enabled.
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{AutoRollback: true}
}

// RestoreResult is the outcome of one restore. It is never persisted.
type RestoreResult struct {
	Success          bool          `json:"success"`
	Message          string        `json:"message"`
	BackupPath       string        `json:"backup_path"`
	SnapshotPath     string        `json:"snapshot_path,omitempty"`
	RollbackExecuted bool          `json:"rollback_executed"`
	Errors           []string      `json:"errors"`
	State            RestoreState  `json:"state"`
	SuggestedImage   string        `json:"suggested_image,omitempty"`
	OperationID      string        `json:"operation_id"`
	Duration         time.Duration `json:"duration"`
}

// ManualRecoveryRequired reports a failed restore that was not rolled back
// while a pre-restore snapshot survives.
func (r *RestoreResult) ManualRecoveryRequired() bool {
	return !r.Success && !r.RollbackExecuted && r.SnapshotPath != ""
}

func (r *RestoreResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ExtractReport summarizes one archive extraction.
type ExtractReport struct {
	// Restored lists the members written to the destination.
	Restored []string `json:"restored"`

	// Skipped lists reserved members that are never written.
	Skipped []string `json:"skipped,omitempty"`

	// Errors holds one entry per member that failed to extract.
	Errors []string `json:"errors,omitempty"`

	// DatabaseRestored is true when the db/ member was written.
	DatabaseRestored bool `json:"database_restored"`

	// DatabaseFailed is true when the archive had a db/ member that could not be written.
	DatabaseFailed bool `json:"database_failed"`

	// Attempted counts the members that extraction tried to write.
	Attempted int `json:"attempted"`
}

// Failed reports an extraction the restore must treat as failed: the
// database could not be written, or members existed and none were restored.
func (r *ExtractReport) Failed() bool {
	return r.DatabaseFailed || (r.Attempted > 0 && len(r.Restored) == 0)
}

// PruneItem is one archive in a prune plan.
type PruneItem struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Reasons []string  `json:"reasons"`
}

// PrunePlan is the dry-run preview of a prune pass.
type PrunePlan struct {
	WouldKeep       []PruneItem `json:"would_keep"`
	WouldDelete     []PruneItem `json:"would_delete"`
	TotalArchives   int         `json:"total_archives"`
	KeepCount       int         `json:"keep_count"`
	DeleteCount     int         `json:"delete_count"`
	TotalSizeBytes  int64       `json:"total_size_bytes"`
	DeleteSizeBytes int64       `json:"delete_size_bytes"`
}

// PruneResult is the outcome of a prune pass.
type PruneResult struct {
	Deleted    []string `json:"deleted"`
	Failed     []string `json:"failed,omitempty"`
	FreedBytes int64    `json:"freed_bytes"`
}
