// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

/*
restore.go - Restore With Rollback

Restore Process:
 1. validating    - destination exists, archive exists and is a sound zip
 2. schema_check  - recorded schema revision matches the live head (unless forced)
 3. snapshotting  - online backup of the live database to pre-restore-{ts}.db
 4. restoring     - extract members onto the config directory
 5. verifying     - integrity check of the restored database
 6. success       - optionally delete the snapshot

Steps 1-3 never modify the destination; a failure there ends in "failed".
A failure in 4 or 5 either rolls the database back from the snapshot
("rolled_back" / "rollback_failed") or, with rollback disabled, ends in
"failed" with the snapshot path surfaced for manual recovery.

Rollback restores the database file only. Other config files written by the
failed restore stay in place.

Restores are not serialized here. Callers must ensure only one restore runs
at a time and that no backup of the same directory runs alongside it.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tomtom215/stowage/internal/logging"
	"github.com/tomtom215/stowage/internal/recovery"
)

// RestorerConfig configures a Restorer.
type RestorerConfig struct {
	// DatabaseFile is the live database path relative to the config directory.
	DatabaseFile string

	// SnapshotDir holds pre-restore snapshots. Empty uses the database's directory.
	SnapshotDir string

	// ImageRepository is used to suggest an image tag on schema mismatch.
	ImageRepository string

	// SchemaHead returns the live migration head, "" when unknown.
	SchemaHead func() string
}

// Restorer runs the restore state machine.
type Restorer struct {
	store    *Store
	cfg      RestorerConfig
	recorder Recorder

	now            func() time.Time
	snapshot       func(ctx context.Context, src, dst string) bool
	checkIntegrity func(ctx context.Context, path string) bool
	extract        func(ctx context.Context, archivePath, destDir, dbFile string) (*ExtractReport, error)
}

// NewRestorer creates a Restorer. recorder may be nil.
func NewRestorer(store *Store, cfg RestorerConfig, recorder Recorder) *Restorer {
	return &Restorer{
		store:          store,
		cfg:            cfg,
		recorder:       recorderOrNop(recorder),
		now:            time.Now,
		snapshot:       recovery.SnapshotDatabase,
		checkIntegrity: recovery.CheckIntegrity,
		extract:        store.ExtractArchive,
	}
}

// restoreRun carries the state of one RestoreWithRollback call.
type restoreRun struct {
	r      *Restorer
	log    *zerolog.Logger
	opts   RestoreOptions
	result *RestoreResult

	dbPath string
	hadDB  bool
}

func (run *restoreRun) enter(state RestoreState) {
	run.result.State = state
	run.log.Debug().Str("state", string(state)).Msg("Restore state")
}

// fail ends the run without rollback.
func (run *restoreRun) fail(message string) {
	run.result.State = StateFailed
	run.result.Success = false
	run.result.Message = message
	run.log.Error().Str("backup", run.result.BackupPath).Msg(message)
}

// RestoreWithRollback restores backupPath onto configDir.
//
// The returned error is non-nil only for a missing configDir, which is a
// *PreconditionError; the result is still populated. Every other outcome,
// including a missing or corrupt archive, is reported through the result.
// The recorder is notified exactly once per call.
func (r *Restorer) RestoreWithRollback(ctx context.Context, backupPath, configDir string, opts RestoreOptions) (*RestoreResult, error) {
	start := r.now()
	opID := uuid.NewString()
	ctx = logging.ContextWithOperationID(ctx, opID)

	run := &restoreRun{
		r:    r,
		log:  logging.Ctx(ctx),
		opts: opts,
		result: &RestoreResult{
			BackupPath:  backupPath,
			OperationID: opID,
			Errors:      []string{},
		},
	}
	defer func() {
		if !run.result.State.Terminal() {
			run.result.addError("Restore stopped in state %s", run.result.State)
			run.fail("Restore ended without reaching a final state")
		}
		run.result.Duration = r.now().Sub(start)
		r.recorder.RecordBackupRestored(run.result.Success, backupPath, run.result.RollbackExecuted, run.result.Message)
	}()

	run.log.Info().
		Str("backup", backupPath).
		Str("config_dir", configDir).
		Bool("auto_rollback", opts.AutoRollback).
		Bool("force", opts.Force).
		Msg("Starting restore")

	run.enter(StateValidating)
	if !dirExists(r.store.fs, configDir) {
		run.result.addError("Restore destination %s does not exist", configDir)
		run.fail("Restore destination does not exist")
		return run.result, preconditionf("restore", configDir, "destination directory does not exist")
	}
	if !fileExists(r.store.fs, backupPath) {
		run.result.addError("Backup not found: %s", backupPath)
		run.fail("Backup not found")
		return run.result, nil
	}
	if !r.store.ValidateBackup(backupPath) {
		run.result.addError("Backup %s is not a valid archive", backupPath)
		run.fail("Backup validation failed")
		return run.result, nil
	}

	run.enter(StateSchemaCheck)
	if run.schemaBlocked(r.store.ReadMeta(backupPath)) {
		return run.result, nil
	}
	if err := ctx.Err(); err != nil {
		run.result.addError("Restore canceled: %v", err)
		run.fail("Restore canceled before any change was made")
		return run.result, nil
	}

	run.enter(StateSnapshotting)
	if r.cfg.DatabaseFile != "" {
		run.dbPath = filepath.Join(configDir, filepath.FromSlash(r.cfg.DatabaseFile))
		run.hadDB = fileExists(r.store.fs, run.dbPath)
	}
	if run.hadDB {
		snapPath := r.snapshotPath(run.dbPath)
		if !r.snapshot(ctx, run.dbPath, snapPath) {
			run.result.addError("Pre-restore snapshot of %s failed", run.dbPath)
			run.fail("Pre-restore snapshot failed, restore aborted")
			return run.result, nil
		}
		run.result.SnapshotPath = snapPath
		run.log.Info().Str("snapshot", snapPath).Msg("Pre-restore snapshot created")
		r.recorder.RecordPreRestoreSnapshot(snapPath)
	}

	run.enter(StateRestoring)
	report, err := r.safeExtract(ctx, backupPath, configDir)
	if err != nil {
		run.failAfterMutation(fmt.Sprintf("Restore failed: %v", err))
		return run.result, nil
	}
	if report == nil {
		report = &ExtractReport{}
	}
	run.result.Errors = append(run.result.Errors, report.Errors...)
	if report.Failed() {
		reason := "Restore failed: no archive member could be restored"
		if report.DatabaseFailed {
			reason = "Restore failed: database could not be restored"
		}
		run.failAfterMutation(reason)
		return run.result, nil
	}

	run.enter(StateVerifying)
	if run.dbPath != "" && fileExists(r.store.fs, run.dbPath) {
		if !r.checkIntegrity(ctx, run.dbPath) {
			run.failAfterMutation("Integrity check failed on restored database")
			return run.result, nil
		}
	}

	run.succeed()
	return run.result, nil
}

// schemaBlocked compares the archive's schema revision with the live head.
// The gate only applies when both are known.
func (run *restoreRun) schemaBlocked(meta *recovery.BackupMeta) bool {
	backupRev := meta.Revision()
	head := ""
	if run.r.cfg.SchemaHead != nil {
		head = run.r.cfg.SchemaHead()
	}
	if backupRev == "" || head == "" || backupRev == head {
		run.log.Debug().Str("backup_revision", backupRev).Str("head_revision", head).Msg("Schema check passed")
		return false
	}

	mismatch := fmt.Sprintf("Schema mismatch: backup revision %s, current head %s", backupRev, head)
	if run.opts.Force {
		run.log.Warn().Str("backup_revision", backupRev).Str("head_revision", head).
			Msg("Schema mismatch ignored, restore forced")
		run.result.addError("%s (forced)", mismatch)
		return false
	}

	run.result.addError("%s", mismatch)
	if image := recovery.SuggestImageTag(meta, run.r.cfg.ImageRepository); image != "" {
		run.result.SuggestedImage = image
		run.result.addError("Run %s to restore this backup, then upgrade", image)
	}
	run.fail("Schema mismatch, restore blocked")
	return true
}

// failAfterMutation handles a failure once the destination may have changed.
func (run *restoreRun) failAfterMutation(reason string) {
	run.result.addError("%s", reason)
	run.log.Error().Str("backup", run.result.BackupPath).Msg(reason)

	if !run.opts.AutoRollback {
		run.fail(reason + "; automatic rollback disabled")
		run.noteManualRecovery()
		return
	}

	run.enter(StateRollingBack)
	if err := run.r.rollback(run.dbPath, run.result.SnapshotPath, run.hadDB); err != nil {
		run.result.State = StateRollbackFailed
		run.result.Success = false
		run.result.RollbackExecuted = false
		run.result.Message = "Restore failed and rollback failed"
		run.result.addError("Rollback failed: %v", err)
		run.noteManualRecovery()
		run.log.Error().Err(err).Str("snapshot", run.result.SnapshotPath).Msg("Rollback failed")
		return
	}

	run.result.State = StateRolledBack
	run.result.Success = false
	run.result.RollbackExecuted = true
	run.result.Message = "Restore failed, database rolled back to pre-restore state"
	run.log.Warn().Str("snapshot", run.result.SnapshotPath).Msg("Restore rolled back")
}

func (run *restoreRun) noteManualRecovery() {
	if run.result.SnapshotPath != "" {
		run.result.addError("Pre-restore snapshot kept at %s for manual recovery", run.result.SnapshotPath)
	}
}

func (run *restoreRun) succeed() {
	run.result.State = StateSuccess
	run.result.Success = true
	run.result.Message = "Restore completed successfully"

	if run.opts.CleanupSnapshot && run.result.SnapshotPath != "" {
		if err := run.r.store.fs.Remove(run.result.SnapshotPath); err != nil {
			run.log.Warn().Err(err).Str("snapshot", run.result.SnapshotPath).Msg("Failed to remove pre-restore snapshot")
			run.result.addError("Snapshot cleanup failed: %v", err)
		} else {
			run.result.SnapshotPath = ""
		}
	}

	run.log.Info().Str("backup", run.result.BackupPath).Msg("Restore completed")
}

// rollback puts the database back into its pre-restore state: the snapshot
// when one was taken, otherwise no database at all.
func (r *Restorer) rollback(dbPath, snapshotPath string, hadDB bool) error {
	if dbPath == "" {
		return nil
	}

	fs := r.store.fs
	for _, err := range removeSidecars(fs, dbPath) {
		logging.Warn().Err(err).Str("database", dbPath).Msg("Failed to remove database sidecar during rollback")
	}

	if !hadDB {
		if err := fs.Remove(dbPath); err != nil && fileExists(fs, dbPath) {
			return fmt.Errorf("remove restored database: %w", err)
		}
		return nil
	}
	if snapshotPath == "" || !fileExists(fs, snapshotPath) {
		return fmt.Errorf("pre-restore snapshot %q is missing", snapshotPath)
	}
	return replaceFile(fs, snapshotPath, dbPath)
}

// snapshotPath returns a free pre-restore-{ts}.db path.
func (r *Restorer) snapshotPath(dbPath string) string {
	dir := r.cfg.SnapshotDir
	if dir == "" {
		dir = filepath.Dir(dbPath)
	}
	name := uniqueName(SnapshotName(r.now()), func(n string) bool {
		_, err := r.store.fs.Stat(filepath.Join(dir, n))
		return err == nil
	})
	return filepath.Join(dir, name)
}

// safeExtract runs the extraction step, converting a panic into an error so
// it takes the same rollback branch as a reported failure.
func (r *Restorer) safeExtract(ctx context.Context, backupPath, configDir string) (report *ExtractReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.Ctx(ctx).Error().Interface("panic", p).Msg("Panic during restore")
			report, err = nil, fmt.Errorf("unexpected error: %v", p)
		}
	}()
	return r.extract(ctx, backupPath, configDir, r.cfg.DatabaseFile)
}
