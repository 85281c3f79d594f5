// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tomtom215/stowage/internal/backup"
)

var (
	restoreForce           bool
	restoreNoRollback      bool
	restoreCleanupSnapshot bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <archive>",
	Short: "Restore an archive into the configuration directory",
	Long: `Restore an archive over the configuration directory.

The live database is snapshotted first. When extraction or the integrity
check fails the snapshot is copied back automatically unless --no-rollback
is given. A restore is refused when the archive was written at a different
schema revision than the migrations in use; --force skips that check.

Stop the application before restoring and never run two restores at once.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

var extractCmd = &cobra.Command{
	Use:   "extract <archive> <dir>",
	Short: "Extract an archive into a directory without snapshot or rollback",
	Long: `Extract an archive into an existing directory, for inspection or a manual
recovery. The database member is written to the configured database file
name. Nothing is snapshotted or rolled back.`,
	Args: cobra.ExactArgs(2),
	RunE: runExtract,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreForce, "force", false, "restore even when the schema revision does not match")
	restoreCmd.Flags().BoolVar(&restoreNoRollback, "no-rollback", false, "keep a failed restore in place instead of rolling back")
	restoreCmd.Flags().BoolVar(&restoreCleanupSnapshot, "cleanup-snapshot", false, "delete the pre-restore snapshot after a successful restore")
}

func runRestore(cmd *cobra.Command, args []string) error {
	path := current.resolveArchive(args[0])
	opts := backup.DefaultRestoreOptions()
	opts.AutoRollback = !restoreNoRollback
	opts.CleanupSnapshot = restoreCleanupSnapshot
	opts.Force = restoreForce

	result, err := current.restorer.RestoreWithRollback(cmd.Context(), path, current.cfg.Backup.ConfigRoot, opts)
	if result != nil {
		var writeErr error
		if jsonOutput {
			writeErr = writeJSON(cmd.OutOrStdout(), result)
		} else {
			writeErr = writeRestoreResult(cmd.OutOrStdout(), result)
		}
		if writeErr != nil && err == nil {
			err = writeErr
		}
	}
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("restore failed: %s", result.Message)
	}
	return nil
}

// writeRestoreResult prints the outcome. Errors are printed verbatim and the
// surviving snapshot path is always shown on failure.
func writeRestoreResult(w io.Writer, r *backup.RestoreResult) error {
	fmt.Fprintf(w, "%s (state %s, operation %s)\n", r.Message, r.State, r.OperationID) //nolint:errcheck // Best effort console output
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e) //nolint:errcheck // Best effort console output
	}
	if r.SuggestedImage != "" {
		fmt.Fprintf(w, "Run image %s to restore this archive\n", r.SuggestedImage) //nolint:errcheck // Best effort console output
	}
	if r.SnapshotPath != "" {
		fmt.Fprintf(w, "Pre-restore snapshot: %s\n", r.SnapshotPath) //nolint:errcheck // Best effort console output
	}
	if r.ManualRecoveryRequired() {
		_, err := fmt.Fprintf(w, "Manual recovery required: copy %s over the database\n", r.SnapshotPath)
		return err
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	path := current.resolveArchive(args[0])
	report, err := current.store.ExtractArchive(cmd.Context(), path, args[1], current.cfg.Backup.DatabaseFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Extracted %d of %d members into %s\n", len(report.Restored), report.Attempted, args[1]) //nolint:errcheck // Best effort console output
		for _, e := range report.Errors {
			fmt.Fprintf(out, "  error: %s\n", e) //nolint:errcheck // Best effort console output
		}
	}

	if report.Failed() {
		return fmt.Errorf("extraction failed")
	}
	return nil
}
