// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tomtom215/stowage/internal/logging"
)

var createPrefix string

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup archive of the configuration directory",
	Long: `Create a timestamped zip archive of the configuration directory.

The SQLite database is captured through a consistent snapshot, never copied
while it may be written. The archive is written under a temporary name and
renamed into place only when complete.`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createPrefix, "prefix", "", `archive name prefix, e.g. "auto-" for scheduled backups`)
}

func runCreate(cmd *cobra.Command, _ []string) error {
	cfg := current.cfg

	archive, err := current.archiver.CreateBackup(cmd.Context(), cfg.Backup.ConfigRoot, cfg.Backup.BackupsDir, createPrefix)
	if err != nil {
		logging.Error().Err(err).Str("config_root", cfg.Backup.ConfigRoot).Msg("Backup failed")
		return fmt.Errorf("backup failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, archive)
	}
	_, err = fmt.Fprintf(out, "Created %s (%s)\n", archive.Path, humanSize(archive.Size))
	return err
}
