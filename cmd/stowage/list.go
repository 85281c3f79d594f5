// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listPattern string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup archives, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		archives := current.store.ListBackups(current.cfg.Backup.BackupsDir, listPattern)
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), archives)
		}
		return writeArchiveTable(cmd.OutOrStdout(), archives)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <archive>",
	Short: "Show details of one archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := current.resolveArchive(args[0])
		info := current.store.GetBackupInfo(path)
		if info == nil {
			return fmt.Errorf("archive not found: %s", path)
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), info)
		}
		return writeArchiveDetail(cmd.OutOrStdout(), info)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <archive>",
	Short: "Check that an archive is a readable zip with intact members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := current.resolveArchive(args[0])
		valid := current.store.ValidateBackup(path)

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := writeJSON(out, map[string]interface{}{"path": path, "valid": valid}); err != nil {
				return err
			}
		} else if valid {
			fmt.Fprintf(out, "%s: valid\n", path) //nolint:errcheck // Best effort console output
		} else {
			fmt.Fprintf(out, "%s: INVALID\n", path) //nolint:errcheck // Best effort console output
		}

		if !valid {
			return fmt.Errorf("archive is not valid: %s", path)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <archive>",
	Short: "Delete one archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := current.resolveArchive(args[0])
		if err := current.store.DeleteBackup(path); err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"deleted": path})
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", path)
		return err
	},
}
