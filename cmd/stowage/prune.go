// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tomtom215/stowage/internal/backup"
	"github.com/tomtom215/stowage/internal/config"
)

var pruneDryRun bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archives outside the retention policy",
	Long: `Apply the configured retention policy to the backups directory.

Count pruning keeps the retention.retain_count newest archives; age pruning
deletes archives older than retention.retain_days, except "pre-" archives
younger than retention.pre_restore_keep_days. With no policy configured
nothing is deleted. Use --dry-run to preview the decisions.`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "show what would be deleted without deleting")
}

// retentionPolicy converts the configured retention settings.
func retentionPolicy(rc config.RetentionConfig) *backup.RetentionPolicy {
	return &backup.RetentionPolicy{
		RetainCount:        rc.RetainCount,
		RetainDays:         rc.RetainDays,
		PreRestoreKeepDays: rc.PreRestoreKeepDays,
	}
}

func runPrune(cmd *cobra.Command, _ []string) error {
	dir := current.cfg.Backup.BackupsDir
	policy := retentionPolicy(current.cfg.Retention)
	out := cmd.OutOrStdout()

	if pruneDryRun {
		plan, err := current.pruner.Plan(dir, policy)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, plan)
		}
		return writePlan(out, policy, plan)
	}

	result, err := current.pruner.Prune(dir, policy)
	if err != nil {
		return err
	}
	if jsonOutput {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Deleted %d archives, freed %s\n", len(result.Deleted), humanSize(result.FreedBytes)) //nolint:errcheck // Best effort console output
		for _, path := range result.Failed {
			fmt.Fprintf(out, "  failed: %s\n", path) //nolint:errcheck // Best effort console output
		}
	}

	if len(result.Failed) > 0 {
		return fmt.Errorf("%d archives could not be deleted", len(result.Failed))
	}
	return nil
}

func writePlan(w io.Writer, policy *backup.RetentionPolicy, plan *backup.PrunePlan) error {
	fmt.Fprintf(w, "Policy: %s\n", policy)                        //nolint:errcheck // Best effort console output
	fmt.Fprintf(w, "Would delete %d of %d archives (%s of %s)\n", //nolint:errcheck // Best effort console output
		plan.DeleteCount, plan.TotalArchives, humanSize(plan.DeleteSizeBytes), humanSize(plan.TotalSizeBytes))
	for _, item := range plan.WouldDelete {
		fmt.Fprintf(w, "  delete %s: %s\n", item.Name, strings.Join(item.Reasons, "; ")) //nolint:errcheck // Best effort console output
	}
	for _, item := range plan.WouldKeep {
		fmt.Fprintf(w, "  keep   %s: %s\n", item.Name, strings.Join(item.Reasons, "; ")) //nolint:errcheck // Best effort console output
	}
	return nil
}
