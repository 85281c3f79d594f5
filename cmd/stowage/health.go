// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tomtom215/stowage/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that recent backups exist",
	Long: `Check the backups directory and report ok, warning or error.

Exits non-zero when the status is error. Warnings (too few archives, newest
archive older than health.stale_threshold_hours) exit zero so a scheduler
can alert on the printed status instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report := current.monitor.CheckHealth()

		out := cmd.OutOrStdout()
		var err error
		if jsonOutput {
			err = writeJSON(out, struct {
				health.Report
				Counters health.Snapshot `json:"counters"`
			}{report, current.monitor.Metrics()})
		} else {
			err = writeHealthReport(out, report)
		}
		if err != nil {
			return err
		}

		if report.Status == health.StatusError {
			return fmt.Errorf("backup health is %s", report.Status)
		}
		return nil
	},
}

func writeHealthReport(w io.Writer, r health.Report) error {
	fmt.Fprintf(w, "Status: %s\n", r.Status)                                  //nolint:errcheck // Best effort console output
	fmt.Fprintf(w, "Backups: %d (minimum %d)\n", r.BackupCount, r.MinBackups) //nolint:errcheck // Best effort console output
	if r.NewestBackup != "" {
		fmt.Fprintf(w, "Newest: %s (%d hours old)\n", r.NewestBackup, r.NewestAgeHours) //nolint:errcheck // Best effort console output
		fmt.Fprintf(w, "Oldest: %d hours old\n", r.OldestAgeHours)                      //nolint:errcheck // Best effort console output
	}
	fmt.Fprintf(w, "Total size: %s\n", r.TotalSize) //nolint:errcheck // Best effort console output
	for _, a := range r.Alerts {
		fmt.Fprintf(w, "  alert: %s\n", a) //nolint:errcheck // Best effort console output
	}
	return nil
}
