// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/tomtom215/stowage/internal/backup"
)

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// humanSize formats a byte count, e.g. "1.2 MB".
func humanSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n)) //nolint:gosec // G115: clamped above
}

// writeArchiveTable prints one row per archive, newest first.
func writeArchiveTable(w io.Writer, archives []backup.Archive) error {
	if len(archives) == 0 {
		_, err := fmt.Fprintln(w, "No backups found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED\tAGE") //nolint:errcheck // Flushed below
	for _, a := range archives {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", //nolint:errcheck // Flushed below
			a.Name, humanSize(a.Size), a.ModTime.UTC().Format(time.RFC3339), humanize.Time(a.ModTime))
	}
	return tw.Flush()
}

// writeArchiveDetail prints everything known about one archive.
func writeArchiveDetail(w io.Writer, a *backup.Archive) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(label, format string, args ...interface{}) {
		fmt.Fprintf(tw, label+":\t"+format+"\n", args...) //nolint:errcheck // Flushed below
	}

	row("Name", "%s", a.Name)
	row("Path", "%s", a.Path)
	row("Size", "%s (%d bytes)", humanSize(a.Size), a.Size)
	row("Modified", "%s", a.ModTime.UTC().Format(time.RFC3339))
	if !a.CreatedAt.IsZero() {
		row("Created", "%s", a.CreatedAt.UTC().Format(time.RFC3339))
	}
	if a.Prefix != "" {
		row("Prefix", "%s", a.Prefix)
	}
	if a.Meta != nil {
		row("App version", "%s", a.Meta.AppVersion)
		if rev := a.Meta.Revision(); rev != "" {
			row("Schema revision", "%s", rev)
		}
	}
	row("Members", "%d", len(a.Files))
	for _, f := range a.Files {
		fmt.Fprintf(tw, "\t%s\n", f) //nolint:errcheck // Flushed below
	}
	return tw.Flush()
}
