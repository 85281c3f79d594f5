// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

/*
monitor.go - Backup Health Monitor

The Monitor keeps in-process counters for backup, restore and prune outcomes
and evaluates the state of the backups directory on demand.

Health Rules:
  - no archives:                        error
  - fewer than MinBackups archives:     warning
  - newest archive older than the
    stale threshold:                    at least warning

Total size and oldest age are reported but never alert.

Every Record* call updates the counters and Prometheus collectors and emits a
"backup.alert" event carrying message, level and timestamp plus
call-specific fields. Counters reset only when the process restarts. A
Monitor is constructed once at the composition root and passed to the
components that report to it.
*/

//nolint:staticcheck // File documentation, not package doc
package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tomtom215/stowage/internal/backup"
	"github.com/tomtom215/stowage/internal/events"
	"github.com/tomtom215/stowage/internal/logging"
	"github.com/tomtom215/stowage/internal/metrics"
)

// Status is the overall health verdict.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// severity orders statuses so a check can only raise the verdict.
func (s Status) severity() int {
	switch s {
	case StatusError:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Alert levels carried in event payloads.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Config tunes the health check.
type Config struct {
	BackupsDir          string
	MinBackups          int
	StaleThresholdHours int
}

// Report is the result of CheckHealth.
type Report struct {
	Status         Status    `json:"status"`
	Alerts         []string  `json:"alerts"`
	BackupCount    int       `json:"backup_count"`
	MinBackups     int       `json:"min_backups"`
	NewestBackup   string    `json:"newest_backup,omitempty"`
	NewestAgeHours int       `json:"newest_age_hours"`
	OldestAgeHours int       `json:"oldest_age_hours"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	TotalSize      string    `json:"total_size"`
	CheckedAt      time.Time `json:"checked_at"`
}

// Snapshot is a copy of the monitor counters.
type Snapshot struct {
	BackupsSucceeded     int        `json:"backups_succeeded"`
	BackupsFailed        int        `json:"backups_failed"`
	RestoresSucceeded    int        `json:"restores_succeeded"`
	RestoresFailed       int        `json:"restores_failed"`
	Rollbacks            int        `json:"rollbacks"`
	PreRestoreSnapshots  int        `json:"pre_restore_snapshots"`
	ArchivesPruned       int        `json:"archives_pruned"`
	PruneFailures        int        `json:"prune_failures"`
	LastBackupAt         *time.Time `json:"last_backup_at,omitempty"`
	LastBackupSizeBytes  int64      `json:"last_backup_size_bytes"`
	LastRestoreAt        *time.Time `json:"last_restore_at,omitempty"`
	LastPreRestoreAt     *time.Time `json:"last_pre_restore_at,omitempty"`
	LastSnapshotPath     string     `json:"last_snapshot_path,omitempty"`
}

// Monitor tracks backup health. It implements backup.Recorder and is safe
// for concurrent use.
type Monitor struct {
	store *backup.Store
	cfg   Config
	sink  events.Sink
	now   func() time.Time

	mu       sync.Mutex
	counters Snapshot
}

var _ backup.Recorder = (*Monitor)(nil)

// NewMonitor creates a Monitor. sink may be nil.
func NewMonitor(store *backup.Store, cfg Config, sink events.Sink) *Monitor {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Monitor{
		store: store,
		cfg:   cfg,
		sink:  sink,
		now:   time.Now,
	}
}

// CheckHealth evaluates the backups directory.
func (m *Monitor) CheckHealth() Report {
	now := m.now()
	archives := m.store.ListBackups(m.cfg.BackupsDir, "")

	report := Report{
		Status:      StatusOK,
		Alerts:      []string{},
		BackupCount: len(archives),
		MinBackups:  m.cfg.MinBackups,
		CheckedAt:   now.UTC(),
	}
	raise := func(s Status, format string, args ...interface{}) {
		if s.severity() > report.Status.severity() {
			report.Status = s
		}
		report.Alerts = append(report.Alerts, fmt.Sprintf(format, args...))
	}

	if len(archives) == 0 {
		raise(StatusError, "No backups found in %s; run 'stowage create' and check the backup schedule", m.cfg.BackupsDir)
		report.TotalSize = humanize.Bytes(0)
		m.publishHealth(report)
		return report
	}

	newest, oldest := archives[0], archives[0]
	for _, a := range archives {
		report.TotalSizeBytes += a.Size
		if a.ModTime.After(newest.ModTime) {
			newest = a
		}
		if a.ModTime.Before(oldest.ModTime) {
			oldest = a
		}
	}
	newestAge := now.Sub(newest.ModTime)
	report.NewestBackup = newest.Name
	report.NewestAgeHours = wholeHours(newestAge)
	report.OldestAgeHours = wholeHours(now.Sub(oldest.ModTime))
	report.TotalSize = humanize.Bytes(uint64(report.TotalSizeBytes)) //nolint:gosec // G115: size is non-negative

	if len(archives) < m.cfg.MinBackups {
		raise(StatusWarning, "Only %d backups found, minimum is %d", len(archives), m.cfg.MinBackups)
	}
	// Compare the exact age; the report only carries whole hours.
	if m.cfg.StaleThresholdHours > 0 && newestAge > time.Duration(m.cfg.StaleThresholdHours)*time.Hour {
		raise(StatusWarning, "Newest backup %s is %d hours old (threshold %d hours)",
			newest.Name, report.NewestAgeHours, m.cfg.StaleThresholdHours)
	}

	m.publishHealth(report)
	return report
}

func (m *Monitor) publishHealth(report Report) {
	metrics.RecordHealth(report.Status.severity(), report.BackupCount, report.TotalSizeBytes, report.NewestAgeHours)

	e := logging.Info()
	if report.Status != StatusOK {
		e = logging.Warn()
	}
	e.Str("status", string(report.Status)).
		Int("backups", report.BackupCount).
		Int("newest_age_hours", report.NewestAgeHours).
		Str("total_size", report.TotalSize).
		Strs("alerts", report.Alerts).
		Msg("Backup health checked")
}

func wholeHours(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Hour)
}

// Metrics returns a copy of the counters.
func (m *Monitor) Metrics() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}

// RecordBackupCreated implements backup.Recorder.
func (m *Monitor) RecordBackupCreated(success bool, path string, size int64) {
	now := m.now()
	m.mu.Lock()
	if success {
		m.counters.BackupsSucceeded++
		m.counters.LastBackupAt = &now
		m.counters.LastBackupSizeBytes = size
	} else {
		m.counters.BackupsFailed++
	}
	m.mu.Unlock()

	metrics.RecordBackup(success, size, now)

	if success {
		m.alert(now, LevelInfo, "Backup created", map[string]any{
			"path":       path,
			"size_bytes": size,
			"size":       humanize.Bytes(uint64(size)), //nolint:gosec // G115: size is non-negative
		})
		return
	}
	m.alert(now, LevelError, "Backup creation failed", map[string]any{"path": path})
}

// RecordBackupRestored implements backup.Recorder.
func (m *Monitor) RecordBackupRestored(success bool, backupPath string, rollbackExecuted bool, message string) {
	now := m.now()
	m.mu.Lock()
	if success {
		m.counters.RestoresSucceeded++
	} else {
		m.counters.RestoresFailed++
	}
	if rollbackExecuted {
		m.counters.Rollbacks++
	}
	m.counters.LastRestoreAt = &now
	m.mu.Unlock()

	metrics.RecordRestore(success, rollbackExecuted, now)

	fields := map[string]any{
		"backup_path":       backupPath,
		"rollback_executed": rollbackExecuted,
		"detail":            message,
	}
	switch {
	case success:
		m.alert(now, LevelInfo, "Restore completed", fields)
	case rollbackExecuted:
		m.alert(now, LevelWarning, "Restore failed, database rolled back", fields)
	default:
		m.alert(now, LevelError, "Restore failed", fields)
	}
}

// RecordPreRestoreSnapshot implements backup.Recorder.
func (m *Monitor) RecordPreRestoreSnapshot(path string) {
	now := m.now()
	m.mu.Lock()
	m.counters.PreRestoreSnapshots++
	m.counters.LastPreRestoreAt = &now
	m.counters.LastSnapshotPath = path
	m.mu.Unlock()

	metrics.RecordPreRestoreSnapshot()
	m.alert(now, LevelInfo, "Pre-restore snapshot created", map[string]any{"snapshot_path": path})
}

// RecordPruned implements backup.Recorder.
func (m *Monitor) RecordPruned(deleted, failed int) {
	now := m.now()
	m.mu.Lock()
	m.counters.ArchivesPruned += deleted
	m.counters.PruneFailures += failed
	m.mu.Unlock()

	metrics.RecordPrune(deleted, failed)

	level := LevelInfo
	if failed > 0 {
		level = LevelWarning
	}
	m.alert(now, level, fmt.Sprintf("Retention pruned %d archives", deleted), map[string]any{
		"deleted": deleted,
		"failed":  failed,
	})
}

// alert emits a backup.alert event. fields never override the standard keys.
func (m *Monitor) alert(at time.Time, level, message string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		payload[k] = v
	}
	payload["message"] = message
	payload["level"] = level
	payload["timestamp"] = at.UTC().Format(time.RFC3339)

	m.sink.Emit(events.AlertEventType, payload)
}
