// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

// Package metrics defines the Prometheus collectors for backup health.
//
// Collectors register with the default registry on package load. The health
// monitor is the only writer for the backup/restore series; the event
// publisher writes the circuit breaker and event series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup Metrics
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stowage_backups_total",
			Help: "Total number of backup attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	LastBackupTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowage_last_backup_timestamp_seconds",
			Help: "Unix timestamp of the last successful backup",
		},
	)

	LastBackupSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowage_last_backup_size_bytes",
			Help: "Size of the last successful backup archive",
		},
	)

	// Restore Metrics
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stowage_restores_total",
			Help: "Total number of restore attempts by outcome",
		},
		[]string{"result"}, // "success", "failure"
	)

	RollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stowage_rollbacks_total",
			Help: "Total number of automatic rollbacks after a failed restore",
		},
	)

	PreRestoreSnapshotsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stowage_pre_restore_snapshots_total",
			Help: "Total number of pre-restore database snapshots taken",
		},
	)

	LastRestoreTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowage_last_restore_timestamp_seconds",
			Help: "Unix timestamp of the last restore attempt",
		},
	)

	// Retention Metrics
	PrunedArchivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stowage_pruned_archives_total",
			Help: "Total number of archives removed by retention",
		},
		[]string{"result"}, // "deleted", "failed"
	)

	// Health Metrics
	ArchiveCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowage_archives",
			Help: "Number of archives present at the last health check",
		},
	)

	ArchiveTotalSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowage_archives_size_bytes",
			Help: "Combined size of all archives at the last health check",
		},
	)

	NewestArchiveAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowage_newest_archive_age_hours",
			Help: "Age in whole hours of the newest archive at the last health check",
		},
	)

	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stowage_health_status",
			Help: "Backup health status (0=ok, 1=warning, 2=error)",
		},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stowage_events_published_total",
			Help: "Total number of alert events handed to the event bus",
		},
		[]string{"result"}, // "success", "failure", "rejected"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// resultLabel maps a success flag to the "result" label value.
func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordBackup records a backup attempt.
func RecordBackup(success bool, size int64, at time.Time) {
	BackupsTotal.WithLabelValues(resultLabel(success)).Inc()
	if success {
		LastBackupTimestamp.Set(float64(at.Unix()))
		LastBackupSize.Set(float64(size))
	}
}

// RecordRestore records a restore outcome.
func RecordRestore(success, rollbackExecuted bool, at time.Time) {
	RestoresTotal.WithLabelValues(resultLabel(success)).Inc()
	if rollbackExecuted {
		RollbacksTotal.Inc()
	}
	LastRestoreTimestamp.Set(float64(at.Unix()))
}

// RecordPreRestoreSnapshot records a pre-restore snapshot.
func RecordPreRestoreSnapshot() {
	PreRestoreSnapshotsTotal.Inc()
}

// RecordPrune records the outcome of one retention pass.
func RecordPrune(deleted, failed int) {
	PrunedArchivesTotal.WithLabelValues("deleted").Add(float64(deleted))
	PrunedArchivesTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordHealth records the result of a health check.
func RecordHealth(status int, archives int, totalSize int64, newestAgeHours int) {
	HealthStatus.Set(float64(status))
	ArchiveCount.Set(float64(archives))
	ArchiveTotalSize.Set(float64(totalSize))
	NewestArchiveAge.Set(float64(newestAgeHours))
}

// RecordEventPublish records an event publish attempt.
func RecordEventPublish(result string) {
	EventsPublished.WithLabelValues(result).Inc()
}

// RecordCircuitBreakerTransition records a breaker state change.
// State values follow gobreaker: 0=closed, 1=half-open, 2=open.
func RecordCircuitBreakerTransition(name, from, to string, toState int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(toState))
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}
