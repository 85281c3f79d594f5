// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordBackup(t *testing.T) {
	beforeOK := testutil.ToFloat64(BackupsTotal.WithLabelValues("success"))
	beforeFail := testutil.ToFloat64(BackupsTotal.WithLabelValues("failure"))

	at := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	RecordBackup(true, 4096, at)
	RecordBackup(false, 0, at.Add(time.Hour))

	if got := testutil.ToFloat64(BackupsTotal.WithLabelValues("success")) - beforeOK; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(BackupsTotal.WithLabelValues("failure")) - beforeFail; got != 1 {
		t.Errorf("failure delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LastBackupTimestamp); got != float64(at.Unix()) {
		t.Errorf("LastBackupTimestamp = %v, want %v (failed backup must not move it)", got, at.Unix())
	}
	if got := testutil.ToFloat64(LastBackupSize); got != 4096 {
		t.Errorf("LastBackupSize = %v, want 4096", got)
	}
}

func TestRecordRestore(t *testing.T) {
	beforeRollbacks := testutil.ToFloat64(RollbacksTotal)
	beforeFail := testutil.ToFloat64(RestoresTotal.WithLabelValues("failure"))

	RecordRestore(false, true, time.Now())
	RecordRestore(false, false, time.Now())

	if got := testutil.ToFloat64(RollbacksTotal) - beforeRollbacks; got != 1 {
		t.Errorf("rollback delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RestoresTotal.WithLabelValues("failure")) - beforeFail; got != 2 {
		t.Errorf("failure delta = %v, want 2", got)
	}
}

func TestRecordPrune(t *testing.T) {
	beforeDeleted := testutil.ToFloat64(PrunedArchivesTotal.WithLabelValues("deleted"))
	beforeFailed := testutil.ToFloat64(PrunedArchivesTotal.WithLabelValues("failed"))

	RecordPrune(3, 1)

	if got := testutil.ToFloat64(PrunedArchivesTotal.WithLabelValues("deleted")) - beforeDeleted; got != 3 {
		t.Errorf("deleted delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(PrunedArchivesTotal.WithLabelValues("failed")) - beforeFailed; got != 1 {
		t.Errorf("failed delta = %v, want 1", got)
	}
}

func TestRecordHealth(t *testing.T) {
	RecordHealth(1, 4, 1<<20, 30)

	if got := testutil.ToFloat64(HealthStatus); got != 1 {
		t.Errorf("HealthStatus = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ArchiveCount); got != 4 {
		t.Errorf("ArchiveCount = %v, want 4", got)
	}
	if got := testutil.ToFloat64(ArchiveTotalSize); got != 1<<20 {
		t.Errorf("ArchiveTotalSize = %v", got)
	}
	if got := testutil.ToFloat64(NewestArchiveAge); got != 30 {
		t.Errorf("NewestArchiveAge = %v, want 30", got)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	before := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("events", "closed", "open"))

	RecordCircuitBreakerTransition("events", "closed", "open", 2)

	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("events")); got != 2 {
		t.Errorf("CircuitBreakerState = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("events", "closed", "open")) - before; got != 1 {
		t.Errorf("transition delta = %v, want 1", got)
	}
}
