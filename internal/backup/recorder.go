// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

// Recorder receives the outcome of every backup operation. The health
// monitor implements it; the package never depends on the monitor directly.
type Recorder interface {
	RecordBackupCreated(success bool, path string, size int64)
	RecordBackupRestored(success bool, backupPath string, rollbackExecuted bool, message string)
	RecordPreRestoreSnapshot(path string)
	RecordPruned(deleted, failed int)
}

// NopRecorder discards every record.
type NopRecorder struct{}

func (NopRecorder) RecordBackupCreated(bool, string, int64)          {}
func (NopRecorder) RecordBackupRestored(bool, string, bool, string) {}
func (NopRecorder) RecordPreRestoreSnapshot(string)                 {}
func (NopRecorder) RecordPruned(int, int)                           {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return NopRecorder{}
	}
	return r
}
