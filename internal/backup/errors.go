// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition is wrapped by every PreconditionError.
	ErrPrecondition = errors.New("backup precondition failed")

	// ErrArchiveIO marks an operational failure while writing an archive.
	ErrArchiveIO = errors.New("archive I/O failed")
)

// PreconditionError reports caller misuse: a missing config root, a missing
// restore destination, or a file that is not an archive.
type PreconditionError struct {
	Op     string
	Path   string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Reason)
}

// Unwrap allows errors.Is(err, ErrPrecondition).
func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}

func preconditionf(op, path, format string, args ...interface{}) error {
	return &PreconditionError{Op: op, Path: path, Reason: fmt.Sprintf(format, args...)}
}

func archiveIOError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrArchiveIO, step, err)
}
