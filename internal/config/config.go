// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

// Package config loads stowage configuration from layered sources
// (built-in defaults, an optional YAML file, environment variables) using
// koanf v2, and validates the result.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomtom215/stowage/internal/validation"
)

// Config is the complete stowage configuration.
type Config struct {
	Backup    BackupConfig    `koanf:"backup"`
	Retention RetentionConfig `koanf:"retention"`
	Health    HealthConfig    `koanf:"health"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// BackupConfig describes what is protected and where archives live.
type BackupConfig struct {
	// ConfigRoot is the directory tree captured by each backup.
	ConfigRoot string `koanf:"config_root" validate:"required"`

	// BackupsDir receives the archives.
	BackupsDir string `koanf:"backups_dir" validate:"required"`

	// DatabaseFile is the SQLite database, relative to ConfigRoot.
	// Empty means the tree has no database.
	DatabaseFile string `koanf:"database_file"`

	// AppName is embedded in archive names: {prefix}{app_name}-backup-{ts}.zip
	AppName string `koanf:"app_name" validate:"required,filename_token"`

	// AppVersion is recorded in backup_meta.json and drives image tag suggestions.
	AppVersion string `koanf:"app_version"`

	// CompressionLevel is the deflate level for archive members (-1 default, 0-9).
	CompressionLevel int `koanf:"compression_level" validate:"min=-1,max=9"`

	// SnapshotDir receives pre-restore snapshots. Defaults to BackupsDir.
	SnapshotDir string `koanf:"snapshot_dir"`

	// ImageRepository is the container image used for tag suggestions.
	ImageRepository string `koanf:"image_repository"`

	// MigrationsDir holds the *.sql migrations used to resolve the schema head.
	// Empty disables the schema gate.
	MigrationsDir string `koanf:"migrations_dir"`
}

// DatabasePath returns the absolute path of the live database, or "" when none is configured.
func (b *BackupConfig) DatabasePath() string {
	if b.DatabaseFile == "" {
		return ""
	}
	return filepath.Join(b.ConfigRoot, b.DatabaseFile)
}

// SnapshotDirectory returns where pre-restore snapshots are written.
func (b *BackupConfig) SnapshotDirectory() string {
	if b.SnapshotDir != "" {
		return b.SnapshotDir
	}
	return b.BackupsDir
}

// RetentionConfig mirrors the retention policy. RetainCount is a pointer so
// that an absent key (nil, count pruning skipped) stays distinct from 0
// (delete every archive).
type RetentionConfig struct {
	RetainCount        *int `koanf:"retain_count,omitempty" validate:"omitempty,gte=0"`
	RetainDays         int  `koanf:"retain_days" validate:"gte=0"`
	PreRestoreKeepDays int  `koanf:"pre_restore_keep_days" validate:"gte=0"`
}

// HealthConfig tunes the backup health check.
type HealthConfig struct {
	MinBackups          int `koanf:"min_backups" validate:"gte=0"`
	StaleThresholdHours int `koanf:"stale_threshold_hours" validate:"gt=0"`
}

// EventsConfig controls alert publishing through the in-process event bus.
type EventsConfig struct {
	Enabled            bool          `koanf:"enabled"`
	Topic              string        `koanf:"topic"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" validate:"gte=1"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks struct rules and the cross-field constraints.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if db := c.Backup.DatabaseFile; db != "" {
		if filepath.IsAbs(db) {
			return fmt.Errorf("backup.database_file must be relative to backup.config_root, got %q", db)
		}
		if clean := filepath.Clean(db); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("backup.database_file escapes backup.config_root: %q", db)
		}
	}

	if c.Events.Enabled && c.Events.Topic == "" {
		return fmt.Errorf("events.topic is required when events are enabled")
	}
	if c.Events.BreakerTimeout < 0 {
		return fmt.Errorf("events.breaker_timeout must not be negative")
	}

	return nil
}
