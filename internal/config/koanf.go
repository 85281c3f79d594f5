// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"stowage.yaml",
	"stowage.yml",
	"/etc/stowage/config.yaml",
	"/etc/stowage/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "STOWAGE_CONFIG"

// DefaultImageRepository is the container image suggested when a restore is
// blocked by a schema mismatch.
const DefaultImageRepository = "ghcr.io/tomtom215/stowage"

// defaultConfig returns the built-in defaults. They are applied first, then
// overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Backup: BackupConfig{
			ConfigRoot:       "/config",
			BackupsDir:       "/config/backups",
			DatabaseFile:     "stowage.db",
			AppName:          "stowage",
			CompressionLevel: 6,
			ImageRepository:  DefaultImageRepository,
		},
		Retention: RetentionConfig{
			RetainCount:        nil, // absent: count pruning disabled
			RetainDays:         0,
			PreRestoreKeepDays: 0,
		},
		Health: HealthConfig{
			MinBackups:          1,
			StaleThresholdHours: 26, // daily schedule plus slack
		},
		Events: EventsConfig{
			Enabled:            true,
			Topic:              "backup.alert",
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration with koanf v2 from layered sources:
//  1. Defaults: built-in values
//  2. Config file: explicit path, STOWAGE_CONFIG, or the first of DefaultConfigPaths
//  3. Environment variables: highest priority
//
// An explicit path that does not exist is an error; a missing default file is not.
func LoadWithKoanf(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := path
	if configPath == "" {
		configPath = findConfigFile()
	} else if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := applyLegacyKeys(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyLegacyKeys folds retention.retention_count into retention.retain_count
// when only the legacy spelling is present. Presence is preserved, so a legacy
// value of 0 still means "delete every archive".
func applyLegacyKeys(k *koanf.Koanf) error {
	const legacy, current = "retention.retention_count", "retention.retain_count"
	if k.Exists(current) || !k.Exists(legacy) {
		return nil
	}
	if err := k.Set(current, k.Get(legacy)); err != nil {
		return fmt.Errorf("failed to set %s: %w", current, err)
	}
	return nil
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Backup mappings
	"stowage_config_root":       "backup.config_root",
	"stowage_backups_dir":       "backup.backups_dir",
	"stowage_database_file":     "backup.database_file",
	"stowage_app_name":          "backup.app_name",
	"stowage_app_version":       "backup.app_version",
	"stowage_compression_level": "backup.compression_level",
	"stowage_snapshot_dir":      "backup.snapshot_dir",
	"stowage_image_repository":  "backup.image_repository",
	"stowage_migrations_dir":    "backup.migrations_dir",

	// Retention mappings
	"stowage_retain_count":          "retention.retain_count",
	"stowage_retention_count":       "retention.retention_count",
	"stowage_retain_days":           "retention.retain_days",
	"stowage_pre_restore_keep_days": "retention.pre_restore_keep_days",

	// Health mappings
	"stowage_health_min_backups":     "health.min_backups",
	"stowage_health_stale_hours":     "health.stale_threshold_hours",
	"stowage_events_enabled":         "events.enabled",
	"stowage_events_topic":           "events.topic",
	"stowage_events_breaker_failure": "events.breaker_max_failures",
	"stowage_events_breaker_timeout": "events.breaker_timeout",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped.
//
// Examples:
//   - STOWAGE_BACKUPS_DIR -> backup.backups_dir
//   - STOWAGE_RETAIN_COUNT -> retention.retain_count
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
