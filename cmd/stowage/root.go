// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tomtom215/stowage/internal/config"
	"github.com/tomtom215/stowage/internal/logging"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Global flags.
	configFile  string
	logLevel    string
	logFormat   string
	jsonOutput  bool
	metricsFile string

	// current is the application built by the root pre-run hook.
	current *app
)

var rootCmd = &cobra.Command{
	Use:   "stowage",
	Short: "Configuration and database backup with safe restore",
	Long: `stowage backs up a configuration directory and its SQLite database:
  - Consistent database snapshots via the SQLite online backup API
  - Atomic, timestamped zip archives
  - Count and age based retention with a grace period for pre-restore archives
  - Health checks for missing or stale backups
  - Restore with a pre-restore snapshot and automatic rollback

Use as a one-shot command with an external scheduler (cron, systemd timer, etc.)`,
	SilenceUsage: true,
	Version:      Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithKoanf(configFile)
		if err != nil {
			return err
		}
		if err := applyLogFlags(cfg); err != nil {
			return err
		}
		logging.Init(logging.Config{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			Caller:    cfg.Logging.Caller,
			Timestamp: true,
		})

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: $STOWAGE_CONFIG or the standard search paths)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or console")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print command results as JSON")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit (textfile collector format)")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(extractCmd)
}

// applyLogFlags lets command line flags override the configured logging.
func applyLogFlags(cfg *config.Config) error {
	if logLevel != "" {
		if !logging.ValidLevel(logLevel) {
			return fmt.Errorf("invalid --log-level %q", logLevel)
		}
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		if logFormat != "json" && logFormat != "console" {
			return fmt.Errorf("invalid --log-format %q", logFormat)
		}
		cfg.Logging.Format = logFormat
	}
	return nil
}

// Execute runs the root command, then releases the application and writes
// the metrics file even when the command failed.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One correlation ID per invocation groups every log line of the command.
	ctx = logging.ContextWithNewCorrelationID(ctx)

	// cobra only fills a subcommand context that is still nil, so a context
	// from an earlier Execute in the same process would otherwise stick.
	for _, c := range rootCmd.Commands() {
		c.SetContext(ctx)
	}
	err := rootCmd.ExecuteContext(ctx)

	if current != nil {
		if closeErr := current.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("Error shutting down")
		}
	}

	if metricsFile != "" {
		if writeErr := prometheus.WriteToTextfile(metricsFile, prometheus.DefaultGatherer); writeErr != nil {
			logging.Error().Err(writeErr).Str("file", metricsFile).Msg("Failed to write metrics file")
			if err == nil {
				err = fmt.Errorf("write metrics file: %w", writeErr)
			}
		}
	}
	return err
}
