// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/tomtom215/stowage/internal/backup"
	"github.com/tomtom215/stowage/internal/config"
	"github.com/tomtom215/stowage/internal/events"
	"github.com/tomtom215/stowage/internal/health"
	"github.com/tomtom215/stowage/internal/logging"
	"github.com/tomtom215/stowage/internal/recovery"
)

// app holds every component one command may need. It is built once per
// process by the root pre-run hook.
type app struct {
	cfg *config.Config

	store    *backup.Store
	archiver *backup.Archiver
	pruner   *backup.Pruner
	restorer *backup.Restorer
	monitor  *health.Monitor

	bus       *events.Bus
	publisher *events.Publisher
}

// newApp wires the components. The Monitor is the recorder for the
// archiver, pruner and restorer, and its alerts go to the event sink.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	sink, err := a.initEvents(ctx)
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	a.store = backup.NewStore(fs, cfg.Backup.AppName)
	a.monitor = health.NewMonitor(a.store, health.Config{
		BackupsDir:          cfg.Backup.BackupsDir,
		MinBackups:          cfg.Health.MinBackups,
		StaleThresholdHours: cfg.Health.StaleThresholdHours,
	}, sink)

	schemaHead := schemaHeadFunc(cfg.Backup.MigrationsDir)

	a.archiver = backup.NewArchiver(fs, backup.ArchiverConfig{
		AppName:          cfg.Backup.AppName,
		AppVersion:       cfg.Backup.AppVersion,
		DatabaseFile:     cfg.Backup.DatabaseFile,
		CompressionLevel: cfg.Backup.CompressionLevel,
		SchemaHead:       schemaHead,
	}, a.monitor)
	a.pruner = backup.NewPruner(a.store, a.monitor)
	a.restorer = backup.NewRestorer(a.store, backup.RestorerConfig{
		DatabaseFile:    cfg.Backup.DatabaseFile,
		SnapshotDir:     cfg.Backup.SnapshotDirectory(),
		ImageRepository: cfg.Backup.ImageRepository,
		SchemaHead:      schemaHead,
	}, a.monitor)

	logging.Debug().
		Str("config_root", cfg.Backup.ConfigRoot).
		Str("backups_dir", cfg.Backup.BackupsDir).
		Bool("events", cfg.Events.Enabled).
		Msg("Application initialized")
	return a, nil
}

// initEvents builds the alert sink. With events enabled alerts travel over
// the in-process bus, behind a circuit breaker, to a logging consumer.
func (a *app) initEvents(ctx context.Context) (events.Sink, error) {
	if !a.cfg.Events.Enabled {
		return events.NewLogSink(), nil
	}

	a.bus = events.NewBus(logging.NewWatermillAdapter())

	breaker := events.DefaultCircuitBreakerConfig("alert-publisher")
	breaker.FailureThreshold = a.cfg.Events.BreakerMaxFailures
	if a.cfg.Events.BreakerTimeout > 0 {
		breaker.Timeout = a.cfg.Events.BreakerTimeout
	}
	a.publisher = events.NewPublisher(a.bus, events.PublisherConfig{
		Topic:          a.cfg.Events.Topic,
		CircuitBreaker: breaker,
	})

	logSink := events.NewLogSink()
	if err := a.bus.Consume(ctx, a.publisher.Topic(), func(e *events.Event) {
		logSink.Emit(e.Type, e.Payload)
	}); err != nil {
		a.bus.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("failed to start alert consumer: %w", err)
	}
	return a.publisher, nil
}

// Close releases the event bus.
func (a *app) Close() error {
	if a.publisher != nil {
		a.publisher.Close() //nolint:errcheck // Only flips the closed flag
	}
	if a.bus != nil {
		return a.bus.Close()
	}
	return nil
}

// schemaHeadFunc resolves the live migration head lazily so commands that
// never consult it do not read the migrations directory.
func schemaHeadFunc(dir string) func() string {
	if dir == "" {
		return func() string { return "" }
	}
	set := recovery.NewMigrationSet(dir)
	return set.Head
}

// resolveArchive accepts a path or a bare archive name inside the backups
// directory.
func (a *app) resolveArchive(arg string) string {
	if filepath.Base(arg) == arg {
		return filepath.Join(a.cfg.Backup.BackupsDir, arg)
	}
	return arg
}
