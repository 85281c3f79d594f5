// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

/*
Package events delivers backup alerts to interested consumers.

Components emit alerts through the Sink interface. Three sinks are provided:

  - LogSink writes each event as a structured log line
  - Publisher serializes events to JSON and publishes them on a watermill
    topic, guarded by a circuit breaker
  - MultiSink fans an event out to several sinks

Bus wraps an in-process watermill GoChannel so the CLI can publish and
consume alerts without an external broker:

	bus := events.NewBus(logging.NewWatermillAdapter())
	pub := events.NewPublisher(bus, events.DefaultPublisherConfig())
	monitor := health.NewMonitor(store, cfg, pub)

Emit never blocks on a failing transport. When the breaker is open, events
are dropped and counted in stowage_events_published_total{result="rejected"}.
*/
package events
