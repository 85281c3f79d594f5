// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package events

import (
	"github.com/rs/zerolog"
	"github.com/tomtom215/stowage/internal/logging"
)

// AlertEventType is the event type used for backup health alerts.
const AlertEventType = "backup.alert"

// Sink receives events. Implementations must be safe for concurrent use and
// must not block the caller on transport failures.
type Sink interface {
	Emit(eventType string, payload map[string]any)
}

// NopSink discards every event.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(string, map[string]any) {}

// LogSink writes events to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink on the "events" component logger.
func NewLogSink() *LogSink {
	return &LogSink{logger: logging.WithComponent("events")}
}

// NewLogSinkWithLogger creates a LogSink on a specific logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewLogSinkWithLogger(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink. The payload "level" field selects the log level.
func (s *LogSink) Emit(eventType string, payload map[string]any) {
	level, _ := payload["level"].(string)
	var e *zerolog.Event
	switch level {
	case "error", "critical":
		e = s.logger.Error()
	case "warning", "warn":
		e = s.logger.Warn()
	default:
		e = s.logger.Info()
	}

	msg, _ := payload["message"].(string)
	if msg == "" {
		msg = eventType
	}
	e.Str("event_type", eventType).Fields(eventFields(payload)).Msg(msg)
}

// eventFields drops the keys that map onto zerolog's own message and level.
func eventFields(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "message" || k == "level" {
			continue
		}
		out[k] = v
	}
	return out
}

// MultiSink forwards each event to every sink in order.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(eventType string, payload map[string]any) {
	for _, s := range m {
		if s != nil {
			s.Emit(eventType, payload)
		}
	}
}
