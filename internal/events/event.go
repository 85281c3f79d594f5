// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// SchemaVersion is the current event envelope version.
const SchemaVersion = 1

// Event is the envelope published on the bus.
type Event struct {
	SchemaVersion int            `json:"schema_version"`
	EventID       string         `json:"event_id"`
	Type          string         `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	Payload       map[string]any `json:"payload"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(eventType string, payload map[string]any) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Event{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.NewString(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
}

// Validate checks the required envelope fields.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// SerializeEvent converts an event to JSON bytes.
func SerializeEvent(event *Event) ([]byte, error) {
	return json.Marshal(event)
}

// DeserializeEvent converts JSON bytes back to an event.
func DeserializeEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
