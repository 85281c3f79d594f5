// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tomtom215/stowage/internal/logging"
)

func TestEventRoundTrip(t *testing.T) {
	event := NewEvent(AlertEventType, map[string]any{"message": "Backup failed", "level": "error"})
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	data, err := SerializeEvent(event)
	if err != nil {
		t.Fatalf("SerializeEvent() error = %v", err)
	}
	got, err := DeserializeEvent(data)
	if err != nil {
		t.Fatalf("DeserializeEvent() error = %v", err)
	}
	if got.EventID != event.EventID || got.Type != AlertEventType || got.Payload["message"] != "Backup failed" {
		t.Errorf("DeserializeEvent() = %+v", got)
	}
	if got.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d", got.SchemaVersion)
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{"missing id", Event{Type: "t", Timestamp: time.Now()}},
		{"missing type", Event{EventID: "id", Timestamp: time.Now()}},
		{"missing timestamp", Event{EventID: "id", Type: "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.event.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestPublisher_DeliversThroughBus(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	received := make(chan *Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bus.Consume(ctx, DefaultTopic, func(e *Event) { received <- e }); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	pub := NewPublisher(bus, DefaultPublisherConfig())
	pub.Emit(AlertEventType, map[string]any{
		"message":   "No backups found",
		"level":     "error",
		"timestamp": "2026-06-01T00:00:00Z",
	})

	select {
	case e := <-received:
		if e.Type != AlertEventType {
			t.Errorf("Type = %q", e.Type)
		}
		for _, key := range []string{"message", "level", "timestamp"} {
			if _, ok := e.Payload[key]; !ok {
				t.Errorf("payload missing %s: %v", key, e.Payload)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublisher_Closed(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	pub := NewPublisher(bus, DefaultPublisherConfig())
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pub.Publish(context.Background(), NewEvent("x", nil)); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("Publish() after Close error = %v", err)
	}

	// Emit on a closed publisher is dropped without panicking.
	pub.Emit("x", nil)
}

// failingPublisher rejects every publish.
type failingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("broker unavailable")
}

func (f *failingPublisher) Close() error { return nil }

func TestPublisher_CircuitOpensAfterFailures(t *testing.T) {
	fake := &failingPublisher{}
	cfg := PublisherConfig{
		Topic: "test",
		CircuitBreaker: CircuitBreakerConfig{
			Name:             "publisher-open-test",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 2,
		},
	}
	pub := NewPublisherFor(fake, cfg)

	for i := 0; i < 2; i++ {
		if err := pub.Publish(context.Background(), NewEvent("x", nil)); err == nil {
			t.Fatalf("publish %d succeeded against failing transport", i)
		}
	}

	err := pub.Publish(context.Background(), NewEvent("x", nil))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if fake.calls != 2 {
		t.Errorf("transport calls = %d, want 2", fake.calls)
	}
	if state := CircuitBreakerState(pub.circuitBreaker); state != "open" {
		t.Errorf("breaker state = %s, want open", state)
	}
}

func TestBus_ConsumeSkipsUndecodable(t *testing.T) {
	bus := NewBus(nil)

	received := make(chan *Event, 2)
	if err := bus.Consume(context.Background(), "raw", func(e *Event) { received <- e }); err != nil {
		t.Fatal(err)
	}

	if err := bus.Publisher().Publish("raw", message.NewMessage("bad", []byte("{not json"))); err != nil {
		t.Fatal(err)
	}
	good, err := SerializeEvent(NewEvent("ok", nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publisher().Publish("raw", message.NewMessage("good", good)); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-received:
		if e.Type != "ok" {
			t.Errorf("Type = %q, want ok", e.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("valid event not delivered after a bad one")
	}

	if err := bus.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSinkWithLogger(logging.NewTestLogger(&buf))

	sink.Emit(AlertEventType, map[string]any{
		"message": "Newest backup is 30 hours old",
		"level":   "warning",
		"hours":   30,
	})

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"event_type":"backup.alert"`, `"hours":30`, "Newest backup is 30 hours old"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

type recordingSink struct {
	types []string
}

func (r *recordingSink) Emit(eventType string, _ map[string]any) {
	r.types = append(r.types, eventType)
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	MultiSink{a, nil, b, NopSink{}}.Emit("e", nil)

	if len(a.types) != 1 || len(b.types) != 1 {
		t.Errorf("fan-out = %v / %v", a.types, b.types)
	}
}
