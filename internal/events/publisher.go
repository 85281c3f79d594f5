// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tomtom215/stowage/internal/logging"
	"github.com/tomtom215/stowage/internal/metrics"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// DefaultTopic carries backup alerts.
const DefaultTopic = "stowage.alerts"

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Topic          string
	CircuitBreaker CircuitBreakerConfig
}

// DefaultPublisherConfig returns production defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Topic:          DefaultTopic,
		CircuitBreaker: DefaultCircuitBreakerConfig("events-publisher"),
	}
}

// Publisher wraps a watermill publisher with circuit breaker protection and
// implements Sink.
type Publisher struct {
	publisher      message.Publisher
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	topic          string
	mu             sync.RWMutex
	closed         bool
}

// NewPublisher creates a Publisher on bus.
func NewPublisher(bus *Bus, cfg PublisherConfig) *Publisher {
	return NewPublisherFor(bus.Publisher(), cfg)
}

// NewPublisherFor creates a Publisher on any watermill publisher. Close does
// not close pub; its owner does.
func NewPublisherFor(pub message.Publisher, cfg PublisherConfig) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		publisher:      pub,
		circuitBreaker: NewCircuitBreaker(cfg.CircuitBreaker),
		topic:          topic,
	}
}

// Topic returns the topic events are published on.
func (p *Publisher) Topic() string {
	return p.topic
}

// Publish serializes and publishes an event with circuit breaker protection.
func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.RecordEventPublish("failure")
		return ErrPublisherClosed
	}

	if err := event.Validate(); err != nil {
		metrics.RecordEventPublish("failure")
		return fmt.Errorf("invalid event: %w", err)
	}
	data, err := SerializeEvent(event)
	if err != nil {
		metrics.RecordEventPublish("failure")
		return fmt.Errorf("serialize event: %w", err)
	}

	msg := message.NewMessage(event.EventID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", event.Type)

	_, err = p.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(p.topic, msg)
	})
	switch {
	case err == nil:
		metrics.RecordEventPublish("success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordEventPublish("rejected")
	default:
		metrics.RecordEventPublish("failure")
	}
	return err
}

// Emit implements Sink. Failures are logged and the event is dropped.
func (p *Publisher) Emit(eventType string, payload map[string]any) {
	event := NewEvent(eventType, payload)
	if err := p.Publish(context.Background(), event); err != nil {
		logging.Warn().Err(err).
			Str("event_type", eventType).
			Str("breaker_state", CircuitBreakerState(p.circuitBreaker)).
			Msg("Failed to publish event")
	}
}

// Close stops publishing. Later Publish calls return ErrPublisherClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
