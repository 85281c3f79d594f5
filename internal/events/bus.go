// Stowage - Configuration and Database Backup/Recovery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowage

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/tomtom215/stowage/internal/logging"
)

// Bus is an in-process pub/sub backed by a watermill GoChannel. Publish
// returns once every subscriber has acknowledged the message, so alerts are
// handled before a short-lived CLI process exits.
type Bus struct {
	pubsub *gochannel.GoChannel
	wg     sync.WaitGroup
}

// NewBus creates a Bus. logger may be nil.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, logger),
	}
}

// Publisher returns the publishing side of the bus.
func (b *Bus) Publisher() message.Publisher {
	return b.pubsub
}

// Subscribe returns the raw message channel for topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Consume subscribes to topic and calls handler for every decoded event
// until ctx is canceled or the bus is closed. Messages that fail to decode
// are logged and acknowledged. Close waits for consumers to drain.
func (b *Bus) Consume(ctx context.Context, topic string, handler func(*Event)) error {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range msgs {
			event, err := DeserializeEvent(msg.Payload)
			if err != nil {
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable event")
				msg.Ack()
				continue
			}
			handler(event)
			msg.Ack()
		}
	}()
	return nil
}

// Close shuts the bus down and waits for Consume goroutines to finish.
func (b *Bus) Close() error {
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}
