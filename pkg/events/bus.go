package events

import (
	"context"
	"encoding/json"
	"fmt"

	"carpool/pkg/logger"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// Bus publishes every event on a single topic.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	log        *logger.Logger
	// shared is set when publisher and subscriber are the same pubsub.
	shared bool
}

func NewBus(publisher message.Publisher, subscriber message.Subscriber, topic string, log *logger.Logger) *Bus {
	return &Bus{
		publisher:  publisher,
		subscriber: subscriber,
		topic:      topic,
		log:        log.WithField("topic", topic),
	}
}

// NewInMemoryBus delivers events within the process only.
func NewInMemoryBus(topic string, log *logger.Logger) *Bus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, NewLoggerAdapter(log.Entry()))
	bus := NewBus(pubSub, pubSub, topic, log)
	bus.shared = true
	return bus
}

// NewRedisBus shares events between instances through a redis stream. Every
// instance reads the whole stream; consumer only labels its log lines.
func NewRedisBus(client redis.UniversalClient, topic, consumer string, log *logger.Logger) (*Bus, error) {
	adapter := NewLoggerAdapter(log.Entry())

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
	}

	subscriber, err := redisstream.NewSubscriber(redisSubscriberConfig(client, consumer), adapter)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to create redis stream subscriber: %w", err)
	}

	return NewBus(publisher, subscriber, topic, log), nil
}

// redisSubscriberConfig runs in fan-out mode: no ConsumerGroup, so every
// instance sees every event.
func redisSubscriberConfig(client redis.UniversalClient, consumer string) redisstream.SubscriberConfig {
	return redisstream.SubscriberConfig{
		Client:         client,
		Consumer:       consumer,
		FanOutOldestId: "$",
	}
}

func (b *Bus) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("type", string(event.Type))
	msg.SetContext(ctx)

	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe starts a consumer goroutine that runs until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, handler Handler) error {
	messages, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.topic, err)
	}

	go func() {
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.log.WithError(err).WithField("message_uuid", msg.UUID).Error("Dropping malformed event")
				msg.Ack()
				continue
			}

			if err := handler(msg.Context(), &event); err != nil {
				b.log.WithError(err).WithField("event_type", event.Type).Warn("Event handler failed")
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()

	return nil
}

func (b *Bus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return err
	}
	if !b.shared {
		return b.subscriber.Close()
	}
	return nil
}
