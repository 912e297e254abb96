package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher hands an encoded payload to the broker. Implementations route by key
// so that payloads sharing a key keep their relative order.
type Publisher interface {
	Publish(ctx context.Context, key string, eventType EventType, payload []byte) error
}

type PublisherConfig struct {
	Topic      string
	Partitions int
	// MaxLen caps each stream approximately; 0 keeps every entry.
	MaxLen int64
}

// StreamPublisher publishes to Redis Streams, one stream per partition.
type StreamPublisher struct {
	client     *redis.Client
	topic      string
	partitions int
	maxLen     int64
}

func NewPublisher(client *redis.Client, config PublisherConfig) *StreamPublisher {
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}
	if config.Partitions <= 0 {
		config.Partitions = 1
	}
	return &StreamPublisher{
		client:     client,
		topic:      config.Topic,
		partitions: config.Partitions,
		maxLen:     config.MaxLen,
	}
}

func (p *StreamPublisher) Publish(ctx context.Context, key string, eventType EventType, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: StreamFor(p.topic, key, p.partitions),
		Values: map[string]any{
			"event": payload,
			"key":   key,
			"type":  eventType.String(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("%w: failed to publish event: %v", ErrTransport, err)
	}
	return nil
}

var _ Publisher = (*StreamPublisher)(nil)
