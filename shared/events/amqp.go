package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// PartitionKeyHeader carries the partition key on AMQP messages.
const PartitionKeyHeader = "x-partition-key"

// DialAMQP connects to RabbitMQ, retrying while the broker comes up.
func DialAMQP(url string, attempts int, wait time.Duration, logger zerolog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info().Msg("connected to RabbitMQ")
			return conn, nil
		}
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("failed to connect to RabbitMQ")
		time.Sleep(wait)
	}

	return nil, fmt.Errorf("%w: could not connect to RabbitMQ after %d attempts: %v", ErrTransport, attempts, err)
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// AMQPPublisher publishes to a topic exchange named after the topic,
// using the event type as routing key.
type AMQPPublisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(conn *amqp.Connection, topic string) (*AMQPPublisher, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %v", ErrTransport, err)
	}
	if err := declareExchange(ch, topic); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%w: declare exchange %s: %v", ErrTransport, topic, err)
	}
	return &AMQPPublisher{channel: ch, exchange: topic}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, eventType EventType, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx,
		p.exchange,
		eventType.String(),
		false, // mandatory
		false, // immediate
		publishing(key, CorrelationIDFromContext(ctx), payload),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to publish event: %v", ErrTransport, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// publishing wraps payload with a fresh message id, which redeliveries keep.
func publishing(key, correlationID string, payload []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: correlationID,
		Timestamp:     time.Now().UTC(),
		Headers:       amqp.Table{PartitionKeyHeader: key},
		Body:          payload,
	}
}

// fromDelivery converts an AMQP delivery into a transport-neutral Message.
func fromDelivery(queue string, d amqp.Delivery) Message {
	msg := Message{
		ID:      d.MessageId,
		Stream:  queue,
		Payload: d.Body,
	}
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("%d", d.DeliveryTag)
	}
	if key, ok := d.Headers[PartitionKeyHeader].(string); ok {
		msg.Key = key
	}
	return msg
}

type AMQPSubscriberConfig struct {
	Topic string
	// Queue is shared by every instance of one consumer group.
	Queue    string
	Consumer string
	Workers  int
	Handler  Handler
	Logger   zerolog.Logger
}

// AMQPSubscriber consumes a durable queue bound to the topic exchange.
// Instances sharing Queue compete for messages like a consumer group.
type AMQPSubscriber struct {
	conn   *amqp.Connection
	config AMQPSubscriberConfig
}

func NewAMQPSubscriber(conn *amqp.Connection, config AMQPSubscriberConfig) *AMQPSubscriber {
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &AMQPSubscriber{conn: conn, config: config}
}

func (s *AMQPSubscriber) Start(ctx context.Context) error {
	cfg := s.config
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: open channel: %v", ErrTransport, err)
	}
	defer ch.Close()

	if err := declareExchange(ch, cfg.Topic); err != nil {
		return fmt.Errorf("%w: declare exchange: %v", ErrTransport, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%w: declare queue %s: %v", ErrTransport, cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, "#", cfg.Topic, false, nil); err != nil {
		return fmt.Errorf("%w: bind queue %s: %v", ErrTransport, cfg.Queue, err)
	}
	if err := ch.Qos(cfg.Workers, 0, false); err != nil {
		return fmt.Errorf("%w: set prefetch: %v", ErrTransport, err)
	}

	deliveries, err := ch.Consume(
		cfg.Queue,
		cfg.Consumer,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("%w: consume %s: %v", ErrTransport, cfg.Queue, err)
	}

	cfg.Logger.Info().Str("queue", cfg.Queue).Str("consumer", cfg.Consumer).Msg("amqp subscriber started")

	lanes := startLanes(ctx, cfg.Workers, 1, cfg.Handler)
	defer lanes.stop()

	for {
		select {
		case <-ctx.Done():
			cfg.Logger.Info().Str("queue", cfg.Queue).Msg("amqp subscriber stopping")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%w: delivery channel closed", ErrTransport)
			}
			if !lanes.dispatch(ctx, delivery{msg: fromDelivery(cfg.Queue, d), ack: s.acker(d)}) {
				return ctx.Err()
			}
		}
	}
}

func (s *AMQPSubscriber) acker(d amqp.Delivery) func(context.Context, Message, error) {
	return func(_ context.Context, msg Message, handlerErr error) {
		if handlerErr != nil {
			s.config.Logger.Warn().Err(handlerErr).Str("id", msg.ID).
				Msg("handler reported failure; acknowledging without retry")
		}
		if err := d.Ack(false); err != nil {
			s.config.Logger.Error().Err(err).Str("id", msg.ID).Msg("failed to ACK message")
		}
	}
}
