package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Subscription is a long-lived consumer that owns its broker handle.
type Subscription interface {
	Start(ctx context.Context) error
}

type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	streams       []string
	handler       Handler
	workers       int
	batchSize     int64
	blockDuration time.Duration
	claimMinIdle  time.Duration
	logger        zerolog.Logger

	// entries handed to a lane and not yet acknowledged
	mu       sync.Mutex
	inflight map[string]struct{}
}

type SubscriberConfig struct {
	Group    string
	Consumer string
	Topic    string
	// Partitions is the partition count the topic was published with.
	Partitions int
	// OwnedPartitions restricts this consumer to a subset of partitions; empty means all.
	OwnedPartitions []int
	Handler         Handler
	Workers         int
	BatchSize       int64
	BlockDuration   time.Duration
	// ClaimMinIdle is how long another consumer's pending entry must sit idle before
	// this consumer takes it over. Zero disables reclaiming.
	ClaimMinIdle time.Duration
	Logger       zerolog.Logger
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		streams:       StreamsFor(config.Topic, config.Partitions, config.OwnedPartitions),
		handler:       config.Handler,
		workers:       config.Workers,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		claimMinIdle:  config.ClaimMinIdle,
		logger:        config.Logger,
		inflight:      make(map[string]struct{}),
	}
}

// Start consumes until ctx is cancelled. Entries still queued in a lane when that
// happens stay pending and are redelivered by Redis.
func (s *Subscriber) Start(ctx context.Context) error {
	for _, stream := range s.streams {
		err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("%w: failed to create consumer group on %s: %v", ErrTransport, stream, err)
		}
	}

	s.logger.Info().
		Strs("streams", s.streams).
		Str("group", s.group).
		Str("consumer", s.consumer).
		Int("workers", s.workers).
		Msg("subscriber started")

	lanes := startLanes(ctx, s.workers, int(s.batchSize), s.handler)
	defer lanes.stop()

	s.drainPending(ctx, lanes)

	var lastClaim time.Time
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("group", s.group).Msg("subscriber stopping")
			return ctx.Err()
		default:
		}

		if s.claimMinIdle > 0 && time.Since(lastClaim) >= s.claimMinIdle {
			s.reclaim(ctx, lanes)
			lastClaim = time.Now()
		}

		if err := s.readMessages(ctx, lanes); err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error().Err(err).Msg("error reading messages")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// drainPending redelivers entries this consumer read but never acknowledged,
// e.g. because the previous process died mid-dispatch.
func (s *Subscriber) drainPending(ctx context.Context, lanes *laneSet) {
	cursors := make([]string, len(s.streams))
	for i := range cursors {
		cursors[i] = "0"
	}

	for ctx.Err() == nil {
		args := make([]string, 0, 2*len(s.streams))
		args = append(args, s.streams...)
		args = append(args, cursors...)

		res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  args,
			Count:    s.batchSize,
			Block:    -1,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				s.logger.Warn().Err(err).Msg("failed to read pending entries")
			}
			return
		}

		found := 0
		for _, stream := range res {
			for i, name := range s.streams {
				if name == stream.Stream && len(stream.Messages) > 0 {
					cursors[i] = stream.Messages[len(stream.Messages)-1].ID
				}
			}
			for _, m := range stream.Messages {
				found++
				if !s.track(stream.Stream, m.ID) {
					continue
				}
				if !lanes.dispatch(ctx, s.delivery(stream.Stream, m)) {
					return
				}
			}
		}
		if found == 0 {
			return
		}
		s.logger.Info().Int("count", found).Msg("redelivering pending entries")
	}
}

func (s *Subscriber) readMessages(ctx context.Context, lanes *laneSet) error {
	args := make([]string, 0, 2*len(s.streams))
	args = append(args, s.streams...)
	for range s.streams {
		args = append(args, ">")
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  args,
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil // No messages
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read from stream: %v", ErrTransport, err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			s.track(stream.Stream, message.ID)
			if !lanes.dispatch(ctx, s.delivery(stream.Stream, message)) {
				return nil
			}
		}
	}
	return nil
}

// reclaim takes over entries abandoned by consumers that stopped acknowledging.
// XAUTOCLAIM also returns this consumer's own slow entries; those are already
// queued or running and are skipped so they are not handled twice.
func (s *Subscriber) reclaim(ctx context.Context, lanes *laneSet) {
	for _, stream := range s.streams {
		start := "0-0"
		for ctx.Err() == nil {
			msgs, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    s.group,
				Consumer: s.consumer,
				MinIdle:  s.claimMinIdle,
				Start:    start,
				Count:    s.batchSize,
			}).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) {
					s.logger.Warn().Err(err).Str("stream", stream).Msg("failed to reclaim idle entries")
				}
				break
			}

			claimed := 0
			for _, m := range msgs {
				if !s.track(stream, m.ID) {
					continue
				}
				claimed++
				if !lanes.dispatch(ctx, s.delivery(stream, m)) {
					return
				}
			}
			if claimed > 0 {
				s.logger.Info().Str("stream", stream).Int("count", claimed).Msg("reclaimed idle entries")
			}

			if next == "" || next == "0-0" {
				break
			}
			start = next
		}
	}
}

// track marks an entry as owned by a lane. It reports false if it already was.
func (s *Subscriber) track(stream, id string) bool {
	key := stream + "/" + id
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[key]; ok {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Subscriber) untrack(stream, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, stream+"/"+id)
}

func (s *Subscriber) delivery(stream string, message redis.XMessage) delivery {
	msg := Message{ID: message.ID, Stream: stream}
	if v, ok := message.Values["event"].(string); ok {
		msg.Payload = []byte(v)
	}
	if v, ok := message.Values["key"].(string); ok {
		msg.Key = v
	}
	return delivery{msg: msg, ack: s.ack}
}

func (s *Subscriber) ack(ctx context.Context, msg Message, handlerErr error) {
	if handlerErr != nil {
		s.logger.Warn().Err(handlerErr).Str("stream", msg.Stream).Str("id", msg.ID).
			Msg("handler reported failure; acknowledging without retry")
	}
	if err := s.client.XAck(ctx, msg.Stream, s.group, msg.ID).Err(); err != nil {
		s.logger.Error().Err(err).Str("stream", msg.Stream).Str("id", msg.ID).Msg("failed to ACK message")
	}
	s.untrack(msg.Stream, msg.ID)
}

var (
	_ Subscription = (*Subscriber)(nil)
	_ Subscription = (*AMQPSubscriber)(nil)
)
