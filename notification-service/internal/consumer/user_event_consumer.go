package consumer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/eaglebank/usersync/shared/events"
	"github.com/rs/zerolog"
)

// Notifier sends the lifecycle emails.
type Notifier interface {
	SendAccountCreated(ctx context.Context, email, name string) error
	SendAccountDeleted(ctx context.Context, email, name string) error
}

// Deduplicator remembers which events were already handled.
type Deduplicator interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string) error
}

// UserEventConsumer decodes user lifecycle messages and dispatches them.
// Handle never reports failure: malformed payloads are dropped and mail errors
// are logged, so every delivery is acknowledged.
type UserEventConsumer struct {
	notifier Notifier
	dedup    Deduplicator
	logger   zerolog.Logger
}

// NewUserEventConsumer builds a consumer. dedup may be nil, in which case a
// redelivered event is dispatched again.
func NewUserEventConsumer(notifier Notifier, dedup Deduplicator, logger zerolog.Logger) *UserEventConsumer {
	return &UserEventConsumer{notifier: notifier, dedup: dedup, logger: logger}
}

// Handle satisfies events.Handler.
func (c *UserEventConsumer) Handle(ctx context.Context, msg events.Message) error {
	log := c.logger.With().Str("stream", msg.Stream).Str("message_id", msg.ID).Logger()

	event, err := events.Decode(msg.Payload)
	if err != nil {
		log.Error().Err(err).Msg("dropping undecodable user event")
		return nil
	}

	log = log.With().
		Str("event_type", event.EventType.String()).
		Int64("user_id", event.UserID).
		Str("correlation_id", event.CorrelationID).
		Logger()

	key, dedupable := dedupKey(event)
	dedupable = dedupable && c.dedup != nil
	if dedupable {
		seen, err := c.dedup.Seen(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("dedup check failed, processing anyway")
		} else if seen {
			log.Info().Msg("user event already processed, skipping duplicate")
			return nil
		}
	}

	c.dispatch(ctx, event, log)

	// a cancelled dispatch stays unacknowledged and must be processed on redelivery
	if ctx.Err() != nil {
		return nil
	}
	if dedupable {
		if err := c.dedup.MarkProcessed(ctx, key); err != nil {
			log.Warn().Err(err).Msg("failed to record processed user event")
		}
	}
	return nil
}

func (c *UserEventConsumer) dispatch(ctx context.Context, event events.UserLifecycleEvent, log zerolog.Logger) {
	var err error
	switch event.EventType {
	case events.UserCreated:
		err = c.notifier.SendAccountCreated(ctx, event.Email, event.Name)
	case events.UserDeleted:
		err = c.notifier.SendAccountDeleted(ctx, event.Email, event.Name)
	default:
		log.Warn().Msg("unknown user event type, ignoring")
		return
	}

	if err != nil {
		log.Error().Err(err).Msg("notification failed; event consumed without retry")
		return
	}
	log.Info().Msg("user event processed")
}

// dedupKey identifies one logical event. Events without occurredAt cannot be told
// apart from a later event of the same kind and are never deduplicated.
func dedupKey(e events.UserLifecycleEvent) (string, bool) {
	if e.OccurredAt == nil {
		return "", false
	}
	raw := e.EventType.String() + "|" + strconv.FormatInt(e.UserID, 10) + "|" + e.OccurredAt.UTC().Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:]), true
}
