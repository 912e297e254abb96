package producer

import (
	"context"

	"github.com/eaglebank/usersync/shared/events"
	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/eaglebank/usersync/shared/models"
	"github.com/rs/zerolog"
)

// UserEventProducer turns committed user changes into lifecycle events.
// Publishing is best effort: a broker failure is logged and never reaches the caller.
type UserEventProducer struct {
	publisher events.Publisher
	logger    zerolog.Logger
}

func NewUserEventProducer(publisher events.Publisher, logger zerolog.Logger) *UserEventProducer {
	return &UserEventProducer{publisher: publisher, logger: logger}
}

// UserCreated publishes USER_CREATED for user.
func (p *UserEventProducer) UserCreated(ctx context.Context, user *models.User) {
	p.publish(ctx, events.NewUserLifecycleEvent(events.UserCreated, user.ID, user.Email, user.Name))
}

// UserDeleted publishes USER_DELETED for the snapshot taken before removal.
func (p *UserEventProducer) UserDeleted(ctx context.Context, user *models.User) {
	p.publish(ctx, events.NewUserLifecycleEvent(events.UserDeleted, user.ID, user.Email, user.Name))
}

func (p *UserEventProducer) publish(ctx context.Context, event events.UserLifecycleEvent) {
	event.CorrelationID = middleware.CorrelationIDFrom(ctx)

	log := p.logger.With().
		Str("event_type", event.EventType.String()).
		Int64("user_id", event.UserID).
		Str("correlation_id", event.CorrelationID).
		Logger()

	payload, err := events.Encode(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode user event")
		return
	}

	if err := p.publisher.Publish(ctx, event.Key(), event.EventType, payload); err != nil {
		log.Error().Err(err).Msg("failed to publish user event")
		return
	}
	log.Debug().Msg("user event published")
}
