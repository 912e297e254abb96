package producer

import (
	"context"
	"errors"
	"testing"

	"github.com/eaglebank/usersync/shared/events"
	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/eaglebank/usersync/shared/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key       string
	eventType events.EventType
	payload   []byte
}

type mockPublisher struct {
	err   error
	calls []published
}

func (m *mockPublisher) Publish(_ context.Context, key string, eventType events.EventType, payload []byte) error {
	m.calls = append(m.calls, published{key: key, eventType: eventType, payload: payload})
	return m.err
}

func TestUserEventProducer(t *testing.T) {
	user := &models.User{ID: 12, Name: "Test User", Email: "test@example.com"}

	tests := []struct {
		name     string
		emit     func(p *UserEventProducer, ctx context.Context)
		wantType events.EventType
	}{
		{
			name:     "created",
			emit:     func(p *UserEventProducer, ctx context.Context) { p.UserCreated(ctx, user) },
			wantType: events.UserCreated,
		},
		{
			name:     "deleted",
			emit:     func(p *UserEventProducer, ctx context.Context) { p.UserDeleted(ctx, user) },
			wantType: events.UserDeleted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{}
			p := NewUserEventProducer(pub, zerolog.Nop())
			ctx := middleware.WithCorrelationID(context.Background(), "corr-9")

			tt.emit(p, ctx)

			require.Len(t, pub.calls, 1)
			call := pub.calls[0]
			assert.Equal(t, "12", call.key)
			assert.Equal(t, tt.wantType, call.eventType)

			e, err := events.Decode(call.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, e.EventType)
			assert.Equal(t, int64(12), e.UserID)
			assert.Equal(t, "test@example.com", e.Email)
			assert.Equal(t, "Test User", e.Name)
			assert.Equal(t, "corr-9", e.CorrelationID)
			assert.NotNil(t, e.OccurredAt)
		})
	}
}

func TestUserEventProducerSwallowsTransportFailure(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker unavailable")}
	p := NewUserEventProducer(pub, zerolog.Nop())

	assert.NotPanics(t, func() {
		p.UserCreated(context.Background(), &models.User{ID: 1, Name: "A", Email: "a@example.com"})
	})
	assert.Len(t, pub.calls, 1)
}
