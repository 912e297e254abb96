package middleware

import (
	"context"

	"github.com/eaglebank/usersync/shared/events"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID reuses the caller's X-Correlation-ID or mints one, echoes it on the
// response and stores it on the request context.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("correlationId", id)
		c.Header(CorrelationIDHeader, id)
		c.Request = c.Request.WithContext(WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return events.ContextWithCorrelationID(ctx, id)
}

// CorrelationIDFrom returns the correlation id stored on ctx, or "".
func CorrelationIDFrom(ctx context.Context) string {
	return events.CorrelationIDFromContext(ctx)
}
