package gateway

import (
	"net/http"

	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter exposes the user and notification APIs behind a single port.
func NewRouter(users, notifications *Upstream, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID(), middleware.LoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "api-gateway"})
	})

	// User routes
	router.POST("/v1/users", users.Proxy())
	router.GET("/v1/users", users.Proxy())
	router.GET("/v1/users/:userId", users.Proxy())
	router.PUT("/v1/users/:userId", users.Proxy())
	router.DELETE("/v1/users/:userId", users.Proxy())

	// Notification routes; the notification service enforces its own auth
	router.POST("/v1/notifications/email", notifications.Proxy())

	return router
}
