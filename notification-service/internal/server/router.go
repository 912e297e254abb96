package server

import (
	"net/http"

	"github.com/eaglebank/usersync/notification-service/internal/handler"
	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter assembles the notification-service HTTP surface.
func NewRouter(notifications *handler.NotificationHandler, jwtSecret []byte, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID(), middleware.LoggingMiddleware(logger))
	notifications.RegisterRoutes(router, jwtSecret)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}
