package server

import (
	"net/http"

	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/eaglebank/usersync/user-service/internal/handler"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter assembles the user-service HTTP surface.
func NewRouter(users *handler.UserHandler, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID(), middleware.LoggingMiddleware(logger))
	users.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}
