package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eaglebank/usersync/api-gateway/internal/gateway"
	"github.com/eaglebank/usersync/shared/config"
	"github.com/eaglebank/usersync/shared/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load("api-gateway")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.New(cfg.Service, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	users := gateway.NewUpstream("user-service", cfg.Gateway.UserServiceURL, cfg.Gateway.UpstreamTimeout, logger)
	notifications := gateway.NewUpstream("notification-service", cfg.Gateway.NotificationServiceURL, cfg.Gateway.UpstreamTimeout, logger)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gateway.NewRouter(users, notifications, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("users", cfg.Gateway.UserServiceURL).
			Str("notifications", cfg.Gateway.NotificationServiceURL).
			Msg("API gateway starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}
