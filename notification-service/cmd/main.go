package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eaglebank/usersync/notification-service/internal/consumer"
	"github.com/eaglebank/usersync/notification-service/internal/handler"
	"github.com/eaglebank/usersync/notification-service/internal/mail"
	"github.com/eaglebank/usersync/notification-service/internal/server"
	"github.com/eaglebank/usersync/notification-service/internal/service"
	"github.com/eaglebank/usersync/shared/config"
	"github.com/eaglebank/usersync/shared/events"
	"github.com/eaglebank/usersync/shared/logging"
	redisClient "github.com/eaglebank/usersync/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const dedupKeyPrefix = "processed:user-event:"

func main() {
	cfg, err := config.Load("notification-service")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.New(cfg.Service, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sender := newSender(cfg, logger)
	templates, err := service.NewTemplates(service.TemplateConfig{
		WebsiteURL:     cfg.Mail.WebsiteURL,
		SubjectCreated: cfg.Mail.SubjectCreated,
		SubjectDeleted: cfg.Mail.SubjectDeleted,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load email templates")
	}
	notificationSvc := service.NewNotificationService(sender, templates, logger)

	var redis *redisClient.Client
	if cfg.Broker == config.BrokerRedis || cfg.Consumer.DedupTTL > 0 {
		redis, err = redisClient.NewClient(redisClient.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redis.Close()
	}

	var dedup consumer.Deduplicator
	if cfg.Consumer.DedupTTL > 0 {
		dedup = redisClient.NewDedupStore(redis.Client, dedupKeyPrefix, cfg.Consumer.DedupTTL)
	}
	userEvents := consumer.NewUserEventConsumer(notificationSvc, dedup, logger)

	subscription, closeSubscription := newSubscription(cfg, redis, userEvents.Handle, logger)
	defer closeSubscription()

	subscriberDone := make(chan struct{})
	go func() {
		defer close(subscriberDone)
		if err := subscription.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("subscriber stopped")
			stop()
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(handler.NewNotificationHandler(notificationSvc), []byte(cfg.JWTSecret), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("broker", cfg.Broker).Msg("notification service starting")
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
	select {
	case <-subscriberDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("subscriber did not stop in time")
	}
}

func newSender(cfg config.Config, logger zerolog.Logger) mail.Sender {
	if cfg.Mail.SMTPHost == "" {
		logger.Warn().Msg("SMTP_HOST not set; emails will only be logged")
		return mail.NewLogSender(logger)
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUsername,
		Password: cfg.Mail.SMTPPassword,
		From:     cfg.Mail.From,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure SMTP sender")
	}
	return sender
}

func newSubscription(cfg config.Config, redis *redisClient.Client, handle events.Handler, logger zerolog.Logger) (events.Subscription, func()) {
	name := cfg.Consumer.Name
	if name == "" {
		host, _ := os.Hostname()
		name = host + "-" + uuid.NewString()[:8]
	}

	if cfg.Broker == config.BrokerAMQP {
		conn, err := events.DialAMQP(cfg.AMQPURL, 10, 3*time.Second, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		sub := events.NewAMQPSubscriber(conn, events.AMQPSubscriberConfig{
			Topic:    cfg.Events.Topic,
			Queue:    cfg.Consumer.Group,
			Consumer: name,
			Workers:  cfg.Consumer.Workers,
			Handler:  handle,
			Logger:   logger,
		})
		return sub, func() { _ = conn.Close() }
	}

	sub := events.NewSubscriber(redis.Client, events.SubscriberConfig{
		Group:           cfg.Consumer.Group,
		Consumer:        name,
		Topic:           cfg.Events.Topic,
		Partitions:      cfg.Events.Partitions,
		OwnedPartitions: cfg.Consumer.Partitions,
		Handler:         handle,
		Workers:         cfg.Consumer.Workers,
		ClaimMinIdle:    cfg.Consumer.ClaimIdle,
		Logger:          logger,
	})
	return sub, func() {}
}
