package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eaglebank/usersync/shared/config"
	"github.com/eaglebank/usersync/shared/events"
	"github.com/eaglebank/usersync/shared/logging"
	"github.com/eaglebank/usersync/shared/models"
	redisClient "github.com/eaglebank/usersync/shared/redis"
	usercmd "github.com/eaglebank/usersync/user-service/internal/command"
	"github.com/eaglebank/usersync/user-service/internal/handler"
	"github.com/eaglebank/usersync/user-service/internal/producer"
	userqry "github.com/eaglebank/usersync/user-service/internal/query"
	"github.com/eaglebank/usersync/user-service/internal/repository"
	"github.com/eaglebank/usersync/user-service/internal/server"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load("user-service")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.New(cfg.Service, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	// Redis serves the read model and, by default, the event stream.
	var redis *redisClient.Client
	if cfg.Broker == config.BrokerRedis || cfg.ViewCacheTTL > 0 {
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

	publisher, closePublisher := openPublisher(cfg, redis, logger)
	defer closePublisher()

	// --- CQRS wiring ---
	var cache *redisClient.ViewCache[models.UserView]
	if cfg.ViewCacheTTL > 0 {
		cache = redisClient.NewViewCache[models.UserView](redis.Client, repository.UserViewKeyPrefix, cfg.ViewCacheTTL, logger)
	}
	readRepo := repository.NewUserReadRepository(store, cache)

	eventProducer := producer.NewUserEventProducer(publisher, logger)
	commandSvc := usercmd.NewUserCommandService(store, readRepo, eventProducer, logger)
	querySvc := userqry.NewUserQueryService(readRepo)

	userHandler := handler.NewUserHandler(commandSvc, querySvc)

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(userHandler, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.Store).Str("broker", cfg.Broker).Msg("user service starting")
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

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (repository.UserStore, func()) {
	if cfg.Store == config.StoreMemory {
		logger.Warn().Msg("using in-memory user store; data is lost on restart")
		return repository.NewMemoryUserRepository(), func() {}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping database")
	}

	repo := repository.NewUserWriteRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	return repo, func() { _ = db.Close() }
}

func openPublisher(cfg config.Config, redis *redisClient.Client, logger zerolog.Logger) (events.Publisher, func()) {
	if cfg.Broker == config.BrokerAMQP {
		conn, err := events.DialAMQP(cfg.AMQPURL, 10, 3*time.Second, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		pub, err := events.NewAMQPPublisher(conn, cfg.Events.Topic)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open AMQP publisher")
		}
		return pub, func() {
			_ = pub.Close()
			_ = conn.Close()
		}
	}

	pub := events.NewPublisher(redis.Client, events.PublisherConfig{
		Topic:      cfg.Events.Topic,
		Partitions: cfg.Events.Partitions,
		MaxLen:     cfg.Events.MaxLen,
	})
	return pub, func() {}
}
