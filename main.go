// main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tour-booking/cmd"
	"tour-booking/internal/consumer"
	"tour-booking/internal/data/repository"
	"tour-booking/internal/wire"
	"tour-booking/pkg/database"
	"tour-booking/pkg/mq"
	"tour-booking/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
		zap.String("store", config.App.StoreDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Booking store
	var repos *repository.Repository
	switch config.App.StoreDriver {
	case "memory":
		logger.Warn("Using in-memory booking store, data is lost on restart")
		repos = repository.NewMemoryRepository(logger)
	default:
		db, err := database.InitDB(config.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		logger.Info("Database connected successfully")
		repos = repository.NewRepository(db, logger)
	}

	var infra wire.Infra

	// Redis backs the dead-letter store and the sweep tick lock
	if config.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err), zap.String("addr", config.Redis.Addr))
		}
		cancel()

		logger.Info("Redis connected successfully")
		infra.Redis = rdb
	}

	// RabbitMQ carries payment events in and notifications out
	if config.Rabbit.URL != "" {
		publisher, err := mq.NewPublisher(config.Rabbit.URL, config.Rabbit.NotifyExchange)
		if err != nil {
			logger.Fatal("Failed to connect notification publisher", zap.Error(err))
		}
		defer publisher.Close()

		payments, err := mq.NewConsumer(config.Rabbit.URL, config.Rabbit.PaymentExchange, config.Rabbit.PaymentQueue,
			[]string{consumer.PaymentPaidKey})
		if err != nil {
			logger.Fatal("Failed to connect payment consumer", zap.Error(err))
		}
		defer payments.Close()

		logger.Info("RabbitMQ connected successfully")
		infra.Publisher = publisher
		infra.PaymentEvents = payments
	}

	// Wire all dependencies
	app := wire.Wiring(repos, infra, config, logger)

	// The dispatcher outlives the producers so late transitions still get queued
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		_ = app.Dispatcher.Run(dispatchCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", config.App.Port))
		return cmd.APIServer(gctx, app.Router, config.App.Port, config.App.ShutdownTimeout, logger)
	})

	g.Go(func() error {
		return app.Sweeper.Run(gctx)
	})

	if app.Consumer != nil {
		g.Go(func() error {
			return app.Consumer.Run(gctx)
		})
	}

	err = g.Wait()

	stopDispatch()
	<-dispatchDone

	if err != nil {
		logger.Error("Application stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("Application stopped")
}
