package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/logging"
	"github.com/iliyamo/event-ticketing/internal/outbox"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/reservation"
	"github.com/iliyamo/event-ticketing/internal/router"
	"github.com/iliyamo/event-ticketing/internal/shutdown"
)

// dedupeTTL bounds how long a delivered message id is remembered.
const dedupeTTL = 24 * time.Hour

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	db, err := database.Open(database.Options{
		User:         cfg.DBUser,
		Pass:         cfg.DBPass,
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		Name:         cfg.DBName,
		LockWait:     cfg.DBLockWait,
		MaxOpenConns: cfg.DBMaxOpenConns,
	})
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Fatal("migrate failed", zap.Error(err))
		}
		logger.Info("schema applied")
	}

	// Redis backs the response cache, the rate limiter and consumer
	// dedupe.  All three degrade to pass-through when it is down.
	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, cache, rate limiting and dedupe disabled")
	} else {
		defer rdb.Close()
	}

	// Repositories and the reservation engine
	tx := database.NewTxCoordinator(db)
	events := repository.NewEventRepo(db)
	bookings := repository.NewBookingRepo(db)
	outboxRepo := repository.NewOutboxRepo(db)
	engine := reservation.NewEngine(tx, events, bookings, outboxRepo, logger)

	// Outbox relay and audit consumer
	pub := queue.NewPublisher(cfg.RabbitURL, logger)
	defer pub.Close()
	relay := outbox.NewRelay(logger, tx, outboxRepo, pub, cfg.OutboxInterval, cfg.OutboxBatch)

	var dedupe queue.Deduper
	if rdb != nil {
		dedupe = queue.NewRedisDeduper(rdb, dedupeTTL)
	}
	consumer := queue.NewConsumer(cfg.RabbitURL, cfg.ConsumerLogDir, dedupe, logger)

	e := router.New(router.Deps{
		Log:            logger,
		DB:             db,
		Redis:          rdb,
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      config.LoadRateLimitConfig(),
		Cache:          config.LoadCacheConfig(),
		Bookings:       handler.NewBookingHandler(engine, logger),
		Events:         handler.NewEventHandler(events, engine, logger),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := relay.Run(ctx); err != nil {
			logger.Error("relay stopped with error", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil {
			logger.Error("consumer stopped with error", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	go func() {
		logger.Info("http listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	logger.Info("shutdown complete")
}
