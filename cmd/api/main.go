package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/review-relay/internal/card"
	"github.com/kursadbilgin/review-relay/internal/channel"
	"github.com/kursadbilgin/review-relay/internal/config"
	"github.com/kursadbilgin/review-relay/internal/decision"
	"github.com/kursadbilgin/review-relay/internal/dispatch"
	"github.com/kursadbilgin/review-relay/internal/handler"
	"github.com/kursadbilgin/review-relay/internal/infra/postgresql"
	"github.com/kursadbilgin/review-relay/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/review-relay/internal/infra/redis"
	"github.com/kursadbilgin/review-relay/internal/observability"
	"github.com/kursadbilgin/review-relay/internal/queue"
	"github.com/kursadbilgin/review-relay/internal/repository"
	"github.com/kursadbilgin/review-relay/internal/service"
	"github.com/kursadbilgin/review-relay/internal/source"
	"github.com/kursadbilgin/review-relay/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolOptions{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	webhook, err := channel.NewWebhookChannel(cfg.ChatWebhookURL)
	if err != nil {
		logger.Fatal("chat webhook initialization failed", zap.Error(err))
	}

	sourceClient, err := source.NewClient(cfg.SourceAPIURL)
	if err != nil {
		logger.Fatal("source client initialization failed", zap.Error(err))
	}

	reviewRepo := repository.NewGormReviewRepo(db)
	cardRepo := repository.NewGormCardInteractionRepo(db)

	machine, err := card.NewMachine(cardRepo, logger)
	if err != nil {
		logger.Fatal("card machine initialization failed", zap.Error(err))
	}

	engine := decision.NewEngine(decision.Policy{
		PushNew:                cfg.PushNew,
		PushUpdated:            cfg.PushUpdated,
		PushHistorical:         cfg.PushHistorical,
		MarkHistoricalAsPushed: cfg.MarkHistoricalAsPushed,
		HistoricalThreshold:    time.Duration(cfg.HistoricalAgeHours) * time.Hour,
	})

	deliverer, err := service.NewDeliverer(reviewRepo, machine, webhook, limiter, logger)
	if err != nil {
		logger.Fatal("deliverer initialization failed", zap.Error(err))
	}

	deliveryQueue, err := dispatch.NewQueue(deliverer.Deliver, dispatch.Options{
		BatchSize:        cfg.QueueBatchSize,
		Interval:         time.Duration(cfg.QueueIntervalSeconds) * time.Second,
		MaxAttempts:      cfg.MaxDeliveryAttempts,
		RetryRateLimited: cfg.RetryRateLimited,
	}, logger)
	if err != nil {
		logger.Fatal("delivery queue initialization failed", zap.Error(err))
	}
	defer deliveryQueue.Stop()

	syncService, err := service.NewSyncService(
		reviewRepo, engine, deliveryQueue, cfg.ChatDest, cfg.MaxDeliveryAttempts, logger,
	)
	if err != nil {
		logger.Fatal("sync service initialization failed", zap.Error(err))
	}

	replyService, err := service.NewReplyService(
		reviewRepo, cardRepo, machine, sourceClient, webhook,
		time.Duration(cfg.SubmitTimeoutSeconds)*time.Second, logger,
	)
	if err != nil {
		logger.Fatal("reply service initialization failed", zap.Error(err))
	}

	reconciler, err := service.NewReplyReconciler(
		reviewRepo, replyService,
		time.Duration(cfg.ReconcileIntervalSeconds)*time.Second,
		time.Duration(cfg.ReconcileMinAgeSeconds)*time.Second,
		0, logger,
	)
	if err != nil {
		logger.Fatal("reply reconciler initialization failed", zap.Error(err))
	}

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.IngestConcurrency, logger)
	defer consumer.Close()

	ingest, err := service.NewIngestWorker(syncService, consumer, cfg.IngestConcurrency, logger)
	if err != nil {
		logger.Fatal("ingest worker initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	deliverer.SetMetrics(metrics)
	syncService.SetMetrics(metrics)
	replyService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit)
	if err := handler.RegisterReviewRoutes(app, syncService, replyService, machine, publisher); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ingest.Start(gctx)
	})
	g.Go(func() error {
		return reconciler.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("review-relay api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("review-relay terminated", zap.Error(err))
	}

	logger.Info("review-relay shut down")
}
