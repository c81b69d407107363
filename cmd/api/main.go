package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pacedrop/campaign-scheduler/internal/config"
	"github.com/pacedrop/campaign-scheduler/internal/handler"
	"github.com/pacedrop/campaign-scheduler/internal/infra/postgresql"
	"github.com/pacedrop/campaign-scheduler/internal/infra/postgresql/migrations"
	infraredis "github.com/pacedrop/campaign-scheduler/internal/infra/redis"
	"github.com/pacedrop/campaign-scheduler/internal/observability"
	"github.com/pacedrop/campaign-scheduler/internal/queue"
	"github.com/pacedrop/campaign-scheduler/internal/repository"
	"github.com/pacedrop/campaign-scheduler/internal/service"
	"github.com/pacedrop/campaign-scheduler/internal/transport"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
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

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()
	publisher := queue.NewRabbitMQPublisher(rabbit)

	notifier, err := infraredis.NewRedisNotifier(rdb)
	if err != nil {
		logger.Fatal("notifier initialization failed", zap.Error(err))
	}

	campaignRepo := repository.NewGormCampaignRepo(db)
	messageRepo := repository.NewGormMessageRepo(db)

	campaignService, err := service.NewCampaignService(campaignRepo, messageRepo, publisher, logger)
	if err != nil {
		logger.Fatal("campaign service initialization failed", zap.Error(err))
	}
	campaignService.SetNotifier(notifier)

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:      "campaign-scheduler-api",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app,
		handler.PostgresCheck(sqlDB),
		handler.RedisCheck(rdb),
	)
	if err := handler.RegisterCampaignRoutes(app, campaignService); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down api")
		if err := app.Shutdown(); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("campaign scheduler api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}
