package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/config"
	"github.com/pacedrop/campaign-scheduler/internal/infra/postgresql"
	"github.com/pacedrop/campaign-scheduler/internal/infra/postgresql/migrations"
	infraredis "github.com/pacedrop/campaign-scheduler/internal/infra/redis"
	"github.com/pacedrop/campaign-scheduler/internal/observability"
	"github.com/pacedrop/campaign-scheduler/internal/provider"
	"github.com/pacedrop/campaign-scheduler/internal/queue"
	"github.com/pacedrop/campaign-scheduler/internal/repository"
	"github.com/pacedrop/campaign-scheduler/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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

	webhook, err := provider.NewWebhookProvider(cfg.DeliveryWebhookURL)
	if err != nil {
		logger.Fatal("delivery provider initialization failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.SendRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	notifier, err := infraredis.NewRedisNotifier(rdb)
	if err != nil {
		logger.Fatal("notifier initialization failed", zap.Error(err))
	}

	campaignRepo := repository.NewGormCampaignRepo(db)
	messageRepo := repository.NewGormMessageRepo(db)

	metrics := observability.NewMetrics()

	engine, err := service.NewDispatchEngine(campaignRepo, messageRepo, webhook, cfg.DispatchBudget(), logger)
	if err != nil {
		logger.Fatal("dispatch engine initialization failed", zap.Error(err))
	}
	engine.SetMetrics(metrics)
	engine.SetRateLimiter(limiter)
	engine.SetNotifier(notifier)

	sweep, err := service.NewSweepTrigger(engine, cfg.SweepInterval(), logger)
	if err != nil {
		logger.Fatal("sweep trigger initialization failed", zap.Error(err))
	}
	sweep.SetMetrics(metrics)

	consumer := queue.NewRabbitMQConsumer(rabbit, 1, logger)
	queueTrigger, err := service.NewQueueTrigger(engine, consumer, logger)
	if err != nil {
		logger.Fatal("queue trigger initialization failed", zap.Error(err))
	}
	queueTrigger.SetMetrics(metrics)

	scanner, err := service.NewStaleScanner(messageRepo, 0, cfg.StaleThreshold(), logger)
	if err != nil {
		logger.Fatal("stale scanner initialization failed", zap.Error(err))
	}
	scanner.SetMetrics(metrics)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: mux,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return sweep.Start(groupCtx) })
	group.Go(func() error { return queueTrigger.Start(groupCtx) })
	group.Go(func() error { return scanner.Start(groupCtx) })
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	logger.Info("campaign scheduler worker started",
		zap.Duration("sweepInterval", cfg.SweepInterval()),
		zap.Duration("dispatchBudget", cfg.DispatchBudget()),
		zap.Int("metricsPort", cfg.MetricsPort),
	)

	if err := group.Wait(); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker stopped")
}
