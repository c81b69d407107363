package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/observability"
	"github.com/pacedrop/campaign-scheduler/internal/queue"
	"go.uber.org/zap"
)

const defaultSweepInterval = 30 * time.Second

// Trigger drives the dispatch engine. The engine itself is trigger-agnostic:
// a timer, a queue consumer, or a test harness all invoke it identically.
type Trigger interface {
	Start(ctx context.Context) error
}

// SweepTrigger invokes the engine for all due campaigns on a fixed interval.
type SweepTrigger struct {
	engine   *DispatchEngine
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
}

func NewSweepTrigger(engine *DispatchEngine, interval time.Duration, logger *zap.Logger) (*SweepTrigger, error) {
	if engine == nil {
		return nil, fmt.Errorf("dispatch engine is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SweepTrigger{
		engine:   engine,
		logger:   logger,
		interval: interval,
	}, nil
}

func (t *SweepTrigger) SetMetrics(metrics *observability.Metrics) {
	if t == nil {
		return
	}
	t.metrics = metrics
}

func (t *SweepTrigger) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial sweep so already-due campaigns do not wait for the first
	// ticker edge.
	if err := t.sweep(ctx); err != nil && ctx.Err() == nil {
		t.logger.Error("initial dispatch sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				t.logger.Error("dispatch sweep failed", zap.Error(err))
			}
		}
	}
}

func (t *SweepTrigger) sweep(ctx context.Context) error {
	t.metrics.IncEngineInvocation("sweep")

	result, err := t.engine.Run(ctx, "")
	if err != nil {
		return err
	}

	if result.CampaignsSeen > 0 {
		t.logger.Info("dispatch sweep completed",
			zap.Int("campaigns", result.CampaignsSeen),
			zap.Int("sent", result.MessagesSent),
			zap.Int("failed", result.MessagesFailed),
			zap.Strings("pausedTemporarily", result.PausedTemporarily),
		)
	}

	return nil
}

// QueueTrigger consumes manual run-now requests from the dispatch queue and
// runs single campaigns through the same engine.
type QueueTrigger struct {
	engine   *DispatchEngine
	consumer queue.Consumer
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewQueueTrigger(engine *DispatchEngine, consumer queue.Consumer, logger *zap.Logger) (*QueueTrigger, error) {
	if engine == nil {
		return nil, fmt.Errorf("dispatch engine is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueTrigger{
		engine:   engine,
		consumer: consumer,
		logger:   logger,
	}, nil
}

func (t *QueueTrigger) SetMetrics(metrics *observability.Metrics) {
	if t == nil {
		return
	}
	t.metrics = metrics
}

func (t *QueueTrigger) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return t.consumer.Consume(ctx, queue.DispatchQueue, t.handle)
}

func (t *QueueTrigger) handle(ctx context.Context, msg queue.DispatchRequest) error {
	t.metrics.IncEngineInvocation("queue")

	result, err := t.engine.Run(ctx, msg.CampaignID)
	if err != nil {
		return fmt.Errorf("dispatch run for campaign %s failed: %w", msg.CampaignID, err)
	}

	t.logger.Info("manual dispatch completed",
		zap.String("campaignId", msg.CampaignID),
		zap.Int("sent", result.MessagesSent),
		zap.Int("failed", result.MessagesFailed),
	)

	return nil
}
