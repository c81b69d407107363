package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/observability"
	"github.com/pacedrop/campaign-scheduler/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultStaleScanInterval = time.Minute
	defaultStaleThreshold    = 10 * time.Minute
	defaultStaleScanLimit    = 100
)

// StaleScanner periodically reports messages stuck in SENDING: a message that
// never reached SENT or FAILED means the engine died mid-transport. The
// scanner surfaces them for manual reconciliation; it deliberately does not
// requeue, because the transport call may have gone through.
type StaleScanner struct {
	messages  repository.MessageRepository
	logger    *zap.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	threshold time.Duration
	limit     int
	now       func() time.Time
}

func NewStaleScanner(
	messages repository.MessageRepository,
	interval time.Duration,
	threshold time.Duration,
	logger *zap.Logger,
) (*StaleScanner, error) {
	if messages == nil {
		return nil, fmt.Errorf("message repository is required")
	}
	if interval <= 0 {
		interval = defaultStaleScanInterval
	}
	if threshold <= 0 {
		threshold = defaultStaleThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StaleScanner{
		messages:  messages,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
		limit:     defaultStaleScanLimit,
		now:       time.Now,
	}, nil
}

func (s *StaleScanner) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *StaleScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("stale message scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("stale message scan failed", zap.Error(err))
			}
		}
	}
}

func (s *StaleScanner) scan(ctx context.Context) error {
	olderThan := s.now().Add(-s.threshold)
	stale, err := s.messages.ListStaleSending(ctx, olderThan, s.limit)
	if err != nil {
		return fmt.Errorf("failed to list stale sending messages: %w", err)
	}

	s.metrics.SetStaleSendingMessages(len(stale))

	for i := range stale {
		msg := &stale[i]
		s.logger.Warn("message stuck in sending state, needs manual reconciliation",
			zap.String("messageId", msg.ID),
			zap.String("campaignId", msg.CampaignID),
			zap.Timep("attemptedAt", msg.SentAt),
		)
	}

	return nil
}
