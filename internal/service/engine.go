package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/domain"
	"github.com/pacedrop/campaign-scheduler/internal/notify"
	"github.com/pacedrop/campaign-scheduler/internal/observability"
	"github.com/pacedrop/campaign-scheduler/internal/provider"
	"github.com/pacedrop/campaign-scheduler/internal/ratelimit"
	"github.com/pacedrop/campaign-scheduler/internal/repository"
	"github.com/pacedrop/campaign-scheduler/internal/schedule"
	"go.uber.org/zap"
)

// defaultTimeBudget keeps an invocation comfortably inside a 60s host
// execution cap. Long campaigns drain across many invocations.
const defaultTimeBudget = 55 * time.Second

// pacingCheckInterval caps how long a pause or cancel can go unnoticed while
// a pacing delay is slept out.
const pacingCheckInterval = 250 * time.Millisecond

// DispatchEngine is the real-time worker: it locks one waiting message at a
// time, waits out the jittered pacing delay computed against the actual last
// send, delivers, records the outcome, and finalizes campaigns with no work
// left. Safe to invoke repeatedly and concurrently; the conditional
// waiting-to-sending update is the only lock.
type DispatchEngine struct {
	campaigns   repository.CampaignRepository
	messages    repository.MessageRepository
	provider    provider.Provider
	rateLimiter ratelimit.RateLimiter
	notifier    notify.Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	budget      time.Duration
	now         func() time.Time
	randIntn    func(n int) int
	sleep       func(ctx context.Context, d time.Duration) error
}

// EngineResult summarizes one invocation for logging and tests.
type EngineResult struct {
	CampaignsSeen     int
	MessagesSent      int
	MessagesFailed    int
	Finalized         []string
	PausedTemporarily []string
}

func NewDispatchEngine(
	campaigns repository.CampaignRepository,
	messages repository.MessageRepository,
	sender provider.Provider,
	budget time.Duration,
	logger *zap.Logger,
) (*DispatchEngine, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if messages == nil {
		return nil, fmt.Errorf("message repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if budget <= 0 {
		budget = defaultTimeBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchEngine{
		campaigns: campaigns,
		messages:  messages,
		provider:  sender,
		logger:    logger,
		budget:    budget,
		now:       time.Now,
		randIntn:  rand.Intn,
		sleep:     sleepWithContext,
	}, nil
}

func (e *DispatchEngine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

func (e *DispatchEngine) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if e == nil {
		return
	}
	e.rateLimiter = limiter
}

func (e *DispatchEngine) SetNotifier(notifier notify.Notifier) {
	if e == nil {
		return
	}
	e.notifier = notifier
}

// Run processes one explicit campaign, or sweeps all due campaigns when
// campaignID is empty. Both paths share the same per-campaign loop. A
// campaign-level error aborts only that campaign for this invocation.
func (e *DispatchEngine) Run(ctx context.Context, campaignID string) (*EngineResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	deadline := e.now().Add(e.budget)
	result := &EngineResult{}

	targets, err := e.resolveTargets(ctx, campaignID)
	if err != nil {
		return result, err
	}

	for i := range targets {
		if ctx.Err() != nil || !e.now().Before(deadline) {
			break
		}

		campaign := &targets[i]
		result.CampaignsSeen++

		if err := e.runCampaign(ctx, campaign, deadline, result); err != nil {
			e.logger.Error("campaign dispatch aborted for this invocation",
				zap.String("campaignId", campaign.ID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

func (e *DispatchEngine) resolveTargets(ctx context.Context, campaignID string) ([]domain.Campaign, error) {
	if campaignID != "" {
		campaign, err := e.campaigns.GetByID(ctx, campaignID)
		if err != nil {
			return nil, fmt.Errorf("failed to load campaign %s: %w", campaignID, err)
		}
		return []domain.Campaign{*campaign}, nil
	}

	due, err := e.campaigns.ListDue(ctx, e.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list due campaigns: %w", err)
	}
	return due, nil
}

func (e *DispatchEngine) runCampaign(ctx context.Context, campaign *domain.Campaign, deadline time.Time, result *EngineResult) error {
	promoted, err := e.campaigns.PromoteToProcessing(ctx, campaign.ID, e.now())
	if err != nil {
		return fmt.Errorf("failed to promote campaign: %w", err)
	}
	if !promoted {
		// Changed state underneath us: paused, canceled, or finished.
		return nil
	}

	// Re-read so started_at reflects the promotion stamp.
	current, err := e.campaigns.GetByID(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to reload campaign: %w", err)
	}

	cfg := current.Config
	cfg.Normalize()
	cfg.StartTime = current.StartReference()

	// Pause rules are evaluated against wall-clock time, not projected time.
	// This is a soft skip: persisted status stays PROCESSING and the next
	// invocation re-evaluates.
	if schedule.EvaluatePause(cfg, e.now()) {
		result.PausedTemporarily = append(result.PausedTemporarily, current.ID)
		e.logger.Info("campaign paused by schedule rules for this invocation",
			zap.String("campaignId", current.ID),
		)
		return nil
	}

	for {
		if ctx.Err() != nil || !e.now().Before(deadline) {
			return nil
		}

		// Re-read status every iteration so a pause or cancel requested
		// mid-run takes effect within one message's pacing delay.
		live, err := e.campaigns.GetByID(ctx, current.ID)
		if err != nil {
			return fmt.Errorf("failed to re-read campaign status: %w", err)
		}
		if live.Status == domain.CampaignPaused || live.Status.IsTerminal() {
			return nil
		}

		waiting, err := e.messages.CountByStatus(ctx, current.ID, domain.MessageWaiting)
		if err != nil {
			return fmt.Errorf("failed to count waiting messages: %w", err)
		}
		if waiting == 0 {
			sending, err := e.messages.CountByStatus(ctx, current.ID, domain.MessageSending)
			if err != nil {
				return fmt.Errorf("failed to count in-flight messages: %w", err)
			}
			if sending > 0 {
				// Another invocation owns the in-flight message; it finalizes.
				return nil
			}
			return e.finalize(ctx, live, result)
		}

		proceed, slept, err := e.waitForPacing(ctx, current.ID, cfg, deadline)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
		if slept {
			// Re-run the liveness check before locking so a pause requested
			// during the sleep is honored now, not one message later.
			continue
		}

		if e.rateLimiter != nil {
			if err := e.rateLimiter.Wait(ctx, current.OwnerID); err != nil {
				return fmt.Errorf("rate limiter wait failed: %w", err)
			}
		}

		msg, err := e.messages.LockNextWaiting(ctx, current.ID, e.now())
		if err != nil {
			return fmt.Errorf("failed to lock next message: %w", err)
		}
		if msg == nil {
			// The pool drained between the count and the lock; re-check
			// completion at the top of the loop.
			continue
		}

		e.deliver(ctx, live, msg, result)
	}
}

// waitForPacing computes the required jittered delay against the last
// confirmed send and sleeps out the remainder. proceed is false when the
// remaining wait does not fit the invocation budget: stopping beats
// oversleeping.
func (e *DispatchEngine) waitForPacing(ctx context.Context, campaignID string, cfg domain.ScheduleConfig, deadline time.Time) (proceed bool, slept bool, err error) {
	lastSent, err := e.messages.LastSentAt(ctx, campaignID)
	if err != nil {
		return false, false, fmt.Errorf("failed to query last send: %w", err)
	}
	if lastSent == nil {
		// First message always fires immediately.
		return true, false, nil
	}

	required := e.uniformSeconds(cfg.MinIntervalSec, cfg.MaxIntervalSec)

	if cfg.UseBatching {
		sent, err := e.messages.CountByStatus(ctx, campaignID, domain.MessageSent)
		if err != nil {
			return false, false, fmt.Errorf("failed to count sent messages: %w", err)
		}
		if sent > 0 && sent%int64(cfg.BatchSize) == 0 {
			required += e.uniformSeconds(cfg.BatchPauseMinSec, cfg.BatchPauseMaxSec)
		}
	}

	elapsed := e.now().Sub(*lastSent)
	remaining := required - elapsed
	if remaining <= 0 {
		return true, false, nil
	}

	if remaining > deadline.Sub(e.now()) {
		return false, false, nil
	}

	if err := e.sleepObservingStatus(ctx, campaignID, remaining); err != nil {
		return false, true, nil
	}

	return true, true, nil
}

// sleepObservingStatus sleeps out a pacing delay in short slices, re-reading
// the persisted campaign status between slices. A pause or cancel requested
// mid-delay is therefore noticed within one slice instead of after the full
// jittered wait; returning early is safe because the caller re-runs the
// liveness check before locking the next message.
func (e *DispatchEngine) sleepObservingStatus(ctx context.Context, campaignID string, remaining time.Duration) error {
	due := e.now().Add(remaining)
	for {
		left := due.Sub(e.now())
		if left <= 0 {
			return nil
		}

		slice := left
		if slice > pacingCheckInterval {
			slice = pacingCheckInterval
		}
		e.metrics.AddPacingSleep(slice)
		if err := e.sleep(ctx, slice); err != nil {
			return err
		}
		if slice == left {
			return nil
		}

		live, err := e.campaigns.GetByID(ctx, campaignID)
		if err != nil {
			// Surface the read failure through the caller's liveness re-read.
			return nil
		}
		if live.Status == domain.CampaignPaused || live.Status.IsTerminal() {
			return nil
		}
	}
}

func (e *DispatchEngine) uniformSeconds(minSec, maxSec int) time.Duration {
	if maxSec < minSec {
		maxSec = minSec
	}
	seconds := minSec
	if spread := maxSec - minSec; spread > 0 && e.randIntn != nil {
		seconds += e.randIntn(spread + 1)
	}
	return time.Duration(seconds) * time.Second
}

// deliver sends one locked message and records its outcome. A transport
// failure is recorded on the message and never aborts the campaign.
func (e *DispatchEngine) deliver(ctx context.Context, campaign *domain.Campaign, msg *domain.Message, result *EngineResult) {
	sendStart := e.now()
	_, sendErr := e.provider.Send(ctx, provider.Delivery{
		RecipientName:  msg.RecipientName,
		RecipientPhone: msg.RecipientPhone,
		MessageText:    msg.Body,
	})
	e.metrics.ObserveMessageSendDuration(e.now().Sub(sendStart))

	if sendErr != nil {
		if err := e.messages.MarkFailed(ctx, msg.ID, sendErr.Error()); err != nil {
			e.logger.Error("failed to record message failure",
				zap.String("messageId", msg.ID),
				zap.Error(err),
			)
			return
		}
		result.MessagesFailed++
		e.metrics.IncMessageFailed()
		e.logger.Warn("message delivery failed",
			zap.String("campaignId", campaign.ID),
			zap.String("messageId", msg.ID),
			zap.Error(sendErr),
		)
		return
	}

	if err := e.messages.MarkSent(ctx, msg.ID, e.now()); err != nil {
		e.logger.Error("failed to mark message sent",
			zap.String("messageId", msg.ID),
			zap.Error(err),
		)
		return
	}
	if err := e.campaigns.IncrementSent(ctx, campaign.ID); err != nil {
		e.logger.Error("failed to increment sent counter",
			zap.String("campaignId", campaign.ID),
			zap.Error(err),
		)
	}

	result.MessagesSent++
	e.metrics.IncMessageSent()
	e.notifyChange(ctx, campaign.ID, campaign.OwnerID, domain.CampaignProcessing, campaign.SentMessages+result.MessagesSent)
}

// finalize closes a campaign confirmed to have no waiting or in-flight
// messages. The sent counter is recomputed from SENT rows rather than trusted:
// the increment path can drift under partial failures and concurrent
// invocations, and the count is the source of truth at finalize time.
// Finalizing twice therefore converges on the same value.
func (e *DispatchEngine) finalize(ctx context.Context, campaign *domain.Campaign, result *EngineResult) error {
	sent, err := e.messages.CountByStatus(ctx, campaign.ID, domain.MessageSent)
	if err != nil {
		return fmt.Errorf("failed to reconcile sent count: %w", err)
	}
	if sent > int64(campaign.TotalMessages) {
		return fmt.Errorf("%w: reconciled sent count %d exceeds total %d for campaign %s",
			domain.ErrInvariant, sent, campaign.TotalMessages, campaign.ID)
	}

	finishedAt := e.now()
	executionSeconds := 0
	if campaign.StartedAt != nil {
		executionSeconds = int(finishedAt.Sub(*campaign.StartedAt).Seconds())
		if executionSeconds < 0 {
			executionSeconds = 0
		}
	}

	if err := e.campaigns.Finalize(ctx, campaign.ID, finishedAt, executionSeconds, int(sent)); err != nil {
		return fmt.Errorf("failed to finalize campaign: %w", err)
	}

	result.Finalized = append(result.Finalized, campaign.ID)
	withErrors := sent < int64(campaign.TotalMessages)
	e.metrics.IncCampaignFinalized(withErrors)
	e.logger.Info("campaign finalized",
		zap.String("campaignId", campaign.ID),
		zap.Int64("sentMessages", sent),
		zap.Int("totalMessages", campaign.TotalMessages),
		zap.Int("executionSeconds", executionSeconds),
		zap.Bool("withErrors", withErrors),
	)
	e.notifyChange(ctx, campaign.ID, campaign.OwnerID, domain.CampaignFinished, int(sent))

	return nil
}

func (e *DispatchEngine) notifyChange(ctx context.Context, campaignID, ownerID string, status domain.CampaignStatus, sentMessages int) {
	if e.notifier == nil {
		return
	}

	event := notify.CampaignEvent{
		CampaignID:   campaignID,
		OwnerID:      ownerID,
		Status:       status.String(),
		SentMessages: sentMessages,
	}
	if err := e.notifier.CampaignChanged(ctx, event); err != nil {
		e.logger.Warn("failed to broadcast campaign change",
			zap.String("campaignId", campaignID),
			zap.Error(err),
		)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
