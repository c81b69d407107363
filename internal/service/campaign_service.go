package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pacedrop/campaign-scheduler/internal/domain"
	"github.com/pacedrop/campaign-scheduler/internal/notify"
	"github.com/pacedrop/campaign-scheduler/internal/queue"
	"github.com/pacedrop/campaign-scheduler/internal/repository"
	"github.com/pacedrop/campaign-scheduler/internal/schedule"
	"go.uber.org/zap"
)

const maxRecipientsPerCampaign = 10000

// CampaignService builds campaigns with their message batches, guards against
// overlapping schedules, and exposes user-facing lifecycle operations. Actual
// sending belongs to the DispatchEngine.
type CampaignService struct {
	campaigns repository.CampaignRepository
	messages  repository.MessageRepository
	publisher queue.Publisher
	notifier  notify.Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// Recipient is one entry of a campaign's message batch.
type Recipient struct {
	Name        string
	Phone       string
	MessageText string
}

// NewCampaignInput carries everything needed to build a campaign and its
// messages in one call.
type NewCampaignInput struct {
	OwnerID     string
	Name        string
	ScheduledAt time.Time
	Config      domain.ScheduleConfig
	Recipients  []Recipient
	// AllowOverlap bypasses the conflict guard. The guard is advisory: a user
	// who accepts the warning can schedule anyway.
	AllowOverlap bool
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	messages repository.MessageRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*CampaignService, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if messages == nil {
		return nil, fmt.Errorf("message repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignService{
		campaigns: campaigns,
		messages:  messages,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *CampaignService) SetNotifier(notifier notify.Notifier) {
	if s == nil {
		return
	}
	s.notifier = notifier
}

// Create validates the input, checks for schedule overlap, and persists the
// campaign plus its full message batch in WAITING state.
func (s *CampaignService) Create(ctx context.Context, input NewCampaignInput) (*domain.Campaign, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(input.Recipients) == 0 {
		return nil, fmt.Errorf("%w: campaign must include at least one recipient", domain.ErrValidation)
	}
	if len(input.Recipients) > maxRecipientsPerCampaign {
		return nil, fmt.Errorf("%w: recipient count exceeds %d", domain.ErrValidation, maxRecipientsPerCampaign)
	}

	cfg := input.Config
	if input.ScheduledAt.IsZero() {
		input.ScheduledAt = cfg.StartTime
	}
	cfg.StartTime = input.ScheduledAt
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !input.AllowOverlap {
		conflict, err := s.CheckConflict(ctx, input.OwnerID, cfg, len(input.Recipients))
		if err != nil {
			return nil, err
		}
		if conflict.HasConflict {
			return nil, conflictError(conflict)
		}
	}

	scheduledAt := input.ScheduledAt
	campaign := &domain.Campaign{
		ID:            uuid.NewString(),
		OwnerID:       strings.TrimSpace(input.OwnerID),
		Name:          strings.TrimSpace(input.Name),
		Status:        domain.CampaignScheduled,
		TotalMessages: len(input.Recipients),
		ScheduledAt:   &scheduledAt,
		Config:        cfg,
	}
	if err := campaign.Validate(); err != nil {
		return nil, err
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	messages := make([]*domain.Message, 0, len(input.Recipients))
	for _, recipient := range input.Recipients {
		msg := &domain.Message{
			ID:             uuid.NewString(),
			CampaignID:     campaign.ID,
			RecipientName:  strings.TrimSpace(recipient.Name),
			RecipientPhone: strings.TrimSpace(recipient.Phone),
			Body:           recipient.MessageText,
			Status:         domain.MessageWaiting,
		}
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := s.messages.CreateBatch(ctx, messages); err != nil {
		return nil, fmt.Errorf("failed to create campaign messages: %w", err)
	}

	s.logger.Info("campaign created",
		zap.String("campaignId", campaign.ID),
		zap.String("ownerId", campaign.OwnerID),
		zap.Int("totalMessages", campaign.TotalMessages),
		zap.Time("scheduledAt", scheduledAt),
	)
	s.notifyChange(ctx, campaign)

	return campaign, nil
}

// Preview projects the full send schedule for display without persisting
// anything.
func (s *CampaignService) Preview(cfg domain.ScheduleConfig, count int) ([]schedule.ScheduledMessage, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: message count must be >= 0", domain.ErrValidation)
	}
	return schedule.Project(cfg, count), nil
}

// CheckConflict tests a prospective campaign window against the owner's open
// campaigns.
func (s *CampaignService) CheckConflict(ctx context.Context, ownerID string, cfg domain.ScheduleConfig, count int) (schedule.Conflict, error) {
	existing, err := s.campaigns.ListOpenByOwner(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return schedule.Conflict{}, fmt.Errorf("failed to load owner campaigns: %w", err)
	}
	return schedule.CheckConflict(cfg, count, existing), nil
}

func (s *CampaignService) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}
	return s.campaigns.GetByID(ctx, strings.TrimSpace(id))
}

func (s *CampaignService) List(ctx context.Context, params repository.CampaignListParams) ([]domain.Campaign, int64, error) {
	return s.campaigns.List(ctx, params)
}

func (s *CampaignService) ListMessages(ctx context.Context, params repository.MessageListParams) ([]domain.Message, int64, error) {
	if strings.TrimSpace(params.CampaignID) == "" {
		return nil, 0, fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}
	return s.messages.List(ctx, params)
}

// Pause stops dispatching. The engine observes the persisted status before
// every send attempt, so the pause takes effect within one pacing delay.
func (s *CampaignService) Pause(ctx context.Context, id string) error {
	workable := []domain.CampaignStatus{
		domain.CampaignPending,
		domain.CampaignScheduled,
		domain.CampaignActive,
		domain.CampaignProcessing,
	}
	return s.transition(ctx, id, workable, domain.CampaignPaused)
}

// Resume puts a paused campaign back into dispatch rotation.
func (s *CampaignService) Resume(ctx context.Context, id string) error {
	return s.transition(ctx, id, []domain.CampaignStatus{domain.CampaignPaused}, domain.CampaignProcessing)
}

// Cancel terminates a campaign from any non-terminal state.
func (s *CampaignService) Cancel(ctx context.Context, id string) error {
	nonTerminal := []domain.CampaignStatus{
		domain.CampaignPending,
		domain.CampaignScheduled,
		domain.CampaignActive,
		domain.CampaignProcessing,
		domain.CampaignPaused,
	}
	return s.transition(ctx, id, nonTerminal, domain.CampaignCanceled)
}

func (s *CampaignService) transition(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}

	changed, err := s.campaigns.TransitionStatus(ctx, trimmed, from, to)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	if !changed {
		return fmt.Errorf("%w: campaign %s cannot move to %s from its current state", domain.ErrConflict, trimmed, to)
	}

	if campaign, getErr := s.campaigns.GetByID(ctx, trimmed); getErr == nil {
		s.notifyChange(ctx, campaign)
	}

	return nil
}

// RunNow enqueues a manual dispatch trigger for the campaign.
func (s *CampaignService) RunNow(ctx context.Context, id string, requestedBy string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("%w: campaign id is required", domain.ErrValidation)
	}
	if s.publisher == nil {
		return fmt.Errorf("dispatch queue is not configured")
	}

	campaign, err := s.campaigns.GetByID(ctx, trimmed)
	if err != nil {
		return err
	}
	if campaign.Status.IsTerminal() {
		return fmt.Errorf("%w: campaign %s is %s", domain.ErrConflict, trimmed, campaign.Status)
	}

	msg := queue.DispatchRequest{
		CampaignID:  campaign.ID,
		RequestedBy: strings.TrimSpace(requestedBy),
	}
	if err := s.publisher.Publish(ctx, queue.DispatchQueue, msg); err != nil {
		return fmt.Errorf("failed to enqueue dispatch request: %w", err)
	}

	return nil
}

// RetryMessage resets a failed message back to WAITING and reopens its
// campaign when it had already finished.
func (s *CampaignService) RetryMessage(ctx context.Context, messageID string) error {
	trimmed := strings.TrimSpace(messageID)
	if trimmed == "" {
		return fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}

	msg, err := s.messages.GetByID(ctx, trimmed)
	if err != nil {
		return err
	}

	reset, err := s.messages.ResetForRetry(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to reset message: %w", err)
	}
	if !reset {
		return fmt.Errorf("%w: only failed messages can be retried", domain.ErrConflict)
	}

	campaign, err := s.campaigns.GetByID(ctx, msg.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign for retried message: %w", err)
	}
	if campaign.Status == domain.CampaignFinished {
		reopened, err := s.campaigns.Reopen(ctx, campaign.ID)
		if err != nil {
			return fmt.Errorf("failed to reopen finished campaign: %w", err)
		}
		if reopened {
			s.logger.Info("finished campaign reopened by message retry",
				zap.String("campaignId", campaign.ID),
				zap.String("messageId", msg.ID),
			)
			campaign.Status = domain.CampaignProcessing
			campaign.FinishedAt = nil
			s.notifyChange(ctx, campaign)
		}
	}

	return nil
}

func (s *CampaignService) notifyChange(ctx context.Context, campaign *domain.Campaign) {
	if s.notifier == nil || campaign == nil {
		return
	}

	event := notify.CampaignEvent{
		CampaignID:   campaign.ID,
		OwnerID:      campaign.OwnerID,
		Status:       campaign.Status.String(),
		SentMessages: campaign.SentMessages,
	}
	if err := s.notifier.CampaignChanged(ctx, event); err != nil {
		s.logger.Warn("failed to broadcast campaign change",
			zap.String("campaignId", campaign.ID),
			zap.Error(err),
		)
	}
}

func conflictError(conflict schedule.Conflict) error {
	if conflict.SuggestedTime != nil {
		return fmt.Errorf("%w: schedule overlaps campaign %q (%s); next free slot at %s",
			domain.ErrConflict, conflict.CampaignName, conflict.CampaignID,
			conflict.SuggestedTime.Format(time.RFC3339))
	}
	return fmt.Errorf("%w: schedule overlaps campaign %q (%s)",
		domain.ErrConflict, conflict.CampaignName, conflict.CampaignID)
}
