package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/domain"
	"gorm.io/gorm"
)

type MessageListParams struct {
	CampaignID string
	Status     *domain.MessageStatus
	Page       int
	PageSize   int
}

type MessageRepository interface {
	CreateBatch(ctx context.Context, messages []*domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	List(ctx context.Context, params MessageListParams) ([]domain.Message, int64, error)
	CountByStatus(ctx context.Context, campaignID string, status domain.MessageStatus) (int64, error)
	LastSentAt(ctx context.Context, campaignID string) (*time.Time, error)
	LockNextWaiting(ctx context.Context, campaignID string, attemptAt time.Time) (*domain.Message, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	ResetForRetry(ctx context.Context, id string) (bool, error)
	ListStaleSending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Message, error)
}

type GormMessageRepo struct {
	db *gorm.DB
}

func NewGormMessageRepo(db *gorm.DB) *GormMessageRepo {
	return &GormMessageRepo{db: db}
}

func (r *GormMessageRepo) CreateBatch(ctx context.Context, messages []*domain.Message) error {
	models := make([]MessageModel, 0, len(messages))
	modelIndexes := make([]int, 0, len(messages))
	for i, msg := range messages {
		model := messageModelFromDomain(msg)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(messages) && messages[idx] != nil {
			*messages[idx] = *messageModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return messageModelToDomain(&model), nil
}

func (r *GormMessageRepo) List(ctx context.Context, params MessageListParams) ([]domain.Message, int64, error) {
	query := r.db.WithContext(ctx).Model(&MessageModel{})

	if params.CampaignID != "" {
		query = query.Where("campaign_id = ?", params.CampaignID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 500)

	var models []MessageModel
	err := query.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, *messageModelToDomain(&models[i]))
	}

	return messages, total, nil
}

func (r *GormMessageRepo) CountByStatus(ctx context.Context, campaignID string, status domain.MessageStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("campaign_id = ? AND status = ?", campaignID, status).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// LastSentAt returns the newest confirmed send timestamp for a campaign, or
// nil when nothing has been sent yet. The engine paces against this query
// rather than in-memory state so a restart resumes correctly.
func (r *GormMessageRepo) LastSentAt(ctx context.Context, campaignID string) (*time.Time, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ? AND sent_at IS NOT NULL", campaignID, domain.MessageSent).
		Order("sent_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.SentAt, nil
}

// LockNextWaiting selects the oldest WAITING message of a campaign and
// conditionally flips it to SENDING, recording the attempt timestamp. The
// conditional update is the engine's only locking mechanism: a concurrent
// invocation that loses the race affects zero rows and selection retries.
// Returns nil when no waiting message remains.
func (r *GormMessageRepo) LockNextWaiting(ctx context.Context, campaignID string, attemptAt time.Time) (*domain.Message, error) {
	for {
		var model MessageModel
		err := r.db.WithContext(ctx).
			Where("campaign_id = ? AND status = ?", campaignID, domain.MessageWaiting).
			Order("created_at ASC").
			First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		result := r.db.WithContext(ctx).
			Model(&MessageModel{}).
			Where("id = ? AND status = ?", model.ID, domain.MessageWaiting).
			Updates(map[string]any{
				"status":  domain.MessageSending,
				"sent_at": attemptAt,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race to another invocation; pick the next candidate.
			continue
		}

		model.Status = domain.MessageSending
		model.SentAt = &attemptAt
		return messageModelToDomain(&model), nil
	}
}

func (r *GormMessageRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.MessageSent,
			"sent_at":       sentAt,
			"error_message": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormMessageRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	result := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.MessageFailed,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetForRetry puts a failed message back into the waiting pool, clearing
// the recorded error and attempt clock.
func (r *GormMessageRepo) ResetForRetry(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND status = ?", id, domain.MessageFailed).
		Updates(map[string]any{
			"status":        domain.MessageWaiting,
			"error_message": nil,
			"sent_at":       nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListStaleSending returns messages stuck in SENDING since before olderThan.
// These indicate a crash mid-transport and need manual reconciliation.
func (r *GormMessageRepo) ListStaleSending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Message, error) {
	if limit < 1 {
		limit = 100
	}

	var models []MessageModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND sent_at IS NOT NULL AND sent_at < ?", domain.MessageSending, olderThan).
		Order("sent_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, *messageModelToDomain(&models[i]))
	}

	return messages, nil
}
