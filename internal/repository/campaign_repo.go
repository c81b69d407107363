package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/domain"
	"gorm.io/gorm"
)

type CampaignListParams struct {
	OwnerID  string
	Status   *domain.CampaignStatus
	Page     int
	PageSize int
}

type CampaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, params CampaignListParams) ([]domain.Campaign, int64, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error)
	ListOpenByOwner(ctx context.Context, ownerID string) ([]domain.Campaign, error)
	PromoteToProcessing(ctx context.Context, id string, startedAt time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error)
	IncrementSent(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string, finishedAt time.Time, executionSeconds int, sentCount int) error
	Reopen(ctx context.Context, id string) (bool, error)
}

type GormCampaignRepo struct {
	db *gorm.DB
}

func NewGormCampaignRepo(db *gorm.DB) *GormCampaignRepo {
	return &GormCampaignRepo{db: db}
}

func (r *GormCampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	model := campaignModelFromDomain(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if c != nil {
		*c = *campaignModelToDomain(model)
	}
	return nil
}

func (r *GormCampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var model CampaignModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return campaignModelToDomain(&model), nil
}

func (r *GormCampaignRepo) List(ctx context.Context, params CampaignListParams) ([]domain.Campaign, int64, error) {
	query := r.db.WithContext(ctx).Model(&CampaignModel{})

	if params.OwnerID != "" {
		query = query.Where("owner_id = ?", params.OwnerID)
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
	pageSize = min(pageSize, 100)

	var models []CampaignModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		campaigns = append(campaigns, *campaignModelToDomain(&models[i]))
	}

	return campaigns, total, nil
}

// ListDue returns campaigns eligible for a dispatch pass: any workable status
// whose intended start has passed.
func (r *GormCampaignRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	workable := []domain.CampaignStatus{
		domain.CampaignScheduled,
		domain.CampaignPending,
		domain.CampaignProcessing,
		domain.CampaignActive,
	}

	var models []CampaignModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", workable, now).
		Order("scheduled_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		campaigns = append(campaigns, *campaignModelToDomain(&models[i]))
	}

	return campaigns, nil
}

// ListOpenByOwner returns the owner's non-terminal campaigns for overlap
// checking.
func (r *GormCampaignRepo) ListOpenByOwner(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	terminal := []domain.CampaignStatus{
		domain.CampaignFinished,
		domain.CampaignFailed,
		domain.CampaignCanceled,
	}

	var models []CampaignModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status NOT IN ?", ownerID, terminal).
		Order("scheduled_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	campaigns := make([]domain.Campaign, 0, len(models))
	for i := range models {
		campaigns = append(campaigns, *campaignModelToDomain(&models[i]))
	}

	return campaigns, nil
}

// PromoteToProcessing conditionally moves a workable campaign to PROCESSING,
// stamping started_at only if it was never set. Zero rows affected means the
// campaign changed state underneath us (paused, canceled, already finished).
func (r *GormCampaignRepo) PromoteToProcessing(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	workable := []domain.CampaignStatus{
		domain.CampaignScheduled,
		domain.CampaignPending,
		domain.CampaignProcessing,
		domain.CampaignActive,
	}

	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status IN ?", id, workable).
		Updates(map[string]any{
			"status":     domain.CampaignProcessing,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", startedAt),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// TransitionStatus applies a conditional status update, keyed on the set of
// acceptable current statuses. It reports whether a row changed.
func (r *GormCampaignRepo) TransitionStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementSent bumps the live progress counter. It is a fast, possibly
// drifting count; Finalize replaces it with the reconciled value.
func (r *GormCampaignRepo) IncrementSent(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ?", id).
		Update("sent_messages", gorm.Expr("sent_messages + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Finalize closes a drained campaign, overwriting the incremented counter with
// the count reconciled from SENT rows.
func (r *GormCampaignRepo) Finalize(ctx context.Context, id string, finishedAt time.Time, executionSeconds int, sentCount int) error {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         domain.CampaignFinished,
			"finished_at":    finishedAt,
			"execution_time": executionSeconds,
			"sent_messages":  sentCount,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Reopen moves a finished campaign back to PROCESSING after a message retry,
// clearing finished_at so the next finalization recomputes it.
func (r *GormCampaignRepo) Reopen(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND status = ?", id, domain.CampaignFinished).
		Updates(map[string]any{
			"status":      domain.CampaignProcessing,
			"finished_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
