package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pacedrop/campaign-scheduler/internal/domain"
	"github.com/pacedrop/campaign-scheduler/internal/repository"
	"github.com/pacedrop/campaign-scheduler/internal/schedule"
	"github.com/pacedrop/campaign-scheduler/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type CampaignService interface {
	Create(ctx context.Context, input service.NewCampaignInput) (*domain.Campaign, error)
	Preview(cfg domain.ScheduleConfig, count int) ([]schedule.ScheduledMessage, error)
	CheckConflict(ctx context.Context, ownerID string, cfg domain.ScheduleConfig, count int) (schedule.Conflict, error)
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, params repository.CampaignListParams) ([]domain.Campaign, int64, error)
	ListMessages(ctx context.Context, params repository.MessageListParams) ([]domain.Message, int64, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	RunNow(ctx context.Context, id string, requestedBy string) error
	RetryMessage(ctx context.Context, messageID string) error
}

type CampaignHandler struct {
	service CampaignService
}

func NewCampaignHandler(service CampaignService) (*CampaignHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("campaign service is required")
	}
	return &CampaignHandler{service: service}, nil
}

func RegisterCampaignRoutes(router fiber.Router, service CampaignService) error {
	h, err := NewCampaignHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	// Static paths before :id so fiber does not swallow them as parameters.
	v1.Post("/campaigns/preview", h.PreviewSchedule)
	v1.Post("/campaigns/conflict-check", h.CheckConflict)
	v1.Post("/campaigns", h.CreateCampaign)
	v1.Get("/campaigns", h.ListCampaigns)
	v1.Get("/campaigns/:id", h.GetCampaign)
	v1.Get("/campaigns/:id/messages", h.ListMessages)
	v1.Post("/campaigns/:id/pause", h.PauseCampaign)
	v1.Post("/campaigns/:id/resume", h.ResumeCampaign)
	v1.Post("/campaigns/:id/cancel", h.CancelCampaign)
	v1.Post("/campaigns/:id/dispatch", h.DispatchNow)
	v1.Post("/messages/:id/retry", h.RetryMessage)

	return nil
}

type automaticPauseRequest struct {
	PauseAt    string `json:"pauseAt"`
	ResumeDate string `json:"resumeDate"`
	ResumeTime string `json:"resumeTime"`
}

type scheduleConfigRequest struct {
	MinIntervalSec        int                    `json:"minIntervalSec"`
	MaxIntervalSec        int                    `json:"maxIntervalSec"`
	UseBatching           bool                   `json:"useBatching"`
	BatchSize             int                    `json:"batchSize"`
	BatchPauseMinSec      int                    `json:"batchPauseMinSec"`
	BatchPauseMaxSec      int                    `json:"batchPauseMaxSec"`
	BusinessHoursStrategy string                 `json:"businessHoursStrategy"`
	PauseTime             string                 `json:"pauseTime"`
	ResumeTime            string                 `json:"resumeTime"`
	AutomaticPause        *automaticPauseRequest `json:"automaticPause"`
	StartTime             *time.Time             `json:"startTime"`
}

type recipientRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	MessageText string `json:"messageText"`
}

type createCampaignRequest struct {
	OwnerID      string                `json:"ownerId"`
	Name         string                `json:"name"`
	ScheduledAt  *time.Time            `json:"scheduledAt"`
	Config       scheduleConfigRequest `json:"config"`
	Recipients   []recipientRequest    `json:"recipients"`
	AllowOverlap bool                  `json:"allowOverlap"`
}

type previewRequest struct {
	Config scheduleConfigRequest `json:"config"`
	Count  int                   `json:"count"`
}

type conflictCheckRequest struct {
	OwnerID string                `json:"ownerId"`
	Config  scheduleConfigRequest `json:"config"`
	Count   int                   `json:"count"`
}

type campaignResponse struct {
	ID                 string                `json:"id"`
	OwnerID            string                `json:"ownerId"`
	Name               string                `json:"name"`
	Status             string                `json:"status"`
	TotalMessages      int                   `json:"totalMessages"`
	SentMessages       int                   `json:"sentMessages"`
	FinishedWithErrors bool                  `json:"finishedWithErrors"`
	ScheduledAt        *time.Time            `json:"scheduledAt,omitempty"`
	StartedAt          *time.Time            `json:"startedAt,omitempty"`
	FinishedAt         *time.Time            `json:"finishedAt,omitempty"`
	ExecutionTime      int                   `json:"executionTime"`
	Config             domain.ScheduleConfig `json:"config"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

type messageResponse struct {
	ID             string     `json:"id"`
	CampaignID     string     `json:"campaignId"`
	RecipientName  string     `json:"recipientName"`
	RecipientPhone string     `json:"recipientPhone"`
	Body           string     `json:"body"`
	Status         string     `json:"status"`
	ErrorMessage   *string    `json:"errorMessage,omitempty"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
}

type scheduledMessageResponse struct {
	Index    int       `json:"index"`
	SendTime time.Time `json:"sendTime"`
}

type conflictResponse struct {
	HasConflict   bool       `json:"hasConflict"`
	CampaignID    string     `json:"conflictingId,omitempty"`
	CampaignName  string     `json:"conflictingName,omitempty"`
	SuggestedTime *time.Time `json:"suggestedTime,omitempty"`
}

type listCampaignsResponse struct {
	Data []campaignResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMessagesResponse struct {
	Data []messageResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req createCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := requestToScheduleConfig(req.Config)
	if err != nil {
		return toHTTPError(err)
	}

	input := service.NewCampaignInput{
		OwnerID:      strings.TrimSpace(req.OwnerID),
		Name:         strings.TrimSpace(req.Name),
		Config:       cfg,
		AllowOverlap: req.AllowOverlap,
	}
	if req.ScheduledAt != nil {
		input.ScheduledAt = *req.ScheduledAt
	}
	for _, r := range req.Recipients {
		input.Recipients = append(input.Recipients, service.Recipient{
			Name:        r.Name,
			Phone:       r.Phone,
			MessageText: r.MessageText,
		})
	}

	campaign, err := h.service.Create(c.Context(), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toCampaignResponse(campaign))
}

func (h *CampaignHandler) PreviewSchedule(c *fiber.Ctx) error {
	var req previewRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := requestToScheduleConfig(req.Config)
	if err != nil {
		return toHTTPError(err)
	}

	projected, err := h.service.Preview(cfg, req.Count)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]scheduledMessageResponse, 0, len(projected))
	for _, p := range projected {
		items = append(items, scheduledMessageResponse{Index: p.Index, SendTime: p.SendTime})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"schedule": items})
}

func (h *CampaignHandler) CheckConflict(c *fiber.Ctx) error {
	var req conflictCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := requestToScheduleConfig(req.Config)
	if err != nil {
		return toHTTPError(err)
	}

	conflict, err := h.service.CheckConflict(c.Context(), req.OwnerID, cfg, req.Count)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(conflictResponse{
		HasConflict:   conflict.HasConflict,
		CampaignID:    conflict.CampaignID,
		CampaignName:  conflict.CampaignName,
		SuggestedTime: conflict.SuggestedTime,
	})
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	campaign, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	params := repository.CampaignListParams{
		OwnerID:  strings.TrimSpace(c.Query("ownerId")),
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return toHTTPError(fmt.Errorf("%w: page must be >= 1", domain.ErrValidation))
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseCampaignStatusFromString(rawStatus)
		if err != nil {
			return toHTTPError(err)
		}
		params.Status = &status
	}

	campaigns, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]campaignResponse, 0, len(campaigns))
	for i := range campaigns {
		data = append(data, toCampaignResponse(&campaigns[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listCampaignsResponse{
		Data: data,
		Meta: listMeta{Page: params.Page, PageSize: params.PageSize, Total: total},
	})
}

func (h *CampaignHandler) ListMessages(c *fiber.Ctx) error {
	params := repository.MessageListParams{
		CampaignID: strings.TrimSpace(c.Params("id")),
		Page:       c.QueryInt("page", defaultPage),
		PageSize:   c.QueryInt("pageSize", defaultPageSize),
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseMessageStatusFromString(rawStatus)
		if err != nil {
			return toHTTPError(err)
		}
		params.Status = &status
	}

	messages, total, err := h.service.ListMessages(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]messageResponse, 0, len(messages))
	for i := range messages {
		data = append(data, toMessageResponse(&messages[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listMessagesResponse{
		Data: data,
		Meta: listMeta{Page: params.Page, PageSize: params.PageSize, Total: total},
	})
}

func (h *CampaignHandler) PauseCampaign(c *fiber.Ctx) error {
	return h.lifecycle(c, h.service.Pause, domain.CampaignPaused)
}

func (h *CampaignHandler) ResumeCampaign(c *fiber.Ctx) error {
	return h.lifecycle(c, h.service.Resume, domain.CampaignProcessing)
}

func (h *CampaignHandler) CancelCampaign(c *fiber.Ctx) error {
	return h.lifecycle(c, h.service.Cancel, domain.CampaignCanceled)
}

func (h *CampaignHandler) lifecycle(c *fiber.Ctx, op func(context.Context, string) error, resulting domain.CampaignStatus) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := op(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"campaignId": id,
		"status":     resulting.String(),
	})
}

func (h *CampaignHandler) DispatchNow(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	requestedBy := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))

	if err := h.service.RunNow(c.Context(), id, requestedBy); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"campaignId": id,
		"queued":     true,
	})
}

func (h *CampaignHandler) RetryMessage(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.RetryMessage(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"messageId": id,
		"status":    domain.MessageWaiting.String(),
	})
}

func requestToScheduleConfig(req scheduleConfigRequest) (domain.ScheduleConfig, error) {
	cfg := domain.ScheduleConfig{
		MinIntervalSec:   req.MinIntervalSec,
		MaxIntervalSec:   req.MaxIntervalSec,
		UseBatching:      req.UseBatching,
		BatchSize:        req.BatchSize,
		BatchPauseMinSec: req.BatchPauseMinSec,
		BatchPauseMaxSec: req.BatchPauseMaxSec,
		PauseTime:        strings.TrimSpace(req.PauseTime),
		ResumeTime:       strings.TrimSpace(req.ResumeTime),
	}

	if raw := strings.TrimSpace(req.BusinessHoursStrategy); raw != "" {
		strategy, err := domain.ParseBusinessHoursStrategyFromString(raw)
		if err != nil {
			return domain.ScheduleConfig{}, err
		}
		cfg.BusinessHoursStrategy = strategy
	}

	if req.AutomaticPause != nil {
		cfg.AutomaticPause = &domain.AutomaticPause{
			PauseAt:    strings.TrimSpace(req.AutomaticPause.PauseAt),
			ResumeDate: strings.TrimSpace(req.AutomaticPause.ResumeDate),
			ResumeTime: strings.TrimSpace(req.AutomaticPause.ResumeTime),
		}
	}

	if req.StartTime != nil {
		cfg.StartTime = *req.StartTime
	}

	cfg.Normalize()
	return cfg, nil
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	if campaign == nil {
		return campaignResponse{}
	}

	return campaignResponse{
		ID:                 campaign.ID,
		OwnerID:            campaign.OwnerID,
		Name:               campaign.Name,
		Status:             campaign.Status.String(),
		TotalMessages:      campaign.TotalMessages,
		SentMessages:       campaign.SentMessages,
		FinishedWithErrors: campaign.FinishedWithErrors(),
		ScheduledAt:        campaign.ScheduledAt,
		StartedAt:          campaign.StartedAt,
		FinishedAt:         campaign.FinishedAt,
		ExecutionTime:      campaign.ExecutionTime,
		Config:             campaign.Config,
		CreatedAt:          campaign.CreatedAt,
		UpdatedAt:          campaign.UpdatedAt,
	}
}

func toMessageResponse(msg *domain.Message) messageResponse {
	if msg == nil {
		return messageResponse{}
	}

	return messageResponse{
		ID:             msg.ID,
		CampaignID:     msg.CampaignID,
		RecipientName:  msg.RecipientName,
		RecipientPhone: msg.RecipientPhone,
		Body:           msg.Body,
		Status:         msg.Status.String(),
		ErrorMessage:   msg.ErrorMessage,
		SentAt:         msg.SentAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
