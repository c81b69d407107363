package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pacedrop/campaign-scheduler/internal/domain"
	"github.com/pacedrop/campaign-scheduler/internal/repository"
	"github.com/pacedrop/campaign-scheduler/internal/schedule"
	"github.com/pacedrop/campaign-scheduler/internal/service"
	"github.com/pacedrop/campaign-scheduler/internal/transport"
	"go.uber.org/zap"
)

func TestCampaignIntegration_CreateCampaign(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		createFn: func(ctx context.Context, input service.NewCampaignInput) (*domain.Campaign, error) {
			if input.OwnerID == "" {
				return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
			}
			if len(input.Recipients) == 0 {
				return nil, fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
			}
			return &domain.Campaign{
				ID:            "c-created",
				OwnerID:       input.OwnerID,
				Name:          input.Name,
				Status:        domain.CampaignScheduled,
				TotalMessages: len(input.Recipients),
				Config:        input.Config,
			}, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	validBody := `{"ownerId":"owner-1","name":"spring promo","config":{"minIntervalSec":20,"maxIntervalSec":40},"recipients":[{"name":"Ada","phone":"+905551112233","messageText":"hi"}]}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/campaigns", validBody)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(body))
	}

	var created map[string]any
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if created["id"] != "c-created" {
		t.Fatalf("id = %v, want c-created", created["id"])
	}
	if created["status"] != domain.CampaignScheduled.String() {
		t.Fatalf("status = %v, want %s", created["status"], domain.CampaignScheduled.String())
	}

	missingOwnerBody := `{"name":"spring promo","config":{"minIntervalSec":20,"maxIntervalSec":40},"recipients":[{"name":"Ada","phone":"+905551112233","messageText":"hi"}]}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/campaigns", missingOwnerBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing owner", resp.StatusCode)
	}

	badStrategyBody := `{"ownerId":"owner-1","name":"x","config":{"businessHoursStrategy":"sometimes"},"recipients":[{"phone":"+905551112233","messageText":"hi"}]}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/campaigns", badStrategyBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown business hours strategy", resp.StatusCode)
	}
}

func TestCampaignIntegration_PreviewSchedule(t *testing.T) {
	t.Parallel()

	start, _ := time.Parse(time.RFC3339, "2026-03-02T10:00:00Z")
	svc := &stubCampaignService{
		previewFn: func(cfg domain.ScheduleConfig, count int) ([]schedule.ScheduledMessage, error) {
			if count <= 0 {
				return nil, fmt.Errorf("%w: count must be positive", domain.ErrValidation)
			}
			out := make([]schedule.ScheduledMessage, 0, count)
			for i := 0; i < count; i++ {
				out = append(out, schedule.ScheduledMessage{
					Index:    i,
					SendTime: start.Add(time.Duration(i) * 30 * time.Second),
				})
			}
			return out, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	// Static route must win over /campaigns/:id.
	body := `{"config":{"minIntervalSec":20,"maxIntervalSec":40},"count":3}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/campaigns/preview", body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Schedule []struct {
			Index    int       `json:"index"`
			SendTime time.Time `json:"sendTime"`
		} `json:"schedule"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Schedule) != 3 {
		t.Fatalf("schedule len = %d, want 3", len(parsed.Schedule))
	}
	if !parsed.Schedule[2].SendTime.Equal(start.Add(time.Minute)) {
		t.Fatalf("slot 2 = %v, want %v", parsed.Schedule[2].SendTime, start.Add(time.Minute))
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/campaigns/preview", `{"config":{},"count":-1}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for negative count", resp.StatusCode)
	}
}

func TestCampaignIntegration_ConflictCheck(t *testing.T) {
	t.Parallel()

	suggested, _ := time.Parse(time.RFC3339, "2026-03-02T11:14:00Z")
	svc := &stubCampaignService{
		checkConflictFn: func(ctx context.Context, ownerID string, cfg domain.ScheduleConfig, count int) (schedule.Conflict, error) {
			if ownerID != "owner-1" {
				return schedule.Conflict{}, nil
			}
			return schedule.Conflict{
				HasConflict:   true,
				CampaignID:    "c-existing",
				CampaignName:  "running promo",
				SuggestedTime: &suggested,
			}, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	body := `{"ownerId":"owner-1","config":{"minIntervalSec":20,"maxIntervalSec":40},"count":5}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/campaigns/conflict-check", body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["hasConflict"] != true {
		t.Fatalf("hasConflict = %v, want true", parsed["hasConflict"])
	}
	if parsed["conflictingId"] != "c-existing" {
		t.Fatalf("conflictingId = %v, want c-existing", parsed["conflictingId"])
	}
	if parsed["suggestedTime"] != "2026-03-02T11:14:00Z" {
		t.Fatalf("suggestedTime = %v, want 2026-03-02T11:14:00Z", parsed["suggestedTime"])
	}
}

func TestCampaignIntegration_GetCampaign(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		getByIDFn: func(ctx context.Context, id string) (*domain.Campaign, error) {
			if id == "c-found" {
				return &domain.Campaign{
					ID:      "c-found",
					OwnerID: "owner-1",
					Name:    "spring promo",
					Status:  domain.CampaignActive,
				}, nil
			}
			return nil, domain.ErrNotFound
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodGet, "/v1/campaigns/c-found", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/campaigns/not-exists", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCampaignIntegration_ListCampaignsPagination(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		listFn: func(ctx context.Context, params repository.CampaignListParams) ([]domain.Campaign, int64, error) {
			if params.Page != 2 {
				t.Fatalf("page = %d, want 2", params.Page)
			}
			if params.PageSize != 10 {
				t.Fatalf("pageSize = %d, want 10", params.PageSize)
			}
			if params.Status == nil || *params.Status != domain.CampaignPaused {
				t.Fatalf("status filter = %v, want PAUSED", params.Status)
			}
			return []domain.Campaign{
				{ID: "c-list-1", OwnerID: "owner-1", Status: domain.CampaignPaused},
			}, 1, nil
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/campaigns?page=2&pageSize=10&status=paused", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Page     int   `json:"page"`
			PageSize int   `json:"pageSize"`
			Total    int64 `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Meta.Page != 2 || parsed.Meta.PageSize != 10 || parsed.Meta.Total != 1 {
		t.Fatalf("meta = %+v, want page=2,pageSize=10,total=1", parsed.Meta)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/campaigns?pageSize=500", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized page", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/campaigns?status=definitely-not-a-status", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown status", resp.StatusCode)
	}
}

func TestCampaignIntegration_Lifecycle(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		pauseFn: func(ctx context.Context, id string) error {
			if id == "c-running" {
				return nil
			}
			return fmt.Errorf("%w: campaign is not running", domain.ErrConflict)
		},
		resumeFn: func(ctx context.Context, id string) error { return nil },
		cancelFn: func(ctx context.Context, id string) error { return nil },
	}

	app := newCampaignTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/campaigns/c-running/pause", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["status"] != domain.CampaignPaused.String() {
		t.Fatalf("status = %v, want %s", parsed["status"], domain.CampaignPaused.String())
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/campaigns/c-finished/pause", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 for non-running campaign", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/campaigns/c-running/resume", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("resume status = %d, want 200", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/campaigns/c-running/cancel", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("cancel status = %d, want 200", resp.StatusCode)
	}
}

func TestCampaignIntegration_DispatchNow(t *testing.T) {
	t.Parallel()

	var gotRequestedBy string
	svc := &stubCampaignService{
		runNowFn: func(ctx context.Context, id string, requestedBy string) error {
			gotRequestedBy = requestedBy
			return nil
		},
	}

	app := newCampaignTestApp(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/c-1/dispatch", nil)
	req.Header.Set(fiber.HeaderXRequestID, "ops-console")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if gotRequestedBy != "ops-console" {
		t.Fatalf("requestedBy = %q, want ops-console", gotRequestedBy)
	}
}

func TestCampaignIntegration_RetryMessage(t *testing.T) {
	t.Parallel()

	svc := &stubCampaignService{
		retryMessageFn: func(ctx context.Context, messageID string) error {
			if messageID == "m-failed" {
				return nil
			}
			return fmt.Errorf("%w: only failed messages can be retried", domain.ErrConflict)
		},
	}

	app := newCampaignTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/messages/m-failed/retry", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["status"] != domain.MessageWaiting.String() {
		t.Fatalf("status = %v, want %s", parsed["status"], domain.MessageWaiting.String())
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/messages/m-sent/retry", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 for non-failed message", resp.StatusCode)
	}
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	okCheck := HealthCheck{Name: "postgres", Probe: func(context.Context) error { return nil }}
	downCheck := HealthCheck{Name: "redis", Probe: func(context.Context) error { return errors.New("redis down") }}

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, okCheck)

		resp, _ := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("readyz returns 200 when dependencies healthy", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, okCheck)

		resp, _ := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("readyz returns 503 when a dependency is down", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, okCheck, downCheck)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}

		var parsed struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			t.Fatalf("json unmarshal error = %v", err)
		}
		if parsed.Status != "not_ready" {
			t.Fatalf("status = %q, want not_ready", parsed.Status)
		}
		if parsed.Checks["postgres"] != "ok" || parsed.Checks["redis"] != "down" {
			t.Fatalf("checks = %v, want postgres ok and redis down", parsed.Checks)
		}
	})
}

type stubCampaignService struct {
	createFn        func(ctx context.Context, input service.NewCampaignInput) (*domain.Campaign, error)
	previewFn       func(cfg domain.ScheduleConfig, count int) ([]schedule.ScheduledMessage, error)
	checkConflictFn func(ctx context.Context, ownerID string, cfg domain.ScheduleConfig, count int) (schedule.Conflict, error)
	getByIDFn       func(ctx context.Context, id string) (*domain.Campaign, error)
	listFn          func(ctx context.Context, params repository.CampaignListParams) ([]domain.Campaign, int64, error)
	listMessagesFn  func(ctx context.Context, params repository.MessageListParams) ([]domain.Message, int64, error)
	pauseFn         func(ctx context.Context, id string) error
	resumeFn        func(ctx context.Context, id string) error
	cancelFn        func(ctx context.Context, id string) error
	runNowFn        func(ctx context.Context, id string, requestedBy string) error
	retryMessageFn  func(ctx context.Context, messageID string) error
}

func (s *stubCampaignService) Create(ctx context.Context, input service.NewCampaignInput) (*domain.Campaign, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCampaignService) Preview(cfg domain.ScheduleConfig, count int) ([]schedule.ScheduledMessage, error) {
	if s.previewFn != nil {
		return s.previewFn(cfg, count)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCampaignService) CheckConflict(
	ctx context.Context,
	ownerID string,
	cfg domain.ScheduleConfig,
	count int,
) (schedule.Conflict, error) {
	if s.checkConflictFn != nil {
		return s.checkConflictFn(ctx, ownerID, cfg, count)
	}
	return schedule.Conflict{}, nil
}

func (s *stubCampaignService) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubCampaignService) List(
	ctx context.Context,
	params repository.CampaignListParams,
) ([]domain.Campaign, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubCampaignService) ListMessages(
	ctx context.Context,
	params repository.MessageListParams,
) ([]domain.Message, int64, error) {
	if s.listMessagesFn != nil {
		return s.listMessagesFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubCampaignService) Pause(ctx context.Context, id string) error {
	if s.pauseFn != nil {
		return s.pauseFn(ctx, id)
	}
	return nil
}

func (s *stubCampaignService) Resume(ctx context.Context, id string) error {
	if s.resumeFn != nil {
		return s.resumeFn(ctx, id)
	}
	return nil
}

func (s *stubCampaignService) Cancel(ctx context.Context, id string) error {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, id)
	}
	return nil
}

func (s *stubCampaignService) RunNow(ctx context.Context, id string, requestedBy string) error {
	if s.runNowFn != nil {
		return s.runNowFn(ctx, id, requestedBy)
	}
	return nil
}

func (s *stubCampaignService) RetryMessage(ctx context.Context, messageID string) error {
	if s.retryMessageFn != nil {
		return s.retryMessageFn(ctx, messageID)
	}
	return nil
}

func newCampaignTestApp(t *testing.T, svc CampaignService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterCampaignRoutes(app, svc); err != nil {
		t.Fatalf("RegisterCampaignRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}
