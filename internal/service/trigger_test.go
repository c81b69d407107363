package service

import (
	"context"
	"testing"

	"github.com/pacedrop/campaign-scheduler/internal/domain"
	"github.com/pacedrop/campaign-scheduler/internal/queue"
	"go.uber.org/zap"
)

func TestSweepTriggerRunsDueCampaigns(t *testing.T) {
	t.Parallel()

	campaigns := newMemCampaignRepo(newTestCampaign("c1", 1, domain.CampaignScheduled))
	messages := newMemMessageRepo("c1", 1)
	engine, _ := newTestEngine(t, campaigns, messages, &fakeSender{})

	trigger, err := NewSweepTrigger(engine, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSweepTrigger() error = %v", err)
	}
	if trigger.interval != defaultSweepInterval {
		t.Fatalf("interval = %s, want default %s", trigger.interval, defaultSweepInterval)
	}

	if err := trigger.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	if campaigns.store["c1"].Status != domain.CampaignFinished {
		t.Fatalf("campaign status = %s, want FINISHED after sweep", campaigns.store["c1"].Status)
	}
}

func TestQueueTriggerHandlesDispatchRequest(t *testing.T) {
	t.Parallel()

	campaigns := newMemCampaignRepo(newTestCampaign("c1", 1, domain.CampaignScheduled))
	messages := newMemMessageRepo("c1", 1)
	engine, _ := newTestEngine(t, campaigns, messages, &fakeSender{})

	trigger, err := NewQueueTrigger(engine, &fakeConsumer{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueueTrigger() error = %v", err)
	}

	if err := trigger.handle(context.Background(), queue.DispatchRequest{CampaignID: "c1"}); err != nil {
		t.Fatalf("handle() error = %v", err)
	}

	if campaigns.store["c1"].Status != domain.CampaignFinished {
		t.Fatalf("campaign status = %s, want FINISHED", campaigns.store["c1"].Status)
	}
}

func TestQueueTriggerHandleUnknownCampaign(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, newMemCampaignRepo(), &memMessageRepo{}, &fakeSender{})

	trigger, err := NewQueueTrigger(engine, &fakeConsumer{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueueTrigger() error = %v", err)
	}

	if err := trigger.handle(context.Background(), queue.DispatchRequest{CampaignID: "missing"}); err == nil {
		t.Fatal("expected error for unknown campaign")
	}
}

type fakeConsumer struct{}

func (c *fakeConsumer) Consume(_ context.Context, _ string, _ queue.MessageHandler) error {
	return nil
}

func (c *fakeConsumer) Close() error { return nil }
