package notify

import "context"

// CampaignEvent describes a persisted campaign state change for UI refresh.
type CampaignEvent struct {
	CampaignID   string `json:"campaignId"`
	OwnerID      string `json:"ownerId"`
	Status       string `json:"status"`
	SentMessages int    `json:"sentMessages"`
}

// Notifier broadcasts campaign state changes. It is an optional collaborator:
// the engine stays correct when delivery fails or no notifier is wired.
type Notifier interface {
	CampaignChanged(ctx context.Context, event CampaignEvent) error
}
