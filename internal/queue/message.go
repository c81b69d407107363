package queue

import (
	"fmt"
	"strings"
)

// DispatchRequest is the broker payload for a manual "run now" trigger.
type DispatchRequest struct {
	CampaignID  string `json:"campaignId"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

func (m DispatchRequest) Validate() error {
	if strings.TrimSpace(m.CampaignID) == "" {
		return fmt.Errorf("campaignId is required")
	}
	return nil
}
