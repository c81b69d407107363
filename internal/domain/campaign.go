package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignPending    CampaignStatus = "PENDING"
	CampaignScheduled  CampaignStatus = "SCHEDULED"
	CampaignActive     CampaignStatus = "ACTIVE"
	CampaignProcessing CampaignStatus = "PROCESSING"
	CampaignPaused     CampaignStatus = "PAUSED"
	CampaignFinished   CampaignStatus = "FINISHED"
	CampaignFailed     CampaignStatus = "FAILED"
	CampaignCanceled   CampaignStatus = "CANCELED"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignPending, CampaignScheduled, CampaignActive, CampaignProcessing,
		CampaignPaused, CampaignFinished, CampaignFailed, CampaignCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further dispatch work is legal in this state.
// A finished campaign is terminal for the engine but can still be reopened by
// a message retry.
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignFinished, CampaignFailed, CampaignCanceled:
		return true
	}
	return false
}

// IsNotStarted reports whether the status is one of the equivalent "not yet
// started" entry points that the dispatch engine promotes to PROCESSING.
func (s CampaignStatus) IsNotStarted() bool {
	switch s {
	case CampaignPending, CampaignScheduled, CampaignActive:
		return true
	}
	return false
}

func ParseCampaignStatusFromString(s string) (CampaignStatus, error) {
	st := CampaignStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid campaign status %q", ErrValidation, s)
	}
	return st, nil
}

// campaignTransitions is the authoritative status lifecycle. Any non-terminal
// state may additionally move to FAILED or CANCELED.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignPending:    {CampaignScheduled, CampaignActive, CampaignProcessing},
	CampaignScheduled:  {CampaignActive, CampaignProcessing},
	CampaignActive:     {CampaignProcessing},
	CampaignProcessing: {CampaignPaused, CampaignFinished},
	CampaignPaused:     {CampaignProcessing},
	CampaignFinished:   {CampaignProcessing}, // reopened by a message retry
	CampaignFailed:     {},
	CampaignCanceled:   {},
}

// CanTransition reports whether moving from one campaign status to another is
// legal under the lifecycle rules.
func (s CampaignStatus) CanTransition(to CampaignStatus) bool {
	if s == to {
		return false
	}
	if !s.IsTerminal() && (to == CampaignFailed || to == CampaignCanceled) {
		return true
	}
	for _, allowed := range campaignTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Campaign is a batch of per-recipient messages paced through a shared
// outbound channel.
type Campaign struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	OwnerID       string         `gorm:"type:uuid;not null;index"`
	Name          string         `gorm:"type:varchar(255);not null"`
	Status        CampaignStatus `gorm:"type:varchar(20);not null"`
	TotalMessages int            `gorm:"not null;default:0"`
	SentMessages  int            `gorm:"not null;default:0"`
	ScheduledAt   *time.Time     `gorm:"type:timestamptz"`
	StartedAt     *time.Time     `gorm:"type:timestamptz"`
	FinishedAt    *time.Time     `gorm:"type:timestamptz"`
	ExecutionTime int            `gorm:"not null;default:0"`
	Config        ScheduleConfig `gorm:"type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: campaign name is required", ErrValidation)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: invalid campaign status %q", ErrValidation, c.Status)
	}
	if c.SentMessages < 0 || c.SentMessages > c.TotalMessages {
		return fmt.Errorf("%w: sent_messages %d out of range [0, %d]", ErrInvariant, c.SentMessages, c.TotalMessages)
	}
	return c.Config.Validate()
}

// FinishedWithErrors reports a finished campaign that delivered fewer messages
// than it contains.
func (c *Campaign) FinishedWithErrors() bool {
	return c.Status == CampaignFinished && c.SentMessages < c.TotalMessages
}

// StartReference returns the instant a campaign's schedule should be anchored
// at: the actual first dispatch when it exists, the intended start otherwise.
func (c *Campaign) StartReference() time.Time {
	if c.StartedAt != nil {
		return *c.StartedAt
	}
	if c.ScheduledAt != nil {
		return *c.ScheduledAt
	}
	return c.CreatedAt
}
