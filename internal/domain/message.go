package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessageStatus represents the delivery state of a single campaign message.
type MessageStatus string

const (
	MessageWaiting MessageStatus = "WAITING"
	MessageSending MessageStatus = "SENDING"
	MessageSent    MessageStatus = "SENT"
	MessageFailed  MessageStatus = "FAILED"
)

func (s MessageStatus) String() string { return string(s) }

func (s MessageStatus) IsValid() bool {
	switch s {
	case MessageWaiting, MessageSending, MessageSent, MessageFailed:
		return true
	}
	return false
}

func ParseMessageStatusFromString(s string) (MessageStatus, error) {
	st := MessageStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid message status %q", ErrValidation, s)
	}
	return st, nil
}

// Message is one outbound message for one recipient of a campaign. Messages
// are created in bulk when the campaign is built and mutated only by the
// dispatch engine or by an explicit user retry.
type Message struct {
	ID             string        `gorm:"type:uuid;primaryKey"`
	CampaignID     string        `gorm:"type:uuid;not null;index"`
	RecipientName  string        `gorm:"type:varchar(255);not null"`
	RecipientPhone string        `gorm:"type:varchar(32);not null"`
	Body           string        `gorm:"type:text;not null"`
	Status         MessageStatus `gorm:"type:varchar(20);not null"`
	ErrorMessage   *string       `gorm:"type:text"`
	SentAt         *time.Time    `gorm:"type:timestamptz"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.CampaignID) == "" {
		return fmt.Errorf("%w: campaign id is required", ErrValidation)
	}
	if strings.TrimSpace(m.RecipientPhone) == "" {
		return fmt.Errorf("%w: recipient phone is required", ErrValidation)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: message body is required", ErrValidation)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("%w: invalid message status %q", ErrValidation, m.Status)
	}
	return nil
}
