package repository

import (
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/domain"
)

// CampaignModel is the persistence model for the campaigns table.
type CampaignModel struct {
	ID            string                `gorm:"type:uuid;primaryKey"`
	OwnerID       string                `gorm:"type:uuid;not null;index"`
	Name          string                `gorm:"type:varchar(255);not null"`
	Status        domain.CampaignStatus `gorm:"type:varchar(20);not null"`
	TotalMessages int                   `gorm:"not null;default:0"`
	SentMessages  int                   `gorm:"not null;default:0"`
	ScheduledAt   *time.Time            `gorm:"type:timestamptz"`
	StartedAt     *time.Time            `gorm:"type:timestamptz"`
	FinishedAt    *time.Time            `gorm:"type:timestamptz"`
	ExecutionTime int                   `gorm:"not null;default:0"`
	Config        domain.ScheduleConfig `gorm:"type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (CampaignModel) TableName() string {
	return "campaigns"
}

// MessageModel is the persistence model for the messages table.
type MessageModel struct {
	ID             string               `gorm:"type:uuid;primaryKey"`
	CampaignID     string               `gorm:"type:uuid;not null;index"`
	RecipientName  string               `gorm:"type:varchar(255);not null"`
	RecipientPhone string               `gorm:"type:varchar(32);not null"`
	Body           string               `gorm:"type:text;not null"`
	Status         domain.MessageStatus `gorm:"type:varchar(20);not null"`
	ErrorMessage   *string              `gorm:"type:text"`
	SentAt         *time.Time           `gorm:"type:timestamptz"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (MessageModel) TableName() string {
	return "messages"
}

func campaignModelFromDomain(c *domain.Campaign) *CampaignModel {
	if c == nil {
		return nil
	}

	return &CampaignModel{
		ID:            c.ID,
		OwnerID:       c.OwnerID,
		Name:          c.Name,
		Status:        c.Status,
		TotalMessages: c.TotalMessages,
		SentMessages:  c.SentMessages,
		ScheduledAt:   c.ScheduledAt,
		StartedAt:     c.StartedAt,
		FinishedAt:    c.FinishedAt,
		ExecutionTime: c.ExecutionTime,
		Config:        c.Config,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func campaignModelToDomain(m *CampaignModel) *domain.Campaign {
	if m == nil {
		return nil
	}

	return &domain.Campaign{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Name:          m.Name,
		Status:        m.Status,
		TotalMessages: m.TotalMessages,
		SentMessages:  m.SentMessages,
		ScheduledAt:   m.ScheduledAt,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
		ExecutionTime: m.ExecutionTime,
		Config:        m.Config,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func messageModelFromDomain(msg *domain.Message) *MessageModel {
	if msg == nil {
		return nil
	}

	return &MessageModel{
		ID:             msg.ID,
		CampaignID:     msg.CampaignID,
		RecipientName:  msg.RecipientName,
		RecipientPhone: msg.RecipientPhone,
		Body:           msg.Body,
		Status:         msg.Status,
		ErrorMessage:   msg.ErrorMessage,
		SentAt:         msg.SentAt,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}
}

func messageModelToDomain(m *MessageModel) *domain.Message {
	if m == nil {
		return nil
	}

	return &domain.Message{
		ID:             m.ID,
		CampaignID:     m.CampaignID,
		RecipientName:  m.RecipientName,
		RecipientPhone: m.RecipientPhone,
		Body:           m.Body,
		Status:         m.Status,
		ErrorMessage:   m.ErrorMessage,
		SentAt:         m.SentAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
