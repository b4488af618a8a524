package repository

import (
	"time"

	"github.com/kursadbilgin/review-relay/internal/domain"
)

// ReviewModel is the persistence model for the reviews table.
type ReviewModel struct {
	ID           string              `gorm:"type:varchar(64);primaryKey"`
	SourceAppID  string              `gorm:"type:varchar(64);not null"`
	Rating       int                 `gorm:"not null"`
	Title        *string             `gorm:"type:varchar(255)"`
	Body         *string             `gorm:"type:text"`
	AuthorName   string              `gorm:"type:varchar(255);not null"`
	SubmittedAt  time.Time           `gorm:"not null"`
	Edited       bool                `gorm:"not null;default:false"`
	ResponseBody *string             `gorm:"type:text"`
	ResponseAt   *time.Time
	Territory    *string             `gorm:"type:varchar(8)"`
	AppVersion   *string             `gorm:"type:varchar(32)"`
	FirstSeenAt  time.Time           `gorm:"not null"`
	Delivered    bool                `gorm:"not null;default:false"`
	DeliveryKind domain.DeliveryKind `gorm:"type:varchar(16)"`
	ReplyStatus  domain.ReplyStatus  `gorm:"type:varchar(16);not null;default:'NONE'"`
	ReplyRetries int                 `gorm:"not null;default:0"`
	LastError    *string             `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ReviewModel) TableName() string {
	return "reviews"
}

// CardInteractionModel is the persistence model for card_interactions.
type CardInteractionModel struct {
	ReviewID         string             `gorm:"type:varchar(64);primaryKey"`
	ChannelMessageID string             `gorm:"type:varchar(128);primaryKey"`
	State            domain.CardState   `gorm:"type:varchar(16);not null"`
	PendingReplyText *string            `gorm:"type:text"`
	ReplyStatus      domain.ReplyStatus `gorm:"type:varchar(16);not null;default:'NONE'"`
	LastError        *string            `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (CardInteractionModel) TableName() string {
	return "card_interactions"
}

func reviewModelFromDomain(r *domain.Review) *ReviewModel {
	if r == nil {
		return nil
	}

	return &ReviewModel{
		ID:           r.ID,
		SourceAppID:  r.SourceAppID,
		Rating:       r.Rating,
		Title:        r.Title,
		Body:         r.Body,
		AuthorName:   r.AuthorName,
		SubmittedAt:  r.SubmittedAt,
		Edited:       r.Edited,
		ResponseBody: r.ResponseBody,
		ResponseAt:   r.ResponseAt,
		Territory:    r.Territory,
		AppVersion:   r.AppVersion,
		FirstSeenAt:  r.FirstSeenAt,
		Delivered:    r.Delivered,
		DeliveryKind: r.DeliveryKind,
		ReplyStatus:  r.ReplyStatus,
		ReplyRetries: r.ReplyRetries,
		LastError:    r.LastError,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func reviewModelToDomain(m *ReviewModel) *domain.Review {
	if m == nil {
		return nil
	}

	return &domain.Review{
		ID:           m.ID,
		SourceAppID:  m.SourceAppID,
		Rating:       m.Rating,
		Title:        m.Title,
		Body:         m.Body,
		AuthorName:   m.AuthorName,
		SubmittedAt:  m.SubmittedAt,
		Edited:       m.Edited,
		ResponseBody: m.ResponseBody,
		ResponseAt:   m.ResponseAt,
		Territory:    m.Territory,
		AppVersion:   m.AppVersion,
		FirstSeenAt:  m.FirstSeenAt,
		Delivered:    m.Delivered,
		DeliveryKind: m.DeliveryKind,
		ReplyStatus:  m.ReplyStatus,
		ReplyRetries: m.ReplyRetries,
		LastError:    m.LastError,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func cardModelFromDomain(c *domain.CardInteraction) *CardInteractionModel {
	if c == nil {
		return nil
	}

	return &CardInteractionModel{
		ReviewID:         c.ReviewID,
		ChannelMessageID: c.ChannelMessageID,
		State:            c.State,
		PendingReplyText: c.PendingReplyText,
		ReplyStatus:      c.ReplyStatus,
		LastError:        c.LastError,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func cardModelToDomain(m *CardInteractionModel) *domain.CardInteraction {
	if m == nil {
		return nil
	}

	return &domain.CardInteraction{
		ReviewID:         m.ReviewID,
		ChannelMessageID: m.ChannelMessageID,
		State:            m.State,
		PendingReplyText: m.PendingReplyText,
		ReplyStatus:      m.ReplyStatus,
		LastError:        m.LastError,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
