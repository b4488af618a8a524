package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/review-relay/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CardInteractionRepository interface {
	Get(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error)
	GetByReviewID(ctx context.Context, reviewID string) ([]domain.CardInteraction, error)
	// Upsert is the linearization point for concurrent card writes:
	// last write wins on the (review, message) primary key.
	Upsert(ctx context.Context, card *domain.CardInteraction) error
}

type GormCardInteractionRepo struct {
	db *gorm.DB
}

func NewGormCardInteractionRepo(db *gorm.DB) *GormCardInteractionRepo {
	return &GormCardInteractionRepo{db: db}
}

func (r *GormCardInteractionRepo) Get(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
	var model CardInteractionModel
	err := r.db.WithContext(ctx).
		Where("review_id = ? AND channel_message_id = ?", reviewID, channelMessageID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cardModelToDomain(&model), nil
}

func (r *GormCardInteractionRepo) GetByReviewID(ctx context.Context, reviewID string) ([]domain.CardInteraction, error) {
	var models []CardInteractionModel
	err := r.db.WithContext(ctx).
		Where("review_id = ?", reviewID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	cards := make([]domain.CardInteraction, 0, len(models))
	for i := range models {
		cards = append(cards, *cardModelToDomain(&models[i]))
	}

	return cards, nil
}

func (r *GormCardInteractionRepo) Upsert(ctx context.Context, card *domain.CardInteraction) error {
	model := cardModelFromDomain(card)
	if model == nil {
		return nil
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "review_id"}, {Name: "channel_message_id"}},
			UpdateAll: true,
		}).
		Create(model).Error; err != nil {
		return err
	}

	*card = *cardModelToDomain(model)
	return nil
}
