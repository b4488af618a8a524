package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/review-relay/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReviewRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Review, error)
	GetExistingByIDs(ctx context.Context, ids []string) (map[string]*domain.Review, error)
	Upsert(ctx context.Context, reviews []*domain.Review) error
	MarkDelivered(ctx context.Context, id string, kind domain.DeliveryKind) error
	HasReply(ctx context.Context, id string) (bool, error)
	UpdateReply(ctx context.Context, id string, text string, respondedAt time.Time) error
	UpdateReplyStatus(ctx context.Context, id string, status domain.ReplyStatus, submissionErr *string) error
	ListPendingReplies(ctx context.Context, olderThan time.Time, limit int) ([]domain.Review, error)
}

type GormReviewRepo struct {
	db *gorm.DB
}

func NewGormReviewRepo(db *gorm.DB) *GormReviewRepo {
	return &GormReviewRepo{db: db}
}

func (r *GormReviewRepo) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	var model ReviewModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reviewModelToDomain(&model), nil
}

func (r *GormReviewRepo) GetExistingByIDs(ctx context.Context, ids []string) (map[string]*domain.Review, error) {
	result := make(map[string]*domain.Review, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var models []ReviewModel
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	for i := range models {
		result[models[i].ID] = reviewModelToDomain(&models[i])
	}

	return result, nil
}

func (r *GormReviewRepo) Upsert(ctx context.Context, reviews []*domain.Review) error {
	models := make([]ReviewModel, 0, len(reviews))
	for _, review := range reviews {
		model := reviewModelFromDomain(review)
		if model != nil {
			models = append(models, *model)
		}
	}

	if len(models) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		CreateInBatches(&models, 100).Error
}

func (r *GormReviewRepo) MarkDelivered(ctx context.Context, id string, kind domain.DeliveryKind) error {
	result := r.db.WithContext(ctx).
		Model(&ReviewModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"delivered":     true,
			"delivery_kind": kind,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormReviewRepo) HasReply(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ReviewModel{}).
		Where("id = ? AND response_body IS NOT NULL", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormReviewRepo) UpdateReply(ctx context.Context, id string, text string, respondedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&ReviewModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"response_body": text,
			"response_at":   respondedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormReviewRepo) UpdateReplyStatus(ctx context.Context, id string, status domain.ReplyStatus, submissionErr *string) error {
	updates := map[string]any{
		"reply_status": status,
		"last_error":   submissionErr,
	}
	if status == domain.ReplyStatusFailed {
		updates["reply_retries"] = gorm.Expr("reply_retries + 1")
	}

	result := r.db.WithContext(ctx).
		Model(&ReviewModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormReviewRepo) ListPendingReplies(ctx context.Context, olderThan time.Time, limit int) ([]domain.Review, error) {
	var models []ReviewModel
	err := r.db.WithContext(ctx).
		Where("reply_status = ? AND updated_at <= ?", domain.ReplyStatusPending, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	reviews := make([]domain.Review, 0, len(models))
	for i := range models {
		reviews = append(reviews, *reviewModelToDomain(&models[i]))
	}

	return reviews, nil
}
