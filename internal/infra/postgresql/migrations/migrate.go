package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/review-relay/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createReviewsTable(),
		createCardInteractionsTable(),
	})

	return m.Migrate()
}

func createReviewsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_reviews",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ReviewModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_reviews_app_submitted ON reviews (source_app_id, submitted_at)`,
				`CREATE INDEX IF NOT EXISTS idx_reviews_undelivered ON reviews (first_seen_at) WHERE delivered = false`,
				`CREATE INDEX IF NOT EXISTS idx_reviews_reply_pending ON reviews (updated_at) WHERE reply_status = 'PENDING'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ReviewModel{})
		},
	}
}

func createCardInteractionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_card_interactions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CardInteractionModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_card_interactions_review_id ON card_interactions (review_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CardInteractionModel{})
		},
	}
}
