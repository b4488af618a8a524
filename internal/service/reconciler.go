package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/review-relay/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultReconcileInterval = time.Minute
	defaultReconcileAge      = 5 * time.Minute
	defaultReconcileLimit    = 100
)

// ReplyReconciler periodically re-drives replies stuck in pending state.
// A reply stays pending only when the process died between the local commit
// and the detached submission settling, so stale pendings are safe to rerun.
type ReplyReconciler struct {
	reviews  repository.ReviewRepository
	replies  *ReplyService
	logger   *zap.Logger
	interval time.Duration
	minAge   time.Duration
	limit    int
	now      func() time.Time
}

func NewReplyReconciler(
	reviews repository.ReviewRepository,
	replies *ReplyService,
	interval time.Duration,
	minAge time.Duration,
	limit int,
	logger *zap.Logger,
) (*ReplyReconciler, error) {
	if reviews == nil {
		return nil, fmt.Errorf("review repository is required")
	}
	if replies == nil {
		return nil, fmt.Errorf("reply service is required")
	}
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if minAge <= 0 {
		minAge = defaultReconcileAge
	}
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReplyReconciler{
		reviews:  reviews,
		replies:  replies,
		logger:   logger,
		interval: interval,
		minAge:   minAge,
		limit:    limit,
		now:      time.Now,
	}, nil
}

func (r *ReplyReconciler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so replies orphaned by a crash do not wait for the
	// first ticker edge.
	if err := r.scanStale(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("reply reconciler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.scanStale(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("reply reconciler scan failed", zap.Error(err))
			}
		}
	}
}

func (r *ReplyReconciler) scanStale(ctx context.Context) error {
	cutoff := r.now().UTC().Add(-r.minAge)
	stale, err := r.reviews.ListPendingReplies(ctx, cutoff, r.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch stale pending replies: %w", err)
	}

	for i := range stale {
		review := stale[i]
		if review.ResponseBody == nil {
			r.logger.Warn("pending reply has no committed text, skipping",
				zap.String("reviewId", review.ID),
			)
			continue
		}

		channelMessageID := r.replies.messageIDForReview(ctx, review.ID)
		r.logger.Info("re-driving stale pending reply",
			zap.String("reviewId", review.ID),
			zap.Time("repliedAt", review.UpdatedAt),
		)
		r.replies.submitDetached(review.ID, channelMessageID, *review.ResponseBody)
	}

	return nil
}
