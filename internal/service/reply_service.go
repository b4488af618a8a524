package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/review-relay/internal/card"
	"github.com/kursadbilgin/review-relay/internal/channel"
	"github.com/kursadbilgin/review-relay/internal/domain"
	"github.com/kursadbilgin/review-relay/internal/observability"
	"github.com/kursadbilgin/review-relay/internal/repository"
	"github.com/kursadbilgin/review-relay/internal/source"
	"go.uber.org/zap"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	resolveTimeout       = 10 * time.Second
)

// ReplyService coordinates reply submission. The reply is committed locally
// first, so the chat card reflects it immediately; the authoritative
// submission to the review source runs detached and resolves the pending
// status afterwards.
type ReplyService struct {
	reviews       repository.ReviewRepository
	cards         repository.CardInteractionRepository
	machine       *card.Machine
	submitter     source.Submitter
	ch            channel.Channel
	logger        *zap.Logger
	metrics       *observability.Metrics
	submitTimeout time.Duration
	now           func() time.Time

	// onResolved is invoked after the detached submission settles a reply.
	// Tests use it to observe the asynchronous outcome.
	onResolved func(reviewID string, status domain.ReplyStatus)
}

func NewReplyService(
	reviews repository.ReviewRepository,
	cards repository.CardInteractionRepository,
	machine *card.Machine,
	submitter source.Submitter,
	ch channel.Channel,
	submitTimeout time.Duration,
	logger *zap.Logger,
) (*ReplyService, error) {
	if reviews == nil {
		return nil, fmt.Errorf("review repository is required")
	}
	if cards == nil {
		return nil, fmt.Errorf("card interaction repository is required")
	}
	if machine == nil {
		return nil, fmt.Errorf("card machine is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("reply submitter is required")
	}
	if submitTimeout <= 0 {
		submitTimeout = defaultSubmitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReplyService{
		reviews:       reviews,
		cards:         cards,
		machine:       machine,
		submitter:     submitter,
		ch:            ch,
		logger:        logger,
		submitTimeout: submitTimeout,
		now:           time.Now,
	}, nil
}

func (s *ReplyService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SubmitReply validates and commits a reply locally, then kicks off the
// external submission. It returns as soon as the local commit lands: the
// caller sees replyStatus PENDING, never a blocked request.
func (s *ReplyService) SubmitReply(ctx context.Context, reviewID string, channelMessageID string, text string) (*domain.Review, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return nil, fmt.Errorf("%w: review id is required", domain.ErrValidation)
	}
	channelMessageID = strings.TrimSpace(channelMessageID)
	if channelMessageID == "" {
		return nil, fmt.Errorf("%w: channel message id is required", domain.ErrValidation)
	}

	if err := s.machine.CheckSubmit(ctx, reviewID, channelMessageID, text); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	repliedAt := s.now().UTC()
	if err := s.reviews.UpdateReply(ctx, reviewID, text, repliedAt); err != nil {
		return nil, fmt.Errorf("failed to commit reply: %w", err)
	}
	if err := s.reviews.UpdateReplyStatus(ctx, reviewID, domain.ReplyStatusPending, nil); err != nil {
		return nil, fmt.Errorf("failed to mark reply pending: %w", err)
	}

	interaction, err := s.machine.RecordReplied(ctx, reviewID, channelMessageID, text)
	if err != nil {
		return nil, err
	}

	review.ResponseBody = &text
	review.ResponseAt = &repliedAt
	review.ReplyStatus = domain.ReplyStatusPending

	s.mutateCard(ctx, review, interaction)

	go s.submitDetached(reviewID, channelMessageID, text)

	return review, nil
}

// Retry re-runs the external submission for a reply that ended in failed
// state, reusing the committed text.
func (s *ReplyService) Retry(ctx context.Context, reviewID string) error {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return fmt.Errorf("%w: review id is required", domain.ErrValidation)
	}

	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.ReplyStatus != domain.ReplyStatusFailed {
		return fmt.Errorf("%w: reply status is %s, only failed replies can be retried", domain.ErrConflict, review.ReplyStatus)
	}
	if review.ResponseBody == nil || strings.TrimSpace(*review.ResponseBody) == "" {
		return fmt.Errorf("%w: review has no committed reply text", domain.ErrConflict)
	}

	if err := s.reviews.UpdateReplyStatus(ctx, reviewID, domain.ReplyStatusPending, nil); err != nil {
		return fmt.Errorf("failed to mark reply pending: %w", err)
	}

	channelMessageID := s.messageIDForReview(ctx, reviewID)
	go s.submitDetached(reviewID, channelMessageID, strings.TrimSpace(*review.ResponseBody))
	return nil
}

// submitDetached runs the external submission with its own deadline. It never
// inherits the request context: the local commit already succeeded and the
// caller is gone.
func (s *ReplyService) submitDetached(reviewID string, channelMessageID string, text string) {
	submitCtx, cancelSubmit := context.WithTimeout(context.Background(), s.submitTimeout)
	result, err := s.submitter.SubmitReply(submitCtx, reviewID, text)
	cancelSubmit()

	// A hung source consumes the whole submit deadline. The resolution
	// writes carry their own budget so a timed-out submission still lands
	// as FAILED instead of staying PENDING.
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	if err != nil {
		errMsg := err.Error()
		s.logger.Error("external reply submission failed",
			zap.String("reviewId", reviewID),
			zap.Error(err),
		)
		s.resolve(ctx, reviewID, channelMessageID, domain.ReplyStatusFailed, &errMsg)
		s.metrics.IncReplyFailed(failureReason(err))
		return
	}

	// Once the source accepts the reply its timestamp is authoritative.
	if result != nil && !result.RespondedAt.IsZero() {
		if err := s.reviews.UpdateReply(ctx, reviewID, text, result.RespondedAt.UTC()); err != nil {
			s.logger.Warn("failed to record source response time",
				zap.String("reviewId", reviewID),
				zap.Error(err),
			)
		}
	}

	s.resolve(ctx, reviewID, channelMessageID, domain.ReplyStatusSubmitted, nil)
	s.metrics.IncReplySubmitted()
}

func (s *ReplyService) resolve(ctx context.Context, reviewID string, channelMessageID string, status domain.ReplyStatus, submissionErr *string) {
	if err := s.reviews.UpdateReplyStatus(ctx, reviewID, status, submissionErr); err != nil {
		s.logger.Error("failed to persist reply resolution",
			zap.String("reviewId", reviewID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}

	if channelMessageID != "" {
		if err := s.machine.RecordResolution(ctx, reviewID, channelMessageID, status, submissionErr); err != nil {
			s.logger.Error("failed to record card resolution",
				zap.String("reviewId", reviewID),
				zap.Error(err),
			)
		} else if review, err := s.reviews.GetByID(ctx, reviewID); err == nil {
			if interaction, err := s.cards.Get(ctx, reviewID, channelMessageID); err == nil {
				s.mutateCard(ctx, review, interaction)
			}
		}
	}

	if s.onResolved != nil {
		s.onResolved(reviewID, status)
	}
}

// mutateCard refreshes the chat message best-effort. The repository row is
// authoritative; a failed mutate only leaves the card visually stale.
func (s *ReplyService) mutateCard(ctx context.Context, review *domain.Review, interaction *domain.CardInteraction) {
	if s.ch == nil || interaction == nil {
		return
	}

	payload := card.RenderInteraction(review, interaction)
	if err := s.ch.Mutate(ctx, interaction.ChannelMessageID, payload); err != nil {
		s.logger.Warn("failed to mutate chat card",
			zap.String("reviewId", review.ID),
			zap.String("messageId", interaction.ChannelMessageID),
			zap.Error(err),
		)
	}
}

// messageIDForReview finds the most recent card for a review so retries can
// refresh it. An empty result skips the card refresh, nothing else.
func (s *ReplyService) messageIDForReview(ctx context.Context, reviewID string) string {
	interactions, err := s.cards.GetByReviewID(ctx, reviewID)
	if err != nil || len(interactions) == 0 {
		return ""
	}
	return interactions[len(interactions)-1].ChannelMessageID
}

func failureReason(err error) string {
	if source.IsTransient(err) {
		return "transient_error"
	}
	return "permanent_error"
}
