package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/review-relay/internal/card"
	"github.com/kursadbilgin/review-relay/internal/channel"
	"github.com/kursadbilgin/review-relay/internal/dispatch"
	"github.com/kursadbilgin/review-relay/internal/domain"
	"github.com/kursadbilgin/review-relay/internal/observability"
	"github.com/kursadbilgin/review-relay/internal/ratelimit"
	"github.com/kursadbilgin/review-relay/internal/repository"
	"go.uber.org/zap"
)

// Deliverer executes one queued delivery: rate limit, channel send, then the
// delivered stamp and the initial card interaction row. Its Deliver method is
// the sender plugged into the dispatch queue.
type Deliverer struct {
	reviews     repository.ReviewRepository
	machine     *card.Machine
	ch          channel.Channel
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewDeliverer(
	reviews repository.ReviewRepository,
	machine *card.Machine,
	ch channel.Channel,
	rateLimiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*Deliverer, error) {
	if reviews == nil {
		return nil, fmt.Errorf("review repository is required")
	}
	if machine == nil {
		return nil, fmt.Errorf("card machine is required")
	}
	if ch == nil {
		return nil, fmt.Errorf("channel is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Deliverer{
		reviews:     reviews,
		machine:     machine,
		ch:          ch,
		rateLimiter: rateLimiter,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (d *Deliverer) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Deliver is a dispatch.Sender. A returned error re-queues the task; the
// queue owns retry accounting, so failures propagate untouched.
func (d *Deliverer) Deliver(ctx context.Context, task *dispatch.Task) error {
	if task == nil {
		return fmt.Errorf("%w: delivery task is required", domain.ErrValidation)
	}

	if d.rateLimiter != nil {
		if err := d.rateLimiter.Wait(ctx, task.Destination); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	sendStart := d.now()
	result, err := d.ch.Send(ctx, task.Destination, task.Card)
	d.metrics.ObserveChannelSendDuration(task.Kind, d.now().Sub(sendStart))
	if err != nil {
		return err
	}

	kind, parseErr := domain.ParseDeliveryKindFromString(task.Kind)
	if parseErr != nil {
		kind = domain.DeliveryKindNew
	}
	if err := d.reviews.MarkDelivered(ctx, task.ReviewID, kind); err != nil {
		// The card is already in the chat. Surface the stamp failure so the
		// cycle is retried; the decision engine treats a re-send of the same
		// content as a skip once the stamp lands.
		return fmt.Errorf("failed to mark review delivered: %w", err)
	}

	if result != nil && result.MessageID != "" {
		if _, err := d.machine.CreateInitial(ctx, task.ReviewID, result.MessageID); err != nil {
			d.logger.Error("failed to record initial card state",
				zap.String("reviewId", task.ReviewID),
				zap.String("messageId", result.MessageID),
				zap.Error(err),
			)
		}
	} else {
		d.logger.Warn("channel send returned no message id, card interaction untracked",
			zap.String("reviewId", task.ReviewID),
		)
	}

	d.metrics.IncReviewDelivered(task.Kind)
	return nil
}
