package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/review-relay/internal/dispatch"
	"github.com/kursadbilgin/review-relay/internal/domain"
	"github.com/kursadbilgin/review-relay/internal/queue"
)

// ReviewService is the sync-side surface the HTTP layer needs.
type ReviewService interface {
	GetByID(ctx context.Context, id string) (*domain.Review, error)
	ManualPush(ctx context.Context, reviewID string) error
	QueueStatus() dispatch.Status
}

// ReplyService is the reply-side surface the HTTP layer needs.
type ReplyService interface {
	SubmitReply(ctx context.Context, reviewID string, channelMessageID string, text string) (*domain.Review, error)
	Retry(ctx context.Context, reviewID string) error
}

// CardMachine drives interaction-state transitions for chat card callbacks.
type CardMachine interface {
	OpenReply(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error)
	BeginEdit(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error)
	Current(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error)
}

type ReviewHandler struct {
	reviews   ReviewService
	replies   ReplyService
	cards     CardMachine
	publisher queue.Publisher
}

func NewReviewHandler(
	reviews ReviewService,
	replies ReplyService,
	cards CardMachine,
	publisher queue.Publisher,
) (*ReviewHandler, error) {
	if reviews == nil {
		return nil, fmt.Errorf("review service is required")
	}
	if replies == nil {
		return nil, fmt.Errorf("reply service is required")
	}
	if cards == nil {
		return nil, fmt.Errorf("card machine is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("ingest publisher is required")
	}
	return &ReviewHandler{
		reviews:   reviews,
		replies:   replies,
		cards:     cards,
		publisher: publisher,
	}, nil
}

func RegisterReviewRoutes(
	router fiber.Router,
	reviews ReviewService,
	replies ReplyService,
	cards CardMachine,
	publisher queue.Publisher,
) error {
	h, err := NewReviewHandler(reviews, replies, cards, publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/reviews/sync", h.SyncBatch)
	v1.Get("/reviews/:id", h.GetReview)
	v1.Post("/reviews/:id/reply", h.SubmitReply)
	v1.Post("/reviews/:id/reply/retry", h.RetryReply)
	v1.Post("/reviews/:id/push", h.ManualPush)
	v1.Post("/interactions", h.CardInteraction)
	v1.Get("/queue/status", h.QueueStatus)

	return nil
}

type syncReviewItem struct {
	ID           string     `json:"id"`
	Rating       int        `json:"rating"`
	Title        *string    `json:"title,omitempty"`
	Body         *string    `json:"body,omitempty"`
	AuthorName   string     `json:"authorName"`
	SubmittedAt  time.Time  `json:"submittedAt"`
	Edited       bool       `json:"edited"`
	ResponseBody *string    `json:"responseBody,omitempty"`
	ResponseAt   *time.Time `json:"responseAt,omitempty"`
	Territory    *string    `json:"territory,omitempty"`
	AppVersion   *string    `json:"appVersion,omitempty"`
}

type syncBatchRequest struct {
	SourceAppID string           `json:"sourceAppId"`
	Reviews     []syncReviewItem `json:"reviews"`
}

type reviewResponse struct {
	ID           string     `json:"id"`
	SourceAppID  string     `json:"sourceAppId"`
	Rating       int        `json:"rating"`
	Title        *string    `json:"title,omitempty"`
	Body         *string    `json:"body,omitempty"`
	AuthorName   string     `json:"authorName"`
	SubmittedAt  time.Time  `json:"submittedAt"`
	Edited       bool       `json:"edited"`
	ResponseBody *string    `json:"responseBody,omitempty"`
	ResponseAt   *time.Time `json:"responseAt,omitempty"`
	Territory    *string    `json:"territory,omitempty"`
	AppVersion   *string    `json:"appVersion,omitempty"`
	Delivered    bool       `json:"delivered"`
	DeliveryKind string     `json:"deliveryKind,omitempty"`
	ReplyStatus  string     `json:"replyStatus"`
	ReplyRetries int        `json:"replyRetries"`
	LastError    *string    `json:"lastError,omitempty"`
	FirstSeenAt  time.Time  `json:"firstSeenAt"`
	CreatedAt    time.Time  `json:"createdAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt,omitempty"`
}

type submitReplyRequest struct {
	ChannelMessageID string `json:"channelMessageId"`
	Text             string `json:"text"`
}

type interactionRequest struct {
	ReviewID         string `json:"reviewId"`
	ChannelMessageID string `json:"channelMessageId"`
	Action           string `json:"action"`
}

type interactionResponse struct {
	ReviewID         string  `json:"reviewId"`
	ChannelMessageID string  `json:"channelMessageId"`
	State            string  `json:"state"`
	PendingReplyText *string `json:"pendingReplyText,omitempty"`
	ReplyStatus      string  `json:"replyStatus"`
	LastError        *string `json:"lastError,omitempty"`
}

// SyncBatch publishes a fetched review batch to the ingest queue. The batch
// is processed asynchronously by the ingest worker.
func (h *ReviewHandler) SyncBatch(c *fiber.Ctx) error {
	var req syncBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.SourceAppID) == "" {
		return toHTTPError(fmt.Errorf("%w: sourceAppId is required", domain.ErrValidation))
	}
	if len(req.Reviews) == 0 {
		return toHTTPError(fmt.Errorf("%w: reviews is required", domain.ErrValidation))
	}

	reviews := make([]domain.Review, 0, len(req.Reviews))
	for _, item := range req.Reviews {
		review := domain.Review{
			ID:           strings.TrimSpace(item.ID),
			SourceAppID:  strings.TrimSpace(req.SourceAppID),
			Rating:       item.Rating,
			Title:        item.Title,
			Body:         item.Body,
			AuthorName:   strings.TrimSpace(item.AuthorName),
			SubmittedAt:  item.SubmittedAt,
			Edited:       item.Edited,
			ResponseBody: item.ResponseBody,
			ResponseAt:   item.ResponseAt,
			Territory:    item.Territory,
			AppVersion:   item.AppVersion,
		}
		if err := review.Validate(); err != nil {
			return toHTTPError(err)
		}
		reviews = append(reviews, review)
	}

	msg := queue.ReviewBatchMessage{
		BatchID:     uuid.NewString(),
		SourceAppID: strings.TrimSpace(req.SourceAppID),
		FetchedAt:   time.Now().UTC(),
		Reviews:     reviews,
	}
	if err := h.publisher.Publish(c.Context(), queue.IngestQueueName(), msg); err != nil {
		return fmt.Errorf("failed to publish review batch: %w", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"batchId": msg.BatchID,
		"count":   len(reviews),
	})
}

func (h *ReviewHandler) GetReview(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	review, err := h.reviews.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toReviewResponse(review))
}

func (h *ReviewHandler) SubmitReply(c *fiber.Ctx) error {
	var req submitReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(c.Params("id"))
	review, err := h.replies.SubmitReply(c.Context(), id, req.ChannelMessageID, req.Text)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toReviewResponse(review))
}

func (h *ReviewHandler) RetryReply(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.replies.Retry(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"reviewId":    id,
		"replyStatus": domain.ReplyStatusPending.String(),
	})
}

func (h *ReviewHandler) ManualPush(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.reviews.ManualPush(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"reviewId": id,
		"status":   "enqueued",
	})
}

// CardInteraction handles chat card callbacks: opening the reply form and
// re-opening a replied card for editing.
func (h *ReviewHandler) CardInteraction(c *fiber.Ctx) error {
	var req interactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	reviewID := strings.TrimSpace(req.ReviewID)
	messageID := strings.TrimSpace(req.ChannelMessageID)
	if reviewID == "" || messageID == "" {
		return toHTTPError(fmt.Errorf("%w: reviewId and channelMessageId are required", domain.ErrValidation))
	}

	var interaction *domain.CardInteraction
	var err error
	switch strings.TrimSpace(req.Action) {
	case "openReply":
		interaction, err = h.cards.OpenReply(c.Context(), reviewID, messageID)
	case "beginEdit":
		interaction, err = h.cards.BeginEdit(c.Context(), reviewID, messageID)
	case "current":
		interaction, err = h.cards.Current(c.Context(), reviewID, messageID)
	default:
		return toHTTPError(fmt.Errorf("%w: unknown action %q", domain.ErrValidation, req.Action))
	}
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(interactionResponse{
		ReviewID:         interaction.ReviewID,
		ChannelMessageID: interaction.ChannelMessageID,
		State:            interaction.State.String(),
		PendingReplyText: interaction.PendingReplyText,
		ReplyStatus:      interaction.ReplyStatus.String(),
		LastError:        interaction.LastError,
	})
}

func (h *ReviewHandler) QueueStatus(c *fiber.Ctx) error {
	status := h.reviews.QueueStatus()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"size":          status.Size,
		"processing":    status.Processing,
		"successCount":  status.SuccessCount,
		"errorCount":    status.ErrorCount,
		"lastProcessed": status.LastProcessed,
	})
}

func toReviewResponse(r *domain.Review) reviewResponse {
	if r == nil {
		return reviewResponse{}
	}

	return reviewResponse{
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
		Delivered:    r.Delivered,
		DeliveryKind: r.DeliveryKind.String(),
		ReplyStatus:  r.ReplyStatus.String(),
		ReplyRetries: r.ReplyRetries,
		LastError:    r.LastError,
		FirstSeenAt:  r.FirstSeenAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
