package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/review-relay/internal/dispatch"
	"github.com/kursadbilgin/review-relay/internal/domain"
	"github.com/kursadbilgin/review-relay/internal/queue"
)

type fakeReviewService struct {
	getByIDFn    func(ctx context.Context, id string) (*domain.Review, error)
	manualPushFn func(ctx context.Context, reviewID string) error
	status       dispatch.Status
}

func (f *fakeReviewService) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReviewService) ManualPush(ctx context.Context, reviewID string) error {
	if f.manualPushFn != nil {
		return f.manualPushFn(ctx, reviewID)
	}
	return nil
}

func (f *fakeReviewService) QueueStatus() dispatch.Status { return f.status }

type fakeReplyService struct {
	submitFn func(ctx context.Context, reviewID string, channelMessageID string, text string) (*domain.Review, error)
	retryFn  func(ctx context.Context, reviewID string) error
}

func (f *fakeReplyService) SubmitReply(ctx context.Context, reviewID string, channelMessageID string, text string) (*domain.Review, error) {
	if f.submitFn != nil {
		return f.submitFn(ctx, reviewID, channelMessageID, text)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReplyService) Retry(ctx context.Context, reviewID string) error {
	if f.retryFn != nil {
		return f.retryFn(ctx, reviewID)
	}
	return nil
}

type fakeCardMachine struct {
	openReplyFn func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error)
	beginEditFn func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error)
	currentFn   func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error)
}

func (f *fakeCardMachine) OpenReply(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
	if f.openReplyFn != nil {
		return f.openReplyFn(ctx, reviewID, channelMessageID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCardMachine) BeginEdit(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
	if f.beginEditFn != nil {
		return f.beginEditFn(ctx, reviewID, channelMessageID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCardMachine) Current(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
	if f.currentFn != nil {
		return f.currentFn(ctx, reviewID, channelMessageID)
	}
	return nil, domain.ErrNotFound
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.ReviewBatchMessage) error
	published []queue.ReviewBatchMessage
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.ReviewBatchMessage) error {
	f.published = append(f.published, msg)
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type handlerFixture struct {
	app       *fiber.App
	reviews   *fakeReviewService
	replies   *fakeReplyService
	cards     *fakeCardMachine
	publisher *fakePublisher
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		app:       fiber.New(),
		reviews:   &fakeReviewService{},
		replies:   &fakeReplyService{},
		cards:     &fakeCardMachine{},
		publisher: &fakePublisher{},
	}
	if err := RegisterReviewRoutes(f.app, f.reviews, f.replies, f.cards, f.publisher); err != nil {
		t.Fatalf("RegisterReviewRoutes() error = %v", err)
	}
	return f
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	if _, err := rec.Body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return rec
}

func TestSyncBatchPublishesToIngestQueue(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)

	body := fiber.Map{
		"sourceAppId": "app-1",
		"reviews": []fiber.Map{
			{
				"id":          "r1",
				"rating":      5,
				"authorName":  "author",
				"submittedAt": time.Now().UTC().Format(time.RFC3339),
			},
		},
	}

	rec := postJSON(t, f.app, "/v1/reviews/sync", body)
	if rec.Code != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	if len(f.publisher.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(f.publisher.published))
	}
	msg := f.publisher.published[0]
	if msg.SourceAppID != "app-1" || len(msg.Reviews) != 1 {
		t.Fatalf("published message = %+v, want the review batch", msg)
	}
	if msg.Reviews[0].SourceAppID != "app-1" {
		t.Fatal("source app id should be stamped on every review")
	}
}

func TestSyncBatchRejectsInvalidReview(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)

	body := fiber.Map{
		"sourceAppId": "app-1",
		"reviews": []fiber.Map{
			{"id": "r1", "rating": 11, "authorName": "author", "submittedAt": time.Now().UTC().Format(time.RFC3339)},
		},
	}

	rec := postJSON(t, f.app, "/v1/reviews/sync", body)
	if rec.Code != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if len(f.publisher.published) != 0 {
		t.Fatal("invalid batches must not be published")
	}
}

func TestGetReview(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.reviews.getByIDFn = func(ctx context.Context, id string) (*domain.Review, error) {
		if id != "r1" {
			return nil, domain.ErrNotFound
		}
		return &domain.Review{
			ID:          "r1",
			SourceAppID: "app-1",
			Rating:      4,
			AuthorName:  "author",
			SubmittedAt: time.Now().UTC(),
			ReplyStatus: domain.ReplyStatusNone,
		}, nil
	}

	req := httptest.NewRequest("GET", "/v1/reviews/r1", nil)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got reviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "r1" || got.ReplyStatus != "NONE" {
		t.Fatalf("response = %+v, want r1 with NONE reply status", got)
	}

	req = httptest.NewRequest("GET", "/v1/reviews/missing", nil)
	resp, err = f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSubmitReplyReturnsAccepted(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.replies.submitFn = func(ctx context.Context, reviewID string, channelMessageID string, text string) (*domain.Review, error) {
		if channelMessageID != "msg-1" || text != "thanks" {
			t.Errorf("SubmitReply(%s, %s, %s), want msg-1/thanks", reviewID, channelMessageID, text)
		}
		body := text
		return &domain.Review{
			ID:           reviewID,
			SourceAppID:  "app-1",
			Rating:       4,
			AuthorName:   "author",
			SubmittedAt:  time.Now().UTC(),
			ResponseBody: &body,
			ReplyStatus:  domain.ReplyStatusPending,
		}, nil
	}

	rec := postJSON(t, f.app, "/v1/reviews/r1/reply", fiber.Map{
		"channelMessageId": "msg-1",
		"text":             "thanks",
	})
	if rec.Code != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var got reviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ReplyStatus != "PENDING" {
		t.Fatalf("reply status = %s, want PENDING", got.ReplyStatus)
	}
}

func TestSubmitReplyValidationStatus(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.replies.submitFn = func(ctx context.Context, reviewID string, channelMessageID string, text string) (*domain.Review, error) {
		return nil, fmt.Errorf("%w: reply text is required", domain.ErrValidation)
	}

	rec := postJSON(t, f.app, "/v1/reviews/r1/reply", fiber.Map{
		"channelMessageId": "msg-1",
		"text":             "",
	})
	if rec.Code != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestManualPush(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	pushed := ""
	f.reviews.manualPushFn = func(ctx context.Context, reviewID string) error {
		pushed = reviewID
		return nil
	}

	rec := postJSON(t, f.app, "/v1/reviews/r1/push", fiber.Map{})
	if rec.Code != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if pushed != "r1" {
		t.Fatalf("pushed = %s, want r1", pushed)
	}
}

func TestCardInteractionActions(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.cards.openReplyFn = func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
		return &domain.CardInteraction{
			ReviewID:         reviewID,
			ChannelMessageID: channelMessageID,
			State:            domain.CardStateReplying,
			ReplyStatus:      domain.ReplyStatusNone,
		}, nil
	}

	rec := postJSON(t, f.app, "/v1/interactions", fiber.Map{
		"reviewId":         "r1",
		"channelMessageId": "msg-1",
		"action":           "openReply",
	})
	if rec.Code != fiber.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got interactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.State != "REPLYING" {
		t.Fatalf("state = %s, want REPLYING", got.State)
	}

	rec = postJSON(t, f.app, "/v1/interactions", fiber.Map{
		"reviewId":         "r1",
		"channelMessageId": "msg-1",
		"action":           "explode",
	})
	if rec.Code != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown action", rec.Code)
	}
}

func TestCardInteractionConflict(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.cards.openReplyFn = func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
		return nil, fmt.Errorf("%w: cannot open reply form from state REPLIED", domain.ErrConflict)
	}

	rec := postJSON(t, f.app, "/v1/interactions", fiber.Map{
		"reviewId":         "r1",
		"channelMessageId": "msg-1",
		"action":           "openReply",
	})
	if rec.Code != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestQueueStatus(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	f.reviews.status = dispatch.Status{Size: 3, Processing: true, SuccessCount: 10, ErrorCount: 1}

	req := httptest.NewRequest("GET", "/v1/queue/status", nil)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["size"].(float64) != 3 || got["processing"].(bool) != true {
		t.Fatalf("response = %v, want size 3 processing true", got)
	}
}
