package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/review-relay/internal/card"
	"github.com/kursadbilgin/review-relay/internal/decision"
	"github.com/kursadbilgin/review-relay/internal/dispatch"
	"github.com/kursadbilgin/review-relay/internal/domain"
	"github.com/kursadbilgin/review-relay/internal/observability"
	"github.com/kursadbilgin/review-relay/internal/repository"
	"go.uber.org/zap"
)

const (
	// lookupChunkSize bounds id lists sent to the repository in one query.
	lookupChunkSize = 100
	maxSyncBatch    = 1000
)

// TaskDispatcher is the outbound side of the sync service: decided deliveries
// are handed to it and drained asynchronously.
type TaskDispatcher interface {
	Enqueue(task *dispatch.Task)
	EnqueueBatch(tasks []*dispatch.Task)
	Status() dispatch.Status
}

// SyncService runs one fetched batch of reviews through the push decision
// engine, persists the outcome, and enqueues the deliveries it produces.
type SyncService struct {
	reviews     repository.ReviewRepository
	engine      *decision.Engine
	dispatcher  TaskDispatcher
	destination string
	maxAttempts int
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

// SyncSummary reports what one processed batch produced.
type SyncSummary struct {
	Total      int
	Enqueued   int
	Skipped    int
	New        int
	Historical int
	Updated    int
}

func NewSyncService(
	reviews repository.ReviewRepository,
	engine *decision.Engine,
	dispatcher TaskDispatcher,
	destination string,
	maxAttempts int,
	logger *zap.Logger,
) (*SyncService, error) {
	if reviews == nil {
		return nil, fmt.Errorf("review repository is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("decision engine is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("task dispatcher is required")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, fmt.Errorf("chat destination is required")
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SyncService{
		reviews:     reviews,
		engine:      engine,
		dispatcher:  dispatcher,
		destination: destination,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (s *SyncService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// ProcessBatch classifies every fetched review against stored history and
// enqueues the resulting deliveries. Fetched records that fail validation are
// logged and skipped; they never poison the rest of the batch.
func (s *SyncService) ProcessBatch(ctx context.Context, fresh []domain.Review) (*SyncSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(fresh) == 0 {
		return &SyncSummary{}, nil
	}
	if len(fresh) > maxSyncBatch {
		return nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, maxSyncBatch)
	}

	valid := make([]*domain.Review, 0, len(fresh))
	ids := make([]string, 0, len(fresh))
	seen := make(map[string]int, len(fresh))
	for i := range fresh {
		review := &fresh[i]
		review.ID = strings.TrimSpace(review.ID)
		if err := review.Validate(); err != nil {
			s.logger.Warn("skipping invalid fetched review",
				zap.String("reviewId", review.ID),
				zap.Error(err),
			)
			continue
		}
		// A feed page can repeat a record id; the later occurrence wins so
		// one upsert never touches the same row twice.
		if at, ok := seen[review.ID]; ok {
			valid[at] = review
			continue
		}
		seen[review.ID] = len(valid)
		valid = append(valid, review)
		ids = append(ids, review.ID)
	}
	if len(valid) == 0 {
		return &SyncSummary{Total: len(fresh), Skipped: len(fresh)}, nil
	}

	existing := s.lookupExisting(ctx, ids)

	summary := &SyncSummary{Total: len(fresh), Skipped: len(fresh) - len(valid)}
	toPersist := make([]*domain.Review, 0, len(valid))
	tasks := make([]*dispatch.Task, 0, len(valid))
	now := s.now().UTC()

	for _, review := range valid {
		prior := existing[review.ID]
		dec := s.engine.Decide(review, prior)

		record := mergeForPersist(review, prior, now)
		if dec.MarkDelivered {
			// Suppressed historical reviews are stamped delivered so the
			// next cycle does not reconsider them.
			record.Delivered = true
			record.DeliveryKind = domain.DeliveryKindHistorical
		}
		toPersist = append(toPersist, record)

		if !dec.ShouldDeliver() {
			summary.Skipped++
			s.logger.Debug("review skipped",
				zap.String("reviewId", review.ID),
				zap.String("reason", dec.Reason),
			)
			continue
		}

		switch dec.Action {
		case domain.ActionNew:
			summary.New++
		case domain.ActionHistorical:
			summary.Historical++
		case domain.ActionUpdated:
			summary.Updated++
		}

		delivery := *record
		delivery.DeliveryKind = dec.Action.Kind()
		payload := card.Render(&delivery, domain.CardStateInitial, "", record.ReplyStatus, "")
		tasks = append(tasks, dispatch.NewTask(review.ID, dec.Action.Kind().String(), s.destination, payload, s.maxAttempts))
	}

	if err := s.reviews.Upsert(ctx, toPersist); err != nil {
		return nil, fmt.Errorf("failed to persist review batch: %w", err)
	}

	if len(tasks) > 0 {
		s.dispatcher.EnqueueBatch(tasks)
	}
	summary.Enqueued = len(tasks)
	s.metrics.SetQueueDepth(s.dispatcher.Status().Size)

	s.logger.Info("review batch processed",
		zap.Int("total", summary.Total),
		zap.Int("enqueued", summary.Enqueued),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// ManualPush enqueues one stored review for delivery, bypassing the decision
// engine entirely.
func (s *SyncService) ManualPush(ctx context.Context, reviewID string) error {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return fmt.Errorf("%w: review id is required", domain.ErrValidation)
	}

	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}

	kind := review.DeliveryKind
	if kind == "" {
		kind = domain.DeliveryKindNew
	}

	// A re-pushed review that was already answered renders as a replied card,
	// not a fresh one. Lookup failure falls back to the initial rendering.
	state := domain.CardStateInitial
	replyText := ""
	if replied, err := s.reviews.HasReply(ctx, reviewID); err == nil && replied {
		state = domain.CardStateReplied
		if review.ResponseBody != nil {
			replyText = *review.ResponseBody
		}
	}

	payload := card.Render(review, state, replyText, review.ReplyStatus, "")
	s.dispatcher.Enqueue(dispatch.NewTask(review.ID, kind.String(), s.destination, payload, s.maxAttempts))
	s.metrics.SetQueueDepth(s.dispatcher.Status().Size)

	s.logger.Info("manual push enqueued", zap.String("reviewId", reviewID))
	return nil
}

// GetByID returns one stored review.
func (s *SyncService) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: review id is required", domain.ErrValidation)
	}
	return s.reviews.GetByID(ctx, strings.TrimSpace(id))
}

// QueueStatus exposes the delivery queue counters.
func (s *SyncService) QueueStatus() dispatch.Status {
	return s.dispatcher.Status()
}

// lookupExisting loads stored counterparts for the fetched ids in chunks. A
// failed lookup degrades to an empty history: the batch is then treated as
// unseen, which at worst re-delivers rather than silently dropping.
func (s *SyncService) lookupExisting(ctx context.Context, ids []string) map[string]*domain.Review {
	existing := make(map[string]*domain.Review, len(ids))
	for start := 0; start < len(ids); start += lookupChunkSize {
		end := start + lookupChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		chunk, err := s.reviews.GetExistingByIDs(ctx, ids[start:end])
		if err != nil {
			s.logger.Warn("history lookup failed, treating chunk as unseen",
				zap.Int("chunkStart", start),
				zap.Int("chunkSize", end-start),
				zap.Error(err),
			)
			continue
		}
		for id, review := range chunk {
			existing[id] = review
		}
	}
	return existing
}

// mergeForPersist folds fresh source content over the stored record while
// keeping locally-owned fields: first-seen time, delivery flags, and the
// whole reply lifecycle.
func mergeForPersist(fresh *domain.Review, prior *domain.Review, now time.Time) *domain.Review {
	record := *fresh
	if prior == nil {
		record.FirstSeenAt = now
		record.ReplyStatus = domain.ReplyStatusNone
		return &record
	}

	record.FirstSeenAt = prior.FirstSeenAt
	record.Delivered = prior.Delivered
	record.DeliveryKind = prior.DeliveryKind
	record.ReplyStatus = prior.ReplyStatus
	record.ReplyRetries = prior.ReplyRetries
	record.LastError = prior.LastError
	record.CreatedAt = prior.CreatedAt

	// A locally committed reply can land before the source reflects it in
	// its feed. The local copy wins until the source catches up.
	if record.ResponseBody == nil && prior.ResponseBody != nil {
		record.ResponseBody = prior.ResponseBody
		record.ResponseAt = prior.ResponseAt
	}
	return &record
}
