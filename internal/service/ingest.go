package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/review-relay/internal/observability"
	"github.com/kursadbilgin/review-relay/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minIngestConcurrency = 1

// IngestWorker consumes fetched review batches from the broker and runs them
// through the sync service.
type IngestWorker struct {
	sync        *SyncService
	consumer    queue.Consumer
	logger      *zap.Logger
	concurrency int
}

func NewIngestWorker(
	sync *SyncService,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*IngestWorker, error) {
	if sync == nil {
		return nil, fmt.Errorf("sync service is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minIngestConcurrency {
		concurrency = minIngestConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestWorker{
		sync:        sync,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes the ingest queue until context cancellation.
func (w *IngestWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueName := queue.IngestQueueName()
	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("ingest worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := w.consumer.Consume(groupCtx, queueName, w.processMessage)
			if err != nil {
				w.logger.Error("ingest worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("ingest worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *IngestWorker) processMessage(ctx context.Context, msg queue.ReviewBatchMessage) error {
	ctx = observability.WithCorrelationID(ctx, msg.BatchID)
	logger := observability.WithContextLogger(w.logger, ctx)

	summary, err := w.sync.ProcessBatch(ctx, msg.Reviews)
	if err != nil {
		logger.Error("failed to process review batch",
			zap.String("sourceAppId", msg.SourceAppID),
			zap.Error(err),
		)
		return err
	}

	logger.Info("review batch ingested",
		zap.Int("total", summary.Total),
		zap.Int("enqueued", summary.Enqueued),
	)
	return nil
}
