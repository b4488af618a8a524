// Package dispatch buffers delivery tasks and drains them in small rate-aware
// batches toward the chat channel. One drain loop runs at a time; enqueueing
// wakes it up, so no external scheduler is involved.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/review-relay/internal/channel"
	"go.uber.org/zap"
)

const (
	defaultBatchSize   = 5
	defaultInterval    = 2 * time.Second
	defaultMaxAttempts = 3
)

// Sender performs one delivery attempt for a task. Implementations wrap the
// chat channel client plus any post-delivery bookkeeping.
type Sender func(ctx context.Context, task *Task) error

// Status is a point-in-time snapshot of the queue.
type Status struct {
	Size          int
	Processing    bool
	SuccessCount  int64
	ErrorCount    int64
	LastProcessed time.Time
}

// Options tune the drain loop.
type Options struct {
	BatchSize   int
	Interval    time.Duration
	MaxAttempts int

	// RetryRateLimited exempts rate-limit failures from attempt accounting:
	// a throttled send is re-queued without consuming its retry budget.
	RetryRateLimited bool
}

// Queue is the in-memory delivery queue. Tasks are drained FIFO except that
// retried tasks re-enter at the front, bounding the staleness of the oldest
// pending item.
type Queue struct {
	sender  Sender
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	onDrain func()

	mu            sync.Mutex
	tasks         []*Task
	processing    bool
	stopped       bool
	successCount  int64
	errorCount    int64
	lastProcessed time.Time
}

func NewQueue(sender Sender, opts Options, logger *zap.Logger) (*Queue, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	return &Queue{
		sender: sender,
		logger: logger,
		opts:   opts,
		now:    time.Now,
		sleep:  sleepWithContext,
	}, nil
}

// Enqueue adds one task and wakes the drain loop if it is idle. Enqueueing is
// fire-and-forget: delivery failures surface through ErrorCount, not errors.
func (q *Queue) Enqueue(task *Task) {
	if task == nil {
		return
	}
	q.EnqueueBatch([]*Task{task})
}

func (q *Queue) EnqueueBatch(tasks []*Task) {
	if len(tasks) == 0 {
		return
	}

	q.mu.Lock()
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if task.MaxAttempts < 1 {
			task.MaxAttempts = q.opts.MaxAttempts
		}
		q.tasks = append(q.tasks, task)
	}
	start := !q.processing && !q.stopped && len(q.tasks) > 0
	if start {
		q.processing = true
	}
	q.mu.Unlock()

	if start {
		go q.drainLoop()
	}
}

func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Status{
		Size:          len(q.tasks),
		Processing:    q.processing,
		SuccessCount:  q.successCount,
		ErrorCount:    q.errorCount,
		LastProcessed: q.lastProcessed,
	}
}

// Stop prevents new drain cycles from starting. In-flight dispatches finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
}

// Clear drops all queued tasks without attempting them.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.tasks = nil
	q.mu.Unlock()
}

func (q *Queue) drainLoop() {
	defer func() {
		if q.onDrain != nil {
			q.onDrain()
		}
	}()

	ctx := context.Background()

	for {
		batch := q.popBatch()
		if batch == nil {
			return
		}

		batchFailed := q.processBatch(ctx, batch)

		if q.pendingSize() > 0 {
			cooldown := q.opts.Interval
			if batchFailed {
				// Avoid hammering a failing or throttling destination.
				cooldown *= 2
			}
			if err := q.sleep(ctx, cooldown); err != nil {
				return
			}
		}
	}
}

// popBatch returns the next batch, or nil once the queue is empty or stopped,
// in which case the loop's processing claim is released.
func (q *Queue) popBatch() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || len(q.tasks) == 0 {
		q.processing = false
		return nil
	}

	size := q.opts.BatchSize
	if size > len(q.tasks) {
		size = len(q.tasks)
	}

	batch := q.tasks[:size]
	q.tasks = q.tasks[size:]
	return batch
}

func (q *Queue) pendingSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// processBatch fans the batch out, waits for all results, and re-queues
// retryable failures at the front. Returns whether any task failed.
func (q *Queue) processBatch(ctx context.Context, batch []*Task) bool {
	results := make([]error, len(batch))

	var wg sync.WaitGroup
	for i, task := range batch {
		wg.Add(1)
		go func(i int, task *Task) {
			defer wg.Done()
			results[i] = q.sender(ctx, task)
		}(i, task)
	}
	wg.Wait()

	var retries []*Task
	batchFailed := false

	for i, task := range batch {
		err := results[i]
		if err == nil {
			q.recordSuccess()
			continue
		}

		batchFailed = true

		if channel.IsRateLimited(err) && q.opts.RetryRateLimited {
			q.logger.Warn("delivery rate limited, re-queueing without attempt charge",
				zap.String("taskId", task.ID),
				zap.String("reviewId", task.ReviewID),
				zap.Error(err),
			)
			retries = append(retries, task)
			continue
		}

		task.AttemptCount++
		if task.AttemptCount < task.MaxAttempts {
			q.logger.Warn("delivery failed, will retry",
				zap.String("taskId", task.ID),
				zap.String("reviewId", task.ReviewID),
				zap.Int("attempt", task.AttemptCount),
				zap.Int("maxAttempts", task.MaxAttempts),
				zap.Error(err),
			)
			retries = append(retries, task)
			continue
		}

		q.recordError()
		q.logger.Error("delivery permanently failed, dropping task",
			zap.String("taskId", task.ID),
			zap.String("reviewId", task.ReviewID),
			zap.Int("attempts", task.AttemptCount),
			zap.Error(err),
		)
	}

	if len(retries) > 0 {
		q.requeueFront(retries)
	}

	q.mu.Lock()
	q.lastProcessed = q.now().UTC()
	q.mu.Unlock()

	return batchFailed
}

func (q *Queue) requeueFront(retries []*Task) {
	q.mu.Lock()
	q.tasks = append(retries, q.tasks...)
	q.mu.Unlock()
}

func (q *Queue) recordSuccess() {
	q.mu.Lock()
	q.successCount++
	q.mu.Unlock()
}

func (q *Queue) recordError() {
	q.mu.Lock()
	q.errorCount++
	q.mu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
