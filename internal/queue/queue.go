package queue

import (
	"context"
	"fmt"
)

// Publisher publishes fetched review batches to the ingest queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg ReviewBatchMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg ReviewBatchMessage) error

// Consumer consumes review batch messages from the ingest queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const ingestQueueName = "reviews.ingest"

// IngestQueueName returns the work queue fetched review batches land on.
func IngestQueueName() string {
	return ingestQueueName
}

// IngestDLQName returns the dead-letter queue for rejected ingest messages.
func IngestDLQName() string {
	return fmt.Sprintf("dlq.%s", ingestQueueName)
}
