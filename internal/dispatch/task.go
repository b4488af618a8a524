package dispatch

import (
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/review-relay/internal/channel"
)

// Task is one unit of queued delivery work: a rendered card bound for a chat
// destination, with its retry accounting.
type Task struct {
	ID           string
	ReviewID     string
	Kind         string
	Destination  string
	Card         channel.Card
	AttemptCount int
	MaxAttempts  int
	EnqueuedAt   time.Time
}

func NewTask(reviewID string, kind string, destination string, card channel.Card, maxAttempts int) *Task {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Task{
		ID:          uuid.NewString(),
		ReviewID:    reviewID,
		Kind:        kind,
		Destination: destination,
		Card:        card,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
}
