package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/review-relay/internal/domain"
)

// ReviewBatchMessage is the broker payload for one fetched batch of reviews.
// The reviews travel in full so the sync side never re-fetches the source.
type ReviewBatchMessage struct {
	BatchID     string          `json:"batchId"`
	SourceAppID string          `json:"sourceAppId"`
	FetchedAt   time.Time       `json:"fetchedAt"`
	Reviews     []domain.Review `json:"reviews"`
}

func (m ReviewBatchMessage) Validate() error {
	if strings.TrimSpace(m.BatchID) == "" {
		return fmt.Errorf("batchId is required")
	}
	if strings.TrimSpace(m.SourceAppID) == "" {
		return fmt.Errorf("sourceAppId is required")
	}
	if len(m.Reviews) == 0 {
		return fmt.Errorf("batch must include at least one review")
	}
	return nil
}
