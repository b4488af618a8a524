// Package source talks to the external feedback platform. The platform is
// slow and unreliable; callers never assume synchronous success.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultSubmitTimeout = 30 * time.Second

// Submitter forwards a human reply back to the feedback source.
type Submitter interface {
	SubmitReply(ctx context.Context, reviewID string, text string) (*SubmitResult, error)
}

// SubmitResult reports the outcome of a reply submission.
type SubmitResult struct {
	RespondedAt time.Time
}

type submitRequest struct {
	ReviewID string `json:"reviewId"`
	Text     string `json:"text"`
}

type submitResponse struct {
	RespondedAt time.Time `json:"respondedAt"`
}

// Client is the HTTP client for the feedback source reply endpoint.
type Client struct {
	client   *resty.Client
	endpoint string
}

func NewClient(endpoint string) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultSubmitTimeout)
	client.SetRetryCount(0)

	return NewClientWithClient(endpoint, client)
}

func NewClientWithClient(endpoint string, client *resty.Client) (*Client, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("feedback source endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid feedback source endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSubmitTimeout)
	}
	client.SetRetryCount(0)

	return &Client{
		client:   client,
		endpoint: strings.TrimRight(trimmedEndpoint, "/"),
	}, nil
}

func (c *Client) SubmitReply(ctx context.Context, reviewID string, text string) (*SubmitResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("source client is not initialized")
	}
	if strings.TrimSpace(reviewID) == "" {
		return nil, fmt.Errorf("review id is required")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(submitRequest{ReviewID: reviewID, Text: text}).
		SetResult(&submitResponse{}).
		Post(c.endpoint + "/reviews/" + url.PathEscape(reviewID) + "/reply")
	if err != nil {
		return nil, &SubmissionError{
			Message:   "submission request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &SubmissionError{Message: "source returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &SubmissionError{
			StatusCode: statusCode,
			Message:    submissionErrorMessage(statusCode, strings.TrimSpace(response.String())),
			Transient:  statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError,
		}
	}

	respondedAt := time.Now().UTC()
	if parsed, ok := response.Result().(*submitResponse); ok && !parsed.RespondedAt.IsZero() {
		respondedAt = parsed.RespondedAt
	}

	return &SubmitResult{RespondedAt: respondedAt}, nil
}

func submissionErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("source returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

// SubmissionError classifies reply forwarding failures.
type SubmissionError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *SubmissionError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "submission error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *SubmissionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
