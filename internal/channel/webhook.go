package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

type sendRequest struct {
	Destination string `json:"destination"`
	Card        Card   `json:"card"`
}

type mutateRequest struct {
	Card Card `json:"card"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// WebhookChannel delivers cards to a chat platform webhook endpoint that
// supports sending and in-place message mutation.
type WebhookChannel struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookChannel(endpoint string) (*WebhookChannel, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookChannelWithClient(endpoint, client)
}

func NewWebhookChannelWithClient(endpoint string, client *resty.Client) (*WebhookChannel, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("channel endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid channel endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	// Retrying is the delivery queue's job, not the transport's.
	client.SetRetryCount(0)

	return &WebhookChannel{
		client:   client,
		endpoint: strings.TrimRight(trimmedEndpoint, "/"),
	}, nil
}

func (c *WebhookChannel) Send(ctx context.Context, destination string, card Card) (*SendResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("channel is not initialized")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, fmt.Errorf("destination is required")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(sendRequest{Destination: destination, Card: card}).
		Post(c.endpoint + "/messages")
	if err != nil {
		return nil, requestError(err)
	}

	if err := classifyResponse(response); err != nil {
		return nil, err
	}

	return &SendResult{MessageID: messageIDFromResponse(response)}, nil
}

func (c *WebhookChannel) Mutate(ctx context.Context, messageID string, card Card) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("channel is not initialized")
	}
	if strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("message id is required")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(mutateRequest{Card: card}).
		Patch(c.endpoint + "/messages/" + url.PathEscape(messageID))
	if err != nil {
		return requestError(err)
	}

	return classifyResponse(response)
}

func requestError(err error) error {
	return &ChannelError{
		Message:   "channel request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}

func classifyResponse(response *resty.Response) error {
	if response == nil {
		return &ChannelError{Message: "channel returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(response.String())
	message := fmt.Sprintf("channel returned status %d", statusCode)
	if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return &ChannelError{
		StatusCode:  statusCode,
		Message:     message,
		Transient:   isTransientHTTPStatus(statusCode),
		RateLimited: statusCode == http.StatusTooManyRequests,
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func messageIDFromResponse(response *resty.Response) string {
	if response == nil {
		return ""
	}

	var parsed sendResponse
	if err := json.Unmarshal(response.Body(), &parsed); err == nil {
		if id := strings.TrimSpace(parsed.MessageID); id != "" {
			return id
		}
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
