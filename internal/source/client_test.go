package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientSubmitReplySuccess(t *testing.T) {
	t.Parallel()

	respondedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var gotBody submitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reviews/r1/reply" {
			t.Errorf("path = %s, want /reviews/r1/reply", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(submitResponse{RespondedAt: respondedAt})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	result, err := client.SubmitReply(context.Background(), "r1", "thanks for the feedback")
	if err != nil {
		t.Fatalf("SubmitReply() unexpected error: %v", err)
	}

	if !result.RespondedAt.Equal(respondedAt) {
		t.Fatalf("RespondedAt = %v, want %v", result.RespondedAt, respondedAt)
	}
	if gotBody.Text != "thanks for the feedback" {
		t.Fatalf("request.text = %q, want %q", gotBody.Text, "thanks for the feedback")
	}
}

func TestClientSubmitReplyFailureStatuses(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "rate limit is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "unprocessable is permanent", statusCode: http.StatusUnprocessableEntity},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("source failed"))
			}))
			defer server.Close()

			client, err := NewClient(server.URL)
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}

			_, err = client.SubmitReply(context.Background(), "r1", "thanks")
			if err == nil {
				t.Fatal("expected error")
			}

			var submissionErr *SubmissionError
			if !errors.As(err, &submissionErr) {
				t.Fatalf("expected SubmissionError, got %T", err)
			}
			if submissionErr.StatusCode != tc.statusCode {
				t.Fatalf("StatusCode = %d, want %d", submissionErr.StatusCode, tc.statusCode)
			}
			if submissionErr.Transient != tc.wantTransient {
				t.Fatalf("Transient = %v, want %v", submissionErr.Transient, tc.wantTransient)
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewClientWithClient("http://example.com", nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
