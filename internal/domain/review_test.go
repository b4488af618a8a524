package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseDeliveryKindFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    DeliveryKind
		wantErr bool
	}{
		{name: "valid uppercase", input: "NEW", want: DeliveryKindNew},
		{name: "valid lowercase with spaces", input: " historical ", want: DeliveryKindHistorical},
		{name: "invalid", input: "resend", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDeliveryKindFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseDeliveryKindFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseDeliveryKindFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseDeliveryKindFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseReplyStatusFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseReplyStatusFromString(" pending ")
	if err != nil {
		t.Fatalf("ParseReplyStatusFromString() unexpected error = %v", err)
	}
	if got != ReplyStatusPending {
		t.Fatalf("ParseReplyStatusFromString() = %s, want %s", got, ReplyStatusPending)
	}

	_, err = ParseReplyStatusFromString("done")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseReplyStatusFromString() error = %v, want ErrValidation", err)
	}
}

func TestReviewValidate(t *testing.T) {
	t.Parallel()

	body := "solid app"
	response := "thanks!"
	respondedAt := time.Now().UTC()

	tests := []struct {
		name    string
		review  Review
		wantErr bool
	}{
		{
			name: "valid",
			review: Review{
				ID:          "r1",
				SourceAppID: "app-1",
				Rating:      4,
				AuthorName:  "alice",
				Body:        &body,
				SubmittedAt: time.Now().UTC(),
				FirstSeenAt: time.Now().UTC(),
				ReplyStatus: ReplyStatusNone,
			},
		},
		{
			name:    "missing id",
			review:  Review{SourceAppID: "app-1", Rating: 3},
			wantErr: true,
		},
		{
			name:    "rating out of range",
			review:  Review{ID: "r1", SourceAppID: "app-1", Rating: 6},
			wantErr: true,
		},
		{
			name:    "delivered without kind",
			review:  Review{ID: "r1", SourceAppID: "app-1", Rating: 3, Delivered: true},
			wantErr: true,
		},
		{
			name:    "response body without date",
			review:  Review{ID: "r1", SourceAppID: "app-1", Rating: 3, ResponseBody: &response},
			wantErr: true,
		},
		{
			name: "response body with date",
			review: Review{
				ID: "r1", SourceAppID: "app-1", Rating: 3,
				ResponseBody: &response, ResponseAt: &respondedAt,
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.review.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestReviewContentEquals(t *testing.T) {
	t.Parallel()

	body := "nice"
	otherBody := "meh"
	response := "thanks"

	base := &Review{ID: "r1", Rating: 5, Body: &body}

	if !base.ContentEquals(&Review{ID: "r1", Rating: 5, Body: &body}) {
		t.Fatal("identical content should compare equal")
	}
	if base.ContentEquals(&Review{ID: "r1", Rating: 4, Body: &body}) {
		t.Fatal("rating change should compare unequal")
	}
	if base.ContentEquals(&Review{ID: "r1", Rating: 5, Body: &otherBody}) {
		t.Fatal("body change should compare unequal")
	}
	if base.ContentEquals(&Review{ID: "r1", Rating: 5, Body: &body, ResponseBody: &response}) {
		t.Fatal("new response should compare unequal")
	}
	if !base.ContentEquals(&Review{ID: "r1", Rating: 5, Body: &body, Title: &otherBody}) {
		t.Fatal("title change alone should compare equal")
	}
}

func TestValidateReplyText(t *testing.T) {
	t.Parallel()

	if err := ValidateReplyText("thank you for the feedback"); err != nil {
		t.Fatalf("ValidateReplyText() unexpected error = %v", err)
	}
	if err := ValidateReplyText("   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidateReplyText(whitespace) error = %v, want ErrValidation", err)
	}
	if err := ValidateReplyText(strings.Repeat("a", MaxReplyLength+1)); !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidateReplyText(oversized) error = %v, want ErrValidation", err)
	}
	if err := ValidateReplyText(strings.Repeat("a", MaxReplyLength)); err != nil {
		t.Fatalf("ValidateReplyText(limit) unexpected error = %v", err)
	}
}

func TestCardStateCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from CardState
		to   CardState
		want bool
	}{
		{CardStateInitial, CardStateReplying, true},
		{CardStateInitial, CardStateReplied, false},
		{CardStateReplying, CardStateReplying, true},
		{CardStateReplying, CardStateReplied, true},
		{CardStateReplied, CardStateEditingReply, true},
		{CardStateReplied, CardStateReplying, false},
		{CardStateEditingReply, CardStateReplied, true},
		{CardStateReplied, CardStateInitial, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
