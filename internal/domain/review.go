package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryKind classifies why a review was delivered to the chat channel.
type DeliveryKind string

const (
	DeliveryKindNew        DeliveryKind = "NEW"
	DeliveryKindHistorical DeliveryKind = "HISTORICAL"
	DeliveryKindUpdated    DeliveryKind = "UPDATED"
)

func (k DeliveryKind) String() string { return string(k) }

func (k DeliveryKind) IsValid() bool {
	switch k {
	case DeliveryKindNew, DeliveryKindHistorical, DeliveryKindUpdated:
		return true
	}
	return false
}

func ParseDeliveryKindFromString(s string) (DeliveryKind, error) {
	k := DeliveryKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery kind %q", ErrValidation, s)
	}
	return k, nil
}

// ReplyStatus tracks the lifecycle of a reply forwarded to the feedback source.
type ReplyStatus string

const (
	ReplyStatusNone      ReplyStatus = "NONE"
	ReplyStatusPending   ReplyStatus = "PENDING"
	ReplyStatusSubmitted ReplyStatus = "SUBMITTED"
	ReplyStatusFailed    ReplyStatus = "FAILED"
)

func (s ReplyStatus) String() string { return string(s) }

func (s ReplyStatus) IsValid() bool {
	switch s {
	case ReplyStatusNone, ReplyStatusPending, ReplyStatusSubmitted, ReplyStatusFailed:
		return true
	}
	return false
}

func ParseReplyStatusFromString(s string) (ReplyStatus, error) {
	st := ReplyStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid reply status %q", ErrValidation, s)
	}
	return st, nil
}

// Rating bounds and the maximum accepted reply length (in runes).
const (
	MinRating      = 1
	MaxRating      = 5
	MaxReplyLength = 1000
)

// Review is the core domain entity: one user-submitted rating/review fetched
// from the external feedback source.
type Review struct {
	ID           string       `gorm:"type:varchar(64);primaryKey"`
	SourceAppID  string       `gorm:"type:varchar(64);not null"`
	Rating       int          `gorm:"not null"`
	Title        *string      `gorm:"type:varchar(255)"`
	Body         *string      `gorm:"type:text"`
	AuthorName   string       `gorm:"type:varchar(255);not null"`
	SubmittedAt  time.Time    `gorm:"not null"`
	Edited       bool         `gorm:"not null;default:false"`
	ResponseBody *string      `gorm:"type:text"`
	ResponseAt   *time.Time
	Territory    *string      `gorm:"type:varchar(8)"`
	AppVersion   *string      `gorm:"type:varchar(32)"`
	FirstSeenAt  time.Time    `gorm:"not null"`
	Delivered    bool         `gorm:"not null;default:false"`
	DeliveryKind DeliveryKind `gorm:"type:varchar(16)"`
	ReplyStatus  ReplyStatus  `gorm:"type:varchar(16);not null;default:'NONE'"`
	ReplyRetries int          `gorm:"not null;default:0"`
	LastError    *string      `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Review) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: review id is required", ErrValidation)
	}
	if strings.TrimSpace(r.SourceAppID) == "" {
		return fmt.Errorf("%w: source app id is required", ErrValidation)
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("%w: rating must be between %d and %d (got %d)", ErrValidation, MinRating, MaxRating, r.Rating)
	}
	if r.Delivered && !r.DeliveryKind.IsValid() {
		return fmt.Errorf("%w: delivered review requires a delivery kind", ErrValidation)
	}
	if (r.ResponseBody != nil) != (r.ResponseAt != nil) {
		return fmt.Errorf("%w: response body and response date must be set together", ErrValidation)
	}
	return nil
}

// HasResponse reports whether a developer response is present on the review.
func (r *Review) HasResponse() bool {
	return r != nil && r.ResponseBody != nil && strings.TrimSpace(*r.ResponseBody) != ""
}

// ContentEquals compares the fields whose change warrants re-delivery.
// Absent optional fields compare as unchanged.
func (r *Review) ContentEquals(other *Review) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Rating != other.Rating {
		return false
	}
	if !optionalStringEquals(r.Body, other.Body) {
		return false
	}
	return optionalStringEquals(r.ResponseBody, other.ResponseBody)
}

// Age is the time elapsed since the user submitted the review.
func (r *Review) Age(now time.Time) time.Duration {
	return now.Sub(r.SubmittedAt)
}

// ValidateReplyText enforces the reply constraints shared by the interaction
// state machine and the reply coordinator.
func ValidateReplyText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: reply text is required", ErrValidation)
	}
	if length := len([]rune(text)); length > MaxReplyLength {
		return fmt.Errorf("%w: reply exceeds %d characters (got %d)", ErrValidation, MaxReplyLength, length)
	}
	return nil
}

func optionalStringEquals(a, b *string) bool {
	if a == nil || b == nil {
		return (a == nil) == (b == nil)
	}
	return *a == *b
}
